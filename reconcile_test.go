package editorstate

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func mustRecord(t *testing.T, text string) Record {
	t.Helper()
	var record Record
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		t.Fatalf("record %s: %v", text, err)
	}
	return record
}

func newTestMigrator(t *testing.T, overrides Record) *Migrator {
	t.Helper()
	m, err := NewMigrator(DefaultState(), overrides, []string{"mermaid"})
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	return m
}

func TestReconcileEmptyRecordYieldsDefaults(t *testing.T) {
	s, report := newTestMigrator(t, nil).Reconcile(Record{})
	if s != DefaultState() {
		t.Fatalf("expected default state, got %#v", s)
	}
	want := []string{"code", "grid", "mermaid", "panZoom", "rough", "updateDiagram", "viewMode"}
	if !reflect.DeepEqual(report.Defaulted, want) {
		t.Fatalf("expected every field defaulted, got %v", report.Defaulted)
	}
	if len(report.Dropped) != 0 || len(report.Rejected) != 0 {
		t.Fatalf("expected nothing dropped or rejected, got %+v", report)
	}
}

func TestReconcileCases(t *testing.T) {
	defaults := DefaultState()
	cases := []struct {
		name     string
		record   string
		mutate   func(*State)
		dropped  []string
		rejected []string
	}{
		{
			name:   "known fields copied",
			record: `{"code":"graph LR","grid":false,"rough":true,"viewMode":"config"}`,
			mutate: func(s *State) {
				s.Code = "graph LR"
				s.Grid = false
				s.Rough = true
				s.ViewMode = ViewModeConfig
			},
		},
		{
			name:    "unknown fields dropped",
			record:  `{"code":"x","theme":"dark","autoSync":true}`,
			mutate:  func(s *State) { s.Code = "x" },
			dropped: []string{"autoSync", "theme"},
		},
		{
			name:     "wrong types rejected",
			record:   `{"grid":"yes","panZoom":1,"code":null}`,
			rejected: []string{"code", "grid", "panZoom"},
		},
		{
			name:     "view mode outside enum",
			record:   `{"viewMode":"split"}`,
			rejected: []string{"viewMode"},
		},
		{
			name:   "legacy editor mode",
			record: `{"editorMode":"config"}`,
			mutate: func(s *State) { s.ViewMode = ViewModeConfig },
		},
		{
			name:   "view mode wins over legacy editor mode",
			record: `{"editorMode":"config","viewMode":"code"}`,
		},
		{
			name:   "nested configuration object",
			record: `{"mermaid":{"theme":"dark","flowchart":{"curve":"basis"}}}`,
			mutate: func(s *State) {
				s.Mermaid = "{\n  \"theme\": \"dark\",\n  \"flowchart\": {\n    \"curve\": \"basis\"\n  }\n}"
			},
		},
		{
			name:     "configuration that is not JSON text",
			record:   `{"mermaid":"theme: dark"}`,
			rejected: []string{"mermaid"},
		},
		{
			name:     "configuration of the wrong type",
			record:   `{"mermaid":42}`,
			rejected: []string{"mermaid"},
		},
	}

	m := newTestMigrator(t, nil)
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			want := defaults
			if tc.mutate != nil {
				tc.mutate(&want)
			}
			got, report := m.Reconcile(mustRecord(t, tc.record))
			if got != want {
				t.Fatalf("state mismatch:\nwant: %#v\n got: %#v", want, got)
			}
			if !reflect.DeepEqual(report.Dropped, tc.dropped) {
				t.Fatalf("dropped mismatch: want %v got %v", tc.dropped, report.Dropped)
			}
			if !reflect.DeepEqual(report.Rejected, tc.rejected) {
				t.Fatalf("rejected mismatch: want %v got %v", tc.rejected, report.Rejected)
			}
			if len(report.Sources) != len(Fields()) {
				t.Fatalf("expected provenance for every field, got %v", report.Sources)
			}
		})
	}
}

func TestReconcileDoesNotMutateRecord(t *testing.T) {
	record := mustRecord(t, `{"editorMode":"config","legacy":true}`)
	newTestMigrator(t, nil).Reconcile(record)
	if _, ok := record["editorMode"]; !ok {
		t.Fatalf("expected caller record to keep editorMode")
	}
	if _, ok := record["legacy"]; !ok {
		t.Fatalf("expected caller record to keep legacy")
	}
}

func TestReconcileOverridesWin(t *testing.T) {
	m := newTestMigrator(t, Record{"rough": json.RawMessage(`true`)})

	s, report := m.Reconcile(mustRecord(t, `{"rough":false,"grid":false}`))
	if !s.Rough {
		t.Fatalf("expected override to win")
	}
	if s.Grid {
		t.Fatalf("expected token value for grid")
	}
	if got := report.Sources.From("rough"); got != SourceOverrides {
		t.Fatalf("expected rough from overrides, got %q", got)
	}
	if got := report.Sources.From("grid"); got != SourceToken {
		t.Fatalf("expected grid from token, got %q", got)
	}
	if got := report.Sources.From("code"); got != SourceDefaults {
		t.Fatalf("expected code from defaults, got %q", got)
	}
}

func TestNewMigratorRejectsInvalidOverrides(t *testing.T) {
	cases := []Record{
		{"theme": json.RawMessage(`"dark"`)},
		{"viewMode": json.RawMessage(`"split"`)},
		{"grid": json.RawMessage(`"yes"`)},
	}
	for _, overrides := range cases {
		_, err := NewMigrator(DefaultState(), overrides, []string{"mermaid"})
		if err == nil || !strings.Contains(err.Error(), "overrides") {
			t.Fatalf("expected overrides error for %v, got %v", overrides, err)
		}
	}
}

func TestPackageReconcile(t *testing.T) {
	s := Reconcile(mustRecord(t, `{"code":"sequenceDiagram","extra":1}`))
	want := DefaultState()
	want.Code = "sequenceDiagram"
	if s != want {
		t.Fatalf("unexpected state %#v", s)
	}
}

func TestReconcileEmptyRecordHasNoTokenFields(t *testing.T) {
	_, report := newTestMigrator(t, nil).Reconcile(Record{})
	if fields := report.Sources.Fields(SourceToken); len(fields) != 0 {
		t.Fatalf("expected no token fields, got %v", fields)
	}
}
