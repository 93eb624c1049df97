package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-editorstate"
)

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("editorstate %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestParseStateAcceptsYAMLWithObjectConfig(t *testing.T) {
	input := `code: |
  graph TD
  A-->B
rough: true
mermaid:
  theme: dark
`
	s, err := parseState([]byte(input), editorstate.DefaultState())
	if err != nil {
		t.Fatalf("parse state: %v", err)
	}
	if s.Code != "graph TD\nA-->B\n" || !s.Rough {
		t.Fatalf("unexpected state %+v", s)
	}
	if s.Mermaid != "{\n  \"theme\": \"dark\"\n}" {
		t.Fatalf("unexpected mermaid %q", s.Mermaid)
	}
	if !s.Grid {
		t.Fatalf("expected grid to keep its default")
	}
}

func TestParseStateRejectsBadViewMode(t *testing.T) {
	if _, err := parseState([]byte(`{"viewMode":"split"}`), editorstate.DefaultState()); err == nil {
		t.Fatalf("expected invalid view mode to fail")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"code":"graph LR\nX-->Y","panZoom":false}`), 0o600); err != nil {
		t.Fatalf("write state: %v", err)
	}

	token := strings.TrimSpace(execute(t, "", "encode", "--format", "base64", path))
	if !strings.HasPrefix(token, "base64:") {
		t.Fatalf("expected base64 token, got %q", token)
	}

	decoded := execute(t, token, "decode")
	var s editorstate.State
	if err := json.Unmarshal([]byte(decoded), &s); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if s.Code != "graph LR\nX-->Y" || s.PanZoom {
		t.Fatalf("unexpected decoded state %+v", s)
	}
}

func TestRenderDiffWithoutColor(t *testing.T) {
	got := renderDiff("{\n  \"theme\": \"base\"\n}", "{\n  \"theme\": \"dark\"\n}", false)
	want := "  {\n-   \"theme\": \"base\"\n+   \"theme\": \"dark\"\n  }\n"
	if got != want {
		t.Fatalf("unexpected diff:\n%s\nwant:\n%s", got, want)
	}
	if renderDiff("same", "same", false) != "No changes\n" {
		t.Fatalf("expected no changes")
	}
}

func TestPrintInspectionListsRepairs(t *testing.T) {
	engine, err := editorstate.NewEngine()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	record := editorstate.Record{
		"code":    json.RawMessage(`"graph TD"`),
		"mermaid": json.RawMessage(`{"0":"{","1":"}"}`),
		"legacy":  json.RawMessage(`true`),
	}
	token, err := editorstate.DefaultRegistry().Encode(record, editorstate.FormatBase64)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	inspection, err := engine.Inspect(token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}

	var out bytes.Buffer
	printInspection(&out, inspection, false)
	text := out.String()
	for _, want := range []string{"format: base64", "mermaid: burst", "dropped: legacy", "defaulted: grid"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}
