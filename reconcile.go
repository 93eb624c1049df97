package editorstate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-editorstate/internal/hydrate"
	"github.com/goliatone/go-editorstate/layering"
)

// Layer names reported in Migration.Sources.
const (
	SourceOverrides = "overrides"
	SourceToken     = "token"
	SourceDefaults  = "defaults"
)

// legacyAliases maps field names written by older builds to current ones.
var legacyAliases = map[string]string{
	"editorMode": "viewMode",
}

// Migration reports how a record was reconciled onto the current schema.
type Migration struct {
	// Defaulted lists fields filled from defaults.
	Defaulted []string `json:"defaulted,omitempty"`
	// Dropped lists fields the current schema does not know.
	Dropped []string `json:"dropped,omitempty"`
	// Rejected lists known fields whose value had the wrong shape.
	Rejected []string `json:"rejected,omitempty"`
	// Sources maps each field to the layer that supplied it.
	Sources layering.Provenance `json:"sources,omitempty"`
}

// stateLayer is State with every field optional so merging can tell an absent
// value from a zero one.
type stateLayer struct {
	Code          *string   `json:"code,omitempty"`
	Grid          *bool     `json:"grid,omitempty"`
	Mermaid       *string   `json:"mermaid,omitempty"`
	PanZoom       *bool     `json:"panZoom,omitempty"`
	Rough         *bool     `json:"rough,omitempty"`
	UpdateDiagram *bool     `json:"updateDiagram,omitempty"`
	ViewMode      *ViewMode `json:"viewMode,omitempty"`
}

func layerOf(s State) stateLayer {
	return stateLayer{
		Code:          &s.Code,
		Grid:          &s.Grid,
		Mermaid:       &s.Mermaid,
		PanZoom:       &s.PanZoom,
		Rough:         &s.Rough,
		UpdateDiagram: &s.UpdateDiagram,
		ViewMode:      &s.ViewMode,
	}
}

func (l stateLayer) state() State {
	var s State
	if l.Code != nil {
		s.Code = *l.Code
	}
	if l.Grid != nil {
		s.Grid = *l.Grid
	}
	if l.Mermaid != nil {
		s.Mermaid = *l.Mermaid
	}
	if l.PanZoom != nil {
		s.PanZoom = *l.PanZoom
	}
	if l.Rough != nil {
		s.Rough = *l.Rough
	}
	if l.UpdateDiagram != nil {
		s.UpdateDiagram = *l.UpdateDiagram
	}
	if l.ViewMode != nil {
		s.ViewMode = *l.ViewMode
	}
	return s
}

// Migrator turns a loose Record into a State with exactly the current field
// set. It never fails: any gap or bad value is covered by defaults.
type Migrator struct {
	defaults   State
	overrides  stateLayer
	jsonFields []string
}

// NewMigrator builds a Migrator. Overrides, when present, win over token
// values; they must only name known fields with valid values. jsonFields lists
// the fields that carry JSON text.
func NewMigrator(defaults State, overrides Record, jsonFields []string) (*Migrator, error) {
	m := &Migrator{
		defaults:   defaults,
		jsonFields: append([]string(nil), jsonFields...),
	}
	if len(overrides) == 0 {
		return m, nil
	}
	var report Migration
	layer, err := m.decode(hydrate.Context{Source: SourceOverrides}, overrides, &report)
	if err != nil {
		return nil, fmt.Errorf("editorstate: overrides: %w", err)
	}
	if bad := append(append([]string(nil), report.Dropped...), report.Rejected...); len(bad) > 0 {
		return nil, fmt.Errorf("editorstate: overrides: invalid fields %s", strings.Join(bad, ", "))
	}
	m.overrides = layer
	return m, nil
}

// Defaults returns the State used to fill gaps.
func (m *Migrator) Defaults() State {
	return m.defaults
}

// Reconcile merges record onto the defaults.
func (m *Migrator) Reconcile(record Record) (State, Migration) {
	var report Migration
	layer, err := m.decode(hydrate.Context{Source: SourceToken}, record, &report)
	if err != nil {
		layer = stateLayer{}
	}

	merged, sources := layering.Merge(
		layering.Layer[stateLayer]{Name: SourceOverrides, Snapshot: m.overrides},
		layering.Layer[stateLayer]{Name: SourceToken, Snapshot: layer},
		layering.Layer[stateLayer]{Name: SourceDefaults, Snapshot: layerOf(m.defaults)},
	)
	report.Sources = sources
	report.Defaulted = sortedFields(sources.Fields(SourceDefaults))
	sort.Strings(report.Dropped)
	sort.Strings(report.Rejected)
	return merged.state(), report
}

func (m *Migrator) decode(ctx hydrate.Context, record Record, report *Migration) (stateLayer, error) {
	if record == nil {
		record = Record{}
	}
	decoder := hydrate.NewDecoder[stateLayer](
		hydrate.WithPreHook[stateLayer](renameLegacyFields),
		hydrate.WithPreHook[stateLayer](m.normalizeJSONFields(report)),
		hydrate.WithPreHook[stateLayer](hydrate.KeepFields(Fields(), func(key string) {
			report.Dropped = append(report.Dropped, key)
		})),
		hydrate.WithPreHook[stateLayer](screenFields(report)),
	)
	return decoder.Decode(ctx, hydrate.Payload(record))
}

func renameLegacyFields(ctx hydrate.Context, payload hydrate.Payload) (hydrate.Payload, error) {
	for from, to := range legacyAliases {
		next, err := hydrate.RenameField(from, to)(ctx, payload)
		if err != nil {
			return nil, err
		}
		payload = next
	}
	return payload, nil
}

// normalizeJSONFields turns legitimate nested objects in JSON text fields into
// indented strings and rejects values that cannot hold JSON text.
func (m *Migrator) normalizeJSONFields(report *Migration) hydrate.PreHook {
	return func(_ hydrate.Context, payload hydrate.Payload) (hydrate.Payload, error) {
		for _, field := range m.jsonFields {
			raw, ok := payload[field]
			if !ok {
				continue
			}
			value := bytes.TrimSpace(raw)
			switch firstByte(value) {
			case '"':
				var text string
				if err := json.Unmarshal(value, &text); err == nil && json.Valid([]byte(text)) {
					continue
				}
			case '{':
				if encoded, err := marshalJSON(indentText(value)); err == nil {
					payload[field] = encoded
					continue
				}
			}
			delete(payload, field)
			report.Rejected = append(report.Rejected, field)
		}
		return payload, nil
	}
}

// screenFields drops values that do not satisfy the State schema.
func screenFields(report *Migration) hydrate.PreHook {
	return func(_ hydrate.Context, payload hydrate.Payload) (hydrate.Payload, error) {
		for field, raw := range payload {
			if err := ValidateField(field, raw); err != nil {
				delete(payload, field)
				report.Rejected = append(report.Rejected, field)
			}
		}
		return payload, nil
	}
}

func sortedFields(fields []string) []string {
	sort.Strings(fields)
	return fields
}

// Reconcile merges record onto DefaultState without healing it first.
func Reconcile(record Record) State {
	m := &Migrator{defaults: DefaultState(), jsonFields: []string{"mermaid"}}
	state, _ := m.Reconcile(record)
	return state
}
