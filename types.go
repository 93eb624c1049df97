package editorstate

import (
	"bytes"
	"encoding/json"
)

// ViewMode identifies which pane layout the editor shows.
type ViewMode string

const (
	// ViewModeCode shows the diagram source pane.
	ViewModeCode ViewMode = "code"
	// ViewModeConfig shows the renderer configuration pane.
	ViewModeConfig ViewMode = "config"
)

// State is the canonical editable record shared through tokens. Field order
// matches the JSON layout produced by the browser build so base64 tokens stay
// byte-compatible.
type State struct {
	Code          string   `json:"code" jsonschema:"description=Diagram source text"`
	Grid          bool     `json:"grid"`
	Mermaid       string   `json:"mermaid" jsonschema:"description=Renderer configuration encoded as a JSON string"`
	PanZoom       bool     `json:"panZoom"`
	Rough         bool     `json:"rough"`
	UpdateDiagram bool     `json:"updateDiagram"`
	ViewMode      ViewMode `json:"viewMode" jsonschema:"enum=code,enum=config"`
}

const defaultCode = "flowchart TD\n" +
	"A[Christmas] -->| Get money | B(Go shopping)\n" +
	"B --> C{Let me think }\n" +
	"C -->| One | D[Laptop]\n" +
	"C -->| Two | E[iPhone]\n" +
	"C -->| Three | F[fa: fa - car Car]\n"

// DefaultMermaidConfig is the renderer configuration used whenever a stored
// configuration cannot be recovered.
const DefaultMermaidConfig = "{\n  \"theme\": \"default\"\n}"

// DefaultState returns the state the editor starts with.
func DefaultState() State {
	return State{
		Code:          defaultCode,
		Grid:          true,
		Mermaid:       DefaultMermaidConfig,
		PanZoom:       true,
		Rough:         false,
		UpdateDiagram: true,
		ViewMode:      ViewModeCode,
	}
}

// Fields returns the JSON field names of State in their encoded order.
func Fields() []string {
	return []string{"code", "grid", "mermaid", "panZoom", "rough", "updateDiagram", "viewMode"}
}

// Record is a decoded token payload before reconciliation. Values are kept as
// raw JSON so corrupted fields can be repaired from exactly what was written.
type Record map[string]json.RawMessage

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = append(json.RawMessage(nil), value...)
	}
	return out
}

// Decode unmarshals the value stored under key into v. It reports false when
// the key is absent.
func (r Record) Decode(key string, v any) (bool, error) {
	raw, ok := r[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// toRecord converts any JSON-serialisable value into a Record.
func toRecord(v any) (Record, error) {
	data, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Map returns the state as a generic map keyed by JSON field names.
func (s State) Map() map[string]any {
	return map[string]any{
		"code":          s.Code,
		"grid":          s.Grid,
		"mermaid":       s.Mermaid,
		"panZoom":       s.PanZoom,
		"rough":         s.Rough,
		"updateDiagram": s.UpdateDiagram,
		"viewMode":      string(s.ViewMode),
	}
}

// marshalJSON encodes v without HTML escaping and without the trailing newline
// json.Encoder appends, matching JSON.stringify output for the same value.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// indentJSON renders v with two-space indentation and no HTML escaping.
func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
