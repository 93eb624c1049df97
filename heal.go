package editorstate

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// RepairKind names the corruption pattern a field was recovered from.
type RepairKind string

const (
	// RepairBurst is a string spread into an object of index keys.
	RepairBurst RepairKind = "burst"
	// RepairHybridBurst is a burst object that also carried named keys; the
	// reconstructed text won over them.
	RepairHybridBurst RepairKind = "hybrid_burst"
	// RepairCemented is a burst object, or a configuration, that was
	// stringified once more before being stored.
	RepairCemented RepairKind = "cemented"
	// RepairNamedKeys means the index keys did not rebuild valid JSON and the
	// named keys were kept instead.
	RepairNamedKeys RepairKind = "named_keys"
	// RepairDefaultFallback means nothing usable was left and the default
	// value was restored.
	RepairDefaultFallback RepairKind = "default_fallback"
)

// maxHealDepth bounds how many nested burst or stringified layers are unwrapped.
const maxHealDepth = 8

// Repair describes one field recovered by the Healer.
type Repair struct {
	Field string     `json:"field"`
	Kind  RepairKind `json:"kind"`
	Depth int        `json:"depth"`
}

// Healer repairs fields that must hold JSON text but were stored as burst
// objects. It never fails: a field it cannot rebuild gets its fallback.
type Healer struct {
	fields    []string
	fallbacks map[string]string
}

// NewHealer builds a Healer for fields, taking fallbacks from defaults.
func NewHealer(defaults State, fields ...string) Healer {
	if len(fields) == 0 {
		fields = []string{"mermaid"}
	}
	record, _ := toRecord(defaults)
	fallbacks := make(map[string]string, len(fields))
	for _, field := range fields {
		var fallback string
		if ok, err := record.Decode(field, &fallback); !ok || err != nil || !json.Valid([]byte(fallback)) {
			fallback = "{}"
		}
		fallbacks[field] = fallback
	}
	return Healer{
		fields:    append([]string(nil), fields...),
		fallbacks: fallbacks,
	}
}

// Fields returns the healed field names.
func (h Healer) Fields() []string {
	return append([]string(nil), h.fields...)
}

// Heal returns a copy of record with every configured field repaired, plus
// the list of repairs applied. Fields that are absent or already hold valid
// JSON text are left untouched.
func (h Healer) Heal(record Record) (Record, []Repair) {
	out := record.Clone()
	var repairs []Repair
	for _, field := range h.fields {
		raw, ok := out[field]
		if !ok {
			continue
		}
		healed, repair, changed := HealField(raw, h.fallback(field))
		if !changed {
			continue
		}
		repair.Field = field
		out[field] = healed
		repairs = append(repairs, repair)
	}
	return out, repairs
}

func (h Healer) fallback(field string) string {
	if fallback, ok := h.fallbacks[field]; ok {
		return fallback
	}
	return "{}"
}

// HealField repairs a single raw value expected to be a JSON string holding
// JSON text. It reports false when the value needs no repair or is not a
// shape the healer handles; such values are left to reconciliation.
func HealField(raw json.RawMessage, fallback string) (json.RawMessage, Repair, bool) {
	value := bytes.TrimSpace(raw)
	var (
		text  string
		kind  RepairKind
		depth int
		ok    bool
	)
	switch firstByte(value) {
	case '{':
		text, kind, depth, ok = healObject(value, 0, fallback)
	case '"':
		text, kind, depth, ok = healString(value, 0, fallback)
	}
	if !ok {
		return raw, Repair{}, false
	}
	encoded, err := marshalJSON(text)
	if err != nil {
		return raw, Repair{}, false
	}
	return encoded, Repair{Kind: kind, Depth: depth}, true
}

// healObject rebuilds a burst object. Objects without index keys are not
// bursts and are reported as untouched.
func healObject(value []byte, depth int, fallback string) (string, RepairKind, int, bool) {
	if depth > maxHealDepth {
		return fallback, RepairDefaultFallback, depth, true
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(value, &members); err != nil {
		return "", "", depth, false
	}
	indices, named := partitionKeys(members)
	if len(indices) == 0 {
		return "", "", depth, false
	}

	kind := RepairBurst
	if len(named) > 0 {
		kind = RepairHybridBurst
	}

	// The rebuilt text is treated as the author's intent, so named keys
	// sitting next to index keys are discarded when it parses.
	if rebuilt, err := joinCharacters(members, indices); err == nil && json.Valid([]byte(rebuilt)) {
		text, innerKind, innerDepth := settle([]byte(rebuilt), depth+1, fallback)
		if isFallbackKind(innerKind) {
			return text, innerKind, innerDepth, true
		}
		return text, kind, innerDepth, true
	}

	if len(named) > 0 {
		kept := make(map[string]json.RawMessage, len(named))
		for _, key := range named {
			kept[key] = members[key]
		}
		if text, err := indentJSON(kept); err == nil {
			return text, RepairNamedKeys, depth, true
		}
	}
	return fallback, RepairDefaultFallback, depth, true
}

// healString handles JSON text stored inside a string. At the top level a
// plain configuration string is left alone; text that is not JSON at all is
// replaced by the fallback.
func healString(value []byte, depth int, fallback string) (string, RepairKind, int, bool) {
	if depth > maxHealDepth {
		return fallback, RepairDefaultFallback, depth, true
	}
	var content string
	if err := json.Unmarshal(value, &content); err != nil {
		return "", "", depth, false
	}
	inner := bytes.TrimSpace([]byte(content))
	if !json.Valid(inner) {
		if depth == 0 {
			return fallback, RepairDefaultFallback, depth, true
		}
		return "", "", depth, false
	}

	switch firstByte(inner) {
	case '{':
		text, kind, innerDepth, ok := healObject(inner, depth+1, fallback)
		if ok {
			return text, cementedKind(kind), innerDepth, true
		}
		if depth == 0 {
			return "", "", depth, false
		}
		return indentText(inner), RepairCemented, depth + 1, true
	case '"':
		text, kind, innerDepth, ok := healString(inner, depth+1, fallback)
		if ok {
			return text, cementedKind(kind), innerDepth, true
		}
	}
	return "", "", depth, false
}

// settle finishes text rebuilt from a burst object, unwrapping further layers
// when the rebuilt text is itself corrupted.
func settle(text []byte, depth int, fallback string) (string, RepairKind, int) {
	switch firstByte(text) {
	case '{':
		if healed, kind, innerDepth, ok := healObject(text, depth, fallback); ok {
			return healed, kind, innerDepth
		}
	case '"':
		if healed, kind, innerDepth, ok := healString(text, depth, fallback); ok {
			return healed, kind, innerDepth
		}
	}
	return indentText(text), "", depth
}

// partitionKeys splits members into sorted index keys and sorted named keys.
func partitionKeys(members map[string]json.RawMessage) ([]int, []string) {
	var indices []int
	var named []string
	for key := range members {
		if index, ok := indexKey(key); ok {
			indices = append(indices, index)
			continue
		}
		named = append(named, key)
	}
	sort.Ints(indices)
	sort.Strings(named)
	return indices, named
}

// indexKey accepts canonical non-negative decimal integers only, the same
// keys a JS engine produces when it spreads a string into an object.
func indexKey(key string) (int, bool) {
	if key == "" || len(key) > 9 {
		return 0, false
	}
	if len(key) > 1 && key[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return index, true
}

// joinCharacters concatenates the escaped contents of the index values and
// decodes them once, so surrogate halves stored under separate indices
// combine into a single rune.
func joinCharacters(members map[string]json.RawMessage, indices []int) (string, error) {
	var b strings.Builder
	b.WriteByte('"')
	for _, index := range indices {
		raw := bytes.TrimSpace(members[strconv.Itoa(index)])
		if firstByte(raw) == '"' && len(raw) >= 2 {
			b.Write(raw[1 : len(raw)-1])
			continue
		}
		quoted, err := marshalJSON(string(raw))
		if err != nil {
			return "", err
		}
		b.Write(quoted[1 : len(quoted)-1])
	}
	b.WriteByte('"')

	var out string
	if err := json.Unmarshal([]byte(b.String()), &out); err != nil {
		return "", err
	}
	return out, nil
}

func indentText(text []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, text, "", "  "); err != nil {
		return string(text)
	}
	return buf.String()
}

func cementedKind(kind RepairKind) RepairKind {
	if isFallbackKind(kind) {
		return kind
	}
	return RepairCemented
}

func isFallbackKind(kind RepairKind) bool {
	return kind == RepairNamedKeys || kind == RepairDefaultFallback
}

func firstByte(value []byte) byte {
	if len(value) == 0 {
		return 0
	}
	return value[0]
}
