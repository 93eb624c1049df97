package editorstate

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/goliatone/go-editorstate/pkg/activity"
	"github.com/goliatone/go-editorstate/pkg/state"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func recordToken(t *testing.T, record Record) string {
	t.Helper()
	token, err := DefaultRegistry().Encode(record, FormatBase64)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	return token
}

func stateRecord(t *testing.T, s State) Record {
	t.Helper()
	record, err := toRecord(s)
	if err != nil {
		t.Fatalf("state record: %v", err)
	}
	return record
}

type loadCounter struct {
	mu    sync.Mutex
	calls []State
}

func (c *loadCounter) observe(s State) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *loadCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestEngineLoadPublishesOnce(t *testing.T) {
	engine := newTestEngine(t)
	counter := &loadCounter{}
	cancel := engine.Subscribe(counter.observe)
	defer cancel()

	if counter.count() != 1 {
		t.Fatalf("expected subscribe to deliver the current state, got %d calls", counter.count())
	}

	want := DefaultState()
	want.Code = "graph LR\nA --> B"
	want.Rough = true
	token, err := engine.Serialize(want, "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got, err := engine.Load(context.Background(), token)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("loaded state mismatch:\nwant: %#v\n got: %#v", want, got)
	}
	if counter.count() != 2 {
		t.Fatalf("expected one publish per load, got %d calls", counter.count())
	}
	if engine.Current() != want {
		t.Fatalf("expected current state to be the loaded one")
	}

	_, meta := engine.Snapshot()
	if meta.Format != string(FormatPako) {
		t.Fatalf("expected snapshot format pako, got %q", meta.Format)
	}
}

func TestEngineLoadFailureDoesNotPublish(t *testing.T) {
	engine := newTestEngine(t)
	counter := &loadCounter{}
	defer engine.Subscribe(counter.observe)()

	cases := []struct {
		token string
		is    error
	}{
		{token: "zstd:abc", is: ErrUnknownFormat},
		{token: "pako:bm90IHpsaWI", is: ErrDecodeLayer},
		{token: "base64:WzEsMl0", is: ErrDecodeLayer},
	}
	for _, tc := range cases {
		_, err := engine.Load(context.Background(), tc.token)
		if !errors.Is(err, tc.is) {
			t.Fatalf("%s: expected %v, got %v", tc.token, tc.is, err)
		}
		if !IsUntrustedToken(err) {
			t.Fatalf("%s: expected untrusted token error", tc.token)
		}
	}
	if counter.count() != 1 {
		t.Fatalf("expected no publish on failure, got %d calls", counter.count())
	}
	if engine.Current() != DefaultState() {
		t.Fatalf("expected state to stay at defaults")
	}
}

func TestEngineLoadHonoursCanceledContext(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, err := engine.Serialize(DefaultState(), FormatBase64)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := engine.Load(ctx, token); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngineRuleViolationDoesNotPublish(t *testing.T) {
	engine := newTestEngine(t, WithLoadRules(RuleEngineExpr, `!rough`, `len(code) < 5000`))
	counter := &loadCounter{}
	defer engine.Subscribe(counter.observe)()

	rough := DefaultState()
	rough.Rough = true
	token, err := engine.Serialize(rough, "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	_, err = engine.Load(context.Background(), token)
	var violation *RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if violation.Rule != "!rough" {
		t.Fatalf("unexpected rule %q", violation.Rule)
	}
	if counter.count() != 1 {
		t.Fatalf("expected nothing published, got %d calls", counter.count())
	}

	plain, err := engine.Serialize(DefaultState(), "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := engine.Load(context.Background(), plain); err != nil {
		t.Fatalf("expected plain state to pass the rules: %v", err)
	}
}

func TestEngineRulesSeeMetadata(t *testing.T) {
	engine := newTestEngine(t, WithLoadRules(RuleEngineCEL, `metadata.tenant == "acme"`))
	token, err := engine.Serialize(DefaultState(), "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	ctx := ContextWithMetadata(context.Background(), map[string]any{"tenant": "acme"})
	if _, err := engine.Load(ctx, token); err != nil {
		t.Fatalf("expected tenant rule to pass: %v", err)
	}
	ctx = ContextWithMetadata(context.Background(), map[string]any{"tenant": "other"})
	if _, err := engine.Load(ctx, token); !errors.Is(err, ErrRuleViolation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
}

func TestEngineRuleFunctions(t *testing.T) {
	engine := newTestEngine(t,
		WithRuleFunction("hasprefix", hasPrefixFunction),
		WithLoadRules("", `hasprefix(code, "flowchart")`),
	)
	token, err := engine.Serialize(DefaultState(), "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := engine.Load(context.Background(), token); err != nil {
		t.Fatalf("expected registry function rule to pass: %v", err)
	}
}

func TestEngineLoadHealsBurstConfiguration(t *testing.T) {
	cases := []struct {
		name    string
		mermaid json.RawMessage
		kind    RepairKind
		want    string
	}{
		{
			name:    "burst",
			mermaid: burstObject(t, `{"theme":"dark"}`, nil),
			kind:    RepairBurst,
			want:    "{\n  \"theme\": \"dark\"\n}",
		},
		{
			name:    "double stringified burst",
			mermaid: healFixtureCase{BurstOf: `{"theme":"forest"}`, Stringify: 1}.raw(t),
			kind:    RepairCemented,
			want:    "{\n  \"theme\": \"forest\"\n}",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(t)
			record := stateRecord(t, DefaultState())
			record["mermaid"] = tc.mermaid
			token := recordToken(t, record)

			inspection, err := engine.Inspect(token)
			if err != nil {
				t.Fatalf("inspect: %v", err)
			}
			if len(inspection.Repairs) != 1 || inspection.Repairs[0].Kind != tc.kind {
				t.Fatalf("unexpected repairs %+v", inspection.Repairs)
			}
			if engine.Current() != DefaultState() {
				t.Fatalf("inspect must not publish")
			}

			got, err := engine.Load(context.Background(), token)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Mermaid != tc.want {
				t.Fatalf("healed configuration mismatch:\nwant: %q\n got: %q", tc.want, got.Mermaid)
			}
		})
	}
}

func TestEngineInspectReportsMigration(t *testing.T) {
	engine := newTestEngine(t)
	token := recordToken(t, Record{
		"code":       json.RawMessage(`"graph TD"`),
		"editorMode": json.RawMessage(`"config"`),
		"autoSync":   json.RawMessage(`true`),
		"grid":       json.RawMessage(`"no"`),
	})

	inspection, err := engine.Inspect(token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if inspection.Format != FormatBase64 {
		t.Fatalf("expected base64 format, got %q", inspection.Format)
	}
	if inspection.State.ViewMode != ViewModeConfig || inspection.State.Code != "graph TD" || !inspection.State.Grid {
		t.Fatalf("unexpected state %#v", inspection.State)
	}
	if !reflect.DeepEqual(inspection.Migration.Dropped, []string{"autoSync"}) {
		t.Fatalf("unexpected dropped %v", inspection.Migration.Dropped)
	}
	if !reflect.DeepEqual(inspection.Migration.Rejected, []string{"grid"}) {
		t.Fatalf("unexpected rejected %v", inspection.Migration.Rejected)
	}
	wantDefaulted := []string{"grid", "mermaid", "panZoom", "rough", "updateDiagram"}
	if !reflect.DeepEqual(inspection.Migration.Defaulted, wantDefaulted) {
		t.Fatalf("unexpected defaulted %v", inspection.Migration.Defaulted)
	}
}

func TestEngineEmitsActivity(t *testing.T) {
	hook := &activity.CaptureHook{}
	engine := newTestEngine(t, WithActivityHooks(activity.Hooks{hook}), WithActivityChannel("editor"))
	ctx := ContextWithMetadata(context.Background(), map[string]any{"tenant": "acme"})

	record := stateRecord(t, DefaultState())
	record["mermaid"] = burstObject(t, `{"theme":"dark"}`, nil)
	if _, err := engine.Load(ctx, recordToken(t, record)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := engine.Load(ctx, "zstd:abc"); err == nil {
		t.Fatalf("expected load failure")
	}

	want := []string{activity.VerbHealed, activity.VerbLoaded, activity.VerbLoadFailed}
	if got := hook.Verbs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected verbs: want %v got %v", want, got)
	}

	healed := hook.Events[0]
	if healed.Channel != "editor" {
		t.Fatalf("expected channel editor, got %q", healed.Channel)
	}
	if healed.Metadata["tenant"] != "acme" || healed.Metadata["format"] != "base64" {
		t.Fatalf("unexpected healed metadata %v", healed.Metadata)
	}
	repairs, _ := healed.Metadata["repairs"].(map[string]string)
	if repairs["mermaid"] != string(RepairBurst) {
		t.Fatalf("expected burst repair in metadata, got %v", healed.Metadata["repairs"])
	}
	failed := hook.Events[2]
	if _, ok := failed.Metadata["error"]; !ok {
		t.Fatalf("expected error in load_failed metadata, got %v", failed.Metadata)
	}
}

func TestEngineActivityHookErrorIsLogged(t *testing.T) {
	hook := &activity.CaptureHook{Err: errors.New("sink down")}
	var logged []LogEvent
	engine := newTestEngine(t,
		WithActivityHooks(activity.Hooks{hook}),
		WithLogger(EngineLoggerFunc(func(event LogEvent) { logged = append(logged, event) })),
	)
	token, err := engine.Serialize(DefaultState(), "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := engine.Load(context.Background(), token); err != nil {
		t.Fatalf("hook errors must not fail a load: %v", err)
	}

	var sawActivity bool
	for _, event := range logged {
		if event.Op == "activity" && event.Err != nil {
			sawActivity = true
		}
	}
	if !sawActivity {
		t.Fatalf("expected activity failure to be logged, got %+v", logged)
	}
}

func TestEngineLogsLoads(t *testing.T) {
	var logged []LogEvent
	engine := newTestEngine(t, WithLogger(EngineLoggerFunc(func(event LogEvent) {
		logged = append(logged, event)
	})))

	record := stateRecord(t, DefaultState())
	record["mermaid"] = burstObject(t, `{"theme":"dark"}`, nil)
	delete(record, "rough")
	if _, err := engine.Load(context.Background(), recordToken(t, record)); err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(logged) != 1 {
		t.Fatalf("expected one log event, got %+v", logged)
	}
	event := logged[0]
	if event.Op != "load" || event.Format != FormatBase64 || event.Err != nil {
		t.Fatalf("unexpected log event %+v", event)
	}
	if len(event.Repairs) != 1 || !reflect.DeepEqual(event.Defaulted, []string{"rough"}) {
		t.Fatalf("unexpected log details %+v", event)
	}
}

func TestEnginePersistAndRestore(t *testing.T) {
	store := state.NewMemoryStore[string]()
	ref := state.Ref{Namespace: "shares", Key: "demo"}
	ctx := context.Background()

	hook := &activity.CaptureHook{}
	source := newTestEngine(t, WithActivityHooks(activity.Hooks{hook}))
	want := DefaultState()
	want.Code = "sequenceDiagram\nA->>B: hi"
	want.ViewMode = ViewModeConfig
	source.Publish(want)

	meta, err := source.Persist(ctx, store, ref, FormatBase64)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if meta.Format != string(FormatBase64) || meta.ETag == "" {
		t.Fatalf("unexpected persist meta %+v", meta)
	}
	if got := hook.Verbs(); !reflect.DeepEqual(got, []string{activity.VerbPersisted}) {
		t.Fatalf("unexpected verbs %v", got)
	}

	target := newTestEngine(t)
	got, err := target.Restore(ctx, store, ref)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got != want || target.Current() != want {
		t.Fatalf("restored state mismatch:\nwant: %#v\n got: %#v", want, got)
	}

	if _, err := target.Restore(ctx, store, state.Ref{Key: "missing"}); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := target.Restore(ctx, nil, ref); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := source.Persist(ctx, store, state.Ref{}, ""); err == nil {
		t.Fatalf("expected error for empty ref")
	}
}

func TestNewEngineValidatesOptions(t *testing.T) {
	invalid := DefaultState()
	invalid.ViewMode = "split"

	cases := []struct {
		name string
		opts []Option
	}{
		{"unknown default format", []Option{WithDefaultFormat("zstd")}},
		{"invalid defaults", []Option{WithDefaults(invalid)}},
		{"unknown override", []Option{WithOverrides(Record{"theme": json.RawMessage(`"dark"`)})}},
		{"rule syntax", []Option{WithLoadRules(RuleEngineExpr, "grid &&")}},
		{"unknown rule engine", []Option{WithLoadRules("lua", "grid")}},
		{"duplicate rule function", []Option{
			WithRuleFunction("f", hasPrefixFunction),
			WithRuleFunction("F", hasPrefixFunction),
		}},
	}
	for _, tc := range cases {
		if _, err := NewEngine(tc.opts...); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestEngineCustomDefaultsAndFormat(t *testing.T) {
	defaults := DefaultState()
	defaults.Code = "graph TD"
	engine := newTestEngine(t, WithDefaults(defaults), WithDefaultFormat(FormatBase64))

	if engine.DefaultFormat() != FormatBase64 || engine.Defaults() != defaults {
		t.Fatalf("unexpected engine configuration")
	}
	if engine.Current() != defaults {
		t.Fatalf("expected container to start at defaults")
	}
	token, err := engine.SerializeCurrent("")
	if err != nil {
		t.Fatalf("serialize current: %v", err)
	}
	if format, _ := SplitToken(token); format != FormatBase64 {
		t.Fatalf("expected base64 token, got %q", token)
	}
	record, err := engine.Deserialize(token)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if string(record["code"]) != `"graph TD"` {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestGlobalEntryPoints(t *testing.T) {
	engine := newTestEngine(t)
	SetDefaultEngine(engine)
	defer SetDefaultEngine(nil)

	if Default() != engine {
		t.Fatalf("expected configured default engine")
	}

	var seen []State
	cancel := SubscribeState(func(s State) { seen = append(seen, s) })
	defer cancel()

	want := DefaultState()
	want.Grid = false
	token, err := SerializeState(want, "")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	record, err := DeserializeState(token)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if string(record["grid"]) != "false" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, err := LoadState(context.Background(), token); err != nil {
		t.Fatalf("load: %v", err)
	}
	if CurrentState() != want {
		t.Fatalf("expected current state to follow the load")
	}
	if len(seen) != 2 {
		t.Fatalf("expected two notifications, got %d", len(seen))
	}
}
