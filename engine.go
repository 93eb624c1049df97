package editorstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-editorstate/pkg/activity"
	"github.com/goliatone/go-editorstate/pkg/state"
)

// Engine serialises editor state into tokens and loads tokens back into a
// process-wide container, healing and reconciling them on the way.
type Engine struct {
	registry  *Registry
	format    Format
	healer    Healer
	migrator  *Migrator
	container *state.Container[State]
	rules     *ruleSet
	logger    EngineLogger
	emitter   *activity.Emitter
}

// Inspection is the outcome of loading a token without publishing it.
type Inspection struct {
	Format    Format    `json:"format"`
	Record    Record    `json:"record"`
	Healed    Record    `json:"healed"`
	Repairs   []Repair  `json:"repairs,omitempty"`
	State     State     `json:"state"`
	Migration Migration `json:"migration"`
}

// NewEngine builds an Engine whose container starts at the configured
// defaults.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := applyOptions(opts)
	if err := cfg.err(); err != nil {
		return nil, err
	}

	defaults := DefaultState()
	if cfg.defaults != nil {
		defaults = *cfg.defaults
	}
	if err := ValidateState(defaults); err != nil {
		return nil, fmt.Errorf("editorstate: invalid defaults: %w", err)
	}

	registry := DefaultRegistry()
	for _, codec := range cfg.codecs {
		if err := registry.Register(codec); err != nil {
			return nil, err
		}
	}

	format := cfg.format
	if format == "" {
		format = DefaultFormat
	}
	if _, err := registry.Lookup(format); err != nil {
		return nil, err
	}

	jsonFields := cfg.jsonFields
	if len(jsonFields) == 0 {
		jsonFields = []string{"mermaid"}
	}
	migrator, err := NewMigrator(defaults, cfg.overrides, jsonFields)
	if err != nil {
		return nil, err
	}

	rules, err := buildRules(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = noopEngineLogger{}
	}

	return &Engine{
		registry:  registry,
		format:    format,
		healer:    NewHealer(defaults, jsonFields...),
		migrator:  migrator,
		container: state.NewContainer(defaults),
		rules:     rules,
		logger:    logger,
		emitter: activity.NewEmitter(cfg.activityHooks, activity.Config{
			Enabled: len(cfg.activityHooks) > 0,
			Channel: cfg.channel,
		}),
	}, nil
}

func buildRules(cfg engineConfig) (*ruleSet, error) {
	if len(cfg.rules) == 0 {
		return nil, nil
	}
	evaluator := cfg.evaluator
	if evaluator == nil {
		var err error
		evaluator, err = NewRuleEvaluator(cfg.ruleEngine, cfg.functions)
		if err != nil {
			return nil, err
		}
	}
	return compileRules(evaluator, cfg.rules)
}

// Formats lists the formats this engine can read and write.
func (e *Engine) Formats() []Format {
	return e.registry.Formats()
}

// DefaultFormat returns the format used when none is requested.
func (e *Engine) DefaultFormat() Format {
	return e.format
}

// Defaults returns the State used to fill gaps in loaded tokens.
func (e *Engine) Defaults() State {
	return e.migrator.Defaults()
}

// Serialize encodes s as a token. An empty format selects the engine default.
func (e *Engine) Serialize(s State, format Format) (string, error) {
	if format == "" {
		format = e.format
	}
	start := time.Now()
	token, err := e.registry.Encode(s, format)
	e.logger.LogEvent(LogEvent{Op: "serialize", Format: format, Duration: time.Since(start), Err: err})
	return token, err
}

// SerializeCurrent encodes the published state.
func (e *Engine) SerializeCurrent(format Format) (string, error) {
	return e.Serialize(e.container.Get(), format)
}

// Deserialize decodes token into a record without healing or reconciling it.
func (e *Engine) Deserialize(token string) (Record, error) {
	record, _, err := e.registry.Decode(token)
	return record, err
}

// Inspect runs the load pipeline on token without checking rules or
// publishing the result.
func (e *Engine) Inspect(token string) (*Inspection, error) {
	record, format, err := e.registry.Decode(token)
	if err != nil {
		return nil, err
	}
	healed, repairs := e.healer.Heal(record)
	reconciled, migration := e.migrator.Reconcile(healed)
	return &Inspection{
		Format:    format,
		Record:    record,
		Healed:    healed,
		Repairs:   repairs,
		State:     reconciled,
		Migration: migration,
	}, nil
}

// Load decodes token, heals and reconciles it, checks the load rules and
// publishes the result. Nothing is published when any step fails.
func (e *Engine) Load(ctx context.Context, token string) (State, error) {
	return e.load(ctx, token, "")
}

func (e *Engine) load(ctx context.Context, token, ref string) (State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	format, _ := SplitToken(token)
	metadata := MetadataFromContext(ctx)

	fail := func(err error) (State, error) {
		e.logger.LogEvent(LogEvent{Op: "load", Format: format, Ref: ref, Duration: time.Since(start), Err: err})
		e.emit(ctx, activity.BuildLoadFailedEvent(activity.StateEventInput{
			Ref:      ref,
			Format:   string(format),
			Err:      err,
			Metadata: metadata,
		}))
		return State{}, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	inspection, err := e.Inspect(token)
	if err != nil {
		return fail(err)
	}
	if err := e.rules.check(RuleContext{
		State:    inspection.State,
		Format:   inspection.Format,
		Metadata: metadata,
	}); err != nil {
		return fail(err)
	}

	meta := e.container.Set(inspection.State, string(inspection.Format))

	migration := inspection.Migration
	e.logger.LogEvent(LogEvent{
		Op:        "load",
		Format:    inspection.Format,
		Ref:       ref,
		Duration:  time.Since(start),
		Repairs:   inspection.Repairs,
		Defaulted: migration.Defaulted,
		Dropped:   migration.Dropped,
		Rejected:  migration.Rejected,
	})

	input := activity.StateEventInput{
		SnapshotID: meta.SnapshotID,
		Ref:        ref,
		Format:     string(inspection.Format),
		Defaulted:  migration.Defaulted,
		Dropped:    migration.Dropped,
		Rejected:   migration.Rejected,
		Metadata:   metadata,
		OccurredAt: meta.UpdatedAt,
	}
	if len(inspection.Repairs) > 0 {
		input.Repairs = make(map[string]string, len(inspection.Repairs))
		for _, repair := range inspection.Repairs {
			input.Repairs[repair.Field] = string(repair.Kind)
		}
		e.emit(ctx, activity.BuildHealedEvent(input))
	}
	e.emit(ctx, activity.BuildLoadedEvent(input))
	return inspection.State, nil
}

// Current returns the published state.
func (e *Engine) Current() State {
	return e.container.Get()
}

// Snapshot returns the published state with its container metadata.
func (e *Engine) Snapshot() (State, state.Meta) {
	return e.container.Snapshot()
}

// Subscribe calls fn with the published state now and after every load. The
// returned function cancels the subscription.
func (e *Engine) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	return e.container.Subscribe(func(s State, _ state.Meta) {
		fn(s)
	})
}

// Publish replaces the published state directly, for editor interactions
// that do not go through a token.
func (e *Engine) Publish(s State) state.Meta {
	return e.container.Set(s, "")
}

// Restore loads the token stored under ref and publishes it.
func (e *Engine) Restore(ctx context.Context, store state.Store[string], ref state.Ref) (State, error) {
	if store == nil {
		return State{}, fmt.Errorf("editorstate: restore: store is nil")
	}
	id, err := ref.Identifier()
	if err != nil {
		return State{}, err
	}
	token, _, ok, err := store.Load(ctx, ref)
	if err != nil {
		return State{}, fmt.Errorf("editorstate: restore %s: %w", id, err)
	}
	if !ok {
		return State{}, fmt.Errorf("editorstate: restore %s: %w", id, state.ErrNotFound)
	}
	return e.load(ctx, token, id)
}

// Persist serialises the published state and stores the token under ref.
func (e *Engine) Persist(ctx context.Context, store state.Store[string], ref state.Ref, format Format) (state.Meta, error) {
	if store == nil {
		return state.Meta{}, fmt.Errorf("editorstate: persist: store is nil")
	}
	if format == "" {
		format = e.format
	}
	id, err := ref.Identifier()
	if err != nil {
		return state.Meta{}, err
	}
	start := time.Now()
	current, currentMeta := e.container.Snapshot()
	token, err := e.registry.Encode(current, format)
	if err != nil {
		e.logger.LogEvent(LogEvent{Op: "persist", Format: format, Ref: id, Duration: time.Since(start), Err: err})
		return state.Meta{}, err
	}
	meta, err := store.Save(ctx, ref, token, state.Meta{
		SnapshotID: currentMeta.SnapshotID,
		Format:     string(format),
	})
	if err != nil {
		err = fmt.Errorf("editorstate: persist %s: %w", id, err)
	}
	e.logger.LogEvent(LogEvent{Op: "persist", Format: format, Ref: id, Duration: time.Since(start), Err: err})
	if err != nil {
		return state.Meta{}, err
	}
	e.emit(ctx, activity.BuildPersistedEvent(activity.StateEventInput{
		SnapshotID: meta.SnapshotID,
		Ref:        id,
		Format:     string(format),
		Metadata:   MetadataFromContext(ctx),
		OccurredAt: meta.UpdatedAt,
	}))
	return meta, nil
}

func (e *Engine) emit(ctx context.Context, event activity.Event) {
	if !e.emitter.Enabled() {
		return
	}
	if err := e.emitter.Emit(ctx, event); err != nil {
		e.logger.LogEvent(LogEvent{Op: "activity", Err: errors.Join(fmt.Errorf("editorstate: %s", event.Verb), err)})
	}
}

type metadataKey struct{}

// ContextWithMetadata attaches metadata that load rules see as metadata and
// that activity events carry.
func ContextWithMetadata(ctx context.Context, metadata map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metadataKey{}, metadata)
}

// MetadataFromContext returns the metadata attached with ContextWithMetadata.
func MetadataFromContext(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	metadata, _ := ctx.Value(metadataKey{}).(map[string]any)
	return metadata
}
