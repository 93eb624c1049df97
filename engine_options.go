package editorstate

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-editorstate/pkg/activity"
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	defaults      *State
	format        Format
	codecs        []Codec
	jsonFields    []string
	overrides     Record
	logger        EngineLogger
	activityHooks activity.Hooks
	channel       string
	ruleEngine    RuleEngine
	rules         []string
	evaluator     Evaluator
	functions     *FunctionRegistry
	errs          []error
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg engineConfig) err() error {
	return errors.Join(cfg.errs...)
}

// WithDefaults replaces DefaultState as the value published at start and used
// to fill gaps in loaded tokens.
func WithDefaults(defaults State) Option {
	return func(cfg *engineConfig) {
		cfg.defaults = &defaults
	}
}

// WithDefaultFormat selects the format used when Serialize is called without
// one. The format must be registered.
func WithDefaultFormat(format Format) Option {
	return func(cfg *engineConfig) {
		cfg.format = format
	}
}

// WithCodec registers an additional codec, or replaces a built-in one.
func WithCodec(codec Codec) Option {
	return func(cfg *engineConfig) {
		if codec == nil {
			cfg.errs = append(cfg.errs, fmt.Errorf("editorstate: codec is nil"))
			return
		}
		cfg.codecs = append(cfg.codecs, codec)
	}
}

// WithJSONFields names the fields that carry JSON text and are healed on load.
func WithJSONFields(fields ...string) Option {
	return func(cfg *engineConfig) {
		cfg.jsonFields = append([]string(nil), fields...)
	}
}

// WithOverrides pins field values that win over anything a token carries.
func WithOverrides(overrides Record) Option {
	return func(cfg *engineConfig) {
		cfg.overrides = overrides.Clone()
	}
}

// WithLogger attaches an engine logger. A nil logger disables logging.
func WithLogger(logger EngineLogger) Option {
	return func(cfg *engineConfig) {
		if logger == nil {
			cfg.logger = noopEngineLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithActivityHooks attaches activity hooks notified on load, repair, failure
// and persist. Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := hooks.Clone()
	return func(cfg *engineConfig) {
		cfg.activityHooks = normalized
	}
}

// WithActivityChannel sets the channel stamped on emitted events.
func WithActivityChannel(channel string) Option {
	return func(cfg *engineConfig) {
		cfg.channel = channel
	}
}

// WithLoadRules adds rules every loaded state must satisfy before it is
// published. An empty engine selects expr.
func WithLoadRules(engine RuleEngine, rules ...string) Option {
	return func(cfg *engineConfig) {
		if engine != "" {
			cfg.ruleEngine = engine
		}
		cfg.rules = append(cfg.rules, rules...)
	}
}

// WithRuleEvaluator overrides the evaluator used for load rules.
func WithRuleEvaluator(evaluator Evaluator) Option {
	return func(cfg *engineConfig) {
		cfg.evaluator = evaluator
	}
}

// WithRuleFunction registers fn under name for load rules.
func WithRuleFunction(name string, fn Function) Option {
	return func(cfg *engineConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.errs = append(cfg.errs, err)
		}
	}
}
