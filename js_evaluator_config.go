package editorstate

type jsEvaluatorConfig struct {
	registry *FunctionRegistry
}

// JSEvaluatorOption configures the goja evaluator used for js load rules.
type JSEvaluatorOption func(*jsEvaluatorConfig)

// JSWithFunctionRegistry exposes registry helpers to js load rules as globals
// and through call(name, ...args).
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
