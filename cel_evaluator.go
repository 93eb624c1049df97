package editorstate

import (
	"fmt"
	"reflect"
	"sync"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
// Each registered function is exposed as name(args) taking a list, and every
// function is reachable through call(name, args).
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

type celEvaluator struct {
	registry *FunctionRegistry

	once   sync.Once
	env    *celgo.Env
	envErr error
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	env, err := e.environment()
	if err != nil {
		return nil, wrapEvaluatorError("cel", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, "", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, "", err)
	}
	return &celCompiledRule{program: program, expression: expression}, nil
}

// environment declares every rule variable once; the declarations do not
// depend on the state being checked.
func (e *celEvaluator) environment() (*celgo.Env, error) {
	e.once.Do(func() {
		opts := []celgo.EnvOption{
			celgo.Variable("now", celgo.TimestampType),
		}
		for _, name := range ruleVariableNames() {
			opts = append(opts, celgo.Variable(name, celgo.DynType))
		}
		if e.registry != nil {
			opts = append(opts, celgo.Function("call",
				celgo.Overload("call_string_list",
					[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
					celgo.DynType,
					celgo.BinaryBinding(e.callBinding),
				),
			))
			for _, name := range e.registry.Names() {
				if name == "call" {
					continue
				}
				opts = append(opts, celgo.Function(name,
					celgo.Overload(name+"_list",
						[]*celgo.Type{celgo.ListType(celgo.DynType)},
						celgo.DynType,
						celgo.UnaryBinding(e.namedBinding(name)),
					),
				))
			}
		}
		e.env, e.envErr = celgo.NewEnv(opts...)
	})
	return e.env, e.envErr
}

type celCompiledRule struct {
	program    celgo.Program
	expression string
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.program == nil {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("compiled rule missing program"))
	}
	ctx = ctx.withDefaults()
	out, _, err := r.program.Eval(ctx.variables())
	if err != nil {
		return nil, wrapEvaluationError("cel", r.expression, ctx.sourceLabel(), err)
	}
	return out.Value(), nil
}

func (e *celEvaluator) callBinding(nameVal, argsVal ref.Val) ref.Val {
	name, ok := nameVal.Value().(string)
	if !ok {
		return types.NewErr("editorstate: call name must be string")
	}
	return e.invoke(name, argsVal)
}

func (e *celEvaluator) namedBinding(name string) func(ref.Val) ref.Val {
	return func(argsVal ref.Val) ref.Val {
		return e.invoke(name, argsVal)
	}
}

func (e *celEvaluator) invoke(name string, argsVal ref.Val) ref.Val {
	if e.registry == nil {
		return types.NewErr("editorstate: function registry not configured")
	}
	native, err := argsVal.ConvertToNative(reflect.TypeOf([]any{}))
	if err != nil {
		return types.NewErr("editorstate: %s arguments: %v", name, err)
	}
	args, _ := native.([]any)
	result, err := e.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}
