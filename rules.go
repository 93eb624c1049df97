package editorstate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RuleEngine names an expression language used for load rules.
type RuleEngine string

const (
	RuleEngineExpr RuleEngine = "expr"
	RuleEngineCEL  RuleEngine = "cel"
	RuleEngineJS   RuleEngine = "js"
)

// RuleContext carries inputs needed when evaluating a load rule.
type RuleContext struct {
	State    State
	Format   Format
	Now      *time.Time
	Metadata map[string]any
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) sourceLabel() string {
	if ctx.Format != "" {
		return string(ctx.Format)
	}
	return "unknown"
}

// variables returns the names visible to a rule: every State field, the parsed
// renderer configuration as config, the token format, now, and metadata.
func (ctx RuleContext) variables() map[string]any {
	ctx = ctx.withDefaults()
	vars := ctx.State.Map()
	vars["config"] = parseConfig(ctx.State.Mermaid)
	vars["format"] = string(ctx.Format)
	vars["now"] = *ctx.Now
	vars["metadata"] = ctx.Metadata
	return vars
}

// ruleVariableNames lists the variables declared for typed engines.
func ruleVariableNames() []string {
	names := append(Fields(), "config", "format", "metadata")
	return names
}

func parseConfig(text string) map[string]any {
	var config map[string]any
	if err := json.Unmarshal([]byte(text), &config); err != nil || config == nil {
		return map[string]any{}
	}
	return config
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// NewRuleEvaluator builds the evaluator for engine. An empty engine selects expr.
func NewRuleEvaluator(engine RuleEngine, registry *FunctionRegistry) (Evaluator, error) {
	switch RuleEngine(strings.ToLower(string(engine))) {
	case "", RuleEngineExpr:
		return NewExprEvaluator(ExprWithFunctionRegistry(registry)), nil
	case RuleEngineCEL:
		return NewCELEvaluator(CELWithFunctionRegistry(registry)), nil
	case RuleEngineJS:
		evaluator := NewJSEvaluator(JSWithFunctionRegistry(registry))
		if evaluator == nil {
			return nil, fmt.Errorf("editorstate: js rules require the js_eval build tag")
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("editorstate: unknown rule engine %q", engine)
	}
}

type loadRule struct {
	expr     string
	compiled CompiledRule
}

// ruleSet holds load rules compiled once at engine construction.
type ruleSet struct {
	engine string
	rules  []loadRule
}

func compileRules(evaluator Evaluator, exprs []string) (*ruleSet, error) {
	set := &ruleSet{engine: evaluatorEngineName(evaluator)}
	for _, expr := range exprs {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		compiled, err := evaluator.Compile(expr)
		if err != nil {
			return nil, wrapEvaluationError(set.engine, expr, "", err)
		}
		set.rules = append(set.rules, loadRule{expr: expr, compiled: compiled})
	}
	return set, nil
}

func (s *ruleSet) empty() bool {
	return s == nil || len(s.rules) == 0
}

// check evaluates every rule in order and stops at the first that does not
// return true.
func (s *ruleSet) check(ctx RuleContext) error {
	if s.empty() {
		return nil
	}
	ctx = ctx.withDefaults()
	for _, rule := range s.rules {
		result, err := rule.compiled.Evaluate(ctx)
		if err != nil {
			return wrapEvaluationError(s.engine, rule.expr, ctx.sourceLabel(), err)
		}
		if ok, isBool := result.(bool); !isBool || !ok {
			return &RuleViolationError{Rule: rule.expr, Engine: s.engine, Result: result}
		}
	}
	return nil
}

func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return string(RuleEngineExpr)
	case *celEvaluator:
		return string(RuleEngineCEL)
	default:
		if named, ok := e.(interface{ Engine() string }); ok {
			return named.Engine()
		}
		return "custom"
	}
}
