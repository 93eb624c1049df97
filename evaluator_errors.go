package editorstate

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError reports a load rule that failed to compile or run, as opposed
// to one that ran and returned false. Source is the token format being loaded.
type EvaluationError struct {
	Engine string
	Expr   string
	Source string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("editorstate: %s evaluator %s source=%s: %v", e.Engine, describeExpression(e.Expr), e.Source, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "editorstate:") {
		return err
	}
	return fmt.Errorf("editorstate: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, source string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Source == "" {
			evalErr.Source = source
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Source: source,
		Err:    err,
	}
}
