// Package condition evaluates the boolean expressions that guard workflow
// transitions.
//
// Expressions combine context references ({{x}}), literals, comparisons,
// negation, "&&", "||" and parentheses. See Parse for the grammar.
package condition

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/template"
)

// ErrSyntax is returned by Parse for malformed expressions.
var ErrSyntax = errors.New("condition syntax error")

// Evaluator evaluates condition expressions, caching parsed forms.
// It is safe for concurrent use and holds no per-evaluation state.
type Evaluator struct {
	cache sync.Map // string -> Expr
}

// NewEvaluator creates an evaluator with an empty parse cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate reports whether expr holds for vars. An empty expression is true.
// An expression that fails to parse falls back to a truthiness lookup of the
// whole expression as a context key, and the parse failure is logged.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, vars map[string]any) bool {
	compiled, err := e.compile(expr)
	if err != nil {
		logger.WarnContext(ctx, "condition did not parse, falling back to key lookup",
			"condition", expr, "error", err)
		return fallback(expr, vars)
	}
	return compiled.Eval(vars)
}

// Compile parses expr and stores the result for later evaluations.
func (e *Evaluator) Compile(expr string) (Expr, error) {
	return e.compile(expr)
}

func (e *Evaluator) compile(expr string) (Expr, error) {
	if cached, ok := e.cache.Load(expr); ok {
		return cached.(Expr), nil
	}
	compiled, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	e.cache.Store(expr, compiled)
	return compiled, nil
}

func fallback(expr string, vars map[string]any) bool {
	key := strings.TrimSpace(expr)
	if name, ok := template.ExactReference(key); ok {
		key = name
	}
	v, ok := template.Lookup(vars, key)
	return ok && Truthy(v)
}

var defaultEvaluator = NewEvaluator()

// Evaluate evaluates expr with the package-level evaluator.
func Evaluate(ctx context.Context, expr string, vars map[string]any) bool {
	return defaultEvaluator.Evaluate(ctx, expr, vars)
}
