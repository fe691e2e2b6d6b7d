package expressions

import "context"

// Engine evaluates expressions against the shared run context.
// Two implementations: Expr (condition predicates), GoJQ (field extraction).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
