package script

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// ExprEngine evaluates expr-lang expressions. Expressions cannot loop or call out.
type ExprEngine struct{}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{}
}

func (e *ExprEngine) Evaluate(ctx context.Context, code string, env map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, bound, err := Bind(code, env)
	if err != nil {
		return nil, err
	}

	program, err := expr.Compile(code, expr.Env(bound))
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", code, err)
	}

	result, err := expr.Run(program, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", code, err)
	}

	return result, nil
}
