package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/script"
)

var ErrEmptyExpression = errors.New("empty expression")

// Variables reads and writes the run-time variables of instances.
type Variables struct {
	repo    persistence.VariableRepository
	scripts script.Engine
	now     func() time.Time
}

func NewVariables(repo persistence.VariableRepository, scripts script.Engine, now func() time.Time) *Variables {
	return &Variables{repo: repo, scripts: scripts, now: now}
}

// Environment loads the variables of an instance keyed by name.
func (v *Variables) Environment(ctx context.Context, instanceID string) (map[string]any, []*models.InstanceVariable, error) {
	vars, err := v.repo.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	return script.Environment(vars), vars, nil
}

// Assign evaluates expression against the instance variables and stores the result in
// variableID.
func (v *Variables) Assign(ctx context.Context, instanceID, variableID, expression string) (*models.InstanceVariable, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, ErrEmptyExpression
	}

	env, _, err := v.Environment(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	result, err := v.scripts.Evaluate(ctx, expression, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	return v.Set(ctx, instanceID, variableID, result)
}

// Set stores value in variableID, coercing it to the variable type. NUMBER variables
// hold an integer literal.
func (v *Variables) Set(ctx context.Context, instanceID, variableID string, value any) (*models.InstanceVariable, error) {
	variable, err := v.repo.Get(ctx, instanceID, variableID)
	if err != nil {
		return nil, err
	}

	if variable.Type == models.VariableTypeNumber {
		n, err := script.ToInt64(value)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", variable.Name, err)
		}

		variable.Value = strconv.FormatInt(n, 10)
	} else {
		variable.Value = script.ToString(value)
	}

	variable.UpdatedAt = v.now()

	if err := v.repo.Update(ctx, variable); err != nil {
		return nil, err
	}

	return variable, nil
}
