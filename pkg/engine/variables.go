package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

// UpdateVariable evaluates expression against the instance variables and stores the
// result in variableID. Evaluation errors are returned as invalid input.
func (e *Engine) UpdateVariable(ctx context.Context, instanceID, variableID, expression string) (*models.InstanceVariable, error) {
	const op = "update_variable"

	if strings.TrimSpace(variableID) == "" || strings.TrimSpace(expression) == "" {
		return nil, newError(op, instanceID, ErrInvalidInput, "variable id and expression are required")
	}

	inst, _, err := e.load(ctx, op, instanceID)
	if err != nil {
		return nil, err
	}

	if inst.Status.Terminal() {
		return nil, newError(op, inst.ID, ErrNotOperable, "instance is %s", inst.Status)
	}

	variable, err := e.variables.Assign(ctx, inst.ID, variableID, expression)
	if err != nil {
		var storeErr *persistence.Error

		switch {
		case persistence.IsNotFound(err):
			return nil, newError(op, inst.ID, ErrVariableNotFound, "variable %s", variableID)
		case errors.As(err, &storeErr):
			return nil, err
		}

		return nil, newError(op, inst.ID, ErrInvalidInput, "%s", err.Error())
	}

	e.logger.InfoContext(ctx, "Variable updated",
		"instance_id", inst.ID,
		"variable", variable.Name,
		"value", variable.Value)

	return variable, nil
}
