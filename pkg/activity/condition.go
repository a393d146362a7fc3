package activity

import (
	"context"
	"strings"

	"github.com/netvariant/moqui-workflow/pkg/condition"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

type conditionHandler struct{ d *Dispatcher }

func (h conditionHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	data, err := decode[models.ConditionData](r.activity)
	if err != nil {
		return Failure, err
	}

	var conditions []condition.Condition

	switch data.ConditionType {
	case models.ConditionSourceField:
		conditions, err = h.fieldConditions(ctx, r, data.Conditions)
	case models.ConditionSourceVariable:
		conditions, err = h.variableConditions(ctx, r, data.Conditions)
	case models.ConditionSourceScript:
		conditions, err = h.scriptConditions(ctx, r, data.Conditions)
	}

	if err != nil {
		return Failure, err
	}

	join := data.JoinOperator
	if join == "" {
		join = models.JoinAnd
	}

	met := condition.Join(ctx, join, conditions, r.logger)

	r.logger.InfoContext(ctx, "Conditions evaluated",
		"condition_type", data.ConditionType,
		"join", join,
		"conditions", len(conditions),
		"met", met)

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	if met {
		return Success, nil
	}

	return Failure, nil
}

func (h conditionHandler) fieldConditions(ctx context.Context, r *run, entries []models.ConditionEntry) ([]condition.Condition, error) {
	entity, err := h.d.store.Entities().Get(ctx, r.workflow.EntityName, r.instance.PrimaryKeyValue)
	if err != nil {
		if !persistence.IsNotFound(err) {
			return nil, err
		}

		r.logger.WarnContext(ctx, "Tracked entity not found, skipping field conditions",
			"entity", r.workflow.EntityName,
			"key", r.instance.PrimaryKeyValue)

		return nil, nil
	}

	var out []condition.Condition

	for i, entry := range entries {
		if strings.TrimSpace(entry.FieldName) == "" || strings.TrimSpace(entry.Operator) == "" {
			r.logger.WarnContext(ctx, "Skipping incomplete condition", "index", i)

			continue
		}

		fieldType, ok := r.workflow.FieldTypes[entry.FieldName]
		if !ok {
			r.logger.WarnContext(ctx, "Skipping condition on unknown field", "index", i, "field", entry.FieldName)

			continue
		}

		source, _ := entity.Value(entry.FieldName)

		c, err := condition.New(fieldType, source, condition.Operator(entry.Operator), entry.Value, h.d.location)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping invalid condition", "index", i, "field", entry.FieldName, "error", err)

			continue
		}

		out = append(out, c)
	}

	return out, nil
}

func (h conditionHandler) variableConditions(ctx context.Context, r *run, entries []models.ConditionEntry) ([]condition.Condition, error) {
	_, vars, err := h.d.variables.Environment(ctx, r.instance.ID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*models.InstanceVariable, len(vars))
	for _, v := range vars {
		byName[v.Name] = v
	}

	var out []condition.Condition

	for i, entry := range entries {
		if strings.TrimSpace(entry.VariableName) == "" || strings.TrimSpace(entry.Operator) == "" {
			r.logger.WarnContext(ctx, "Skipping incomplete condition", "index", i)

			continue
		}

		variable, ok := byName[entry.VariableName]
		if !ok {
			r.logger.WarnContext(ctx, "Skipping condition on unknown variable", "index", i, "variable", entry.VariableName)

			continue
		}

		fieldType := models.FieldTypeText
		if variable.Type == models.VariableTypeNumber {
			fieldType = models.FieldTypeNumber
		}

		c, err := condition.New(fieldType, variable.Value, condition.Operator(entry.Operator), entry.Value, h.d.location)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping invalid condition", "index", i, "variable", entry.VariableName, "error", err)

			continue
		}

		out = append(out, c)
	}

	return out, nil
}

func (h conditionHandler) scriptConditions(ctx context.Context, r *run, entries []models.ConditionEntry) ([]condition.Condition, error) {
	env, _, err := h.d.variables.Environment(ctx, r.instance.ID)
	if err != nil {
		return nil, err
	}

	var out []condition.Condition

	for i, entry := range entries {
		if strings.TrimSpace(entry.Script) == "" {
			r.logger.WarnContext(ctx, "Skipping empty script condition", "index", i)

			continue
		}

		out = append(out, condition.Script{Code: entry.Script, Env: env, Engine: h.d.scripts})
	}

	return out, nil
}
