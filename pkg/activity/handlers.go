package activity

import (
	"context"
	"strings"

	"github.com/netvariant/moqui-workflow/pkg/models"
)

type enterHandler struct{ d *Dispatcher }

func (h enterHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	if err := h.d.record(ctx, r.instance, models.EventStart, "Workflow started"); err != nil {
		return Failure, err
	}

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	return Success, nil
}

type exitHandler struct{ d *Dispatcher }

func (h exitHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	data, err := decode[models.ExitData](r.activity)
	if err != nil {
		return Failure, err
	}

	r.instance.Status = models.InstanceStatusComplete
	r.instance.ResultCode = data.ResultCode
	r.instance.TimeoutAt = nil

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	if err := h.d.record(ctx, r.instance, models.EventFinish, "Workflow finished"); err != nil {
		return Failure, err
	}

	r.logger.InfoContext(ctx, "Workflow finished", "result_code", data.ResultCode)

	return Success, nil
}

type adjustHandler struct{ d *Dispatcher }

func (h adjustHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	data, err := decode[models.AdjustData](r.activity)
	if err != nil {
		return Failure, err
	}

	switch data.AdjustType {
	case models.AdjustTypeStatus:
		if strings.TrimSpace(data.StatusID) == "" {
			break
		}

		err = h.d.store.Entities().UpdateStatus(ctx, r.workflow.EntityName, r.instance.PrimaryKeyValue, data.StatusID)
		if err != nil {
			return h.d.failed(ctx, r, err)
		}

		r.logger.InfoContext(ctx, "Entity status adjusted", "status_id", data.StatusID)
	case models.AdjustTypeVariable:
		if strings.TrimSpace(data.VariableID) == "" {
			break
		}

		variable, err := h.d.variables.Assign(ctx, r.instance.ID, data.VariableID, data.DefinedValue)
		if err != nil {
			return h.d.failed(ctx, r, err)
		}

		r.logger.InfoContext(ctx, "Variable adjusted", "variable", variable.Name, "value", variable.Value)
	}

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	return Success, nil
}
