package activity

import (
	"context"
	"errors"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/template"
)

var errNoServices = errors.New("no service registry configured")

type serviceHandler struct{ d *Dispatcher }

func (h serviceHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	data, err := decode[models.ServiceData](r.activity)
	if err != nil {
		return Failure, err
	}

	if h.d.services == nil {
		return h.d.failed(ctx, r, errNoServices)
	}

	_, vars, err := h.d.variables.Environment(ctx, r.instance.ID)
	if err != nil {
		return Failure, err
	}

	params, err := template.Params(data.Parameters, template.Data(r.instance, vars))
	if err != nil {
		return h.d.failed(ctx, r, err)
	}

	out, err := h.d.services.Call(ctx, data.Service, params)
	if err != nil {
		return h.d.failed(ctx, r, err)
	}

	r.logger.InfoContext(ctx, "Service called", "service", data.Service)

	if data.ResultVariableID != "" {
		if _, err := h.d.variables.Set(ctx, r.instance.ID, data.ResultVariableID, out["result"]); err != nil {
			return h.d.failed(ctx, r, err)
		}
	}

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	return Success, nil
}
