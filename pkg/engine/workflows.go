package engine

import (
	"context"
	"fmt"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

func (e *Engine) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return e.store.Workflows().List(ctx)
}

func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return e.workflow(ctx, "get_workflow", workflowID)
}

// SaveWorkflow validates a definition, including every activity payload, and stores it.
func (e *Engine) SaveWorkflow(ctx context.Context, wf *models.Workflow) error {
	const op = "save_workflow"

	if err := e.validate.Struct(wf); err != nil {
		return newError(op, "", ErrInvalidInput, "%s", err.Error())
	}

	if _, ok := wf.EnterActivity(); !ok {
		return newError(op, "", ErrNoEnterActivity, "workflow %s", wf.Name)
	}

	for _, act := range wf.Activities {
		if err := e.dispatcher.ValidateData(act); err != nil {
			return newError(op, "", ErrInvalidInput, "%s", err.Error())
		}
	}

	if wf.ID == "" {
		wf.ID = models.NewID()
	}

	now := e.now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}

	wf.UpdatedAt = now

	if err := e.store.Workflows().Save(ctx, wf); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", wf.ID, err)
	}

	e.logger.InfoContext(ctx, "Workflow saved",
		"workflow_id", wf.ID,
		"activities", len(wf.Activities),
		"transitions", len(wf.Transitions))

	return nil
}

// DisableWorkflow stops new instances from being created or advanced.
func (e *Engine) DisableWorkflow(ctx context.Context, workflowID string) error {
	return e.setDisabled(ctx, "disable_workflow", workflowID, true)
}

func (e *Engine) EnableWorkflow(ctx context.Context, workflowID string) error {
	return e.setDisabled(ctx, "enable_workflow", workflowID, false)
}

func (e *Engine) setDisabled(ctx context.Context, op, workflowID string, disabled bool) error {
	if _, err := e.workflow(ctx, op, workflowID); err != nil {
		return err
	}

	if err := e.store.Workflows().SetDisabled(ctx, workflowID, disabled); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Workflow availability changed", "workflow_id", workflowID, "disabled", disabled)

	return nil
}

// CreateVariable declares a new variable on a definition. Existing instances do not
// receive it.
func (e *Engine) CreateVariable(ctx context.Context, workflowID string, variable *models.WorkflowVariable) error {
	const op = "create_variable"

	if _, err := e.workflow(ctx, op, workflowID); err != nil {
		return err
	}

	if err := e.validate.Struct(variable); err != nil {
		return newError(op, "", ErrInvalidInput, "%s", err.Error())
	}

	if variable.ID == "" {
		variable.ID = models.NewID()
	}

	variable.WorkflowID = workflowID

	if err := e.store.Workflows().SaveVariable(ctx, variable); err != nil {
		if persistence.IsConflict(err) {
			return newError(op, "", ErrInvalidInput, "variable %s already exists", variable.Name)
		}

		return err
	}

	return nil
}

func (e *Engine) ListVariables(ctx context.Context, workflowID string) ([]*models.WorkflowVariable, error) {
	wf, err := e.workflow(ctx, "list_variables", workflowID)
	if err != nil {
		return nil, err
	}

	return wf.Variables, nil
}

// CreateInitiator grants a user group the right to create instances from FromDate on.
// A zero FromDate means now.
func (e *Engine) CreateInitiator(ctx context.Context, initiator *models.Initiator) error {
	const op = "create_initiator"

	if err := e.validate.Struct(initiator); err != nil {
		return newError(op, "", ErrInvalidInput, "%s", err.Error())
	}

	if _, err := e.workflow(ctx, op, initiator.WorkflowID); err != nil {
		return err
	}

	if initiator.ID == "" {
		initiator.ID = models.NewID()
	}

	if initiator.FromDate.IsZero() {
		initiator.FromDate = e.now()
	}

	if initiator.ThruDate != nil && !initiator.ThruDate.After(initiator.FromDate) {
		return newError(op, "", ErrInvalidInput, "thru date must follow from date")
	}

	return e.store.Workflows().SaveInitiator(ctx, initiator)
}

func (e *Engine) ListInitiators(ctx context.Context, workflowID string) ([]*models.Initiator, error) {
	if _, err := e.workflow(ctx, "list_initiators", workflowID); err != nil {
		return nil, err
	}

	return e.store.Workflows().Initiators(ctx, workflowID)
}

// ExpireInitiator closes the window of an initiator at now. Windows that already ended
// are left alone.
func (e *Engine) ExpireInitiator(ctx context.Context, initiatorID string) (*models.Initiator, error) {
	const op = "expire_initiator"

	initiator, err := e.store.Workflows().GetInitiator(ctx, initiatorID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, newError(op, "", ErrInitiatorNotFound, "initiator %s", initiatorID)
		}

		return nil, err
	}

	now := e.now()
	if initiator.ThruDate != nil && !initiator.ThruDate.After(now) {
		return initiator, nil
	}

	initiator.ThruDate = &now

	if err := e.store.Workflows().SaveInitiator(ctx, initiator); err != nil {
		return nil, err
	}

	return initiator, nil
}
