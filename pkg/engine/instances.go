package engine

import (
	"context"
	"fmt"

	"github.com/netvariant/moqui-workflow/pkg/events"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

type CreateInstanceRequest struct {
	WorkflowID      string `json:"workflow_id"       validate:"required"`
	PrimaryKeyValue string `json:"primary_key_value" validate:"required"`
	InputUserID     string `json:"input_user_id"`
}

// CreateInstance creates a PENDING instance of a workflow for one tracked record and
// seeds its variables with the definition defaults. It does not start it.
func (e *Engine) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*models.Instance, error) {
	const op = "create_instance"

	if err := e.validate.Struct(req); err != nil {
		return nil, newError(op, "", ErrInvalidInput, "%s", err.Error())
	}

	wf, err := e.workflow(ctx, op, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if wf.Disabled {
		return nil, newError(op, "", ErrWorkflowDisabled, "workflow %s is disabled", wf.ID)
	}

	if _, err := e.store.Entities().Get(ctx, wf.EntityName, req.PrimaryKeyValue); err != nil {
		if persistence.IsNotFound(err) {
			return nil, newError(op, "", ErrEntityNotFound, "%s %s", wf.EntityName, req.PrimaryKeyValue)
		}

		return nil, err
	}

	_, open, err := e.store.Instances().Find(ctx, query.Options{
		Where: query.And(
			query.Eq("workflow_id", wf.ID),
			query.Eq("primary_key_value", req.PrimaryKeyValue),
			query.In("status", models.OpenInstanceStatuses...),
		),
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}

	if open > 0 {
		return nil, newError(op, "", ErrDuplicateInstance, "%s %s", wf.EntityName, req.PrimaryKeyValue)
	}

	if err := e.checkInitiator(ctx, wf, req.InputUserID); err != nil {
		return nil, err
	}

	now := e.now()
	inst := &models.Instance{
		ID:              models.NewID(),
		WorkflowID:      wf.ID,
		PrimaryKeyValue: req.PrimaryKeyValue,
		Status:          models.InstanceStatusPending,
		InputUserID:     req.InputUserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.Instances().Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	for _, v := range wf.Variables {
		err := e.store.Variables().Create(ctx, &models.InstanceVariable{
			ID:         models.NewID(),
			InstanceID: inst.ID,
			VariableID: v.ID,
			Name:       v.Name,
			Type:       v.Type,
			Value:      v.DefaultValue,
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed variable %s: %w", v.Name, err)
		}
	}

	e.logger.InfoContext(ctx, "Instance created",
		"instance_id", inst.ID,
		"workflow_id", wf.ID,
		"primary_key_value", inst.PrimaryKeyValue,
		"input_user_id", inst.InputUserID)

	e.publish(ctx, inst.ID, &events.InstanceCreated{
		BaseEvent:       events.NewBaseEvent(events.InstanceCreatedEvent, inst.ID),
		WorkflowID:      wf.ID,
		PrimaryKeyValue: inst.PrimaryKeyValue,
		InputUserID:     inst.InputUserID,
	})

	return inst, nil
}

// checkInitiator requires userID to be a current member of one of the workflow's active
// initiator groups. Workflows without initiators can be started by anyone.
func (e *Engine) checkInitiator(ctx context.Context, wf *models.Workflow, userID string) error {
	initiators, err := e.store.Workflows().Initiators(ctx, wf.ID)
	if err != nil {
		return err
	}

	if len(initiators) == 0 {
		return nil
	}

	now := e.now()

	for _, initiator := range initiators {
		if !initiator.Active(now) {
			continue
		}

		members, err := e.store.Directory().GroupMembers(ctx, initiator.UserGroupID, now)
		if err != nil {
			return err
		}

		for _, m := range members {
			if m.UserID == userID && userID != "" {
				return nil
			}
		}
	}

	return newError("create_instance", "", ErrNotInitiator, "user %q, workflow %s", userID, wf.ID)
}

// Suspend stops an ACTIVE or PENDING instance from advancing until it is resumed.
func (e *Engine) Suspend(ctx context.Context, instanceID, userID string) error {
	return e.transition(ctx, "suspend", instanceID, func(inst *models.Instance) error {
		if inst.Status != models.InstanceStatusActive && inst.Status != models.InstanceStatusPending {
			return newError("suspend", inst.ID, ErrNotOperable, "instance is %s", inst.Status)
		}

		inst.Status = models.InstanceStatusSuspended

		return e.recordChange(ctx, inst, models.EventSuspend, userID, "Workflow suspended")
	})
}

// Resume reactivates a SUSPENDED instance and asks for it to be started.
func (e *Engine) Resume(ctx context.Context, instanceID, userID string) error {
	err := e.transition(ctx, "resume", instanceID, func(inst *models.Instance) error {
		if inst.Status != models.InstanceStatusSuspended {
			return newError("resume", inst.ID, ErrNotOperable, "instance is %s", inst.Status)
		}

		inst.Status = models.InstanceStatusActive
		if inst.ActivityID == "" {
			inst.Status = models.InstanceStatusPending
		}

		return e.recordChange(ctx, inst, models.EventResume, userID, "Workflow resumed")
	})
	if err != nil {
		return err
	}

	return e.requestStart(ctx, instanceID, "resumed")
}

// Abort ends a non-terminal instance for good and closes its open tasks.
func (e *Engine) Abort(ctx context.Context, instanceID, userID string) error {
	var finished *models.Instance

	err := e.transition(ctx, "abort", instanceID, func(inst *models.Instance) error {
		if inst.Status.Terminal() {
			return newError("abort", inst.ID, ErrNotOperable, "instance is %s", inst.Status)
		}

		inst.Status = models.InstanceStatusAborted
		inst.TimeoutAt = nil
		finished = inst

		if err := e.recordChange(ctx, inst, models.EventFinish, userID, "Workflow aborted"); err != nil {
			return err
		}

		return e.obsoleteTasks(ctx, query.Eq("instance_id", inst.ID))
	})
	if err != nil {
		return err
	}

	e.publish(ctx, instanceID, &events.InstanceFinished{
		BaseEvent:  events.NewBaseEvent(events.InstanceFinishedEvent, instanceID),
		WorkflowID: finished.WorkflowID,
		Status:     finished.Status,
	})

	return nil
}

// transition applies a user-invoked status change while holding the instance. change
// validates the reloaded instance and mutates it; it is persisted afterwards.
func (e *Engine) transition(ctx context.Context, op, instanceID string, change func(inst *models.Instance) error) error {
	inst, _, err := e.load(ctx, op, instanceID)
	if err != nil {
		return err
	}

	if inst.Status.Terminal() {
		return newError(op, instanceID, ErrNotOperable, "instance is %s", inst.Status)
	}

	logger := e.logger.With("instance_id", instanceID, "op", op)

	acquired, err := e.locker.Acquire(ctx, instanceID, e.owner)
	if err != nil {
		return fmt.Errorf("failed to acquire instance %s: %w", instanceID, err)
	}

	if !acquired {
		return newError(op, instanceID, ErrInstanceBusy, "")
	}

	defer e.release(ctx, instanceID, logger)

	if inst, err = e.reload(ctx, instanceID); err != nil {
		return err
	}

	if err := change(inst); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Instance status changed", "status", inst.Status)

	return nil
}

func (e *Engine) recordChange(ctx context.Context, inst *models.Instance, eventType models.EventType, userID, description string) error {
	if err := e.update(ctx, inst); err != nil {
		return err
	}

	return e.record(ctx, inst.ID, eventType, userID, description)
}

// requestStart publishes a start request when a bus is configured and runs Start inline
// otherwise. Request errors from an inline Start are only logged.
func (e *Engine) requestStart(ctx context.Context, instanceID, reason string) error {
	if e.publisher != nil {
		return e.publisher.Publish(ctx, instanceID, &events.InstanceStartRequested{
			BaseEvent: events.NewBaseEvent(events.InstanceStartRequestedEvent, instanceID),
			Reason:    reason,
		})
	}

	err := e.Start(ctx, instanceID)
	if err != nil && IsRequestError(err) {
		e.logger.DebugContext(ctx, "Instance not started", "instance_id", instanceID, "reason", reason, "error", err)

		return nil
	}

	return err
}

// InstanceView is an instance with everything recorded about it.
type InstanceView struct {
	*models.Instance

	Variables []*models.InstanceVariable `json:"variables"`
	Tasks     []*models.Task             `json:"tasks"`
	Events    []*models.Event            `json:"events"`
}

func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*InstanceView, error) {
	inst, _, err := e.load(ctx, "get_instance", instanceID)
	if err != nil {
		return nil, err
	}

	view := &InstanceView{Instance: inst}

	if view.Variables, err = e.store.Variables().ListByInstance(ctx, instanceID); err != nil {
		return nil, err
	}

	if view.Tasks, _, err = e.store.Tasks().Find(ctx, query.Options{Where: query.Eq("instance_id", instanceID)}); err != nil {
		return nil, err
	}

	if view.Events, err = e.store.Events().ListByInstance(ctx, instanceID); err != nil {
		return nil, err
	}

	return view, nil
}

// ListInstances returns one page of instances matching filter and the total match count.
func (e *Engine) ListInstances(ctx context.Context, filter InstanceFilter) ([]*models.Instance, int64, error) {
	opts := query.Options{
		OrderBy: "created_at",
		Desc:    true,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}

	var where []query.Condition

	if filter.WorkflowID != "" {
		where = append(where, query.Eq("workflow_id", filter.WorkflowID))
	}

	if filter.Status != "" {
		where = append(where, query.Eq("status", filter.Status))
	}

	if filter.PrimaryKeyValue != "" {
		where = append(where, query.Eq("primary_key_value", filter.PrimaryKeyValue))
	}

	if len(where) > 0 {
		opts.Where = query.And(where...)
	}

	instances, total, err := e.store.Instances().Find(ctx, opts)
	if err != nil {
		if persistence.IsInvalidField(err) {
			return nil, 0, newError("list_instances", "", ErrInvalidInput, "%s", err.Error())
		}

		return nil, 0, err
	}

	return instances, total, nil
}

type InstanceFilter struct {
	WorkflowID      string
	Status          models.InstanceStatus
	PrimaryKeyValue string
	Limit           int
	Offset          int
}

func (e *Engine) workflow(ctx context.Context, op, workflowID string) (*models.Workflow, error) {
	if workflowID == "" {
		return nil, newError(op, "", ErrInvalidInput, "workflow id is required")
	}

	wf, err := e.store.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, newError(op, "", ErrWorkflowNotFound, "workflow %s", workflowID)
		}

		return nil, err
	}

	return wf, nil
}
