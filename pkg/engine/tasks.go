package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/netvariant/moqui-workflow/pkg/events"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

type UpdateTaskRequest struct {
	TaskID string            `json:"-"       validate:"required"`
	UserID string            `json:"user_id" validate:"required"`
	Status models.TaskStatus `json:"status"  validate:"required,oneof=IN_PROGRESS DONE APPROVED REJECTED"`
	Value  string            `json:"value"`
	Remark string            `json:"remark"`
}

// UpdateTask records the assignee's progress on a task. Completing statuses stamp
// CompletedAt, and a value given on a VARIABLE task is written to the task's variable.
// The instance is then advanced, by the worker when a bus is configured.
func (e *Engine) UpdateTask(ctx context.Context, req UpdateTaskRequest) (*models.Task, error) {
	const op = "update_task"

	if err := e.validate.Struct(req); err != nil {
		return nil, newError(op, "", ErrInvalidInput, "%s", err.Error())
	}

	task, err := e.store.Tasks().GetByID(ctx, req.TaskID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, newError(op, "", ErrTaskNotFound, "task %s", req.TaskID)
		}

		return nil, err
	}

	if task.AssignedUserID != req.UserID {
		return nil, newError(op, task.InstanceID, ErrNotAssignee, "task %s is assigned to %s", task.ID, task.AssignedUserID)
	}

	if !task.Status.Open() {
		return nil, newError(op, task.InstanceID, ErrNotOperable, "task %s is %s", task.ID, task.Status)
	}

	inst, _, err := e.load(ctx, op, task.InstanceID)
	if err != nil {
		return nil, err
	}

	if inst.Status.Terminal() {
		return nil, newError(op, inst.ID, ErrNotOperable, "instance is %s", inst.Status)
	}

	if task.Type == models.TaskTypeVariable && strings.TrimSpace(req.Value) != "" && task.VariableID != "" {
		if _, err := e.variables.Set(ctx, inst.ID, task.VariableID, req.Value); err != nil {
			if persistence.IsNotFound(err) {
				return nil, newError(op, inst.ID, ErrVariableNotFound, "variable %s", task.VariableID)
			}

			return nil, newError(op, inst.ID, ErrInvalidInput, "%s", err.Error())
		}
	}

	now := e.now()

	task.Status = req.Status
	task.Value = req.Value
	task.Remark = req.Remark
	task.UpdatedAt = now

	if req.Status.Completes() {
		task.CompletedAt = &now
	}

	if err := e.store.Tasks().Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}

	e.logger.InfoContext(ctx, "Task updated",
		"task_id", task.ID,
		"instance_id", task.InstanceID,
		"user_id", req.UserID,
		"status", task.Status)

	if !req.Status.Completes() {
		return task, nil
	}

	if e.publisher != nil {
		err := e.publisher.Publish(ctx, task.InstanceID, &events.TaskUpdated{
			BaseEvent: events.NewBaseEvent(events.TaskUpdatedEvent, task.InstanceID),
			TaskID:    task.ID,
			UserID:    req.UserID,
			Status:    task.Status,
		})
		if err != nil {
			return task, fmt.Errorf("failed to publish task update: %w", err)
		}

		return task, nil
	}

	if err := e.Start(ctx, task.InstanceID); err != nil && !IsRequestError(err) {
		return task, err
	}

	return task, nil
}

// TaskFilter selects tasks for FindTasks and CountTasks. Zero fields do not filter.
type TaskFilter struct {
	AssignedUserID string
	Status         models.TaskStatus
	InstanceID     string
	Limit          int
	Offset         int
	OrderBy        string
	Desc           bool
}

func (f TaskFilter) where() query.Condition {
	var conds []query.Condition

	if f.AssignedUserID != "" {
		conds = append(conds, query.Eq("assigned_user_id", f.AssignedUserID))
	}

	if f.Status != "" {
		conds = append(conds, query.Eq("status", f.Status))
	}

	if f.InstanceID != "" {
		conds = append(conds, query.Eq("instance_id", f.InstanceID))
	}

	if len(conds) == 0 {
		return query.Condition{}
	}

	return query.And(conds...)
}

func (e *Engine) FindTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, int64, error) {
	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}

	tasks, total, err := e.store.Tasks().Find(ctx, query.Options{
		Where:   filter.where(),
		OrderBy: orderBy,
		Desc:    filter.Desc,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
	if err != nil {
		if persistence.IsInvalidField(err) {
			return nil, 0, newError("find_tasks", "", ErrInvalidInput, "%s", err.Error())
		}

		return nil, 0, err
	}

	return tasks, total, nil
}

func (e *Engine) CountTasks(ctx context.Context, filter TaskFilter) (int64, error) {
	return e.store.Tasks().Count(ctx, filter.where())
}
