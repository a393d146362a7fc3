package activity

import (
	"context"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
	"github.com/netvariant/moqui-workflow/pkg/uom"
)

type userHandler struct{ d *Dispatcher }

// VisitTasks matches the tasks one visit of a USER activity created.
func VisitTasks(inst *models.Instance, activityID string) query.Condition {
	return query.And(
		query.Eq("instance_id", inst.ID),
		query.Eq("activity_id", activityID),
		query.Eq("visit", inst.Visit),
	)
}

func (h userHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	data, err := decode[models.UserData](r.activity)
	if err != nil {
		return Failure, err
	}

	if err := h.createTasks(ctx, r, data); err != nil {
		return Failure, err
	}

	deadline, ok, err := uom.Deadline(h.d.now(), data.TimeoutDuration, data.TimeoutInterval, uom.Unit(data.TimeoutUom))
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "Ignoring invalid timeout", "error", err)
	case ok:
		r.instance.TimeoutAt = &deadline
	}

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	return Pending, nil
}

// createTasks gives every resolved user one task for the current visit. Users that
// already hold one are skipped.
func (h userHandler) createTasks(ctx context.Context, r *run, data models.UserData) error {
	existing, _, err := h.d.store.Tasks().Find(ctx, query.Options{Where: VisitTasks(r.instance, r.activity.ID)})
	if err != nil {
		return err
	}

	assigned := make(map[string]bool, len(existing))
	for _, task := range existing {
		assigned[task.AssignedUserID] = true
	}

	users, err := h.d.resolver.ResolveAll(ctx, data.Crowds, r.instance)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		r.logger.WarnContext(ctx, "No users resolved for user activity")
	}

	now := h.d.now()

	var created []string

	for _, userID := range users {
		if assigned[userID] {
			continue
		}

		task := &models.Task{
			ID:             models.NewID(),
			InstanceID:     r.instance.ID,
			ActivityID:     r.activity.ID,
			Visit:          r.instance.Visit,
			AssignedUserID: userID,
			Type:           data.TaskType,
			VariableID:     data.VariableID,
			Status:         models.TaskStatusPending,
			Summary:        data.Summary,
			Description:    data.Description,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := h.d.store.Tasks().Create(ctx, task); err != nil {
			return err
		}

		created = append(created, userID)
	}

	if len(created) > 0 {
		r.logger.InfoContext(ctx, "Tasks created", "task_type", data.TaskType, "users", created)
	}

	return nil
}
