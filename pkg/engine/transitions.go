package engine

import (
	"context"
	"fmt"

	"github.com/netvariant/moqui-workflow/pkg/activity"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

// resolveTransition finds the transition leaving fromActivityID through port. Extra
// matches are ignored with a warning; a target missing from the definition counts as no
// transition.
func (e *Engine) resolveTransition(ctx context.Context, wf *models.Workflow, fromActivityID string, port models.Port) (*models.Transition, bool) {
	matches := wf.TransitionsFrom(fromActivityID, port)
	if len(matches) == 0 {
		return nil, false
	}

	if len(matches) > 1 {
		e.logger.WarnContext(ctx, "Several transitions leave the same port, following the first",
			"workflow_id", wf.ID,
			"activity_id", fromActivityID,
			"port", port,
			"transitions", len(matches))
	}

	transition := matches[0]
	if _, ok := wf.Activity(transition.ToActivityID); !ok {
		e.logger.ErrorContext(ctx, "Transition targets an unknown activity",
			"workflow_id", wf.ID,
			"transition_id", transition.ID,
			"to_activity_id", transition.ToActivityID)

		return nil, false
	}

	return transition, true
}

// follow moves inst along transition and starts a new visit of the target activity.
func (e *Engine) follow(ctx context.Context, wf *models.Workflow, from *models.Activity, transition *models.Transition, inst *models.Instance) error {
	if from.Type == models.ActivityTypeUser {
		if err := e.obsoleteTasks(ctx, activity.VisitTasks(inst, from.ID)); err != nil {
			return err
		}
	}

	to, _ := wf.Activity(transition.ToActivityID)

	inst.TimeoutAt = nil
	inst.ActivityID = to.ID
	inst.ActivityExecuted = false
	inst.OutgoingPort = ""
	inst.Visit++

	if err := e.update(ctx, inst); err != nil {
		return err
	}

	e.logger.DebugContext(ctx, "Transition followed",
		"instance_id", inst.ID,
		"from_activity_id", from.ID,
		"port", transition.FromPort,
		"to_activity_id", to.ID,
		"visit", inst.Visit)

	return e.record(ctx, inst.ID, models.EventTransition, "",
		fmt.Sprintf("Transitioned from %s (%s) to %s (%s) via %s", activityName(from), from.ID, activityName(to), to.ID, transition.FromPort))
}

// obsoleteTasks closes the open tasks matching where.
func (e *Engine) obsoleteTasks(ctx context.Context, where query.Condition) error {
	open := query.And(where, query.In("status", models.TaskStatusPending, models.TaskStatusInProgress))

	tasks, _, err := e.store.Tasks().Find(ctx, query.Options{Where: open})
	if err != nil {
		return fmt.Errorf("failed to find open tasks: %w", err)
	}

	now := e.now()

	for _, task := range tasks {
		task.Status = models.TaskStatusObsolete
		task.UpdatedAt = now

		if err := e.store.Tasks().Update(ctx, task); err != nil {
			return fmt.Errorf("failed to obsolete task %s: %w", task.ID, err)
		}
	}

	return nil
}

func activityName(act *models.Activity) string {
	if act.Name != "" {
		return act.Name
	}

	return string(act.Type)
}
