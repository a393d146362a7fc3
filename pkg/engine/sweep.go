package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/netvariant/moqui-workflow/pkg/otelhelper"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
	"github.com/netvariant/moqui-workflow/pkg/uom"
	"go.opentelemetry.io/otel/attribute"
)

// SweepResult counts what a sweep did with each instance it found.
type SweepResult struct {
	Started int `json:"started"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SweepElapsed starts every ACTIVE instance whose timeout has passed, so that waiting
// USER activities leave through their TIMEOUT port. One failing instance does not stop
// the others.
func (e *Engine) SweepElapsed(ctx context.Context) (SweepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.sweep_elapsed",
		attribute.String(otelhelper.WorkerIDKey, e.owner))
	defer span.End()

	var result SweepResult

	elapsed, _, err := e.store.Instances().Find(ctx, query.Options{
		Where: query.And(
			query.Eq("status", models.InstanceStatusActive),
			query.Lt("timeout_at", e.now()),
		),
		OrderBy: "timeout_at",
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return result, fmt.Errorf("failed to find elapsed instances: %w", err)
	}

	for _, inst := range elapsed {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := e.traceStart(ctx, inst.ID)

		switch {
		case err == nil:
			result.Started++
		case errors.Is(err, errHeld) || IsRequestError(err):
			result.Skipped++

			e.logger.DebugContext(ctx, "Skipping elapsed instance", "instance_id", inst.ID, "error", err)
		default:
			result.Failed++

			e.logger.ErrorContext(ctx, "Failed to start elapsed instance", "instance_id", inst.ID, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.started", result.Started),
		attribute.Int("sweep.skipped", result.Skipped),
		attribute.Int("sweep.failed", result.Failed))

	if len(elapsed) > 0 {
		e.logger.InfoContext(ctx, "Elapsed instances swept",
			"found", len(elapsed),
			"started", result.Started,
			"skipped", result.Skipped,
			"failed", result.Failed)
	}

	return result, nil
}

// SendReminders reminds assignees of open tasks that have waited longer than the
// reminder interval of their workflow. A task is reminded at most once per interval.
// It returns the number of reminders sent.
func (e *Engine) SendReminders(ctx context.Context) (int, error) {
	tasks, _, err := e.store.Tasks().Find(ctx, query.Options{
		Where:   query.In("status", models.TaskStatusPending, models.TaskStatusInProgress),
		OrderBy: "created_at",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find open tasks: %w", err)
	}

	now := e.now()
	workflows := make(map[string]*models.Workflow)
	sent := 0

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		reminded, err := e.remind(ctx, task, now, workflows)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to remind task", "task_id", task.ID, "instance_id", task.InstanceID, "error", err)

			continue
		}

		if reminded {
			sent++
		}
	}

	if sent > 0 {
		e.logger.InfoContext(ctx, "Task reminders sent", "reminders", sent)
	}

	return sent, nil
}

func (e *Engine) remind(ctx context.Context, task *models.Task, now time.Time, workflows map[string]*models.Workflow) (bool, error) {
	inst, err := e.store.Instances().GetByID(ctx, task.InstanceID)
	if err != nil {
		return false, err
	}

	if inst.Status != models.InstanceStatusActive {
		return false, nil
	}

	wf, ok := workflows[inst.WorkflowID]
	if !ok {
		if wf, err = e.store.Workflows().GetByID(ctx, inst.WorkflowID); err != nil {
			return false, err
		}

		workflows[inst.WorkflowID] = wf
	}

	interval, err := reminderInterval(wf)
	if err != nil || interval <= 0 {
		return false, err
	}

	since := task.CreatedAt
	if task.RemindedAt != nil {
		since = *task.RemindedAt
	}

	if now.Sub(since) < interval {
		return false, nil
	}

	task.RemindedAt = &now
	task.UpdatedAt = now

	if err := e.store.Tasks().Update(ctx, task); err != nil {
		return false, err
	}

	if err := e.record(ctx, inst.ID, models.EventReminder, task.AssignedUserID,
		fmt.Sprintf("Reminder sent to %s for task %s", task.AssignedUserID, task.ID)); err != nil {
		return false, err
	}

	if e.notifier == nil {
		return true, nil
	}

	msg := notify.Message{
		InstanceID: inst.ID,
		Recipient:  task.AssignedUserID,
		Channel:    models.NotificationEmail,
		Template:   "task-reminder",
		Body:       fmt.Sprintf("Task %q of %s is waiting for you", task.Summary, wf.Name),
		Params: map[string]any{
			"taskId":     task.ID,
			"summary":    task.Summary,
			"workflowId": wf.ID,
			"instanceId": inst.ID,
		},
	}

	user, err := e.store.Directory().GetUser(ctx, task.AssignedUserID)
	switch {
	case err == nil:
		msg.Address = user.Email
	case !persistence.IsNotFound(err):
		return true, err
	}

	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.WarnContext(ctx, "Failed to send reminder", "task_id", task.ID, "recipient", task.AssignedUserID, "error", err)
	}

	return true, nil
}

// reminderInterval is the workflow reminder interval. The unit defaults to hours.
func reminderInterval(wf *models.Workflow) (time.Duration, error) {
	if wf.ReminderInterval <= 0 {
		return 0, nil
	}

	unit := uom.Unit(wf.ReminderUom)
	if unit == "" {
		unit = uom.Hour
	}

	return uom.Duration(wf.ReminderInterval, unit)
}
