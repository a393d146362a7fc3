package engine

import (
	"context"
	"fmt"

	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/netvariant/moqui-workflow/pkg/events"
)

// RegisterHandlers makes the engine advance instances on task.updated and
// instance.start.requested messages. Requests that can never succeed are acked and
// logged; every other failure is returned so the message is redelivered.
func (e *Engine) RegisterHandlers(sub eventbus.EventSubscriber) error {
	if err := sub.Handle(events.TaskUpdatedEvent, e.handleTaskUpdated); err != nil {
		return err
	}

	return sub.Handle(events.InstanceStartRequestedEvent, e.handleStartRequested)
}

func (e *Engine) handleTaskUpdated(ctx context.Context, event any) error {
	updated, ok := event.(*events.TaskUpdated)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	e.logger.DebugContext(ctx, "Task update received",
		"instance_id", updated.InstanceID,
		"task_id", updated.TaskID,
		"status", updated.Status)

	return e.startFromBus(ctx, updated.InstanceID, string(events.TaskUpdatedEvent))
}

func (e *Engine) handleStartRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.InstanceStartRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	return e.startFromBus(ctx, requested.InstanceID, requested.Reason)
}

func (e *Engine) startFromBus(ctx context.Context, instanceID, reason string) error {
	err := e.Start(ctx, instanceID)
	if err != nil && IsRequestError(err) {
		e.logger.WarnContext(ctx, "Dropping start request",
			"instance_id", instanceID,
			"reason", reason,
			"error", err)

		return nil
	}

	return err
}
