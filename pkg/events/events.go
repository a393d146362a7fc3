// Package events defines the messages exchanged between the API, the worker and external
// consumers over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/netvariant/moqui-workflow/pkg/models"
)

type EventType string

const Topic = "workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceCreatedEvent        EventType = "instance.created"
	InstanceStartRequestedEvent EventType = "instance.start.requested"
	InstanceFinishedEvent       EventType = "instance.finished"
	TaskUpdatedEvent            EventType = "task.updated"
	NotificationRequestedEvent  EventType = "notification.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id,omitempty"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return BaseEvent{
		ID:         id.String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
		Metadata:   make(map[string]any),
	}
}

type InstanceCreated struct {
	BaseEvent

	WorkflowID      string `json:"workflow_id"`
	PrimaryKeyValue string `json:"primary_key_value"`
	InputUserID     string `json:"input_user_id,omitempty"`
}

func (e InstanceCreated) GetType() EventType {
	return InstanceCreatedEvent
}

// InstanceStartRequested asks a worker to run the execution loop of an instance.
type InstanceStartRequested struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e InstanceStartRequested) GetType() EventType {
	return InstanceStartRequestedEvent
}

type InstanceFinished struct {
	BaseEvent

	WorkflowID string                `json:"workflow_id"`
	Status     models.InstanceStatus `json:"status"`
	ResultCode string                `json:"result_code,omitempty"`
}

func (e InstanceFinished) GetType() EventType {
	return InstanceFinishedEvent
}

type TaskUpdated struct {
	BaseEvent

	TaskID string            `json:"task_id"`
	UserID string            `json:"user_id"`
	Status models.TaskStatus `json:"status"`
}

func (e TaskUpdated) GetType() EventType {
	return TaskUpdatedEvent
}

// NotificationRequested hands a rendered message to an external delivery service.
type NotificationRequested struct {
	BaseEvent

	Channel   models.NotificationType `json:"channel"`
	Recipient string                  `json:"recipient"`
	Address   string                  `json:"address,omitempty"`
	Template  string                  `json:"template,omitempty"`
	Body      string                  `json:"body"`
	Params    map[string]any          `json:"params,omitempty"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
