package models

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a time-ordered identifier for a new record.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// NewEvent builds an audit event for instanceID created at at.
func NewEvent(instanceID string, eventType EventType, description string, at time.Time) *Event {
	return &Event{
		ID:          NewID(),
		InstanceID:  instanceID,
		Type:        eventType,
		Description: description,
		CreatedAt:   at,
	}
}
