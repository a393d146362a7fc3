package models

import "time"

type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "PENDING"
	InstanceStatusActive    InstanceStatus = "ACTIVE"
	InstanceStatusSuspended InstanceStatus = "SUSPENDED"
	InstanceStatusComplete  InstanceStatus = "COMPLETE"
	InstanceStatusAborted   InstanceStatus = "ABORTED"
)

// Terminal reports whether no further advancement is permitted from s.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusComplete || s == InstanceStatusAborted
}

// OpenInstanceStatuses are the statuses that block creating a second instance for the same record.
var OpenInstanceStatuses = []InstanceStatus{
	InstanceStatusPending,
	InstanceStatusActive,
	InstanceStatusSuspended,
}

// Instance is one execution of a Workflow against one tracked record.
type Instance struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"                validate:"required"`
	PrimaryKeyValue  string         `json:"primary_key_value"          validate:"required"`
	Status           InstanceStatus `json:"status"`
	ActivityID       string         `json:"activity_id,omitempty"`
	ActivityExecuted bool           `json:"activity_executed"`
	OutgoingPort     Port           `json:"outgoing_port,omitempty"`
	Visit            int            `json:"visit"`
	TimeoutAt        *time.Time     `json:"timeout_at,omitempty"`
	Owner            string         `json:"owner,omitempty"`
	OwnerExpiresAt   *time.Time     `json:"owner_expires_at,omitempty"`
	InputUserID      string         `json:"input_user_id,omitempty"`
	ResultCode       string         `json:"result_code,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Field exposes instance columns by name for in-memory query matching.
func (i *Instance) Field(name string) any {
	switch name {
	case "id":
		return i.ID
	case "workflow_id":
		return i.WorkflowID
	case "primary_key_value":
		return i.PrimaryKeyValue
	case "status":
		return string(i.Status)
	case "activity_id":
		return nullable(i.ActivityID)
	case "timeout_at":
		return i.TimeoutAt
	case "owner":
		return nullable(i.Owner)
	case "input_user_id":
		return i.InputUserID
	case "created_at":
		return i.CreatedAt
	case "updated_at":
		return i.UpdatedAt
	}

	return nil
}

// nullable maps the empty string to a missing value so IS NULL matches in memory as it does in SQL.
func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// InstanceVariable is the run-time value of a workflow variable for one instance.
type InstanceVariable struct {
	ID         string       `json:"id"`
	InstanceID string       `json:"instance_id"`
	VariableID string       `json:"variable_id"`
	Name       string       `json:"name"`
	Type       VariableType `json:"type"`
	Value      string       `json:"value"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type EventType string

const (
	EventStart      EventType = "START"
	EventFinish     EventType = "FINISH"
	EventSuspend    EventType = "SUSPEND"
	EventResume     EventType = "RESUME"
	EventActivity   EventType = "ACTIVITY"
	EventTransition EventType = "TRANSITION"
	EventReminder   EventType = "REMINDER"
)

// Event is an append-only audit record of an instance state change.
type Event struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instance_id"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	IsError     bool      `json:"is_error"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
