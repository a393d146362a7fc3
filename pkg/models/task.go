package models

import "time"

type TaskType string

const (
	TaskTypeApproval TaskType = "APPROVAL"
	TaskTypeManual   TaskType = "MANUAL"
	TaskTypeVariable TaskType = "VARIABLE"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusApproved   TaskStatus = "APPROVED"
	TaskStatusRejected   TaskStatus = "REJECTED"
	TaskStatusObsolete   TaskStatus = "OBSOLETE"
)

// Open reports whether the task still awaits its assignee.
func (s TaskStatus) Open() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// Completes reports whether moving to s completes a task.
func (s TaskStatus) Completes() bool {
	return s == TaskStatusDone || s == TaskStatusApproved || s == TaskStatusRejected
}

// Task is a human work item created by a USER activity visit for one assigned user.
type Task struct {
	ID             string     `json:"id"`
	InstanceID     string     `json:"instance_id"`
	ActivityID     string     `json:"activity_id"`
	Visit          int        `json:"visit"`
	AssignedUserID string     `json:"assigned_user_id"`
	Type           TaskType   `json:"type"`
	VariableID     string     `json:"variable_id,omitempty"`
	Status         TaskStatus `json:"status"`
	Summary        string     `json:"summary,omitempty"`
	Description    string     `json:"description,omitempty"`
	Value          string     `json:"value,omitempty"`
	Remark         string     `json:"remark,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RemindedAt     *time.Time `json:"reminded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Field exposes task columns by name for in-memory query matching.
func (t *Task) Field(name string) any {
	switch name {
	case "id":
		return t.ID
	case "instance_id":
		return t.InstanceID
	case "activity_id":
		return t.ActivityID
	case "visit":
		return t.Visit
	case "assigned_user_id":
		return t.AssignedUserID
	case "type":
		return string(t.Type)
	case "status":
		return string(t.Status)
	case "completed_at":
		return t.CompletedAt
	case "reminded_at":
		return t.RemindedAt
	case "created_at":
		return t.CreatedAt
	case "updated_at":
		return t.UpdatedAt
	}

	return nil
}
