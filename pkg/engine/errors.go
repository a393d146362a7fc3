package engine

import (
	"errors"
	"fmt"
)

// Request errors. They are reported before any state changes.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoEnterActivity = errors.New("workflow has no enter activity")

	// Missing records (404 Not Found).
	ErrInstanceNotFound  = errors.New("instance not found")
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrEntityNotFound    = errors.New("tracked entity not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrVariableNotFound  = errors.New("variable not found")
	ErrInitiatorNotFound = errors.New("initiator not found")

	// Caller not allowed (403 Forbidden).
	ErrNotAssignee  = errors.New("user is not the task assignee")
	ErrNotInitiator = errors.New("user may not initiate this workflow")

	// State conflicts (409 Conflict).
	ErrNotOperable       = errors.New("instance is not operable")
	ErrWorkflowDisabled  = errors.New("workflow is disabled")
	ErrDuplicateInstance = errors.New("an open instance already exists for this record")
	ErrInstanceBusy      = errors.New("instance is held by another worker")
)

// Error wraps a request error with the operation and instance it concerned.
type Error struct {
	Op         string // Operation name, e.g. "start"
	InstanceID string
	Message    string // Human-readable detail
	Err        error  // Sentinel
}

func (e *Error) Error() string {
	subject := e.Op
	if e.InstanceID != "" {
		subject = fmt.Sprintf("%s %s", e.Op, e.InstanceID)
	}

	if e.Message != "" {
		return fmt.Sprintf("%s: %v: %s", subject, e.Err, e.Message)
	}

	return fmt.Sprintf("%s: %v", subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, instanceID string, err error, format string, args ...any) *Error {
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}

	return &Error{Op: op, InstanceID: instanceID, Message: message, Err: err}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNoEnterActivity)
}

// IsNotFound checks if an error reports a missing record that should return HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrVariableNotFound) ||
		errors.Is(err, ErrInitiatorNotFound)
}

// IsForbidden checks if an error rejects the acting user and should return HTTP 403.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotAssignee) ||
		errors.Is(err, ErrNotInitiator)
}

// IsConflict checks if an error is a state conflict that should return HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNotOperable) ||
		errors.Is(err, ErrWorkflowDisabled) ||
		errors.Is(err, ErrDuplicateInstance) ||
		errors.Is(err, ErrInstanceBusy)
}

// IsRequestError reports whether err rejected the request itself. Retrying such a
// request cannot succeed until something else changes.
func IsRequestError(err error) bool {
	return IsValidationError(err) || IsNotFound(err) || IsForbidden(err) || IsConflict(err)
}
