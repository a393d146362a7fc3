// Package persistence defines the storage collaborator used by the workflow engine.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound indicates no record exists for the given identifier.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a record with the same identity already exists.
	ErrConflict = errors.New("record already exists")

	// ErrInvalidField indicates a query referenced a field the store does not know.
	ErrInvalidField = errors.New("invalid query field")
)

// Error wraps a persistence failure with the operation and record it concerned.
type Error struct {
	Op     string // Operation being performed (e.g., "GetByID", "Update")
	Entity string // Record kind, e.g. "instance"
	ID     string // Record identifier if applicable
	Err    error  // Underlying error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for persistence errors.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new persistence error with context.
func NewError(op, entity, id string, err error) *Error {
	return &Error{Op: op, Entity: entity, ID: id, Err: err}
}

// NotFound is shorthand for a wrapped ErrNotFound.
func NotFound(op, entity, id string) *Error {
	return NewError(op, entity, id, ErrNotFound)
}

// IsNotFound checks if an error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error indicates a duplicate record.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidField checks if an error indicates a query on an unknown field.
func IsInvalidField(err error) bool {
	return errors.Is(err, ErrInvalidField)
}
