// Package protocol defines the contracts for pluggable services.
package protocol

import "context"

// Service is a named operation a SERVICE activity can invoke.
type Service interface {
	// ID is the name activities reference the service by
	ID() string

	// Name returns the human-readable name for this service
	Name() string

	// Description returns a description of what this service does
	Description() string

	// Schema returns the JSON schema the rendered parameters must satisfy
	Schema() map[string]any

	// Call runs the service. A "result" key in the output is what an activity stores
	// in its result variable.
	Call(ctx context.Context, params map[string]any) (map[string]any, error)
}
