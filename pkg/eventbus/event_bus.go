// Package eventbus carries workflow events between the API, the workers and external
// consumers. Delivery is at least once, so handlers must tolerate repeats.
package eventbus

import (
	"context"

	"github.com/netvariant/moqui-workflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes event under key. Events sharing a key keep their order on
// partitioned transports; the engine keys by instance id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches decoded events to one handler per type. Handle must be
// called before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event struct. A returned error asks
// for redelivery.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
