// Package eventbus publishes and consumes execution lifecycle events over a
// message transport. Implementations exist for Kafka and for an in-memory
// channel used in tests and local development.
package eventbus

import (
	"context"

	"github.com/braidflow/braid/pkg/events"
)

// Event is implemented by every event payload published on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes a single decoded event.
type EventHandler func(ctx context.Context, event any) error

type EventPublisher interface {
	// Publish emits an event keyed by execution id.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers a handler for an event type. Handlers must be
	// registered before Subscribe is called.
	Handle(eventType events.EventType, handler EventHandler) error
	// Subscribe starts consuming events until the context is canceled.
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber

	Close() error
	GenerateID() string
}
