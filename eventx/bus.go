package eventx

import (
	"context"
	"reflect"
)

// Publisher delivers events to a sink
type Publisher interface {
	// Publish sends one event. Implementations must be safe for concurrent use.
	Publish(ctx context.Context, event Event) error

	// Close flushes and releases the sink
	Close() error
}

// EventHandler is a function that processes events
type EventHandler func(ctx context.Context, event Event) error

// TypedEventHandler provides type-safe event handling
type TypedEventHandler[T any] func(ctx context.Context, event TypedEvent[T]) error

// Bus is an in-process publisher with subscriptions
type Bus interface {
	Publisher

	// Subscribe registers a handler for an event type; "*" matches every type
	Subscribe(eventType string, handler EventHandler)
}

// SubscribeTyped registers a typed event handler
func SubscribeTyped[T any](bus Bus, eventType string, handler TypedEventHandler[T]) {
	bus.Subscribe(eventType, func(ctx context.Context, e Event) error {
		if typedEvent, ok := e.(TypedEvent[T]); ok {
			return handler(ctx, typedEvent)
		}
		return ErrorRegistry.New(ErrInvalidEventType).
			WithDetail("expected_type", reflect.TypeOf((*T)(nil)).Elem().String()).
			WithDetail("actual_type", reflect.TypeOf(e.Payload()).String())
	})
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
