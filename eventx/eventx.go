// Package eventx carries delivery and inbound events to external sinks.
//
//	ev := eventx.NewEvent("delivery.completed", record, eventx.EventOptions{
//		Source:   "wabridge",
//		Metadata: map[string]any{eventx.MetaKey: record.Recipient},
//	})
//	if err := publisher.Publish(ctx, ev); err != nil {
//		logx.Warn("publish failed: %v", err)
//	}
//
// Providers live under eventx/providers: eventxmemory (in-process bus),
// eventxsqs and eventxkafka.
package eventx

import (
	"time"

	"github.com/google/uuid"
)

// MetaKey is the metadata entry sinks use as partition or group key
const MetaKey = "key"

// Event is the base interface for all events
type Event interface {
	ID() string
	Type() string
	Timestamp() time.Time
	Source() string
	Version() string
	Payload() any
	Metadata() map[string]any
}

// TypedEvent provides type-safe access to event data
type TypedEvent[T any] interface {
	Event
	Data() T
}

// EventOptions configure event creation
type EventOptions struct {
	Source   string
	Version  string
	Metadata map[string]any
}

// DefaultEventOptions returns default options
func DefaultEventOptions() EventOptions {
	return EventOptions{
		Source:   "wabridge",
		Version:  "1.0",
		Metadata: make(map[string]any),
	}
}

// BaseEvent implements the Event interface with generic data support
type BaseEvent[T any] struct {
	id        string
	eventType string
	timestamp time.Time
	source    string
	version   string
	data      T
	metadata  map[string]any
}

// NewEvent creates a new typed event
func NewEvent[T any](eventType string, data T, opts ...EventOptions) TypedEvent[T] {
	return NewEventWithID(uuid.New().String(), eventType, data, time.Now().UTC(), opts...)
}

// NewEventWithID creates a new event with a specific ID
func NewEventWithID[T any](id, eventType string, data T, timestamp time.Time, opts ...EventOptions) TypedEvent[T] {
	options := DefaultEventOptions()
	if len(opts) > 0 {
		o := opts[0]
		if o.Source != "" {
			options.Source = o.Source
		}
		if o.Version != "" {
			options.Version = o.Version
		}
		if o.Metadata != nil {
			options.Metadata = o.Metadata
		}
	}

	return &BaseEvent[T]{
		id:        id,
		eventType: eventType,
		timestamp: timestamp,
		source:    options.Source,
		version:   options.Version,
		data:      data,
		metadata:  options.Metadata,
	}
}

// Event interface implementation
func (e *BaseEvent[T]) ID() string               { return e.id }
func (e *BaseEvent[T]) Type() string             { return e.eventType }
func (e *BaseEvent[T]) Timestamp() time.Time     { return e.timestamp }
func (e *BaseEvent[T]) Source() string           { return e.source }
func (e *BaseEvent[T]) Version() string          { return e.version }
func (e *BaseEvent[T]) Payload() any             { return e.data }
func (e *BaseEvent[T]) Metadata() map[string]any { return e.metadata }

// TypedEvent interface implementation
func (e *BaseEvent[T]) Data() T { return e.data }

// KeyOf returns the partition key of an event, falling back to its ID
func KeyOf(e Event) string {
	if k, ok := e.Metadata()[MetaKey].(string); ok && k != "" {
		return k
	}
	return e.ID()
}
