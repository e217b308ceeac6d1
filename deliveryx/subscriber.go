package deliveryx

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/phonex"
)

// EventType names a delivery lifecycle notification
type EventType string

const (
	EventStarted    EventType = "delivery.started"
	EventItemSent   EventType = "delivery.item_sent"
	EventItemFailed EventType = "delivery.item_failed"
	EventCompleted  EventType = "delivery.completed"
	EventExpired    EventType = "delivery.expired"
	EventDuplicate  EventType = "delivery.duplicate"
)

// Event is passed to subscribers. Record is a snapshot taken at the time of
// the transition.
type Event struct {
	Type      EventType      `json:"type"`
	Record    DeliveryRecord `json:"record"`
	ItemIndex int            `json:"item_index"`
	MessageID string         `json:"message_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// Subscriber observes delivery transitions. It must not block for long;
// it runs on the delivering goroutine.
type Subscriber interface {
	OnDeliveryEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) OnDeliveryEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// notifyAll calls every subscriber, containing errors and panics
func notifyAll(ctx context.Context, subs []Subscriber, event Event) {
	for _, s := range subs {
		if err := safeNotify(ctx, s, event); err != nil {
			logx.Warn("delivery subscriber failed on %s for %s: %v",
				event.Type, phonex.Mask(event.Record.Recipient), err)
		}
	}
}

func safeNotify(ctx context.Context, s Subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Debug("subscriber panic stack: %s", debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.OnDeliveryEvent(ctx, event)
}

// EventPublisherSubscriber forwards delivery events to an eventx.Publisher,
// keyed by recipient.
type EventPublisherSubscriber struct {
	Publisher eventx.Publisher
	Source    string
}

// NewEventPublisherSubscriber wraps p
func NewEventPublisherSubscriber(p eventx.Publisher) *EventPublisherSubscriber {
	return &EventPublisherSubscriber{Publisher: p, Source: "wabridge.delivery"}
}

func (s *EventPublisherSubscriber) OnDeliveryEvent(ctx context.Context, event Event) error {
	ev := eventx.NewEvent(string(event.Type), event, eventx.EventOptions{
		Source: s.Source,
		Metadata: map[string]any{
			eventx.MetaKey: event.Record.Recipient,
			"delivery_id":  event.Record.ID,
		},
	})
	return s.Publisher.Publish(ctx, ev)
}

// LogSubscriber writes each transition at debug, and failures at warn
type LogSubscriber struct{}

func (LogSubscriber) OnDeliveryEvent(_ context.Context, e Event) error {
	switch e.Type {
	case EventItemFailed, EventExpired:
		logx.Warn("%s id=%s to=%s item=%d: %s", e.Type, e.Record.ID, phonex.Mask(e.Record.Recipient), e.ItemIndex, e.Error)
	default:
		logx.Debug("%s id=%s to=%s trigger=%q outcome=%s", e.Type, e.Record.ID, phonex.Mask(e.Record.Recipient), e.Record.TriggerKey, e.Record.Outcome)
	}
	return nil
}
