package app

import (
	"context"

	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
)

// InboundEventPrefix prefixes the type of queued inbound events
const InboundEventPrefix = "inbound."

// QueueDispatcher hands classified webhook events to a queue instead of
// handling them in process. Each event is keyed by its sender so FIFO
// queues keep per-user order.
type QueueDispatcher struct {
	publisher eventx.Publisher
}

var _ msgx.Dispatcher = (*QueueDispatcher)(nil)

func NewQueueDispatcher(p eventx.Publisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: p}
}

// Dispatch publishes synchronously. Publish failures are logged; the
// webhook has already been acknowledged.
func (d *QueueDispatcher) Dispatch(ctx context.Context, events []msgx.InboundEvent) {
	for _, e := range events {
		if err := d.publisher.Publish(ctx, QueuedEvent(e)); err != nil {
			logx.Error("queueing %s event %s failed: %v", e.Kind, e.MessageID, err)
		}
	}
}

// QueuedEvent wraps an inbound event in an eventx envelope
func QueuedEvent(e msgx.InboundEvent) eventx.TypedEvent[msgx.InboundEvent] {
	key := e.From
	if key == "" {
		key = e.Recipient
	}
	if key == "" {
		key = string(e.Kind)
	}
	return eventx.NewEvent(InboundEventPrefix+string(e.Kind), e, eventx.EventOptions{
		Source:   "wabridge.webhook",
		Metadata: map[string]any{eventx.MetaKey: key},
	})
}

// HandleQueued decodes one queued inbound envelope and runs handler on it.
// Envelopes of any other type are rejected.
func HandleQueued(ctx context.Context, handler msgx.EventHandler, body []byte) error {
	ev, err := eventx.FromJSONPrefixed[msgx.InboundEvent](body, InboundEventPrefix)
	if err != nil {
		return err
	}
	return handler.HandleEvent(ctx, ev.Data())
}
