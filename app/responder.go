package app

import (
	"context"
	"strings"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/phonex"
)

// Inbound event types published by the responder
const (
	EventReceiptFailed  = "inbound.receipt_failed"
	EventTemplateStatus = "inbound.template_status"
)

// Deliverer starts a content delivery
type Deliverer interface {
	Deliver(ctx context.Context, recipient, triggerKey string) (deliveryx.DeliveryRecord, error)
}

// Responder reacts to classified webhook events: user taps and messages
// start a delivery, receipts and template updates are logged and published.
// HandleEvent returns an error only when the event can safely be handled
// again, that is when no delivery record was claimed for it.
type Responder struct {
	deliverer Deliverer
	events    eventx.Publisher
}

var _ msgx.EventHandler = (*Responder)(nil)

func NewResponder(d Deliverer, events eventx.Publisher) *Responder {
	if events == nil {
		events = eventx.NopPublisher{}
	}
	return &Responder{deliverer: d, events: events}
}

func (r *Responder) HandleEvent(ctx context.Context, event msgx.InboundEvent) error {
	switch event.Kind {
	case msgx.KindButtonClick, msgx.KindText:
		return r.deliver(ctx, event)
	case msgx.KindDeliveryReceipt:
		return r.receipt(ctx, event)
	case msgx.KindTemplateStatus:
		return r.templateStatus(ctx, event)
	default:
		logx.Debug("ignoring %s event", event.Kind)
		return nil
	}
}

func (r *Responder) deliver(ctx context.Context, event msgx.InboundEvent) error {
	trigger := event.TriggerKey()
	logx.Info("%s from %s: trigger=%q", event.Kind, phonex.Mask(event.From), trigger)

	record, err := r.deliverer.Deliver(ctx, event.From, trigger)
	if err != nil {
		if msgx.IsAuth(err) {
			logx.Error("OPERATOR ALERT: WhatsApp rejected the access token while answering %s: %v", phonex.Mask(event.From), err)
		}
		if errx.IsCode(err, msgx.ErrInvalidRecipient) {
			logx.Warn("dropping %s from unusable sender %s: %v", event.Kind, phonex.Mask(event.From), err)
			return nil
		}
		// Once a record exists its prefix may already be out. Handing the
		// event back for redelivery would send it again.
		if record.ID != "" {
			logx.Warn("delivery %s for %s ended with an error, not retrying: %v", record.ID, phonex.Mask(event.From), err)
			return nil
		}
		return err
	}
	logx.Debug("delivery %s for %s is %s", record.ID, phonex.Mask(record.Recipient), record.Outcome)
	return nil
}

func (r *Responder) receipt(ctx context.Context, event msgx.InboundEvent) error {
	if event.Status != string(msgx.StatusFailed) {
		logx.Debug("receipt %s: %s for %s", event.MessageID, event.Status, phonex.Mask(event.Recipient))
		return nil
	}

	logx.Warn("message %s to %s failed: %s", event.MessageID, phonex.Mask(event.Recipient), event.Reason)
	return r.publish(ctx, EventReceiptFailed, event, event.Recipient)
}

func (r *Responder) templateStatus(ctx context.Context, event msgx.InboundEvent) error {
	switch strings.ToUpper(event.Status) {
	case "REJECTED", "PAUSED", "DISABLED":
		logx.Warn("template %s is now %s: %s", event.TemplateName, event.Status, event.Reason)
	default:
		logx.Info("template %s is now %s", event.TemplateName, event.Status)
	}
	return r.publish(ctx, EventTemplateStatus, event, event.TemplateName)
}

func (r *Responder) publish(ctx context.Context, eventType string, event msgx.InboundEvent, key string) error {
	ev := eventx.NewEvent(eventType, event, eventx.EventOptions{
		Source:   "wabridge.webhook",
		Metadata: map[string]any{eventx.MetaKey: key},
	})
	if err := r.events.Publish(ctx, ev); err != nil {
		logx.Warn("publishing %s failed: %v", eventType, err)
	}
	return nil
}
