package app

import (
	"context"
	"sync"
	"testing"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/eventx/providers/eventxmemory"
	"github.com/Abraxas-365/wabridge/msgx"
)

type deliverCall struct {
	recipient string
	trigger   string
}

type fakeDeliverer struct {
	mu        sync.Mutex
	calls     []deliverCall
	err       error
	unclaimed bool
}

func (f *fakeDeliverer) Deliver(_ context.Context, recipient, triggerKey string) (deliveryx.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deliverCall{recipient, triggerKey})
	if f.unclaimed {
		return deliveryx.DeliveryRecord{}, f.err
	}
	return deliveryx.DeliveryRecord{ID: "d1", Recipient: recipient, TriggerKey: triggerKey, Outcome: deliveryx.OutcomeFailed}, f.err
}

// ---------------------------------------------------------------------------
// User events
// ---------------------------------------------------------------------------

func TestResponderDeliversOnUserEvents(t *testing.T) {
	d := &fakeDeliverer{}
	r := NewResponder(d, nil)
	ctx := context.Background()

	events := []msgx.InboundEvent{
		{Kind: msgx.KindButtonClick, From: "919765071249", ButtonID: "UNLOCK_CONTENT", ButtonTitle: "Unlock Content"},
		{Kind: msgx.KindText, From: "919765071249", Body: "  pricing  "},
	}
	for _, e := range events {
		if err := r.HandleEvent(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	expected := []deliverCall{
		{"919765071249", "UNLOCK_CONTENT"},
		{"919765071249", "pricing"},
	}
	if len(d.calls) != len(expected) {
		t.Fatalf("expected %d deliveries, got %d", len(expected), len(d.calls))
	}
	for i, call := range expected {
		if d.calls[i] != call {
			t.Errorf("call %d: expected %+v, got %+v", i, call, d.calls[i])
		}
	}
}

func TestResponderErrorsOnlyWhenNothingWasClaimed(t *testing.T) {
	authErr := msgx.DeliveryRegistry.New(msgx.ErrAuth)
	storeErr := deliveryx.Registry().New(deliveryx.ErrStore)
	badRecipient := msgx.DeliveryRegistry.New(msgx.ErrInvalidRecipient)
	click := msgx.InboundEvent{Kind: msgx.KindButtonClick, From: "919765071249", ButtonID: "X"}

	tests := []struct {
		name      string
		deliverer *fakeDeliverer
		wantErr   bool
	}{
		{"auth after terminal record", &fakeDeliverer{err: authErr}, false},
		{"store failure after claim", &fakeDeliverer{err: storeErr}, false},
		{"store failure before claim", &fakeDeliverer{err: storeErr, unclaimed: true}, true},
		{"invalid recipient", &fakeDeliverer{err: badRecipient, unclaimed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewResponder(tt.deliverer, nil).HandleEvent(context.Background(), click)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Receipts and template updates
// ---------------------------------------------------------------------------

func TestResponderPublishesFailures(t *testing.T) {
	d := &fakeDeliverer{}
	bus := eventxmemory.New()
	r := NewResponder(d, bus)
	ctx := context.Background()

	events := []msgx.InboundEvent{
		{Kind: msgx.KindDeliveryReceipt, MessageID: "wamid.1", Status: "delivered", Recipient: "919765071249"},
		{Kind: msgx.KindDeliveryReceipt, MessageID: "wamid.2", Status: "failed", Recipient: "919765071249", Reason: "131026"},
		{Kind: msgx.KindTemplateStatus, TemplateName: "welcome", Status: "REJECTED", Reason: "INVALID_FORMAT"},
		{Kind: msgx.KindTemplateStatus, TemplateName: "welcome", Status: "APPROVED"},
	}
	for _, e := range events {
		if err := r.HandleEvent(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(d.calls) != 0 {
		t.Errorf("expected no deliveries, got %d", len(d.calls))
	}

	types := bus.Types()
	expected := []string{EventReceiptFailed, EventTemplateStatus, EventTemplateStatus}
	if len(types) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, types)
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Errorf("event %d: expected %s, got %s", i, expected[i], types[i])
		}
	}
}

func TestResponderIgnoresPublishErrors(t *testing.T) {
	bus := eventxmemory.New()
	bus.Close()
	r := NewResponder(&fakeDeliverer{}, bus)

	err := r.HandleEvent(context.Background(), msgx.InboundEvent{Kind: msgx.KindTemplateStatus, TemplateName: "welcome", Status: "PAUSED"})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Queue hand-off
// ---------------------------------------------------------------------------

func TestQueueDispatcherRoundTrip(t *testing.T) {
	bus := eventxmemory.New()
	NewQueueDispatcher(bus).Dispatch(context.Background(), []msgx.InboundEvent{
		{Kind: msgx.KindButtonClick, From: "919765071249", MessageID: "wamid.1", ButtonID: "UNLOCK_CONTENT"},
		{Kind: msgx.KindDeliveryReceipt, MessageID: "wamid.0", Status: "failed", Recipient: "919765071250"},
	})

	queued := bus.Events()
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued events, got %d", len(queued))
	}
	if queued[0].Type() != "inbound.button_click" {
		t.Errorf("expected inbound.button_click, got %s", queued[0].Type())
	}
	if key := eventx.KeyOf(queued[0]); key != "919765071249" {
		t.Errorf("expected sender key, got %s", key)
	}
	if key := eventx.KeyOf(queued[1]); key != "919765071250" {
		t.Errorf("expected recipient key for receipt, got %s", key)
	}

	body, err := eventx.ToJSON(queued[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := &fakeDeliverer{}
	if err := HandleQueued(context.Background(), NewResponder(d, nil), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.calls) != 1 || d.calls[0].trigger != "UNLOCK_CONTENT" {
		t.Errorf("expected one UNLOCK_CONTENT delivery, got %+v", d.calls)
	}

	if err := HandleQueued(context.Background(), NewResponder(d, nil), []byte("garbage")); err == nil {
		t.Error("expected decode error")
	}

	foreign, _ := eventx.ToJSON(eventx.NewEvent("delivery.completed", queued[0].Payload()))
	if err := HandleQueued(context.Background(), NewResponder(d, nil), foreign); !errx.IsCode(err, eventx.ErrInvalidEventType) {
		t.Errorf("expected non-inbound envelope to be rejected, got %v", err)
	}
	if len(d.calls) != 1 {
		t.Errorf("expected no delivery for the rejected envelope, got %d calls", len(d.calls))
	}
}
