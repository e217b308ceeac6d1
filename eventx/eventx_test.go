package eventx

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
)

type recipientData struct {
	Recipient string `json:"recipient"`
	Items     int    `json:"items"`
}

type stubPublisher struct {
	published []Event
	err       error
	closed    bool
}

func (s *stubPublisher) Publish(_ context.Context, e Event) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, e)
	return nil
}

func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

// ----------------------------------------------------------------------------
// Events
// ----------------------------------------------------------------------------

func TestNewEventDefaults(t *testing.T) {
	e := NewEvent("delivery.completed", recipientData{Recipient: "919876543210", Items: 2})
	if e.ID() == "" {
		t.Error("expected generated ID")
	}
	if e.Source() != "wabridge" || e.Version() != "1.0" {
		t.Errorf("expected default source and version, got %s %s", e.Source(), e.Version())
	}
	if e.Data().Items != 2 {
		t.Errorf("expected 2 items, got %d", e.Data().Items)
	}
	if KeyOf(e) != e.ID() {
		t.Errorf("expected key to fall back to ID, got %s", KeyOf(e))
	}
}

func TestKeyOfMetadata(t *testing.T) {
	e := NewEvent("delivery.started", 1, EventOptions{Metadata: map[string]any{MetaKey: "919876543210"}})
	if got := KeyOf(e); got != "919876543210" {
		t.Errorf("expected metadata key, got %s", got)
	}
}

func TestJSONRoundTripKeepsEnvelope(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := NewEventWithID("evt-1", "inbound.received", recipientData{Recipient: "91", Items: 3}, ts,
		EventOptions{Source: "webhook", Metadata: map[string]any{MetaKey: "91"}})

	data, err := ToJSON(in)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	out, err := FromJSON[recipientData](data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if out.ID() != "evt-1" || out.Type() != "inbound.received" || out.Source() != "webhook" {
		t.Errorf("unexpected envelope %s %s %s", out.ID(), out.Type(), out.Source())
	}
	if !out.Timestamp().Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, out.Timestamp())
	}
	if out.Data() != (recipientData{Recipient: "91", Items: 3}) {
		t.Errorf("unexpected data %+v", out.Data())
	}
	if KeyOf(out) != "91" {
		t.Errorf("expected key to survive, got %s", KeyOf(out))
	}
}

func TestFromJSONRejectsGarbage(t *testing.T) {
	if _, err := FromJSON[recipientData]([]byte("not json")); err == nil {
		t.Fatal("expected error")
	}
	_, err := FromJSON[recipientData]([]byte(`{"id":"x","type":"t","data":"str"}`))
	if err == nil {
		t.Fatal("expected data mismatch error")
	}
}

func TestEnvelopeCarriesTopLevelKey(t *testing.T) {
	in := NewEvent("inbound.text", recipientData{Recipient: "91"},
		EventOptions{Metadata: map[string]any{MetaKey: "919876543210"}})
	data, err := ToJSON(in)
	if err != nil {
		t.Fatal(err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Key != "919876543210" {
		t.Errorf("expected top-level key 919876543210, got %q", env.Key)
	}

	// producers that only set the top-level key still route by it
	bare := []byte(`{"id":"evt-2","type":"inbound.text","key":"919000000001","data":{"recipient":"91"}}`)
	out, err := FromJSON[recipientData](bare)
	if err != nil {
		t.Fatal(err)
	}
	if KeyOf(out) != "919000000001" {
		t.Errorf("expected key from envelope, got %s", KeyOf(out))
	}
}

func TestFromJSONPrefixed(t *testing.T) {
	data, _ := ToJSON(NewEvent("delivery.completed", recipientData{Recipient: "91"}))

	if _, err := FromJSONPrefixed[recipientData](data, "inbound."); !errx.IsCode(err, ErrInvalidEventType) {
		t.Errorf("expected invalid event type, got %v", err)
	}
	if _, err := FromJSONPrefixed[recipientData](data, "delivery."); err != nil {
		t.Errorf("expected matching prefix to decode, got %v", err)
	}
	if _, err := FromJSON[recipientData]([]byte(`{"data":{}}`)); !errx.IsCode(err, ErrSerializationFailed) {
		t.Errorf("expected envelope without id or type to be rejected, got %v", err)
	}
}

// ----------------------------------------------------------------------------
// Fanout
// ----------------------------------------------------------------------------

func TestFanoutPublishesToEverySink(t *testing.T) {
	a, b := &stubPublisher{}, &stubPublisher{err: errors.New("down")}
	f := NewFanout()
	if err := f.Register("a", a); err != nil {
		t.Fatal(err)
	}
	if err := f.Register("b", b); err != nil {
		t.Fatal(err)
	}
	if err := f.Register("a", a); err == nil {
		t.Error("expected duplicate sink to be rejected")
	}

	err := f.Publish(context.Background(), NewEvent("x", 1))
	if !IsPublishFailed(err) {
		t.Errorf("expected publish failure, got %v", err)
	}
	if len(a.published) != 1 {
		t.Errorf("expected healthy sink to receive the event, got %d", len(a.published))
	}

	if names := f.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}
	if err := f.Close(); err != nil || !a.closed || !b.closed {
		t.Errorf("expected all sinks closed, got %v", err)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), NewEvent("x", 1)); err != nil {
		t.Error(err)
	}
}
