package eventxmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/wabridge/eventx"
)

func TestPublishRunsMatchingHandlers(t *testing.T) {
	bus := New()
	var exact, wildcard int
	bus.Subscribe("delivery.completed", func(context.Context, eventx.Event) error {
		exact++
		return nil
	})
	bus.Subscribe("*", func(context.Context, eventx.Event) error {
		wildcard++
		return errors.New("ignored")
	})
	bus.Subscribe("other", func(context.Context, eventx.Event) error {
		panic("must not run")
	})

	ctx := context.Background()
	if err := bus.Publish(ctx, eventx.NewEvent("delivery.completed", 1)); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, eventx.NewEvent("delivery.started", 1)); err != nil {
		t.Fatal(err)
	}

	if exact != 1 || wildcard != 2 {
		t.Errorf("expected exact=1 wildcard=2, got %d %d", exact, wildcard)
	}
	types := bus.Types()
	if len(types) != 2 || types[0] != "delivery.completed" || types[1] != "delivery.started" {
		t.Errorf("unexpected recorded types %v", types)
	}
}

func TestPanickingHandlerIsContained(t *testing.T) {
	bus := New()
	bus.Subscribe("x", func(context.Context, eventx.Event) error { panic("boom") })
	if err := bus.Publish(context.Background(), eventx.NewEvent("x", 1)); err != nil {
		t.Errorf("expected panic to be contained, got %v", err)
	}
}

func TestSubscribeTyped(t *testing.T) {
	bus := New()
	var got string
	eventx.SubscribeTyped(bus, "named", func(_ context.Context, e eventx.TypedEvent[string]) error {
		got = e.Data()
		return nil
	})
	bus.Publish(context.Background(), eventx.NewEvent("named", "hello"))
	bus.Publish(context.Background(), eventx.NewEvent("named", 42))
	if got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
}

func TestClosedBusRejects(t *testing.T) {
	bus := New()
	bus.Close()
	if err := bus.Publish(context.Background(), eventx.NewEvent("x", 1)); !eventx.IsPublishFailed(err) {
		t.Errorf("expected publish failure, got %v", err)
	}
}
