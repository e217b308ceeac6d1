package eventxmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Abraxas-365/wabridge/eventx"
	"github.com/Abraxas-365/wabridge/logx"
)

// MemoryBus is an in-process eventx.Bus. Handlers run synchronously in
// the publisher's goroutine; the published events are kept for inspection.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]eventx.EventHandler
	events   []eventx.Event
	closed   bool
}

// New creates an empty bus
func New() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]eventx.EventHandler)}
}

var _ eventx.Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Subscribe(eventType string, handler eventx.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish records the event and runs matching handlers. Handler errors
// and panics are logged and never reach the caller.
func (b *MemoryBus) Publish(ctx context.Context, event eventx.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return eventx.ErrorRegistry.New(eventx.ErrPublishFailed).
			WithDetail("sink", "memory").
			WithDetail("reason", "bus closed")
	}
	b.events = append(b.events, event)
	handlers := make([]eventx.EventHandler, 0, len(b.handlers[event.Type()])+len(b.handlers["*"]))
	handlers = append(handlers, b.handlers[event.Type()]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := safeHandle(ctx, h, event); err != nil {
			logx.Warn("event handler for %s failed: %v", event.Type(), err)
		}
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Events returns a copy of everything published so far
func (b *MemoryBus) Events() []eventx.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]eventx.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Types returns the type of every published event in order
func (b *MemoryBus) Types() []string {
	events := b.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type()
	}
	return types
}

func safeHandle(ctx context.Context, h eventx.EventHandler, e eventx.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, e)
}
