package eventx

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Fanout publishes every event to each registered sink. A failing sink
// does not stop the others; their errors are joined.
type Fanout struct {
	mu    sync.RWMutex
	sinks map[string]Publisher
}

// NewFanout creates an empty fan-out publisher
func NewFanout() *Fanout {
	return &Fanout{sinks: make(map[string]Publisher)}
}

// Register adds a named sink
func (f *Fanout) Register(name string, p Publisher) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.sinks[name]; exists {
		return ErrorRegistry.New(ErrInvalidConfiguration).
			WithDetail("sink", name).
			WithDetail("reason", "sink already registered")
	}
	f.sinks[name] = p
	return nil
}

// Names returns the registered sink names
func (f *Fanout) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.sinks))
	for name := range f.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var errs []error
	for name, p := range f.sinks {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, ErrorRegistry.NewWithCause(ErrPublishFailed, err).
				WithDetail("sink", name).
				WithDetail("event_type", event.Type()))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, p := range f.sinks {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
