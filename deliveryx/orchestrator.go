package deliveryx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/contentx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/phonex"
	"github.com/google/uuid"
)

// Config bounds the send loop
type Config struct {
	// ItemTimeout bounds one send
	ItemTimeout time.Duration
	// ItemInterval is the pause between consecutive items
	ItemInterval time.Duration
	// DeadlineGrace covers store writes and subscriber publishes on top of
	// the send and pacing budget
	DeadlineGrace time.Duration
	// SweepInterval is how often the Supervisor looks for expired records
	SweepInterval time.Duration
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		ItemTimeout:   60 * time.Second,
		ItemInterval:  250 * time.Millisecond,
		DeadlineGrace: 5 * time.Second,
		SweepInterval: 5 * time.Second,
	}
}

// Deadline is the latest time a delivery of items started at start may
// still be in progress: every item at its full timeout, every pause between
// them, plus the grace.
func (c Config) Deadline(start time.Time, items int) time.Time {
	items = max(items, 1)
	budget := c.ItemTimeout*time.Duration(items) +
		c.ItemInterval*time.Duration(items-1) +
		c.DeadlineGrace
	return start.Add(budget)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = d.ItemTimeout
	}
	if c.ItemInterval < 0 {
		c.ItemInterval = 0
	}
	if c.DeadlineGrace <= 0 {
		c.DeadlineGrace = d.DeadlineGrace
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

// Resolver maps a trigger key to the sequence to send. It never returns
// an empty sequence.
type Resolver interface {
	Resolve(key string) contentx.ContentSequence
}

// Orchestrator delivers content sequences
type Orchestrator struct {
	store       Store
	content     Resolver
	sender      msgx.Sender
	normalizer  phonex.Normalizer
	cfg         Config
	subscribers []Subscriber
	locks       *keyedMutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg.withDefaults() }
}

func WithNormalizer(n phonex.Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

// WithSubscribers appends lifecycle subscribers
func WithSubscribers(subs ...Subscriber) Option {
	return func(o *Orchestrator) {
		for _, s := range subs {
			if s != nil {
				o.subscribers = append(o.subscribers, s)
			}
		}
	}
}

// WithClock replaces the time source and the pacing sleep
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// NewOrchestrator wires a store, a content resolver and a sender
func NewOrchestrator(store Store, content Resolver, sender msgx.Sender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		content:    content,
		sender:     sender,
		normalizer: phonex.Default,
		cfg:        DefaultConfig(),
		locks:      newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
		sleep:      sleepCtx,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective timings
func (o *Orchestrator) Config() Config { return o.cfg }

// Store returns the backing store
func (o *Orchestrator) Store() Store { return o.store }

// Deliver sends the sequence resolved for triggerKey to recipient and
// returns the record. While a delivery for the same (recipient, trigger)
// is in progress, the existing record is returned and nothing is sent.
//
// Send failures are recorded on the record, not returned. The exceptions
// are credential failures, which are returned once the record is terminal
// so callers can alert.
func (o *Orchestrator) Deliver(ctx context.Context, recipient, triggerKey string) (DeliveryRecord, error) {
	to, err := o.normalizer.Normalize(recipient)
	if err != nil {
		return DeliveryRecord{}, msgx.DeliveryRegistry.NewWithCause(msgx.ErrInvalidRecipient, err).
			WithDetail("recipient", phonex.Mask(recipient))
	}
	triggerKey = strings.TrimSpace(triggerKey)

	unlock := o.locks.Lock(lockKey(to, triggerKey))
	record, seq, err := o.claim(ctx, to, triggerKey)
	unlock()
	if err != nil || seq == nil {
		return record, err
	}

	return o.run(ctx, record, seq.Items)
}

// claim returns either the existing active record (nil sequence) or a
// freshly created in-progress record and the sequence to send. An active
// record past its deadline is closed first, so a crashed delivery never
// blocks its key when no supervisor is running.
func (o *Orchestrator) claim(ctx context.Context, to, triggerKey string) (DeliveryRecord, *contentx.ContentSequence, error) {
	active, found, err := o.store.FindActive(ctx, to, triggerKey)
	if err != nil {
		return DeliveryRecord{}, nil, err
	}
	if found {
		now := o.now()
		if !active.Deadline.Before(now) {
			o.notify(ctx, Event{Type: EventDuplicate, Record: active})
			return active, nil, nil
		}
		if _, _, err := expire(ctx, o.store, o.subscribers, active, now); err != nil {
			return DeliveryRecord{}, nil, err
		}
	}

	seq := o.content.Resolve(triggerKey)
	now := o.now()
	record := DeliveryRecord{
		ID:          o.newID(),
		Recipient:   to,
		TriggerKey:  triggerKey,
		SequenceKey: seq.Key,
		ItemCount:   len(seq.Items),
		MessageIDs:  []string{},
		Outcome:     OutcomeInProgress,
		StartedAt:   now,
		Deadline:    o.cfg.Deadline(now, len(seq.Items)),
	}

	if err := o.store.Create(ctx, record); err != nil {
		if !IsActiveExists(err) {
			return DeliveryRecord{}, nil, err
		}
		// another process won the insert
		winner, found, ferr := o.store.FindActive(ctx, to, triggerKey)
		if ferr != nil {
			return DeliveryRecord{}, nil, ferr
		}
		if !found {
			return DeliveryRecord{}, nil, err
		}
		o.notify(ctx, Event{Type: EventDuplicate, Record: winner})
		return winner, nil, nil
	}

	logx.Info("delivery %s started: to=%s trigger=%q sequence=%s items=%d",
		record.ID, phonex.Mask(to), triggerKey, seq.Key, len(seq.Items))
	o.notify(ctx, Event{Type: EventStarted, Record: record})
	return record, &seq, nil
}

func (o *Orchestrator) run(ctx context.Context, record DeliveryRecord, items []contentx.ContentItem) (DeliveryRecord, error) {
	// persistence must survive a cancelled caller so the record still
	// reaches a terminal state
	persistCtx := context.WithoutCancel(ctx)

	for i, item := range items {
		if i > 0 && o.cfg.ItemInterval > 0 {
			if err := o.sleep(ctx, o.cfg.ItemInterval); err != nil {
				return o.fail(persistCtx, record, i, transportError(err))
			}
		}

		resp, err := o.sendItem(ctx, item.Message(record.Recipient))
		if err != nil {
			return o.fail(persistCtx, record, i, err)
		}

		record.MessageIDs = append(record.MessageIDs, resp.MessageID)
		if err := o.store.Update(persistCtx, record); err != nil {
			return o.storeFailure(persistCtx, record, err)
		}
		o.notify(ctx, Event{Type: EventItemSent, Record: record, ItemIndex: i, MessageID: resp.MessageID})
	}

	record.finish(o.now(), nil)
	if err := o.store.Update(persistCtx, record); err != nil {
		return o.storeFailure(persistCtx, record, err)
	}
	logx.Info("delivery %s succeeded: to=%s items=%d", record.ID, phonex.Mask(record.Recipient), len(record.MessageIDs))
	o.notify(ctx, Event{Type: EventCompleted, Record: record})
	return record, nil
}

func (o *Orchestrator) sendItem(ctx context.Context, msg msgx.Message) (*msgx.Response, error) {
	itemCtx, cancel := context.WithTimeout(ctx, o.cfg.ItemTimeout)
	defer cancel()

	resp, err := o.sender.Send(itemCtx, msg)
	if err != nil {
		if ctx.Err() == nil && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
			return nil, msgx.DeliveryRegistry.NewWithCause(msgx.ErrDeadlineExceeded, err).
				WithDetail("timeout", o.cfg.ItemTimeout.String())
		}
		return nil, err
	}
	if resp == nil || resp.MessageID == "" {
		return nil, msgx.DeliveryRegistry.New(msgx.ErrRejected).
			WithDetail("reason", "provider returned no message id")
	}
	return resp, nil
}

// fail stops the sequence at item index i
func (o *Orchestrator) fail(ctx context.Context, record DeliveryRecord, i int, cause error) (DeliveryRecord, error) {
	record.finish(o.now(), cause)
	o.notify(ctx, Event{Type: EventItemFailed, Record: record, ItemIndex: i, Error: cause.Error()})

	if err := o.store.Update(ctx, record); err != nil {
		return o.storeFailure(ctx, record, err)
	}

	if msgx.IsAuth(cause) {
		logx.Error("OPERATOR ALERT: delivery %s stopped, provider rejected credentials: %v", record.ID, cause)
	} else {
		logx.Warn("delivery %s %s at item %d/%d: to=%s kind=%s",
			record.ID, record.Outcome, i+1, record.ItemCount, phonex.Mask(record.Recipient), record.ErrorKind)
	}
	o.notify(ctx, Event{Type: EventCompleted, Record: record})

	if msgx.IsAuth(cause) {
		return record, cause
	}
	return record, nil
}

// storeFailure handles an Update error. A terminal conflict means the
// supervisor already closed the record: the stored outcome wins, but any
// message the provider acknowledged is still added to it.
func (o *Orchestrator) storeFailure(ctx context.Context, record DeliveryRecord, err error) (DeliveryRecord, error) {
	if IsTerminal(err) {
		stored, ferr := o.store.FindByID(ctx, record.ID)
		if ferr == nil {
			logx.Warn("delivery %s was closed by the supervisor as %s", record.ID, stored.Outcome)
			return o.keepLateMessages(ctx, stored, record.MessageIDs), nil
		}
	}
	logx.Error("delivery %s could not be persisted: %v", record.ID, err)
	return record, err
}

func (o *Orchestrator) keepLateMessages(ctx context.Context, stored DeliveryRecord, acked []string) DeliveryRecord {
	late := missingIDs(stored.MessageIDs, acked)
	if len(late) == 0 {
		return stored
	}
	updated, err := o.store.AppendLate(ctx, stored.ID, late...)
	if err != nil {
		logx.Error("delivery %s: recording %d late message ids failed: %v", stored.ID, len(late), err)
		stored.MessageIDs = append(stored.MessageIDs, late...)
		return stored
	}
	logx.Info("delivery %s: recorded %d message ids acknowledged after close", stored.ID, len(late))
	return updated
}

// missingIDs returns the ids in acked that have not been stored
func missingIDs(stored, acked []string) []string {
	seen := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	var out []string
	for _, id := range acked {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) notify(ctx context.Context, e Event) {
	if len(o.subscribers) == 0 {
		return
	}
	e.Record = e.Record.Clone()
	if e.At.IsZero() {
		e.At = o.now()
	}
	notifyAll(ctx, o.subscribers, e)
}

// transportError classifies a pacing interruption
func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgx.DeliveryRegistry.NewWithCause(msgx.ErrDeadlineExceeded, err)
	}
	return msgx.DeliveryRegistry.NewWithCause(msgx.ErrTransientNetwork, err).
		WithDetail("reason", "cancelled between items")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
