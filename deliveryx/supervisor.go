package deliveryx

import (
	"context"
	"time"

	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/phonex"
)

// Supervisor force-fails in-progress records past their deadline so a
// crashed or stuck delivery never blocks its (recipient, trigger) forever.
type Supervisor struct {
	store       Store
	interval    time.Duration
	subscribers []Subscriber
	now         func() time.Time
}

// NewSupervisor shares the orchestrator's store, clock and subscribers
func NewSupervisor(o *Orchestrator) *Supervisor {
	return &Supervisor{
		store:       o.store,
		interval:    o.cfg.SweepInterval,
		subscribers: o.subscribers,
		now:         o.now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done
func (s *Supervisor) Run(ctx context.Context) {
	logx.Info("delivery supervisor started, sweeping every %s", s.interval)
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logx.Info("delivery supervisor stopped")
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Supervisor) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		logx.Error("delivery sweep failed: %v", err)
	}
}

// Sweep closes every expired record and returns the closed records
func (s *Supervisor) Sweep(ctx context.Context) ([]DeliveryRecord, error) {
	now := s.now()
	expired, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	closed := make([]DeliveryRecord, 0, len(expired))
	for _, record := range expired {
		finished, done, err := expire(ctx, s.store, s.subscribers, record, now)
		if err != nil {
			return closed, err
		}
		if done {
			closed = append(closed, finished)
		}
	}
	return closed, nil
}

// expire force-fails an in-progress record as DEADLINE_EXCEEDED. It reports
// false when the record reached a terminal outcome on its own first.
func expire(ctx context.Context, store Store, subs []Subscriber, record DeliveryRecord, now time.Time) (DeliveryRecord, bool, error) {
	cause := msgx.DeliveryRegistry.New(msgx.ErrDeadlineExceeded).
		WithDetail("deadline", record.Deadline.Format(time.RFC3339))
	record.finish(now, cause)

	if err := store.Update(ctx, record); err != nil {
		if IsTerminal(err) {
			return record, false, nil
		}
		return record, false, err
	}

	logx.Warn("delivery %s expired as %s: to=%s sent=%d/%d",
		record.ID, record.Outcome, phonex.Mask(record.Recipient), len(record.MessageIDs), record.ItemCount)
	notifyAll(ctx, subs, Event{Type: EventExpired, Record: record.Clone(), ItemIndex: len(record.MessageIDs), Error: record.Error, At: now})
	return record, true, nil
}
