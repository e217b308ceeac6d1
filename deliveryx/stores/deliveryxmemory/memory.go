package deliveryxmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/storex"
)

// Store keeps records in process memory. It satisfies the same conflict
// rules as the durable stores but loses everything on restart.
type Store struct {
	mu      sync.RWMutex
	records map[string]deliveryx.DeliveryRecord
	active  map[activeKey]string
}

type activeKey struct {
	recipient  string
	triggerKey string
}

var _ deliveryx.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records: make(map[string]deliveryx.DeliveryRecord),
		active:  make(map[activeKey]string),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Create(_ context.Context, record deliveryx.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey{record.Recipient, record.TriggerKey}
	if !record.Terminal() {
		if _, exists := s.active[key]; exists {
			return deliveryx.ActiveExists(record.Recipient, record.TriggerKey, nil)
		}
	}
	if _, exists := s.records[record.ID]; exists {
		return storex.Registry().New(storex.ErrDuplicateKey).WithDetail("id", record.ID)
	}

	s.records[record.ID] = record.Clone()
	if !record.Terminal() {
		s.active[key] = record.ID
	}
	return nil
}

func (s *Store) Update(_ context.Context, record deliveryx.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.ID]
	if !ok {
		return deliveryx.NotFound(record.ID)
	}
	if current.Terminal() {
		return deliveryx.Terminal(record.ID, current.Outcome)
	}

	s.records[record.ID] = record.Clone()
	if record.Terminal() {
		delete(s.active, activeKey{current.Recipient, current.TriggerKey})
	}
	return nil
}

func (s *Store) AppendLate(_ context.Context, id string, messageIDs ...string) (deliveryx.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return deliveryx.DeliveryRecord{}, deliveryx.NotFound(id)
	}
	if !current.Terminal() {
		return current.Clone(), nil
	}

	seen := make(map[string]struct{}, len(current.MessageIDs))
	for _, m := range current.MessageIDs {
		seen[m] = struct{}{}
	}
	current = current.Clone()
	for _, m := range messageIDs {
		if _, dup := seen[m]; !dup {
			current.MessageIDs = append(current.MessageIDs, m)
			seen[m] = struct{}{}
		}
	}
	if current.Outcome == deliveryx.OutcomeFailed && len(current.MessageIDs) > 0 {
		current.Outcome = deliveryx.OutcomePartial
	}
	s.records[id] = current
	return current.Clone(), nil
}

func (s *Store) FindByID(_ context.Context, id string) (deliveryx.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return deliveryx.DeliveryRecord{}, deliveryx.NotFound(id)
	}
	return record.Clone(), nil
}

func (s *Store) FindActive(_ context.Context, recipient, triggerKey string) (deliveryx.DeliveryRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[activeKey{recipient, triggerKey}]
	if !ok {
		return deliveryx.DeliveryRecord{}, false, nil
	}
	return s.records[id].Clone(), true, nil
}

func (s *Store) ListExpired(_ context.Context, now time.Time) ([]deliveryx.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []deliveryx.DeliveryRecord
	for _, id := range s.active {
		record := s.records[id]
		if record.Deadline.Before(now) {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

// List returns matching records newest first
func (s *Store) List(_ context.Context, filter deliveryx.Filter, opts storex.PaginationOptions) (storex.Paginated[deliveryx.DeliveryRecord], error) {
	opts = opts.Normalize()

	s.mu.RLock()
	matched := make([]deliveryx.DeliveryRecord, 0, len(s.records))
	for _, record := range s.records {
		if matches(record, filter) {
			matched = append(matched, record.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	start := min(opts.Offset(), total)
	end := min(start+opts.PageSize, total)
	return storex.NewPaginated(matched[start:end], opts.Page, opts.PageSize, total), nil
}

func matches(r deliveryx.DeliveryRecord, f deliveryx.Filter) bool {
	if f.Recipient != "" && r.Recipient != f.Recipient {
		return false
	}
	if f.TriggerKey != "" && r.TriggerKey != f.TriggerKey {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	return true
}
