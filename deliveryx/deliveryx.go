// Package deliveryx sends content sequences to recipients exactly once per
// (recipient, trigger) while a delivery is in flight, and keeps an audit
// trail of every attempt.
//
// The Orchestrator owns the send loop, the Supervisor force-fails records
// that outlive their deadline, and Store backends live under
// deliveryx/stores.
package deliveryx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/storex"
)

// Outcome is the lifecycle state of a DeliveryRecord
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSuccess    Outcome = "success"
	OutcomePartial    Outcome = "partial"
	OutcomeFailed     Outcome = "failed"
)

// Terminal reports whether no further transition is allowed
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomePartial || o == OutcomeFailed
}

// DeliveryRecord is one orchestrated send of a content sequence
type DeliveryRecord struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"recipient"`
	TriggerKey  string     `json:"trigger_key"`
	SequenceKey string     `json:"sequence_key"`
	ItemCount   int        `json:"item_count"`
	MessageIDs  []string   `json:"message_ids"`
	Outcome     Outcome    `json:"outcome"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Deadline    time.Time  `json:"deadline"`
}

// Terminal reports whether the record reached a final outcome
func (r DeliveryRecord) Terminal() bool { return r.Outcome.Terminal() }

// Clone returns a copy that shares no slices or pointers with r
func (r DeliveryRecord) Clone() DeliveryRecord {
	out := r
	out.MessageIDs = append([]string{}, r.MessageIDs...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// finish moves the record to its terminal outcome. Partial is chosen over
// failed when at least one item was acknowledged.
func (r *DeliveryRecord) finish(at time.Time, cause error) {
	r.CompletedAt = &at
	if cause == nil {
		r.Outcome = OutcomeSuccess
		r.Error, r.ErrorKind = "", ""
		return
	}
	if len(r.MessageIDs) > 0 {
		r.Outcome = OutcomePartial
	} else {
		r.Outcome = OutcomeFailed
	}
	r.Error = cause.Error()
	r.ErrorKind = KindOf(cause)
}

// KindOf returns the failure kind stored on a record: the errx code of err
// without its registry prefix.
func KindOf(err error) string {
	code := string(errx.CodeOf(err))
	if code == "" {
		return "UNKNOWN"
	}
	return strings.TrimPrefix(code, "DELIVERY_")
}

// Filter narrows Store.List
type Filter struct {
	Recipient  string
	TriggerKey string
	Outcome    Outcome
}

// Store persists delivery records. Create must reject a second in-progress
// record for the same (recipient, trigger) with ErrActiveExists, and Update
// must reject any change to a record that is already terminal with
// ErrTerminal. AppendLate is the only write allowed on a terminal record.
type Store interface {
	Create(ctx context.Context, record DeliveryRecord) error
	Update(ctx context.Context, record DeliveryRecord) error
	FindByID(ctx context.Context, id string) (DeliveryRecord, error)

	// FindActive returns the in-progress record for (recipient, trigger), if any
	FindActive(ctx context.Context, recipient, triggerKey string) (DeliveryRecord, bool, error)

	// ListExpired returns in-progress records whose deadline is before now
	ListExpired(ctx context.Context, now time.Time) ([]DeliveryRecord, error)

	List(ctx context.Context, filter Filter, opts storex.PaginationOptions) (storex.Paginated[DeliveryRecord], error)

	// AppendLate adds message ids acknowledged after the record was closed
	// and returns the stored record. Only terminal records are touched; a
	// failed record that gains ids becomes partial.
	AppendLate(ctx context.Context, id string, messageIDs ...string) (DeliveryRecord, error)

	// Name identifies the backend in health output
	Name() string
}

// Errors share the DELIVERY prefix with the send taxonomy in msgx so a
// record's ErrorKind and a store conflict read the same way in logs.
var registry = errx.NewRegistry("DELIVERY")

var (
	ErrActiveExists = registry.Register("ACTIVE_EXISTS", errx.TypeConflict, http.StatusConflict, "A delivery for this recipient and trigger is already in progress")
	ErrNotFound     = registry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Delivery record not found")
	ErrTerminal     = registry.Register("TERMINAL", errx.TypeConflict, http.StatusConflict, "Delivery record is already terminal")
	ErrStore        = registry.Register("STORE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Delivery store operation failed")
)

// Registry exposes the store error definitions to backends
func Registry() *errx.Registry { return registry }

func IsActiveExists(err error) bool { return errx.IsCode(err, ErrActiveExists) }
func IsNotFound(err error) bool     { return errx.IsCode(err, ErrNotFound) }
func IsTerminal(err error) bool     { return errx.IsCode(err, ErrTerminal) }

// ActiveExists builds the conflict error for (recipient, trigger)
func ActiveExists(recipient, triggerKey string, cause error) error {
	e := registry.New(ErrActiveExists).
		WithDetail("trigger_key", triggerKey).
		WithDetail("recipient", recipient)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// NotFound builds the missing record error
func NotFound(id string) error {
	return registry.New(ErrNotFound).WithDetail("id", id)
}

// Terminal builds the immutable record error
func Terminal(id string, outcome Outcome) error {
	return registry.New(ErrTerminal).
		WithDetail("id", id).
		WithDetail("outcome", string(outcome))
}
