package deliveryxpostgres

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/storex"
	"github.com/lib/pq"
)

func TestRowConversion(t *testing.T) {
	started := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	done := started.Add(3 * time.Second)
	rec := deliveryx.DeliveryRecord{
		ID: "d-1", Recipient: "919876543210", TriggerKey: "UNLOCK_CONTENT", SequenceKey: "UNLOCK_CONTENT",
		ItemCount: 2, MessageIDs: []string{"wamid.1"}, Outcome: deliveryx.OutcomePartial,
		Error: "boom", ErrorKind: "REJECTED", StartedAt: started, CompletedAt: &done, Deadline: started.Add(2 * time.Minute),
	}

	row := ToRow(rec)
	if !reflect.DeepEqual([]string(row.MessageIDs), rec.MessageIDs) || row.Outcome != "partial" {
		t.Errorf("unexpected row %+v", row)
	}
	if back := row.Record(); !reflect.DeepEqual(back, rec) {
		t.Errorf("expected %+v, got %+v", rec, back)
	}

	empty := ToRow(deliveryx.DeliveryRecord{ID: "d-2"})
	if empty.MessageIDs == nil {
		t.Error("expected empty text[] rather than NULL")
	}
	if got := (Row{}).Record().MessageIDs; got == nil {
		t.Error("expected non-nil ids after load")
	}
}

func TestColumnsMatchSchema(t *testing.T) {
	for _, c := range storex.Columns(Row{}) {
		if !strings.Contains(migrations[0], c+" ") {
			t.Errorf("column %s missing from schema", c)
		}
	}
	if !strings.Contains(migrations[1], "WHERE outcome = 'in_progress'") {
		t.Error("expected partial unique index on in-progress records")
	}
}

func TestMapCreateError(t *testing.T) {
	rec := deliveryx.DeliveryRecord{Recipient: "91", TriggerKey: "X"}

	active := storex.Registry().New(storex.ErrDuplicateKey).
		WithCause(&pq.Error{Code: "23505", Constraint: activeIndexName})
	if err := mapCreateError(rec, active); !deliveryx.IsActiveExists(err) {
		t.Errorf("expected active exists, got %v", err)
	}

	pkey := storex.Registry().New(storex.ErrDuplicateKey).
		WithCause(&pq.Error{Code: "23505", Constraint: "delivery_records_pkey"})
	if err := mapCreateError(rec, pkey); deliveryx.IsActiveExists(err) || !storex.IsDuplicateKey(err) {
		t.Errorf("expected primary key clash to stay a duplicate key, got %v", err)
	}

	other := errors.New("connection reset")
	if err := mapCreateError(rec, other); err != other {
		t.Errorf("expected passthrough, got %v", err)
	}
	if mapCreateError(rec, nil) != nil {
		t.Error("expected nil")
	}
}

func TestFilterColumns(t *testing.T) {
	cols := filterColumns(deliveryx.Filter{Recipient: "91", Outcome: deliveryx.OutcomeFailed})
	where, args := storex.WhereEquals(cols)
	if where != "outcome = ? AND recipient = ?" || !reflect.DeepEqual(args, []any{"failed", "91"}) {
		t.Errorf("unexpected where %q %v", where, args)
	}
}

func TestAppendLateOnlyTouchesClosedRows(t *testing.T) {
	if !strings.Contains(appendLateSQL, "outcome <> 'in_progress'") {
		t.Error("expected late ids to be limited to terminal rows")
	}
	if !strings.Contains(appendLateSQL, "WHEN outcome = 'failed' THEN 'partial'") {
		t.Error("expected failed rows with ids to become partial")
	}
	if strings.Count(appendLateSQL, "?") != 2 {
		t.Errorf("expected 2 placeholders, got %d", strings.Count(appendLateSQL, "?"))
	}
}
