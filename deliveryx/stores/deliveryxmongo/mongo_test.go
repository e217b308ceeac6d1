package deliveryxmongo

import (
	"reflect"
	"testing"
	"time"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDocumentConversion(t *testing.T) {
	started := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rec := deliveryx.DeliveryRecord{
		ID: "d-1", Recipient: "919876543210", TriggerKey: "PRICING", SequenceKey: "PRICING",
		ItemCount: 1, MessageIDs: []string{}, Outcome: deliveryx.OutcomeInProgress,
		StartedAt: started, Deadline: started.Add(time.Minute),
	}
	if back := ToDocument(rec).Record(); !reflect.DeepEqual(back, rec) {
		t.Errorf("expected %+v, got %+v", rec, back)
	}

	raw, err := bson.Marshal(ToDocument(rec))
	if err != nil {
		t.Fatal(err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["_id"] != "d-1" || m["outcome"] != "in_progress" {
		t.Errorf("unexpected document %v", m)
	}
	if _, ok := m["completed_at"]; ok {
		t.Error("expected completed_at omitted while in progress")
	}
}

func TestActiveIndexIsPartialUnique(t *testing.T) {
	idx := Indexes()[0]
	if idx.Options == nil || idx.Options.Unique == nil || !*idx.Options.Unique {
		t.Fatal("expected unique index")
	}
	filter, ok := idx.Options.PartialFilterExpression.(bson.M)
	if !ok || filter["outcome"] != "in_progress" {
		t.Errorf("expected partial filter on in_progress, got %v", idx.Options.PartialFilterExpression)
	}
	if *idx.Options.Name != activeIndexName {
		t.Errorf("unexpected index name %s", *idx.Options.Name)
	}
}

func TestFilters(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	exp := expiredFilter(now)
	if exp["outcome"] != "in_progress" || exp["deadline"].(bson.M)["$lt"] != now {
		t.Errorf("unexpected expired filter %v", exp)
	}
	if f := listFilter(deliveryx.Filter{TriggerKey: "X"}); len(f) != 1 || f["trigger_key"] != "X" {
		t.Errorf("unexpected list filter %v", f)
	}
	if f := activeFilter("91", "X"); len(f) != 3 {
		t.Errorf("unexpected active filter %v", f)
	}
}

func TestLateAppendUsesAddToSet(t *testing.T) {
	u := lateAppend([]string{"wamid.1", "wamid.2"})
	each, ok := u["$addToSet"].(bson.M)["message_ids"].(bson.M)["$each"].([]string)
	if !ok || len(each) != 2 {
		t.Errorf("expected $addToSet with $each of 2 ids, got %v", u)
	}
}
