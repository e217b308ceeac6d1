package deliveryxmongo

import (
	"context"
	"time"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/storex"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName  = "delivery_records"
	activeIndexName = "delivery_records_active_idx"
)

// Document is the stored shape of a record
type Document struct {
	ID          string     `bson:"_id"`
	Recipient   string     `bson:"recipient"`
	TriggerKey  string     `bson:"trigger_key"`
	SequenceKey string     `bson:"sequence_key"`
	ItemCount   int        `bson:"item_count"`
	MessageIDs  []string   `bson:"message_ids"`
	Outcome     string     `bson:"outcome"`
	Error       string     `bson:"error,omitempty"`
	ErrorKind   string     `bson:"error_kind,omitempty"`
	StartedAt   time.Time  `bson:"started_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	Deadline    time.Time  `bson:"deadline"`
}

// ToDocument converts a record for storage
func ToDocument(r deliveryx.DeliveryRecord) Document {
	ids := r.MessageIDs
	if ids == nil {
		ids = []string{}
	}
	return Document{
		ID:          r.ID,
		Recipient:   r.Recipient,
		TriggerKey:  r.TriggerKey,
		SequenceKey: r.SequenceKey,
		ItemCount:   r.ItemCount,
		MessageIDs:  ids,
		Outcome:     string(r.Outcome),
		Error:       r.Error,
		ErrorKind:   r.ErrorKind,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Deadline:    r.Deadline,
	}
}

// Record converts a stored document back. Mongo keeps millisecond
// precision in UTC.
func (d Document) Record() deliveryx.DeliveryRecord {
	ids := d.MessageIDs
	if ids == nil {
		ids = []string{}
	}
	var completed *time.Time
	if d.CompletedAt != nil {
		t := d.CompletedAt.UTC()
		completed = &t
	}
	return deliveryx.DeliveryRecord{
		ID:          d.ID,
		Recipient:   d.Recipient,
		TriggerKey:  d.TriggerKey,
		SequenceKey: d.SequenceKey,
		ItemCount:   d.ItemCount,
		MessageIDs:  ids,
		Outcome:     deliveryx.Outcome(d.Outcome),
		Error:       d.Error,
		ErrorKind:   d.ErrorKind,
		StartedAt:   d.StartedAt.UTC(),
		CompletedAt: completed,
		Deadline:    d.Deadline.UTC(),
	}
}

// Indexes returns the collection indexes. The partial unique index allows
// one in-progress document per (recipient, trigger_key).
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "trigger_key", Value: 1}},
			Options: options.Index().
				SetName(activeIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"outcome": string(deliveryx.OutcomeInProgress)}),
		},
		{
			Keys:    bson.D{{Key: "deadline", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.M{"outcome": string(deliveryx.OutcomeInProgress)}),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
	}
}

// Store persists records in MongoDB
type Store struct {
	docs *storex.TypedMongo[Document]
}

var _ deliveryx.Store = (*Store)(nil)

// New wraps a database handle
func New(db *mongo.Database) *Store {
	return &Store{docs: storex.NewTypedMongo[Document](db.Collection(collectionName))}
}

// Connect dials uri and ensures indexes on the named database
func Connect(ctx context.Context, uri, database string) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, storex.Registry().NewWithCause(storex.ErrConnectionFailed, err).
			WithDetail("driver", "mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, storex.Registry().NewWithCause(storex.ErrConnectionFailed, err).
			WithDetail("driver", "mongo")
	}

	s := New(client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return s, client, nil
}

func (s *Store) Name() string { return "mongo" }

// EnsureIndexes creates the collection indexes
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return s.docs.EnsureIndexes(ctx, Indexes()...)
}

func (s *Store) Create(ctx context.Context, record deliveryx.DeliveryRecord) error {
	err := s.docs.Create(ctx, ToDocument(record))
	if err != nil && storex.IsDuplicateKey(err) && !record.Terminal() {
		return deliveryx.ActiveExists(record.Recipient, record.TriggerKey, err)
	}
	return err
}

func (s *Store) Update(ctx context.Context, record deliveryx.DeliveryRecord) error {
	replaced, err := s.docs.ReplaceWhere(ctx, record.ID, ToDocument(record),
		bson.M{"outcome": string(deliveryx.OutcomeInProgress)})
	if err != nil {
		return err
	}
	if replaced {
		return nil
	}

	current, err := s.FindByID(ctx, record.ID)
	if err != nil {
		return err
	}
	return deliveryx.Terminal(record.ID, current.Outcome)
}

func (s *Store) AppendLate(ctx context.Context, id string, messageIDs ...string) (deliveryx.DeliveryRecord, error) {
	if len(messageIDs) > 0 {
		if _, err := s.docs.UpdateWhere(ctx, id, lateAppend(messageIDs),
			bson.M{"outcome": bson.M{"$ne": string(deliveryx.OutcomeInProgress)}}); err != nil {
			return deliveryx.DeliveryRecord{}, err
		}
		if _, err := s.docs.UpdateWhere(ctx, id, bson.M{"$set": bson.M{"outcome": string(deliveryx.OutcomePartial)}},
			bson.M{"outcome": string(deliveryx.OutcomeFailed), "message_ids.0": bson.M{"$exists": true}}); err != nil {
			return deliveryx.DeliveryRecord{}, err
		}
	}
	return s.FindByID(ctx, id)
}

func lateAppend(messageIDs []string) bson.M {
	return bson.M{"$addToSet": bson.M{"message_ids": bson.M{"$each": messageIDs}}}
}

func (s *Store) FindByID(ctx context.Context, id string) (deliveryx.DeliveryRecord, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if storex.IsRecordNotFound(err) {
			return deliveryx.DeliveryRecord{}, deliveryx.NotFound(id)
		}
		return deliveryx.DeliveryRecord{}, err
	}
	return doc.Record(), nil
}

func (s *Store) FindActive(ctx context.Context, recipient, triggerKey string) (deliveryx.DeliveryRecord, bool, error) {
	doc, err := s.docs.FindOne(ctx, activeFilter(recipient, triggerKey))
	if err != nil {
		if storex.IsRecordNotFound(err) {
			return deliveryx.DeliveryRecord{}, false, nil
		}
		return deliveryx.DeliveryRecord{}, false, err
	}
	return doc.Record(), true, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]deliveryx.DeliveryRecord, error) {
	docs, err := s.docs.Find(ctx, expiredFilter(now),
		options.Find().SetSort(bson.D{{Key: "deadline", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return records(docs), nil
}

func (s *Store) List(ctx context.Context, filter deliveryx.Filter, opts storex.PaginationOptions) (storex.Paginated[deliveryx.DeliveryRecord], error) {
	if opts.OrderBy == "" || opts.OrderBy == "id" {
		opts.OrderBy, opts.Desc = "started_at", true
	}
	page, err := s.docs.Paginate(ctx, listFilter(filter), opts)
	if err != nil {
		return storex.Paginated[deliveryx.DeliveryRecord]{}, err
	}
	return storex.NewPaginated(records(page.Data), page.Page.Number, page.Page.Size, page.Page.Total), nil
}

func activeFilter(recipient, triggerKey string) bson.M {
	return bson.M{
		"recipient":   recipient,
		"trigger_key": triggerKey,
		"outcome":     string(deliveryx.OutcomeInProgress),
	}
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{
		"outcome":  string(deliveryx.OutcomeInProgress),
		"deadline": bson.M{"$lt": now},
	}
}

func listFilter(f deliveryx.Filter) bson.M {
	m := bson.M{}
	if f.Recipient != "" {
		m["recipient"] = f.Recipient
	}
	if f.TriggerKey != "" {
		m["trigger_key"] = f.TriggerKey
	}
	if f.Outcome != "" {
		m["outcome"] = string(f.Outcome)
	}
	return m
}

func records(docs []Document) []deliveryx.DeliveryRecord {
	out := make([]deliveryx.DeliveryRecord, len(docs))
	for i, d := range docs {
		out[i] = d.Record()
	}
	return out
}
