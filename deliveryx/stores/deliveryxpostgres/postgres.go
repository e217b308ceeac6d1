package deliveryxpostgres

import (
	"context"
	"time"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/storex"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	tableName       = "delivery_records"
	activeIndexName = "delivery_records_active_idx"
)

// migrations are applied in order by Migrate. Every statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS delivery_records (
		id           TEXT PRIMARY KEY,
		recipient    TEXT NOT NULL,
		trigger_key  TEXT NOT NULL,
		sequence_key TEXT NOT NULL DEFAULT '',
		item_count   INTEGER NOT NULL DEFAULT 0,
		message_ids  TEXT[] NOT NULL DEFAULT '{}',
		outcome      TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		error_kind   TEXT NOT NULL DEFAULT '',
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		deadline     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeIndexName + `
		ON delivery_records (recipient, trigger_key)
		WHERE outcome = 'in_progress'`,
	`CREATE INDEX IF NOT EXISTS delivery_records_deadline_idx
		ON delivery_records (deadline)
		WHERE outcome = 'in_progress'`,
	`CREATE INDEX IF NOT EXISTS delivery_records_started_idx
		ON delivery_records (started_at DESC)`,
}

// Row is the delivery_records table shape
type Row struct {
	ID          string         `db:"id"`
	Recipient   string         `db:"recipient"`
	TriggerKey  string         `db:"trigger_key"`
	SequenceKey string         `db:"sequence_key"`
	ItemCount   int            `db:"item_count"`
	MessageIDs  pq.StringArray `db:"message_ids"`
	Outcome     string         `db:"outcome"`
	Error       string         `db:"error"`
	ErrorKind   string         `db:"error_kind"`
	StartedAt   time.Time      `db:"started_at"`
	CompletedAt *time.Time     `db:"completed_at"`
	Deadline    time.Time      `db:"deadline"`
}

// ToRow converts a record for storage
func ToRow(r deliveryx.DeliveryRecord) Row {
	ids := pq.StringArray(r.MessageIDs)
	if ids == nil {
		ids = pq.StringArray{}
	}
	return Row{
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

// Record converts a stored row back
func (row Row) Record() deliveryx.DeliveryRecord {
	ids := []string(row.MessageIDs)
	if ids == nil {
		ids = []string{}
	}
	return deliveryx.DeliveryRecord{
		ID:          row.ID,
		Recipient:   row.Recipient,
		TriggerKey:  row.TriggerKey,
		SequenceKey: row.SequenceKey,
		ItemCount:   row.ItemCount,
		MessageIDs:  ids,
		Outcome:     deliveryx.Outcome(row.Outcome),
		Error:       row.Error,
		ErrorKind:   row.ErrorKind,
		StartedAt:   row.StartedAt.UTC(),
		CompletedAt: utcPtr(row.CompletedAt),
		Deadline:    row.Deadline.UTC(),
	}
}

// Store persists records in Postgres. Concurrent creation of a second
// in-progress record is rejected by the partial unique index.
type Store struct {
	rows *storex.TypedSQL[Row]
}

var _ deliveryx.Store = (*Store)(nil)

// New wraps an open connection
func New(db *sqlx.DB) *Store {
	return &Store{rows: storex.NewTypedSQL[Row](db).WithTableName(tableName)}
}

// Open connects with lib/pq and pings the server
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, storex.Registry().NewWithCause(storex.ErrConnectionFailed, err).
			WithDetail("driver", "postgres")
	}
	return New(db), nil
}

func (s *Store) Name() string { return "postgres" }

// Close releases the connection pool
func (s *Store) Close() error { return s.rows.DB.Close() }

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error { return s.rows.DB.PingContext(ctx) }

// Migrate applies the schema
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if err := s.rows.Exec(ctx, stmt); err != nil {
			return storex.Registry().NewWithCause(storex.ErrMigrationFailed, err).
				WithDetail("step", i+1)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, record deliveryx.DeliveryRecord) error {
	return mapCreateError(record, s.rows.Create(ctx, ToRow(record)))
}

// mapCreateError turns a violation of the active index into ActiveExists
func mapCreateError(record deliveryx.DeliveryRecord, err error) error {
	if err == nil {
		return nil
	}
	if storex.IsDuplicateKey(err) {
		var constraint string
		if c, ok := storex.UniqueViolation(err); ok {
			constraint = c
		}
		if constraint == "" || constraint == activeIndexName {
			return deliveryx.ActiveExists(record.Recipient, record.TriggerKey, err)
		}
	}
	return err
}

func (s *Store) Update(ctx context.Context, record deliveryx.DeliveryRecord) error {
	changed, err := s.rows.UpdateWhere(ctx, ToRow(record), "outcome = 'in_progress'")
	if err != nil {
		return err
	}
	if changed {
		return nil
	}

	current, err := s.FindByID(ctx, record.ID)
	if err != nil {
		return err
	}
	return deliveryx.Terminal(record.ID, current.Outcome)
}

// appendLateSQL adds ids not already present and moves failed to partial.
// In-progress rows are left to Update.
const appendLateSQL = `UPDATE delivery_records SET
		message_ids = message_ids || ARRAY(
			SELECT unnest(?::text[]) EXCEPT SELECT unnest(message_ids)
		),
		outcome = CASE WHEN outcome = 'failed' THEN 'partial' ELSE outcome END
	WHERE id = ? AND outcome <> 'in_progress'`

func (s *Store) AppendLate(ctx context.Context, id string, messageIDs ...string) (deliveryx.DeliveryRecord, error) {
	if len(messageIDs) > 0 {
		if err := s.rows.Exec(ctx, appendLateSQL, pq.StringArray(messageIDs), id); err != nil {
			return deliveryx.DeliveryRecord{}, err
		}
	}
	return s.FindByID(ctx, id)
}

func (s *Store) FindByID(ctx context.Context, id string) (deliveryx.DeliveryRecord, error) {
	row, err := s.rows.FindByID(ctx, id)
	if err != nil {
		if storex.IsRecordNotFound(err) {
			return deliveryx.DeliveryRecord{}, deliveryx.NotFound(id)
		}
		return deliveryx.DeliveryRecord{}, err
	}
	return row.Record(), nil
}

func (s *Store) FindActive(ctx context.Context, recipient, triggerKey string) (deliveryx.DeliveryRecord, bool, error) {
	row, err := s.rows.FindOne(ctx,
		"recipient = ? AND trigger_key = ? AND outcome = ?",
		recipient, triggerKey, string(deliveryx.OutcomeInProgress))
	if err != nil {
		if storex.IsRecordNotFound(err) {
			return deliveryx.DeliveryRecord{}, false, nil
		}
		return deliveryx.DeliveryRecord{}, false, err
	}
	return row.Record(), true, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]deliveryx.DeliveryRecord, error) {
	rows, err := s.rows.Select(ctx, "outcome = ? AND deadline < ?", "deadline ASC",
		string(deliveryx.OutcomeInProgress), now)
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

func (s *Store) List(ctx context.Context, filter deliveryx.Filter, opts storex.PaginationOptions) (storex.Paginated[deliveryx.DeliveryRecord], error) {
	if opts.OrderBy == "" || opts.OrderBy == "id" {
		opts.OrderBy, opts.Desc = "started_at", true
	}
	where, args := storex.WhereEquals(filterColumns(filter))

	page, err := s.rows.Paginate(ctx, opts, where, args...)
	if err != nil {
		return storex.Paginated[deliveryx.DeliveryRecord]{}, err
	}
	return storex.NewPaginated(records(page.Data), page.Page.Number, page.Page.Size, page.Page.Total), nil
}

func filterColumns(f deliveryx.Filter) map[string]any {
	cols := map[string]any{}
	if f.Recipient != "" {
		cols["recipient"] = f.Recipient
	}
	if f.TriggerKey != "" {
		cols["trigger_key"] = f.TriggerKey
	}
	if f.Outcome != "" {
		cols["outcome"] = string(f.Outcome)
	}
	return cols
}

func records(rows []Row) []deliveryx.DeliveryRecord {
	out := make([]deliveryx.DeliveryRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
