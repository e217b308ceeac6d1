package storex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for duplicate keys
const uniqueViolation = "23505"

// TypedSQL provides SQL operations for a specific row type. Columns come from
// the `db` struct tags of T.
type TypedSQL[T any] struct {
	DB        *sqlx.DB
	TableName string
	IDColumn  string
	columns   []string
}

// NewTypedSQL creates a new TypedSQL helper for a specific type
func NewTypedSQL[T any](db *sqlx.DB) *TypedSQL[T] {
	var zero T
	return &TypedSQL[T]{
		DB:       db,
		IDColumn: "id",
		columns:  Columns(zero),
	}
}

// WithTableName sets the table name for operations
func (s *TypedSQL[T]) WithTableName(tableName string) *TypedSQL[T] {
	s.TableName = tableName
	return s
}

// WithIDColumn sets the column name for the primary key
func (s *TypedSQL[T]) WithIDColumn(columnName string) *TypedSQL[T] {
	s.IDColumn = columnName
	return s
}

func (s *TypedSQL[T]) checkTable() error {
	if s.TableName == "" {
		return storeErrors.New(ErrInvalidQuery).
			WithDetail("reason", "table name not set")
	}
	return nil
}

// Create inserts item. A unique violation becomes ErrDuplicateKey with the
// constraint name in the details.
func (s *TypedSQL[T]) Create(ctx context.Context, item T) error {
	if err := s.checkTable(); err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.TableName, strings.Join(s.columns, ", "), namedList(s.columns))

	if _, err := s.DB.NamedExecContext(ctx, query, item); err != nil {
		if constraint, ok := UniqueViolation(err); ok {
			return storeErrors.New(ErrDuplicateKey).
				WithDetail("table", s.TableName).
				WithDetail("constraint", constraint).
				WithCause(err)
		}
		return storeErrors.New(ErrCreateFailed).
			WithDetail("table", s.TableName).
			WithCause(err)
	}
	return nil
}

// FindByID retrieves a record by ID
func (s *TypedSQL[T]) FindByID(ctx context.Context, id string) (T, error) {
	return s.FindOne(ctx, fmt.Sprintf("%s = ?", s.IDColumn), id)
}

// FindOne retrieves the first record matching where. Placeholders are
// written as ? and rebound for the driver.
func (s *TypedSQL[T]) FindOne(ctx context.Context, where string, args ...any) (T, error) {
	var result T
	if err := s.checkTable(); err != nil {
		return result, err
	}

	query := s.DB.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1",
		strings.Join(s.columns, ", "), s.TableName, where))

	if err := s.DB.GetContext(ctx, &result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, storeErrors.New(ErrRecordNotFound).
				WithDetail("table", s.TableName).
				WithDetail("where", where)
		}
		return result, storeErrors.New(ErrSQLScanFailed).
			WithDetail("table", s.TableName).
			WithCause(err)
	}
	return result, nil
}

// Select returns every record matching where in the given order
func (s *TypedSQL[T]) Select(ctx context.Context, where, orderBy string, args ...any) ([]T, error) {
	if err := s.checkTable(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(s.columns, ", "), s.TableName)
	if where != "" {
		query += " WHERE " + where
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}

	var results []T
	if err := s.DB.SelectContext(ctx, &results, s.DB.Rebind(query), args...); err != nil {
		return nil, storeErrors.New(ErrSQLQueryFailed).
			WithDetail("table", s.TableName).
			WithCause(err)
	}
	return results, nil
}

// UpdateWhere writes every column of item to the row with the same ID, but
// only if guard (a named-parameter SQL condition, may be empty) also holds.
// It reports whether a row was changed.
func (s *TypedSQL[T]) UpdateWhere(ctx context.Context, item T, guard string) (bool, error) {
	if err := s.checkTable(); err != nil {
		return false, err
	}

	sets := make([]string, 0, len(s.columns))
	for _, c := range s.columns {
		if c == s.IDColumn {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = :%s", c, c))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = :%s",
		s.TableName, strings.Join(sets, ", "), s.IDColumn, s.IDColumn)
	if guard != "" {
		query += " AND (" + guard + ")"
	}

	res, err := s.DB.NamedExecContext(ctx, query, item)
	if err != nil {
		return false, storeErrors.New(ErrUpdateFailed).
			WithDetail("table", s.TableName).
			WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErrors.New(ErrUpdateFailed).
			WithDetail("table", s.TableName).
			WithCause(err)
	}
	return n > 0, nil
}

// Paginate returns one page of records matching where, ordered by
// opts.OrderBy when it names a known column.
func (s *TypedSQL[T]) Paginate(ctx context.Context, opts PaginationOptions, where string, args ...any) (Paginated[T], error) {
	if err := s.checkTable(); err != nil {
		return Paginated[T]{}, err
	}
	opts = opts.Normalize()

	clause := ""
	if where != "" {
		clause = " WHERE " + where
	}

	var total int
	countQuery := s.DB.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.TableName, clause))
	if err := s.DB.GetContext(ctx, &total, countQuery, args...); err != nil {
		return Paginated[T]{}, storeErrors.NewWithCause(ErrSQLCountFailed, err).
			WithDetail("table", s.TableName)
	}

	order, err := s.orderClause(opts)
	if err != nil {
		return Paginated[T]{}, err
	}

	query := s.DB.Rebind(fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT %d OFFSET %d",
		strings.Join(s.columns, ", "), s.TableName, clause, order, opts.PageSize, opts.Offset()))

	var results []T
	if err := s.DB.SelectContext(ctx, &results, query, args...); err != nil {
		return Paginated[T]{}, storeErrors.NewWithCause(ErrSQLQueryFailed, err).
			WithDetail("table", s.TableName)
	}
	return NewPaginated(results, opts.Page, opts.PageSize, total), nil
}

// orderClause only accepts known columns since ORDER BY cannot be bound
func (s *TypedSQL[T]) orderClause(opts PaginationOptions) (string, error) {
	if opts.OrderBy == "" {
		return "", nil
	}
	for _, c := range s.columns {
		if c == opts.OrderBy {
			dir := "ASC"
			if opts.Desc {
				dir = "DESC"
			}
			return fmt.Sprintf(" ORDER BY %s %s", c, dir), nil
		}
	}
	return "", storeErrors.New(ErrInvalidQuery).
		WithDetail("reason", "unknown order column").
		WithDetail("order_by", opts.OrderBy)
}

// Exec runs a statement, typically a migration
func (s *TypedSQL[T]) Exec(ctx context.Context, statement string, args ...any) error {
	if _, err := s.DB.ExecContext(ctx, s.DB.Rebind(statement), args...); err != nil {
		return storeErrors.NewWithCause(ErrSQLQueryFailed, err)
	}
	return nil
}

// Helper functions

// Columns lists the `db` tags of a struct in declaration order
func Columns(v any) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if name == "" || name == "-" {
			continue
		}
		cols = append(cols, name)
	}
	return cols
}

// WhereEquals builds "a = ? AND b = ?" from filters in a stable order
func WhereEquals(filters map[string]any) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conditions[i] = k + " = ?"
		args[i] = filters[k]
	}
	return strings.Join(conditions, " AND "), args
}

// UniqueViolation reports a Postgres duplicate-key error and its constraint
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func namedList(cols []string) string {
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	return strings.Join(named, ", ")
}
