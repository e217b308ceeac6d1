package storex

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TypedMongo provides MongoDB operations for a specific document type
type TypedMongo[T any] struct {
	Collection *mongo.Collection
	IDField    string // Field name for the ID (default: "_id")
}

// NewTypedMongo creates a new TypedMongo helper for a specific type
func NewTypedMongo[T any](collection *mongo.Collection) *TypedMongo[T] {
	return &TypedMongo[T]{
		Collection: collection,
		IDField:    "_id",
	}
}

// WithIDField sets a custom ID field name
func (m *TypedMongo[T]) WithIDField(fieldName string) *TypedMongo[T] {
	m.IDField = fieldName
	return m
}

// EnsureIndexes creates the given indexes; existing identical ones are kept
func (m *TypedMongo[T]) EnsureIndexes(ctx context.Context, models ...mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := m.Collection.Indexes().CreateMany(ctx, models); err != nil {
		return storeErrors.New(ErrMongoIndexFailed).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}
	return nil
}

// Create inserts a document. Duplicate keys become ErrDuplicateKey.
func (m *TypedMongo[T]) Create(ctx context.Context, item T) error {
	if _, err := m.Collection.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storeErrors.New(ErrDuplicateKey).
				WithDetail("collection", m.Collection.Name()).
				WithCause(err)
		}
		return storeErrors.New(ErrCreateFailed).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}
	return nil
}

// FindByID retrieves a document by its string ID
func (m *TypedMongo[T]) FindByID(ctx context.Context, id string) (T, error) {
	return m.FindOne(ctx, bson.M{m.IDField: id})
}

// FindOne retrieves a single document matching the filter
func (m *TypedMongo[T]) FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (T, error) {
	var result T

	err := m.Collection.FindOne(ctx, filter, opts...).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return result, storeErrors.New(ErrRecordNotFound).
				WithDetail("filter", fmt.Sprintf("%v", filter)).
				WithDetail("collection", m.Collection.Name())
		}
		return result, storeErrors.New(ErrMongoFindFailed).
			WithDetail("filter", fmt.Sprintf("%v", filter)).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}

	return result, nil
}

// Find returns every document matching the filter
func (m *TypedMongo[T]) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := m.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, storeErrors.New(ErrMongoFindFailed).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}
	defer cursor.Close(ctx)

	var results []T
	if err := cursor.All(ctx, &results); err != nil {
		return nil, storeErrors.New(ErrMongoDecodeFailed).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}
	return results, nil
}

// ReplaceWhere replaces the document with the given ID when the extra
// guard filter also matches. It reports whether a document was replaced.
func (m *TypedMongo[T]) ReplaceWhere(ctx context.Context, id string, item T, guard bson.M) (bool, error) {
	filter := bson.M{m.IDField: id}
	for k, v := range guard {
		filter[k] = v
	}

	res, err := m.Collection.ReplaceOne(ctx, filter, item)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, storeErrors.New(ErrDuplicateKey).
				WithDetail("collection", m.Collection.Name()).
				WithCause(err)
		}
		return false, storeErrors.New(ErrUpdateFailed).
			WithDetail("id", id).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}
	return res.MatchedCount > 0, nil
}

// UpdateWhere applies an update document to the document with the given ID
// when the guard filter also matches. It reports whether a document matched.
func (m *TypedMongo[T]) UpdateWhere(ctx context.Context, id string, update any, guard bson.M) (bool, error) {
	filter := bson.M{m.IDField: id}
	for k, v := range guard {
		filter[k] = v
	}

	res, err := m.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, storeErrors.New(ErrUpdateFailed).
			WithDetail("id", id).
			WithDetail("collection", m.Collection.Name()).
			WithCause(err)
	}
	return res.MatchedCount > 0, nil
}

// Paginate retrieves documents matching filter with pagination
func (m *TypedMongo[T]) Paginate(ctx context.Context, filter bson.M, opts PaginationOptions) (Paginated[T], error) {
	return PaginateMongo[T](ctx, m.Collection, filter, opts)
}

// PaginateMongo is a helper function for MongoDB pagination. opts.Filters
// are merged into filter as equality matches.
func PaginateMongo[T any](
	ctx context.Context,
	collection *mongo.Collection,
	filter bson.M,
	opts PaginationOptions,
) (Paginated[T], error) {
	opts = opts.Normalize()
	query := MergeFilters(filter, opts.Filters)

	// 1. Count total documents
	total, err := collection.CountDocuments(ctx, query)
	if err != nil {
		return Paginated[T]{}, storeErrors.New(ErrMongoCountFailed).
			WithDetail("collection", collection.Name()).
			WithCause(err)
	}

	// 2. Page window and sort
	findOptions := FindOptions(opts)

	// 3. Execute find with pagination
	cursor, err := collection.Find(ctx, query, findOptions)
	if err != nil {
		return Paginated[T]{}, storeErrors.New(ErrMongoFindFailed).
			WithDetail("collection", collection.Name()).
			WithDetail("filter", fmt.Sprintf("%v", query)).
			WithCause(err)
	}
	defer cursor.Close(ctx)

	// 4. Decode the results
	var results []T
	if err := cursor.All(ctx, &results); err != nil {
		return Paginated[T]{}, storeErrors.New(ErrMongoDecodeFailed).
			WithDetail("collection", collection.Name()).
			WithCause(err)
	}

	return NewPaginated(results, opts.Page, opts.PageSize, int(total)), nil
}

// FindOptions converts pagination options to driver find options
func FindOptions(opts PaginationOptions) *options.FindOptions {
	fo := options.Find().
		SetSkip(int64(opts.Offset())).
		SetLimit(int64(opts.PageSize))
	if opts.OrderBy != "" {
		dir := 1
		if opts.Desc {
			dir = -1
		}
		fo.SetSort(bson.D{{Key: opts.OrderBy, Value: dir}})
	}
	return fo
}

// MergeFilters returns a new filter holding base plus extra equality matches
func MergeFilters(base bson.M, extra map[string]any) bson.M {
	out := bson.M{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
