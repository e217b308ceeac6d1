package storex

import "github.com/Abraxas-365/wabridge/errx"

// Error registry for storex
var (
	storeErrors = errx.NewRegistry("STORE")

	// Common errors
	ErrInvalidQuery     = storeErrors.Register("INVALID_QUERY", errx.TypeBadRequest, 400, "Invalid query")
	ErrRecordNotFound   = storeErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Record not found")
	ErrDuplicateKey     = storeErrors.Register("DUPLICATE_KEY", errx.TypeConflict, 409, "Record violates a unique constraint")
	ErrConnectionFailed = storeErrors.Register("CONNECTION_FAILED", errx.TypeUnavailable, 503, "Database connection failed")
	ErrCreateFailed     = storeErrors.Register("CREATE_FAILED", errx.TypeInternal, 500, "Failed to create record")
	ErrUpdateFailed     = storeErrors.Register("UPDATE_FAILED", errx.TypeInternal, 500, "Failed to update record")
	ErrMigrationFailed  = storeErrors.Register("MIGRATION_FAILED", errx.TypeInternal, 500, "Schema migration failed")

	// SQL-specific errors
	ErrSQLScanFailed  = storeErrors.Register("SQL_SCAN_FAILED", errx.TypeInternal, 500, "Failed to scan SQL results")
	ErrSQLQueryFailed = storeErrors.Register("SQL_QUERY_FAILED", errx.TypeInternal, 500, "SQL query execution failed")
	ErrSQLCountFailed = storeErrors.Register("SQL_COUNT_FAILED", errx.TypeInternal, 500, "Failed to count SQL records")

	// MongoDB-specific errors
	ErrMongoFindFailed   = storeErrors.Register("MONGO_FIND_FAILED", errx.TypeInternal, 500, "MongoDB find operation failed")
	ErrMongoCountFailed  = storeErrors.Register("MONGO_COUNT_FAILED", errx.TypeInternal, 500, "Failed to count MongoDB records")
	ErrMongoDecodeFailed = storeErrors.Register("MONGO_DECODE_FAILED", errx.TypeInternal, 500, "Failed to decode MongoDB document")
	ErrMongoIndexFailed  = storeErrors.Register("MONGO_INDEX_FAILED", errx.TypeInternal, 500, "Failed to create MongoDB index")
)

// Registry exposes the STORE registry to store implementations
func Registry() *errx.Registry { return storeErrors }

// Helper functions
func IsRecordNotFound(err error) bool {
	return errx.IsCode(err, ErrRecordNotFound)
}

func IsDuplicateKey(err error) bool {
	return errx.IsCode(err, ErrDuplicateKey)
}

func IsConnectionFailed(err error) bool {
	return errx.IsCode(err, ErrConnectionFailed)
}

func IsInvalidQuery(err error) bool {
	return errx.IsCode(err, ErrInvalidQuery)
}
