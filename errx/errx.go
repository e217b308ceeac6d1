package errx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Code represents a unique error code for each type of error
type Code string

// Type represents the general category of the error
type Type string

const (
	TypeValidation     Type = "VALIDATION"
	TypeAuthorization  Type = "AUTHORIZATION"
	TypeAuthentication Type = "AUTHENTICATION"
	TypeNotFound       Type = "NOT_FOUND"
	TypeConflict       Type = "CONFLICT"
	TypeInternal       Type = "INTERNAL"
	TypeBadRequest     Type = "BAD_REQUEST"
	TypeRateLimit      Type = "RATE_LIMIT"
	TypeConfig         Type = "CONFIG"
	TypeBusiness       Type = "BUSINESS"
	TypeExternal       Type = "EXTERNAL"
	TypeTimeout        Type = "TIMEOUT"
	TypeUnavailable    Type = "UNAVAILABLE"
)

// CodeUnknown is used when a registry is asked for a code it never registered.
const CodeUnknown Code = "UNKNOWN_ERROR"

// Error represents a standardized error
type Error struct {
	Code       Code           `json:"code"`
	Type       Type           `json:"type"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	cause      error
}

// Error implements the error interface. The cause is appended so wrapped
// transport errors stay visible in logs.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails merges details into the error and returns the same error
func (e *Error) WithDetails(details map[string]any) *Error {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// WithDetail adds a single detail to the error and returns the same error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps another error as the cause of this error
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// ToHTTP writes the error as JSON. The cause is never serialized.
func (e *Error) ToHTTP(w http.ResponseWriter) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": e})
}

// Print renders an error with its details in a stable order
func Print(err error) string {
	if err == nil {
		return "nil"
	}

	var xerr *Error
	if !errors.As(err, &xerr) {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	if len(xerr.Details) == 0 {
		return fmt.Sprintf("Error: %s, HTTP Status: %d", xerr.Error(), xerr.HTTPStatus)
	}

	keys := make([]string, 0, len(xerr.Details))
	for k := range xerr.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, xerr.Details[k]))
	}
	return fmt.Sprintf("Error: %s, Details: {%s}, HTTP Status: %d",
		xerr.Error(), strings.Join(parts, ", "), xerr.HTTPStatus)
}

// IsCode checks if an error is an Error with a specific code
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsType checks if an error is an Error with a specific type
func IsType(err error, errType Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// CodeOf returns the code of the outermost *Error in the chain, or "" when
// err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Registry helps manage error definitions across packages
type Registry struct {
	prefix string
	mu     sync.RWMutex
	defs   map[Code]Error
}

// NewRegistry creates a new Registry with a prefix
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		defs:   make(map[Code]Error),
	}
}

// Register adds a new error definition and returns its full code (PREFIX_CODE)
func (r *Registry) Register(code Code, errType Type, httpStatus int, message string) Code {
	fullCode := Code(fmt.Sprintf("%s_%s", r.prefix, code))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[fullCode] = Error{
		Code:       fullCode,
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
	return fullCode
}

// New creates a fresh instance of a registered error
func (r *Registry) New(code Code) *Error {
	r.mu.RLock()
	def, ok := r.defs[code]
	r.mu.RUnlock()

	if !ok {
		return &Error{
			Code:       CodeUnknown,
			Type:       TypeInternal,
			Message:    "An unexpected error occurred",
			HTTPStatus: http.StatusInternalServerError,
		}
	}
	return &Error{
		Code:       def.Code,
		Type:       def.Type,
		Message:    def.Message,
		HTTPStatus: def.HTTPStatus,
	}
}

// NewWithMessage creates a registered error with a custom message
func (r *Registry) NewWithMessage(code Code, message string) *Error {
	err := r.New(code)
	err.Message = message
	return err
}

// NewWithCause creates a registered error with an underlying cause
func (r *Registry) NewWithCause(code Code, cause error) *Error {
	return r.New(code).WithCause(cause)
}

// Wrap wraps a standard error with contextual information
func Wrap(err error, message string, errType Type) *Error {
	if err == nil {
		return nil
	}

	var xerr *Error
	if errors.As(err, &xerr) {
		return &Error{
			Code:       xerr.Code,
			Type:       errType,
			Message:    message,
			Details:    xerr.Details,
			HTTPStatus: xerr.HTTPStatus,
			cause:      err,
		}
	}

	return &Error{
		Code:    Code(fmt.Sprintf("%s_ERROR", errType)),
		Type:    errType,
		Message: message,
		cause:   err,
	}
}

// New creates a new Error with the given message and type
func New(message string, errType Type) *Error {
	return &Error{
		Code:    Code(fmt.Sprintf("%s_ERROR", errType)),
		Type:    errType,
		Message: message,
	}
}
