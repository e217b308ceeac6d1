package eventx

import (
	"net/http"

	"github.com/Abraxas-365/wabridge/errx"
)

// ErrorRegistry holds event serialization and publishing errors
var ErrorRegistry = errx.NewRegistry("EVENT")

var (
	ErrSerializationFailed  = ErrorRegistry.Register("SERIALIZATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Event could not be serialized")
	ErrPublishFailed        = ErrorRegistry.Register("PUBLISH_FAILED", errx.TypeExternal, http.StatusBadGateway, "Event could not be published")
	ErrInvalidConfiguration = ErrorRegistry.Register("INVALID_CONFIGURATION", errx.TypeConfig, http.StatusInternalServerError, "Invalid event sink configuration")
	ErrInvalidEventType     = ErrorRegistry.Register("INVALID_EVENT_TYPE", errx.TypeInternal, http.StatusInternalServerError, "Event payload has an unexpected type")
)

// IsPublishFailed reports whether err came from a sink
func IsPublishFailed(err error) bool {
	return errx.IsCode(err, ErrPublishFailed)
}
