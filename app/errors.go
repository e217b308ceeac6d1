package app

import (
	"net/http"

	"github.com/Abraxas-365/wabridge/errx"
)

var registry = errx.NewRegistry("APP")

var (
	ErrUnknownStore  = registry.Register("UNKNOWN_STORE", errx.TypeConfig, http.StatusInternalServerError, "Unknown delivery store")
	ErrUnknownSink   = registry.Register("UNKNOWN_SINK", errx.TypeConfig, http.StatusInternalServerError, "Unknown events sink")
	ErrMissingConfig = registry.Register("MISSING_SETTING", errx.TypeConfig, http.StatusInternalServerError, "Required setting is missing")
	ErrBadRequest    = registry.Register("BAD_REQUEST", errx.TypeBadRequest, http.StatusBadRequest, "Malformed request")
)

// Registry exposes the app error registry
func Registry() *errx.Registry { return registry }

func missing(setting, reason string) *errx.Error {
	return registry.New(ErrMissingConfig).
		WithDetail("setting", setting).
		WithDetail("reason", reason)
}
