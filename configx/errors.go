package configx

import (
	"net/http"

	"github.com/Abraxas-365/wabridge/errx"
)

var (
	configErrors = errx.NewRegistry("CONFIG")

	ErrMissingEnv   = configErrors.Register("MISSING_ENV", errx.TypeConfig, http.StatusInternalServerError, "Required environment variables are missing")
	ErrSourceLoad   = configErrors.Register("SOURCE_LOAD", errx.TypeConfig, http.StatusInternalServerError, "Failed to load configuration source")
	ErrInvalidValue = configErrors.Register("INVALID_VALUE", errx.TypeConfig, http.StatusInternalServerError, "Invalid configuration value")
	ErrValueNotSet  = configErrors.Register("VALUE_NOT_SET", errx.TypeConfig, http.StatusInternalServerError, "Configuration value not set")
)

// Registry exposes the CONFIG registry so other packages can raise config
// errors under the same prefix.
func Registry() *errx.Registry {
	return configErrors
}

func IsMissingEnv(err error) bool {
	return errx.IsCode(err, ErrMissingEnv)
}
