/*
Package errx provides structured errors with types, codes, details and HTTP
status mapping.

# Error Registry

Each package declares its errors once through a prefixed registry:

	var (
		deliveryErrors = errx.NewRegistry("DELIVERY")

		ErrRateLimited = deliveryErrors.Register("RATE_LIMITED", errx.TypeRateLimit, http.StatusTooManyRequests, "Rate limited by provider")
	)

	err := deliveryErrors.New(ErrRateLimited).
		WithDetail("attempt", 2).
		WithCause(httpErr)

Codes are prefixed, so the code above is DELIVERY_RATE_LIMITED.

# Checking

	if errx.IsCode(err, ErrRateLimited) {
		// back off
	}

	if errx.IsType(err, errx.TypeConfig) {
		// refuse to start
	}

errors.Is also matches two *Error values by code, and errors.As reaches the
wrapped cause.

# HTTP

ToHTTP renders {"error": {...}} with the registered status. Causes are never
serialized, so transport details and credentials stay server side.
*/
package errx
