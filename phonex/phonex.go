// Package phonex normalizes phone numbers into the digits-only E.164 form
// WhatsApp uses as a recipient identity (country code + subscriber number,
// no "+").
package phonex

import (
	"net/http"
	"strings"

	"github.com/Abraxas-365/wabridge/errx"
)

var (
	phoneErrors = errx.NewRegistry("PHONE")

	ErrInvalidNumber = phoneErrors.Register("INVALID_NUMBER", errx.TypeValidation, http.StatusBadRequest, "Invalid phone number")
)

const (
	// E.164 allows at most 15 digits; anything under 8 is not a routable
	// mobile number.
	minDigits = 8
	maxDigits = 15
)

// Normalizer applies a default country code policy to national numbers.
type Normalizer struct {
	// CountryCode is prepended to numbers of exactly NationalLength digits.
	CountryCode string
	// NationalLength is the subscriber number length for CountryCode.
	NationalLength int
}

// DefaultCountryCode is India, the market the service was built for.
const DefaultCountryCode = "91"

// Default is the normalizer used by the package-level helpers.
var Default = Normalizer{CountryCode: DefaultCountryCode, NationalLength: 10}

// NewNormalizer returns a normalizer for the given country code. An empty
// code falls back to DefaultCountryCode.
func NewNormalizer(countryCode string) Normalizer {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return Normalizer{CountryCode: countryCode, NationalLength: 10}
}

// Normalize returns the canonical digit string for raw.
//
//	Normalize("+919765071249") == "919765071249"
//	Normalize("919765071249")  == "919765071249"
//	Normalize("9765071249")    == "919765071249"
//	Normalize("09765071249")   == "919765071249"
func (n Normalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	international := strings.HasPrefix(s, "+")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", invalid(raw, "unexpected character")
		}
	}
	digits := b.String()

	if !international && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
		international = true
	}

	if !international && n.NationalLength > 0 {
		if len(digits) == n.NationalLength+1 && digits[0] == '0' {
			digits = digits[1:]
		}
		if len(digits) == n.NationalLength {
			digits = n.CountryCode + digits
		}
	}

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", invalid(raw, "length out of range")
	}
	if digits[0] == '0' {
		return "", invalid(raw, "country code cannot start with 0")
	}
	return digits, nil
}

// Equal reports whether a and b normalize to the same identity.
func (n Normalizer) Equal(a, b string) bool {
	na, err := n.Normalize(a)
	if err != nil {
		return false
	}
	nb, err := n.Normalize(b)
	return err == nil && na == nb
}

// Normalize uses the Default normalizer.
func Normalize(raw string) (string, error) {
	return Default.Normalize(raw)
}

// Mask hides all but the last four digits, for logs.
func Mask(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

func IsInvalidNumber(err error) bool {
	return errx.IsCode(err, ErrInvalidNumber)
}

func invalid(raw, reason string) error {
	return phoneErrors.New(ErrInvalidNumber).
		WithDetail("number", Mask(raw)).
		WithDetail("reason", reason)
}
