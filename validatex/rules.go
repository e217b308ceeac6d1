package validatex

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// ValidationFunc defines a function that validates a value
type ValidationFunc func(value any, param string) bool

var builtinValidationFuncs = map[string]ValidationFunc{
	"required": validateRequired,
	"url":      validateURL,
	"httpurl":  validateHTTPURL,
	"min":      validateMin,
	"max":      validateMax,
	"oneof":    validateOneOf,
	"regex":    validateRegex,
	"uuid":     validateUUID,
	"alphanum": validateAlphaNum,
	"numeric":  validateNumeric,
	// dive only controls traversal
	"dive": func(any, string) bool { return true },
}

var (
	customMu              sync.RWMutex
	customValidationFuncs = map[string]ValidationFunc{}
)

// RegisterValidationFunc registers a custom validation function
func RegisterValidationFunc(name string, fn ValidationFunc) {
	customMu.Lock()
	defer customMu.Unlock()
	customValidationFuncs[name] = fn
}

func getValidationFunc(name string) (ValidationFunc, bool) {
	customMu.RLock()
	fn, ok := customValidationFuncs[name]
	customMu.RUnlock()
	if ok {
		return fn, true
	}

	fn, ok = builtinValidationFuncs[name]
	return fn, ok
}

func validateRequired(value any, _ string) bool {
	return !isZero(value)
}

func validateURL(value any, _ string) bool {
	str, ok := deref(value).(string)
	if !ok {
		return false
	}
	_, err := url.ParseRequestURI(str)
	return err == nil && strings.Contains(str, ".")
}

// validateHTTPURL accepts absolute http and https URLs only
func validateHTTPURL(value any, _ string) bool {
	str, ok := deref(value).(string)
	if !ok {
		return false
	}
	u, err := url.Parse(str)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// measure returns the length of strings and collections, or the numeric value
func measure(value any) (float64, bool) {
	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.String:
		return float64(len([]rune(rv.String()))), true
	case reflect.Slice, reflect.Map, reflect.Array:
		return float64(rv.Len()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func validateMin(value any, param string) bool {
	limit, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return false
	}
	n, ok := measure(value)
	return ok && n >= limit
}

func validateMax(value any, param string) bool {
	limit, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return false
	}
	n, ok := measure(value)
	return ok && n <= limit
}

func validateOneOf(value any, param string) bool {
	allowed := strings.Fields(param)
	s := fmt.Sprintf("%v", deref(value))
	for _, v := range allowed {
		if v == s {
			return true
		}
	}
	return false
}

var (
	regexMu    sync.Mutex
	regexCache = map[string]*regexp.Regexp{}
)

func validateRegex(value any, param string) bool {
	str, ok := deref(value).(string)
	if !ok {
		return false
	}

	regexMu.Lock()
	re, cached := regexCache[param]
	if !cached {
		var err error
		re, err = regexp.Compile(param)
		if err != nil {
			regexMu.Unlock()
			return false
		}
		regexCache[param] = re
	}
	regexMu.Unlock()

	return re.MatchString(str)
}

var uuidRegex = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

func validateUUID(value any, _ string) bool {
	str, ok := deref(value).(string)
	return ok && uuidRegex.MatchString(strings.ToLower(str))
}

func validateAlphaNum(value any, _ string) bool {
	return allRunes(value, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) })
}

func validateNumeric(value any, _ string) bool {
	return allRunes(value, unicode.IsDigit)
}

func allRunes(value any, pred func(rune) bool) bool {
	str, ok := deref(value).(string)
	if !ok {
		return false
	}
	for _, r := range str {
		if !pred(r) {
			return false
		}
	}
	return true
}
