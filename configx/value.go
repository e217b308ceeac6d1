package configx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value wraps a configuration value and provides lazy type conversion.
// Sources keep raw strings, so "0042" stays "0042" until someone asks for an int.
type Value interface {
	IsSet() bool
	AsString() string
	AsStringDefault(def string) string
	AsInt() int
	AsIntDefault(def int) int
	AsBool() bool
	AsBoolDefault(def bool) bool
	AsDuration() time.Duration
	AsDurationDefault(def time.Duration) time.Duration
	AsStringSlice() []string
	AsMap() map[string]Value
	AsStruct(target any) error
}

type value struct {
	key string
	val any
}

func newValue(key string, val any) Value {
	return &value{key: key, val: val}
}

func (v *value) IsSet() bool {
	return v.val != nil
}

func (v *value) AsString() string {
	return v.AsStringDefault("")
}

func (v *value) AsStringDefault(def string) string {
	switch val := v.val.(type) {
	case nil:
		return def
	case string:
		return val
	case int, int64, uint, uint64, float32, float64, bool:
		return fmt.Sprintf("%v", val)
	default:
		return def
	}
}

func (v *value) AsInt() int {
	return v.AsIntDefault(0)
}

func (v *value) AsIntDefault(def int) int {
	switch val := v.val.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	case float64:
		return int(val)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return def
}

func (v *value) AsBool() bool {
	return v.AsBoolDefault(false)
}

func (v *value) AsBoolDefault(def bool) bool {
	switch val := v.val.(type) {
	case bool:
		return val
	case int:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "y", "on":
			return true
		case "0", "f", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func (v *value) AsDuration() time.Duration {
	return v.AsDurationDefault(0)
}

// AsDurationDefault accepts Go duration strings; bare numbers are milliseconds
func (v *value) AsDurationDefault(def time.Duration) time.Duration {
	switch val := v.val.(type) {
	case time.Duration:
		return val
	case int:
		return time.Duration(val) * time.Millisecond
	case float64:
		return time.Duration(val) * time.Millisecond
	case string:
		s := strings.TrimSpace(val)
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(s); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

// AsStringSlice accepts lists and comma separated strings
func (v *value) AsStringSlice() []string {
	switch val := v.val.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for i, item := range val {
			out = append(out, newValue(fmt.Sprintf("%s[%d]", v.key, i), item).AsString())
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []string{v.AsString()}
	}
}

func (v *value) AsMap() map[string]Value {
	m, ok := v.val.(map[string]any)
	if !ok {
		return map[string]Value{}
	}
	out := make(map[string]Value, len(m))
	for k, item := range m {
		out[k] = newValue(v.key+"."+k, item)
	}
	return out
}

// AsStruct round-trips the value through JSON into target
func (v *value) AsStruct(target any) error {
	if !v.IsSet() {
		return configErrors.New(ErrValueNotSet).WithDetail("key", v.key)
	}
	data, err := json.Marshal(v.val)
	if err != nil {
		return configErrors.New(ErrInvalidValue).WithDetail("key", v.key).WithCause(err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return configErrors.New(ErrInvalidValue).WithDetail("key", v.key).WithCause(err)
	}
	return nil
}
