package logx

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ValueFormatter renders arbitrary values for debug and trace output.
// Pretty mode produces indented multi-line structs for the console, compact
// mode produces a single line for CloudWatch.
type ValueFormatter struct {
	pretty   bool
	maxDepth int
}

// NewPrettyFormatter returns the console formatter
func NewPrettyFormatter() *ValueFormatter {
	return &ValueFormatter{pretty: true, maxDepth: 10}
}

// NewCompactFormatter returns the single-line formatter
func NewCompactFormatter() *ValueFormatter {
	return &ValueFormatter{pretty: false, maxDepth: 10}
}

// Format formats a value
func (f *ValueFormatter) Format(v any) string {
	return f.format(reflect.ValueOf(v), 0)
}

// FormatValueJSON renders v as JSON, falling back to %v
func FormatValueJSON(v any) string {
	switch val := v.(type) {
	case error:
		data, _ := json.Marshal(map[string]string{"error": val.Error(), "type": fmt.Sprintf("%T", val)})
		return string(data)
	case time.Time:
		return fmt.Sprintf("%q", val.Format(time.RFC3339))
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
}

func (f *ValueFormatter) format(v reflect.Value, depth int) string {
	if depth > f.maxDepth {
		return "..."
	}
	if !v.IsValid() {
		return "<nil>"
	}
	if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
		return "nil"
	}

	if v.Type().Implements(errorType) && v.CanInterface() {
		if err, ok := v.Interface().(error); ok {
			return fmt.Sprintf("Error(%q)", err.Error())
		}
	}

	switch v.Kind() {
	case reflect.Ptr:
		return "&" + f.format(v.Elem(), depth)
	case reflect.Interface:
		return f.format(v.Elem(), depth)
	case reflect.String:
		return fmt.Sprintf("%q", v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Type() == reflect.TypeOf(time.Duration(0)) {
			return time.Duration(v.Int()).String()
		}
		return fmt.Sprintf("%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", v.Uint())
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%g", v.Float())
	case reflect.Bool:
		return fmt.Sprintf("%t", v.Bool())
	case reflect.Slice, reflect.Array:
		return f.formatSlice(v, depth)
	case reflect.Map:
		return f.formatMap(v, depth)
	case reflect.Struct:
		return f.formatStruct(v, depth)
	default:
		if v.CanInterface() {
			return fmt.Sprintf("%v", v.Interface())
		}
		return fmt.Sprintf("<%s>", v.Type())
	}
}

func (f *ValueFormatter) formatStruct(v reflect.Value, depth int) string {
	t := v.Type()
	if t == reflect.TypeOf(time.Time{}) {
		tm := v.Interface().(time.Time)
		return fmt.Sprintf("Time(%q)", tm.Format(time.RFC3339))
	}

	name := t.Name()
	if name == "" {
		name = "struct"
	}

	var fields []string
	for i := 0; i < v.NumField(); i++ {
		fv := v.Field(i)
		if !fv.CanInterface() {
			continue
		}
		fields = append(fields, f.pair(t.Field(i).Name, f.format(fv, depth+1)))
	}
	return name + f.wrap("{", "}", fields, depth, len(fields) <= 2 && depth > 0)
}

func (f *ValueFormatter) formatSlice(v reflect.Value, depth int) string {
	if v.Len() == 0 {
		return "[]"
	}
	if v.Type().Elem().Kind() == reflect.Uint8 && v.Kind() == reflect.Slice {
		return fmt.Sprintf("[]byte(%q)", string(v.Bytes()))
	}

	items := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		items = append(items, f.format(v.Index(i), depth+1))
	}
	return f.wrap("[", "]", items, depth, len(items) <= 5 || depth > 2)
}

func (f *ValueFormatter) formatMap(v reflect.Value, depth int) string {
	if v.Len() == 0 {
		return "map{}"
	}

	entries := make([]string, 0, v.Len())
	for _, key := range v.MapKeys() {
		entries = append(entries, f.pair(f.format(key, depth+1), f.format(v.MapIndex(key), depth+1)))
	}
	// Map iteration order is random; keep output stable.
	sort.Strings(entries)
	return "map" + f.wrap("{", "}", entries, depth, len(entries) <= 3 && depth > 0)
}

func (f *ValueFormatter) pair(k, v string) string {
	if f.pretty {
		return k + ": " + v
	}
	return k + ":" + v
}

func (f *ValueFormatter) wrap(open, close string, parts []string, depth int, inline bool) string {
	if len(parts) == 0 {
		return open + close
	}
	if !f.pretty {
		return open + strings.Join(parts, ",") + close
	}
	if inline {
		if open == "[" {
			return open + strings.Join(parts, ", ") + close
		}
		return open + " " + strings.Join(parts, ", ") + " " + close
	}

	indent := strings.Repeat("  ", depth+1)
	var b strings.Builder
	b.WriteString(open + "\n")
	for _, p := range parts {
		b.WriteString(indent + p + ",\n")
	}
	b.WriteString(strings.Repeat("  ", depth) + close)
	return b.String()
}
