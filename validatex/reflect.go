package validatex

import (
	"fmt"
	"reflect"
	"strings"
)

// fieldInfo stores information about a struct field
type fieldInfo struct {
	Path  string
	Value any
	Rules []ruleInfo
}

// ruleInfo stores information about a validation rule
type ruleInfo struct {
	Name  string
	Param string
}

// collectFields walks a struct and returns every field carrying a validatex
// tag. Nested structs and slices of structs tagged with "dive" are walked
// with a dotted or indexed path (Items[2].Body).
func collectFields(val reflect.Value, prefix string, out *[]fieldInfo, nested *[]nestedValidatable) error {
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return ErrNotStruct
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("validatex")
		if tag == "" || tag == "-" {
			continue
		}

		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		rules := parseTag(tag)
		fv := val.Field(i)
		*out = append(*out, fieldInfo{Path: path, Value: fv.Interface(), Rules: rules})

		dive := false
		for _, r := range rules {
			if r.Name == "dive" {
				dive = true
			}
		}

		elem := fv
		if elem.Kind() == reflect.Ptr && !elem.IsNil() {
			elem = elem.Elem()
		}

		switch {
		case elem.Kind() == reflect.Struct:
			if err := descend(elem, path, out, nested); err != nil {
				return err
			}
		case dive && (elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array):
			for j := 0; j < elem.Len(); j++ {
				item := elem.Index(j)
				for item.Kind() == reflect.Ptr && !item.IsNil() {
					item = item.Elem()
				}
				if item.Kind() != reflect.Struct {
					continue
				}
				if err := descend(item, fmt.Sprintf("%s[%d]", path, j), out, nested); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

type nestedValidatable struct {
	Path string
	V    Validatable
}

func descend(val reflect.Value, path string, out *[]fieldInfo, nested *[]nestedValidatable) error {
	if v, ok := asValidatable(val); ok {
		*nested = append(*nested, nestedValidatable{Path: path, V: v})
	}
	return collectFields(val, path, out, nested)
}

func asValidatable(val reflect.Value) (Validatable, bool) {
	if v, ok := val.Interface().(Validatable); ok {
		return v, true
	}
	if val.CanAddr() {
		if v, ok := val.Addr().Interface().(Validatable); ok {
			return v, true
		}
	}
	return nil, false
}

// parseTag parses "required,oneof=text image" into rules
func parseTag(tag string) []ruleInfo {
	parts := strings.Split(tag, ",")
	rules := make([]ruleInfo, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, param, _ := strings.Cut(part, "=")
		rules = append(rules, ruleInfo{Name: name, Param: param})
	}

	return rules
}

// isZero checks if a value is the zero value for its type. Nil pointers
// count as zero so pointer fields behave as optional.
func isZero(value any) bool {
	if value == nil {
		return true
	}

	val := reflect.ValueOf(value)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface:
		return val.IsNil()
	case reflect.String:
		return strings.TrimSpace(val.String()) == ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return val.Len() == 0
	default:
		return val.IsZero()
	}
}

// deref returns the pointed-to value of a non-nil pointer
func deref(value any) any {
	val := reflect.ValueOf(value)
	if val.Kind() == reflect.Ptr && !val.IsNil() {
		return val.Elem().Interface()
	}
	return value
}
