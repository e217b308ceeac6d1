// Package validatex validates structs through `validatex` field tags.
//
//	type Item struct {
//		Type string `validatex:"required,oneof=text image"`
//		URL  string `validatex:"httpurl"`
//	}
//
// Rules other than required are skipped for zero values, so optional fields
// only need the rule that applies when they are set. Slices of structs are
// walked when tagged with "dive". Types implementing Validatable get their
// Validate method called after tag rules pass.
package validatex

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/Abraxas-365/wabridge/errx"
)

var ErrNotStruct = errors.New("value must be a struct")

var (
	validationErrors = errx.NewRegistry("VALIDATION")

	ErrValidationFailed = validationErrors.Register("FAILED", errx.TypeValidation, http.StatusBadRequest, "Validation failed")
	ErrUnknownRule      = validationErrors.Register("UNKNOWN_RULE", errx.TypeInternal, http.StatusInternalServerError, "Unknown validation rule")
)

// Validatable is implemented by types with cross-field rules
type Validatable interface {
	Validate() error
}

// FieldError describes one failed rule
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
	Msg   string `json:"message,omitempty"`
}

func (f FieldError) String() string {
	if f.Msg != "" {
		return fmt.Sprintf("%s: %s", f.Field, f.Msg)
	}
	if f.Param != "" {
		return fmt.Sprintf("%s: failed %s=%s", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s: failed %s", f.Field, f.Rule)
}

// Validate runs tag rules and Validatable hooks on obj. It returns nil or an
// *errx.Error with code VALIDATION_FAILED whose "fields" detail lists every
// FieldError found.
func Validate(obj any) error {
	var (
		fields []fieldInfo
		nested []nestedValidatable
	)
	if err := collectFields(reflect.ValueOf(obj), "", &fields, &nested); err != nil {
		return err
	}

	var failures []FieldError
	for _, f := range fields {
		for _, rule := range f.Rules {
			if rule.Name != "required" && isZero(f.Value) {
				continue
			}
			fn, ok := getValidationFunc(rule.Name)
			if !ok {
				return validationErrors.New(ErrUnknownRule).
					WithDetail("field", f.Path).
					WithDetail("rule", rule.Name)
			}
			if !fn(f.Value, rule.Param) {
				failures = append(failures, FieldError{Field: f.Path, Rule: rule.Name, Param: rule.Param})
				break
			}
		}
	}

	for _, n := range nested {
		if err := n.V.Validate(); err != nil {
			failures = append(failures, fromHook(n.Path, err)...)
		}
	}
	if v, ok := obj.(Validatable); ok && len(failures) == 0 {
		if err := v.Validate(); err != nil {
			failures = append(failures, fromHook("", err)...)
		}
	}

	if len(failures) == 0 {
		return nil
	}

	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.String()
	}
	return validationErrors.NewWithMessage(ErrValidationFailed, "Validation failed: "+strings.Join(msgs, "; ")).
		WithDetail("fields", failures)
}

// Fields extracts the field failures from a Validate error
func Fields(err error) []FieldError {
	var xerr *errx.Error
	if !errors.As(err, &xerr) || xerr.Code != ErrValidationFailed {
		return nil
	}
	f, _ := xerr.Details["fields"].([]FieldError)
	return f
}

// fromHook flattens a Validatable error, keeping nested field paths
func fromHook(path string, err error) []FieldError {
	if inner := Fields(err); inner != nil {
		out := make([]FieldError, len(inner))
		for i, f := range inner {
			if path != "" && f.Field != "" {
				f.Field = path + "." + f.Field
			} else if path != "" {
				f.Field = path
			}
			out[i] = f
		}
		return out
	}
	field := path
	if field == "" {
		field = "_"
	}
	return []FieldError{{Field: field, Rule: "custom", Msg: err.Error()}}
}
