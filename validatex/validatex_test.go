package validatex

import (
	"errors"
	"strings"
	"testing"

	"github.com/Abraxas-365/wabridge/errx"
)

type item struct {
	Type string `validatex:"required,oneof=text image"`
	Body string `validatex:"max=10"`
	URL  string `validatex:"httpurl"`
}

func (i item) Validate() error {
	if i.Type == "image" && i.URL == "" {
		return errors.New("image needs a url")
	}
	return nil
}

type sequence struct {
	Key   string  `validatex:"required,alphanum"`
	Items []item  `validatex:"required,min=1,dive"`
	Note  *string `validatex:"min=3"`
}

func TestValidateAcceptsGoodInput(t *testing.T) {
	s := sequence{Key: "welcome", Items: []item{{Type: "text", Body: "hi"}, {Type: "image", URL: "https://cdn.example.com/a.png"}}}
	if err := Validate(s); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	short := "x"
	s := &sequence{
		Key:   "",
		Items: []item{{Type: "video"}, {Type: "image", URL: "ftp://files"}, {Type: "image"}},
		Note:  &short,
	}

	err := Validate(s)
	if !errx.IsCode(err, ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	got := map[string]string{}
	for _, f := range Fields(err) {
		got[f.Field] = f.Rule
	}

	want := map[string]string{
		"Key":           "required",
		"Items[0].Type": "oneof",
		"Items[1].URL":  "httpurl",
		"Items[2]":      "custom",
		"Note":          "min",
	}
	for field, rule := range want {
		if got[field] != rule {
			t.Errorf("expected %s to fail %s, got %q (all: %v)", field, rule, got[field], got)
		}
	}
}

func TestValidateEmptySlice(t *testing.T) {
	err := Validate(sequence{Key: "k"})
	if len(Fields(err)) != 1 || Fields(err)[0].Field != "Items" {
		t.Errorf("expected only Items to fail, got %v", Fields(err))
	}
}

func TestUnknownRule(t *testing.T) {
	type bad struct {
		A string `validatex:"sparkly"`
	}
	err := Validate(bad{A: "x"})
	if !errx.IsCode(err, ErrUnknownRule) {
		t.Errorf("expected unknown rule error, got %v", err)
	}
}

func TestCustomRule(t *testing.T) {
	RegisterValidationFunc("upper", func(v any, _ string) bool {
		s, _ := v.(string)
		return s == strings.ToUpper(s)
	})
	type trig struct {
		Key string `validatex:"upper"`
	}
	if err := Validate(trig{Key: "UNLOCK_CONTENT"}); err != nil {
		t.Errorf("expected pass, got %v", err)
	}
	if err := Validate(trig{Key: "unlock"}); err == nil {
		t.Error("expected failure for lowercase key")
	}
}

func TestNotStruct(t *testing.T) {
	if err := Validate(42); !errors.Is(err, ErrNotStruct) {
		t.Errorf("expected ErrNotStruct, got %v", err)
	}
}
