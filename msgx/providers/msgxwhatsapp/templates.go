package msgxwhatsapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/msgx"
)

var (
	templateErrors = errx.NewRegistry("TEMPLATE")

	ErrTemplateNotFound    = templateErrors.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Template not found")
	ErrTemplateLookupOff   = templateErrors.Register("LOOKUP_DISABLED", errx.TypeConfig, http.StatusNotImplemented, "Template lookup needs WHATSAPP_BUSINESS_ACCOUNT_ID")
	ErrTemplateParamsCount = templateErrors.Register("PARAMETER_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "Template parameters do not match the approved template")
)

// TemplateRegistry exposes the template error registry
func TemplateRegistry() *errx.Registry { return templateErrors }

// ========== Template API Structures ==========

// Template is the approved template metadata returned by the Graph API
type Template struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Language        string              `json:"language"`
	Status          string              `json:"status"`
	Category        string              `json:"category"`
	ParameterFormat string              `json:"parameter_format,omitempty"`
	Components      []TemplateComponent `json:"components"`
}

// TemplateComponent is one HEADER, BODY, FOOTER or BUTTONS block
type TemplateComponent struct {
	Type    string           `json:"type"`
	Format  string           `json:"format,omitempty"`
	Text    string           `json:"text,omitempty"`
	Buttons []TemplateButton `json:"buttons,omitempty"`
}

type TemplateButton struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

type cachedTemplate struct {
	template  Template
	expiresAt time.Time
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// BodyParameterCount returns the number of distinct placeholders in the body
func (t Template) BodyParameterCount() int {
	for _, c := range t.Components {
		if strings.EqualFold(c.Type, "BODY") {
			return countPlaceholders(c.Text)
		}
	}
	return 0
}

// Buttons returns every declared button in order
func (t Template) Buttons() []TemplateButton {
	var out []TemplateButton
	for _, c := range t.Components {
		if strings.EqualFold(c.Type, "BUTTONS") {
			out = append(out, c.Buttons...)
		}
	}
	return out
}

func countPlaceholders(text string) int {
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	return len(seen)
}

// ========== Template API Methods ==========

// GetTemplate fetches template metadata by name and language. Results are
// cached for Settings.TemplateTTL.
func (c *Client) GetTemplate(ctx context.Context, name, language string) (*Template, error) {
	if !c.creds.CanLookupTemplates() {
		return nil, templateErrors.New(ErrTemplateLookupOff)
	}

	key := name + "_" + language
	c.templateMu.Lock()
	if cached, ok := c.templateCache[key]; ok && c.now().Before(cached.expiresAt) {
		c.templateMu.Unlock()
		t := cached.template
		return &t, nil
	}
	c.templateMu.Unlock()

	q := url.Values{}
	q.Set("name", name)
	if language != "" {
		q.Set("language", language)
	}
	endpoint := fmt.Sprintf("%s/%s/%s/message_templates?%s",
		c.settings.BaseURL, c.settings.APIVersion, c.creds.BusinessAccountID, q.Encode())

	var resp struct {
		Data []Template `json:"data"`
	}
	if _, err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	// The name filter is a prefix match on the Graph side
	for _, t := range resp.Data {
		if t.Name != name || (language != "" && t.Language != language) {
			continue
		}
		c.templateMu.Lock()
		c.templateCache[key] = cachedTemplate{template: t, expiresAt: c.now().Add(c.settings.TemplateTTL)}
		c.templateMu.Unlock()
		return &t, nil
	}

	return nil, templateErrors.New(ErrTemplateNotFound).
		WithDetail("name", name).
		WithDetail("language", language)
}

// CheckComponents verifies that the body parameters supplied match the
// approved template before a send is attempted.
func (c *Client) CheckComponents(ctx context.Context, name, language string, components []msgx.TemplateComponent) (*Template, error) {
	t, err := c.GetTemplate(ctx, name, language)
	if err != nil {
		return nil, err
	}

	supplied := 0
	for _, comp := range components {
		if strings.EqualFold(comp.Type, "body") {
			supplied += len(comp.Parameters)
		}
	}
	if want := t.BodyParameterCount(); want != supplied {
		return t, templateErrors.New(ErrTemplateParamsCount).
			WithDetail("name", name).
			WithDetail("expected_body_parameters", want).
			WithDetail("supplied_body_parameters", supplied)
	}
	return t, nil
}
