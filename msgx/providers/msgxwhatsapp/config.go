package msgxwhatsapp

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/configx"
	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/logx"
)

const (
	whatsappAPIURL          = "https://graph.facebook.com"
	whatsappProvider        = "whatsapp"
	whatsappSignatureHeader = "X-Hub-Signature-256"
	whatsappAPIVersion      = "v23.0"
)

// Environment variables holding the credentials
const (
	EnvPhoneNumberID     = "WHATSAPP_PHONE_NUMBER_ID"
	EnvAccessToken       = "WHATSAPP_ACCESS_TOKEN"
	EnvVerifyToken       = "WHATSAPP_WEBHOOK_VERIFY_TOKEN"
	EnvAppSecret         = "WHATSAPP_APP_SECRET"
	EnvBusinessAccountID = "WHATSAPP_BUSINESS_ACCOUNT_ID"
)

var ErrMissingCredential = configx.Registry().Register("MISSING_CREDENTIAL", errx.TypeConfig, http.StatusInternalServerError, "Required WhatsApp credential is missing")

// ========== Credentials ==========

// Credentials are loaded once at startup and read-only afterwards. The
// formatted forms (%v, %s, %+v) never print secret values.
type Credentials struct {
	PhoneNumberID     string
	AccessToken       string
	VerifyToken       string
	AppSecret         string
	BusinessAccountID string
}

// LoadCredentials reads the credentials from cfg. Every secret is registered
// with logx so it is masked if it ever reaches a log line.
func LoadCredentials(cfg configx.Config) (Credentials, error) {
	get := func(env string) string {
		return strings.TrimSpace(cfg.Get(configx.EnvKey(env)).AsString())
	}

	creds := Credentials{
		PhoneNumberID:     get(EnvPhoneNumberID),
		AccessToken:       get(EnvAccessToken),
		VerifyToken:       get(EnvVerifyToken),
		AppSecret:         get(EnvAppSecret),
		BusinessAccountID: get(EnvBusinessAccountID),
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}

	logx.RegisterSecret(creds.AccessToken, creds.VerifyToken, creds.AppSecret)
	return creds, nil
}

// Validate reports every missing required credential by variable name
func (c Credentials) Validate() error {
	var missing []string
	for env, v := range map[string]string{
		EnvPhoneNumberID: c.PhoneNumberID,
		EnvAccessToken:   c.AccessToken,
		EnvVerifyToken:   c.VerifyToken,
		EnvAppSecret:     c.AppSecret,
	} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return configx.Registry().NewWithMessage(ErrMissingCredential,
		fmt.Sprintf("Missing WhatsApp credentials: %s", strings.Join(missing, ", "))).
		WithDetail("missing", missing)
}

// CanLookupTemplates reports whether template metadata can be fetched
func (c Credentials) CanLookupTemplates() bool {
	return c.BusinessAccountID != ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{PhoneNumberID:%s AccessToken:%s VerifyToken:%s AppSecret:%s BusinessAccountID:%s}",
		c.PhoneNumberID, mask(c.AccessToken), mask(c.VerifyToken), mask(c.AppSecret), c.BusinessAccountID)
}

// GoString keeps %#v masked too
func (c Credentials) GoString() string { return c.String() }

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "****"
}

// ========== Client settings ==========

// Settings tune the Graph API client. Zero values fall back to defaults.
type Settings struct {
	BaseURL     string
	APIVersion  string
	CallTimeout time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	TemplateTTL time.Duration
}

// DefaultSettings returns the production defaults
func DefaultSettings() Settings {
	return Settings{
		BaseURL:     whatsappAPIURL,
		APIVersion:  whatsappAPIVersion,
		CallTimeout: 10 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		TemplateTTL: time.Hour,
	}
}

// SettingsFromConfig reads WHATSAPP_BASE_URL and WHATSAPP_API_VERSION
func SettingsFromConfig(cfg configx.Config) Settings {
	s := DefaultSettings()
	s.BaseURL = strings.TrimRight(cfg.Get("whatsapp.base.url").AsStringDefault(s.BaseURL), "/")
	s.APIVersion = cfg.Get("whatsapp.api.version").AsStringDefault(s.APIVersion)
	return s
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.BaseURL == "" {
		s.BaseURL = d.BaseURL
	}
	if s.APIVersion == "" {
		s.APIVersion = d.APIVersion
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = d.CallTimeout
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = d.BackoffBase
	}
	if s.TemplateTTL <= 0 {
		s.TemplateTTL = d.TemplateTTL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return s
}
