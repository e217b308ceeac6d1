package msgxwhatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/phonex"
)

// LabelMatcher recognizes quick-reply button labels echoed back as text
type LabelMatcher interface {
	MatchLabel(text string) (string, bool)
}

// Client is the WhatsApp Cloud API client. It sends messages, looks up
// templates and classifies webhook deliveries, so it satisfies msgx.Provider.
type Client struct {
	creds      Credentials
	settings   Settings
	httpClient *http.Client
	normalizer phonex.Normalizer
	labels     LabelMatcher

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	templateMu    sync.Mutex
	templateCache map[string]cachedTemplate
}

var _ msgx.Provider = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

func WithSettings(s Settings) Option {
	return func(c *Client) { c.settings = s }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithNormalizer(n phonex.Normalizer) Option {
	return func(c *Client) { c.normalizer = n }
}

// WithLabelMatcher enables reclassification of quick-reply label echoes
func WithLabelMatcher(m LabelMatcher) Option {
	return func(c *Client) { c.labels = m }
}

// NewClient creates a client for the given credentials
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:         creds,
		settings:      DefaultSettings(),
		httpClient:    &http.Client{},
		normalizer:    phonex.Default,
		sleep:         sleepCtx,
		now:           time.Now,
		templateCache: make(map[string]cachedTemplate),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.settings = c.settings.withDefaults()
	return c
}

// GetProviderName returns the provider name
func (c *Client) GetProviderName() string {
	return whatsappProvider
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.settings.BaseURL, c.settings.APIVersion, c.creds.PhoneNumberID)
}

// ========== Transport ==========

// call performs one logical Graph request with retries. Rate limits and
// transient failures are retried with exponential backoff up to MaxAttempts;
// everything else returns on the first attempt.
func (c *Client) call(ctx context.Context, method, url string, payload any, out any) (int, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, msgx.Registry.NewWithCause(msgx.ErrInvalidMessage, err).
				WithDetail("provider", whatsappProvider)
		}
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= c.settings.MaxAttempts; attempt++ {
		attempts = attempt
		retryAfter, err := c.attempt(ctx, method, url, body, out)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if msgx.IsAuth(err) {
			logx.Error("OPERATOR ALERT: WhatsApp rejected the access token (%s); all sends will fail until credentials are fixed", errx.CodeOf(err))
		}
		if !msgx.IsRetryable(err) || attempt == c.settings.MaxAttempts || ctx.Err() != nil {
			break
		}

		wait := c.settings.BackoffBase << (attempt - 1)
		if retryAfter > wait {
			// never longer than one call may take
			wait = min(retryAfter, c.settings.CallTimeout)
		}
		logx.Warn("WhatsApp %s attempt %d/%d failed (%s), retrying in %v",
			method, attempt, c.settings.MaxAttempts, errx.CodeOf(err), wait)
		if err := c.sleep(ctx, wait); err != nil {
			break
		}
	}

	var xerr *errx.Error
	if errors.As(lastErr, &xerr) {
		xerr.WithDetail("attempts", attempts)
	}
	return attempts, lastErr
}

// attempt runs a single HTTP exchange under the per-call timeout
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, out any) (time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.settings.CallTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return 0, msgx.DeliveryRegistry.NewWithCause(msgx.ErrRejected, err).
			WithDetail("operation", "create_request")
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, msgx.DeliveryRegistry.NewWithCause(msgx.ErrTransientNetwork, err).
			WithDetail("provider", whatsappProvider).
			WithDetail("operation", "http_request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, msgx.DeliveryRegistry.NewWithCause(msgx.ErrTransientNetwork, err).
			WithDetail("provider", whatsappProvider).
			WithDetail("operation", "read_response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseRetryAfter(resp.Header.Get("Retry-After"), c.now()), classifyAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return 0, msgx.DeliveryRegistry.NewWithCause(msgx.ErrRejected, err).
				WithDetail("provider", whatsappProvider).
				WithDetail("operation", "decode_response")
		}
	}
	return 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
