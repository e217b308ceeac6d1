package msgx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeReceiver struct {
	verifyErr error
	events    []InboundEvent
	errs      []error
	parsed    chan []byte
}

func (f *fakeReceiver) VerifyWebhook(http.Header, []byte) error { return f.verifyErr }
func (f *fakeReceiver) GetProviderName() string                 { return "fake" }
func (f *fakeReceiver) ParseIncoming(body []byte) ([]InboundEvent, []error) {
	if f.parsed != nil {
		f.parsed <- body
	}
	return f.events, f.errs
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []InboundEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events []InboundEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

func newTestRouter(h *WebhookHandler) *mux.Router {
	r := mux.NewRouter()
	h.Register(r, "/webhook")
	return r
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerifyEchoesChallenge(t *testing.T) {
	h := NewWebhookHandler("jarvish_webhook_2024", &fakeReceiver{}, &recordingDispatcher{})
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=jarvish_webhook_2024&hub.challenge=abc123", nil)
	rec := httptest.NewRecorder()

	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "abc123" {
		t.Errorf("expected body abc123, got %q", rec.Body.String())
	}
}

func TestVerifyRejects(t *testing.T) {
	h := NewWebhookHandler("configured-token", &fakeReceiver{}, &recordingDispatcher{})

	tests := []struct {
		name  string
		query string
	}{
		{"wrong token", "hub.mode=subscribe&hub.verify_token=guess&hub.challenge=c"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=configured-token&hub.challenge=c"},
		{"missing token", "hub.mode=subscribe&hub.challenge=c"},
		{"no params", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))

			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", rec.Code)
			}
			if body := rec.Body.String(); body != "Forbidden" {
				t.Errorf("expected fixed body, got %q", body)
			}
		})
	}
}

func TestVerifyChallengeEmptyConfiguredToken(t *testing.T) {
	if err := VerifyChallenge("subscribe", "", ""); err == nil {
		t.Error("expected an unconfigured token to never verify")
	}
}

// ---------------------------------------------------------------------------
// Receive
// ---------------------------------------------------------------------------

func TestReceiveDispatchesClassifiedEvents(t *testing.T) {
	events := []InboundEvent{{Kind: KindButtonClick, From: "919876543210", ButtonID: "UNLOCK_CONTENT"}}
	d := &recordingDispatcher{}
	h := NewWebhookHandler("t0ken-value", &fakeReceiver{events: events}, d)

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
	if len(d.events) != 1 || d.events[0].ButtonID != "UNLOCK_CONTENT" {
		t.Errorf("expected dispatched button click, got %+v", d.events)
	}
}

func TestReceiveAlwaysReturnsOK(t *testing.T) {
	tests := []struct {
		name string
		recv *fakeReceiver
		body string
	}{
		{"bad signature", &fakeReceiver{verifyErr: errors.New("bad signature")}, `{}`},
		{"classification errors", &fakeReceiver{errs: []error{errors.New("malformed")}}, `not json`},
		{"too large", &fakeReceiver{}, strings.Repeat("x", MaxWebhookBody+10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDispatcher{}
			h := NewWebhookHandler("t0ken-value", tt.recv, d)

			rec := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body)))

			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
			if len(d.events) != 0 {
				t.Errorf("expected nothing dispatched, got %d events", len(d.events))
			}
		})
	}
}

func TestReceiveRespondsBeforeProcessing(t *testing.T) {
	parsed := make(chan []byte)
	h := NewWebhookHandler("t0ken-value", &fakeReceiver{parsed: parsed}, &recordingDispatcher{})

	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(`{"entry":[]}`))
		if err != nil {
			t.Error(err)
			done <- nil
			return
		}
		done <- resp
	}()

	// The receiver blocks on the unbuffered channel, so a response arriving
	// here proves the ack did not wait for classification.
	select {
	case resp := <-done:
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", resp.StatusCode)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook response waited for processing")
	}
	<-parsed
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestAsyncDispatcherOrdersPerSender(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string][]string{}
	)
	handler := EventHandlerFunc(func(_ context.Context, e InboundEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen[e.From] = append(seen[e.From], e.MessageID)
		if e.MessageID == "bad" {
			return errors.New("handler failed")
		}
		return nil
	})

	d := NewAsyncDispatcher(context.Background(), handler)
	d.Dispatch(context.Background(), []InboundEvent{
		{Kind: KindText, From: "a", MessageID: "a1"},
		{Kind: KindText, From: "b", MessageID: "bad"},
		{Kind: KindText, From: "a", MessageID: "a2"},
		{Kind: KindText, From: "b", MessageID: "b2"},
	})
	d.Wait()

	if got := strings.Join(seen["a"], ","); got != "a1,a2" {
		t.Errorf("expected a1,a2, got %s", got)
	}
	if got := strings.Join(seen["b"], ","); got != "bad,b2" {
		t.Errorf("expected sibling to run after failure, got %s", got)
	}
}

func TestTriggerKey(t *testing.T) {
	if k := (InboundEvent{Kind: KindText, Body: "  hello "}).TriggerKey(); k != "hello" {
		t.Errorf("expected trimmed body, got %q", k)
	}
	if k := (InboundEvent{Kind: KindButtonClick, ButtonID: "UNLOCK_CONTENT"}).TriggerKey(); k != "UNLOCK_CONTENT" {
		t.Errorf("expected button id, got %q", k)
	}
	if k := (InboundEvent{Kind: KindDeliveryReceipt, MessageID: "x"}).TriggerKey(); k != "" {
		t.Errorf("expected no key for receipts, got %q", k)
	}
}
