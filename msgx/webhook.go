package msgx

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/Abraxas-365/wabridge/asyncx"
	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/gorilla/mux"
)

// MaxWebhookBody caps how much of a POST body is read
const MaxWebhookBody = 1 << 20

// Dispatcher receives classified events once the webhook has responded
type Dispatcher interface {
	Dispatch(ctx context.Context, events []InboundEvent)
}

// DispatcherFunc is a function adapter for Dispatcher
type DispatcherFunc func(ctx context.Context, events []InboundEvent)

func (f DispatcherFunc) Dispatch(ctx context.Context, events []InboundEvent) { f(ctx, events) }

// WebhookHandler serves the provider webhook: the GET subscription handshake
// and POST event deliveries.
type WebhookHandler struct {
	verifyToken string
	receiver    Receiver
	dispatcher  Dispatcher
}

// NewWebhookHandler creates a handler answering the handshake with
// verifyToken and handing classified events to dispatcher.
func NewWebhookHandler(verifyToken string, receiver Receiver, dispatcher Dispatcher) *WebhookHandler {
	return &WebhookHandler{verifyToken: verifyToken, receiver: receiver, dispatcher: dispatcher}
}

// Register mounts GET and POST on path
func (h *WebhookHandler) Register(r *mux.Router, path string) {
	r.HandleFunc(path, h.Verify).Methods(http.MethodGet)
	r.HandleFunc(path, h.Receive).Methods(http.MethodPost)
}

// Verify answers the subscription handshake. The challenge is echoed only
// for mode "subscribe" with a matching token; anything else gets a bare 403.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	challenge := q.Get("hub.challenge")

	if err := VerifyChallenge(mode, q.Get("hub.verify_token"), h.verifyToken); err != nil {
		logx.Warn("Webhook verification rejected: %s (mode=%q)", errx.CodeOf(err), mode)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "Forbidden")
		return
	}

	logx.Info("Webhook verification succeeded")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// VerifyChallenge checks a handshake in constant time with respect to the
// token contents.
func VerifyChallenge(mode, presented, configured string) error {
	tokenOK := configured != "" &&
		subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
	if mode != "subscribe" || !tokenOK {
		return WebhookRegistry.New(ErrVerificationFailed).WithDetail("mode", mode)
	}
	return nil
}

// Receive acknowledges the POST with 200 before doing any work, then
// authenticates, classifies and dispatches the body. Nothing that happens
// after the acknowledgement can change the response.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", "2")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if readErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(readErr, &tooLarge) {
			logx.Warn("Webhook payload dropped: %v", WebhookRegistry.New(ErrPayloadTooLarge).WithDetail("limit", tooLarge.Limit))
		} else {
			logx.Warn("Webhook body read failed: %v", readErr)
		}
		return
	}

	h.Process(context.WithoutCancel(r.Context()), r.Header, body)
}

// Process authenticates, classifies and dispatches one POST body. It is
// exported for transports that do not go through net/http.
func (h *WebhookHandler) Process(ctx context.Context, header http.Header, body []byte) int {
	if err := h.receiver.VerifyWebhook(header, body); err != nil {
		logx.Warn("Webhook payload dropped: %v", err)
		return 0
	}

	events, errs := h.receiver.ParseIncoming(body)
	for _, err := range errs {
		logx.Warn("Webhook event dropped: %v", err)
	}
	if len(events) == 0 {
		logx.Debug("Webhook carried no actionable events")
		return 0
	}

	logx.Debug("Webhook classified %d event(s)", len(events))
	h.dispatcher.Dispatch(ctx, events)
	return len(events)
}

// AsyncDispatcher runs events in the background. Events from one sender are
// handled in arrival order; different senders proceed concurrently.
type AsyncDispatcher struct {
	handler EventHandler
	base    context.Context
	wg      sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher whose work is bound to base
// rather than to the webhook request.
func NewAsyncDispatcher(base context.Context, handler EventHandler) *AsyncDispatcher {
	return &AsyncDispatcher{handler: handler, base: base}
}

// Dispatch returns immediately
func (d *AsyncDispatcher) Dispatch(_ context.Context, events []InboundEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		RunGrouped(d.base, d.handler, events)
	}()
}

// Wait blocks until every dispatched batch has been handled
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// RunGrouped handles events synchronously, grouped by sender, and logs
// failures. It returns the number of events that failed.
func RunGrouped(ctx context.Context, handler EventHandler, events []InboundEvent) int {
	errs := asyncx.ForEachGroup(ctx, events, groupKey, handler.HandleEvent)

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			logx.Error("Handling %s event %s failed: %v", events[i].Kind, events[i].MessageID, err)
		}
	}
	return failed
}

func groupKey(e InboundEvent) string {
	if e.From != "" {
		return e.From
	}
	if e.Recipient != "" {
		return "receipt:" + e.Recipient
	}
	return string(e.Kind)
}
