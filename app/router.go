package app

import (
	"context"
	"net/http"
	"time"

	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/gorilla/mux"
)

// WebhookPath is where the WhatsApp webhook is mounted
const WebhookPath = "/webhook"

// Routes are the HTTP surfaces; a nil Admin leaves /admin unmounted
type Routes struct {
	Webhook *msgx.WebhookHandler
	Health  *Health
	Admin   *Admin
}

// NewRouter builds the service router
func NewRouter(routes Routes) *mux.Router {
	r := mux.NewRouter()

	routes.Webhook.Register(r, WebhookPath)
	r.Handle("/health", routes.Health).Methods(http.MethodGet)
	if routes.Admin != nil {
		routes.Admin.Register(r)
	}

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	return r
}

// Router assembles the routes for a built App. Events classified by the
// webhook are handed to dispatcher.
func (a *App) Router(dispatcher msgx.Dispatcher) *mux.Router {
	routes := Routes{
		Webhook: msgx.NewWebhookHandler(a.Credentials.VerifyToken, a.Client, dispatcher),
		Health:  NewHealth(a.Store, a.started),
	}
	if a.Tokens != nil {
		routes.Admin = NewAdmin(a.Tokens, a.Store, a.Orchestrator, a.Client, a.Messages, a.Normalizer)
	}
	return NewRouter(routes)
}

// ========== Health ==========

// Pinger is implemented by stores that can check their connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness with the store name and uptime
type Health struct {
	store   deliveryx.Store
	started time.Time
}

func NewHealth(store deliveryx.Store, started time.Time) *Health {
	return &Health{store: store, started: started}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if p, ok := h.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logx.Warn("health: store %s unreachable: %v", h.store.Name(), err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"store":  h.store.Name(),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// ========== Middleware ==========

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps the early webhook acknowledgement working through the wrapper
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logx.Debug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logx.Error("panic serving %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
