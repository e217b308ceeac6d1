package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Abraxas-365/wabridge/auth"
	"github.com/Abraxas-365/wabridge/deliveryx"
	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
	"github.com/Abraxas-365/wabridge/msgx/providers/msgxwhatsapp"
	"github.com/Abraxas-365/wabridge/phonex"
	"github.com/Abraxas-365/wabridge/storex"
	"github.com/Abraxas-365/wabridge/validatex"
	"github.com/gorilla/mux"
)

const maxAdminBody = 64 << 10

// TemplateAPI looks up approved templates
type TemplateAPI interface {
	GetTemplate(ctx context.Context, name, language string) (*msgxwhatsapp.Template, error)
	CheckComponents(ctx context.Context, name, language string, components []msgx.TemplateComponent) (*msgxwhatsapp.Template, error)
}

// Admin serves the operator API
type Admin struct {
	tokens     *auth.TokenService
	store      deliveryx.Store
	deliverer  Deliverer
	templates  TemplateAPI
	sender     msgx.Sender
	normalizer phonex.Normalizer
}

// NewAdmin creates the operator API. Every route requires a bearer token
// issued by tokens.
func NewAdmin(tokens *auth.TokenService, store deliveryx.Store, deliverer Deliverer, templates TemplateAPI, sender msgx.Sender, normalizer phonex.Normalizer) *Admin {
	return &Admin{
		tokens:     tokens,
		store:      store,
		deliverer:  deliverer,
		templates:  templates,
		sender:     sender,
		normalizer: normalizer,
	}
}

// Register mounts the routes under /admin
func (h *Admin) Register(r *mux.Router) {
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.Middleware(h.tokens))

	admin.HandleFunc("/deliveries", h.listDeliveries).Methods(http.MethodGet)
	admin.HandleFunc("/deliveries", h.createDelivery).Methods(http.MethodPost)
	admin.HandleFunc("/deliveries/{id}", h.getDelivery).Methods(http.MethodGet)
	admin.HandleFunc("/templates/send", h.sendTemplate).Methods(http.MethodPost)
	admin.HandleFunc("/templates/{name}", h.getTemplate).Methods(http.MethodGet)
}

// ========== Deliveries ==========

func (h *Admin) listDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := storex.DefaultPaginationOptions()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, badRequest("page must be a number"))
			return
		}
		opts.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, badRequest("page_size must be a number"))
			return
		}
		opts.PageSize = n
	}
	opts = opts.Normalize()

	filter := deliveryx.Filter{
		TriggerKey: strings.TrimSpace(q.Get("trigger")),
		Outcome:    deliveryx.Outcome(q.Get("outcome")),
	}
	if raw := q.Get("recipient"); raw != "" {
		to, err := h.normalizer.Normalize(raw)
		if err != nil {
			writeError(w, msgx.DeliveryRegistry.NewWithCause(msgx.ErrInvalidRecipient, err).
				WithDetail("recipient", phonex.Mask(raw)))
			return
		}
		filter.Recipient = to
	}

	page, err := h.store.List(r.Context(), filter, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Admin) getDelivery(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type deliveryRequest struct {
	Recipient  string `json:"recipient" validatex:"required"`
	TriggerKey string `json:"trigger_key" validatex:"required"`
}

func (h *Admin) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	claims, _ := auth.ClaimsFrom(r.Context())
	logx.Info("operator %s triggered %q for %s", subjectOf(claims), req.TriggerKey, phonex.Mask(req.Recipient))

	record, err := h.deliverer.Deliver(r.Context(), req.Recipient, req.TriggerKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ========== Templates ==========

type templateSendRequest struct {
	To         string                   `json:"to" validatex:"required"`
	Name       string                   `json:"name" validatex:"required"`
	Language   string                   `json:"language" validatex:"required"`
	Components []msgx.TemplateComponent `json:"components,omitempty"`
}

func (h *Admin) sendTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateSendRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	// Parameter counts are checked only when the business account is known
	if _, err := h.templates.CheckComponents(r.Context(), req.Name, req.Language, req.Components); err != nil &&
		!errx.IsCode(err, msgxwhatsapp.ErrTemplateLookupOff) {
		writeError(w, err)
		return
	}

	resp, err := h.sender.Send(r.Context(), msgx.NewTemplateMessage(req.To, req.Name, req.Language, req.Components))
	if err != nil {
		if msgx.IsAuth(err) {
			logx.Error("OPERATOR ALERT: template send rejected, check the access token: %v", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Admin) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.GetTemplate(r.Context(), mux.Vars(r)["name"], r.URL.Query().Get("language"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ========== Helpers ==========

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, registry.NewWithCause(ErrBadRequest, err))
		return false
	}
	if err := validatex.Validate(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func badRequest(msg string) *errx.Error {
	return registry.NewWithMessage(ErrBadRequest, msg)
}

func subjectOf(c *auth.Claims) string {
	if c == nil || c.Subject == "" {
		return "unknown"
	}
	return c.Subject
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warn("writing response: %v", err)
	}
}

// writeError renders err as errx JSON. Plain errors become 500s.
func writeError(w http.ResponseWriter, err error) {
	var xerr *errx.Error
	if !errors.As(err, &xerr) {
		xerr = errx.Wrap(err, "Internal error", errx.TypeInternal)
	}
	if xerr.HTTPStatus >= http.StatusInternalServerError || xerr.HTTPStatus == 0 {
		logx.Error("admin request failed: %v", err)
	}
	xerr.ToHTTP(w)
}
