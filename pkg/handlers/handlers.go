package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/contact"
	"github.com/payback159/contactgate/pkg/downloads"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/models"
	"github.com/payback159/contactgate/pkg/monitoring"
	"github.com/payback159/contactgate/pkg/routing"
	"github.com/payback159/contactgate/pkg/security"
	"github.com/payback159/contactgate/pkg/session"
)

// maxFormBytes bounds a contact form body
const maxFormBytes = 64 << 10

// MsgInProgress is shown when a second submit arrives while one is in flight
const MsgInProgress = "Your message is already being sent."

// Handler holds dependencies for HTTP handlers
type Handler struct {
	Templates *template.Template
	Sessions  *session.Manager
	Guard     *routing.Guard
	Monitor   *monitoring.Monitor
	Config    config.Config
}

// NewHandler creates a new handler with dependencies
func NewHandler(templates *template.Template, sessions *session.Manager, guard *routing.Guard, monitor *monitoring.Monitor, cfg config.Config) *Handler {
	return &Handler{
		Templates: templates,
		Sessions:  sessions,
		Guard:     guard,
		Monitor:   monitor,
		Config:    cfg,
	}
}

// Routes builds the router. edge throttles the state-changing routes and
// may be nil.
func (h *Handler) Routes(edge *security.EdgeLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.Guard.Middleware)

	r.Get("/", h.HandleHome)
	r.Get("/contact", h.HandleOpen)
	r.Get("/go/{anchor}", h.HandleAnchor)
	r.Get("/healthz", h.HandleHealth)

	r.Group(func(r chi.Router) {
		if edge != nil {
			r.Use(edge.Middleware)
		}
		r.Post("/contact", h.HandleSubmit)
		r.Post("/contact/close", h.HandleClose)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.adminOnly)
		r.Get("/admin/events.csv", func(w http.ResponseWriter, r *http.Request) {
			downloads.HandleEventsCSV(w, r, h.Monitor)
		})
		r.Get("/admin/events.xlsx", func(w http.ResponseWriter, r *http.Request) {
			downloads.HandleEventsExcel(w, r, h.Monitor)
		})
	})

	return r
}

// requestLogger logs every request once it has been served
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.LogHTTPRequest(r.Method, r.URL.Path, r.UserAgent(), security.GetClientIP(r), ww.Status(), time.Since(start))
	})
}

// adminOnly guards the export routes with the configured bearer token.
// Without a token the routes do not exist.
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.AdminToken == "" {
			http.NotFound(w, r)
			return
		}
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.Config.AdminToken)) != 1 {
			logging.LogSecurityEvent("Admin export denied", "medium",
				"ip", security.GetClientIP(r),
				"path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CSRFFailure answers requests rejected by the CSRF middleware
func (h *Handler) CSRFFailure(w http.ResponseWriter, r *http.Request) {
	h.Monitor.CSRFValidation(false)
	logging.LogSecurityEvent("CSRF validation failed", "high",
		"ip", security.GetClientIP(r),
		"path", r.URL.Path,
		"reason", csrf.FailureReason(r))
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// getCSRFField returns CSRF field for production, empty string for development
func (h *Handler) getCSRFField(r *http.Request) template.HTML {
	if h.Config.IsProduction() {
		return csrf.TemplateField(r)
	}
	return template.HTML("")
}

// pageData maps a form snapshot to template data
func (h *Handler) pageData(r *http.Request, snap contact.Snapshot) models.PageData {
	pd := models.PageData{
		FormOpen:      snap.Open,
		Form:          snap.Input,
		FieldErrors:   snap.Last.Errors,
		Submitting:    snap.State == contact.Submitting,
		Submitted:     snap.State == contact.Submitted,
		HoneypotField: models.FieldHoneypot,
		CSRFField:     h.getCSRFField(r),
	}
	if snap.Last.Message != "" {
		pd.Message = &models.Message{Type: messageType(snap.Last.Kind), Text: snap.Last.Message}
	}
	return pd
}

func messageType(kind models.OutcomeKind) models.MessageType {
	switch kind {
	case models.OutcomeSuccess:
		return models.MessageSuccess
	case models.OutcomeRateLimited, models.OutcomeValidationFailed:
		return models.MessageWarning
	}
	return models.MessageError
}

func (h *Handler) render(w http.ResponseWriter, status int, data models.PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.Templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logging.LogError("Template rendering failed", err, "template", "index.html")
	}
}

// loadForm resolves the visitor's session or answers with an error
func (h *Handler) loadForm(w http.ResponseWriter, r *http.Request) (*contact.Form, bool) {
	data, err := h.Sessions.Load(w, r)
	if err != nil || data.Form == nil {
		logging.LogError("Session unavailable", err,
			"ip", security.GetClientIP(r),
			"request_id", middleware.GetReqID(r.Context()))
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return data.Form, true
}

// HandleHome renders the landing page with the visitor's form state
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	form, ok := h.loadForm(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, h.pageData(r, form.Snapshot()))
}

// HandleOpen opens an empty contact form
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	form, ok := h.loadForm(w, r)
	if !ok {
		return
	}
	// the confirmation stays until its display delay ends
	if form.Snapshot().State != contact.Submitted {
		form.Open()
	}
	h.render(w, http.StatusOK, h.pageData(r, form.Snapshot()))
}

// HandleClose discards the form and returns to the landing page
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	form, ok := h.loadForm(w, r)
	if !ok {
		return
	}
	form.Close()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSubmit runs a submission with the posted fields
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ip := security.GetClientIP(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		logging.LogError("Form parsing failed", err,
			"content_length", r.ContentLength,
			"content_type", r.Header.Get("Content-Type"),
			"ip", ip)
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	form, ok := h.loadForm(w, r)
	if !ok {
		return
	}

	snap := form.Snapshot()
	if snap.State == contact.Submitting || snap.State == contact.Submitted {
		h.rejectBusy(w, r, form)
		return
	}
	if !snap.Open {
		form.Open()
	}

	for _, field := range models.UserFields {
		form.Set(field, r.PostFormValue(string(field)))
	}
	form.Set(models.FieldHoneypot, r.PostFormValue(string(models.FieldHoneypot)))

	// the relay call outlives a visitor who navigates away
	outcome, err := form.Submit(context.WithoutCancel(r.Context()))
	if err != nil {
		h.rejectBusy(w, r, form)
		return
	}

	logging.LogInfo("Contact form processed",
		"outcome", string(outcome.Kind),
		"ip", ip,
		"request_id", middleware.GetReqID(r.Context()))

	status := http.StatusOK
	switch outcome.Kind {
	case models.OutcomeRateLimited:
		status = http.StatusTooManyRequests
	case models.OutcomeValidationFailed:
		status = http.StatusUnprocessableEntity
	case models.OutcomeNetworkError, models.OutcomeServerRejected:
		status = http.StatusBadGateway
	}

	// a silent drop carries no message and renders like an untouched form
	h.render(w, status, h.pageData(r, form.Snapshot()))
}

func (h *Handler) rejectBusy(w http.ResponseWriter, r *http.Request, form *contact.Form) {
	pd := h.pageData(r, form.Snapshot())
	if !pd.Submitted {
		pd.Message = &models.Message{Type: models.MessageWarning, Text: MsgInProgress}
	}
	h.render(w, http.StatusConflict, pd)
}

// HandleAnchor redirects to a landing page section if it is known
func (h *Handler) HandleAnchor(w http.ResponseWriter, r *http.Request) {
	anchor, ok := h.Guard.ResolveAnchor(chi.URLParam(r, "anchor"))
	if !ok {
		http.Redirect(w, r, routing.DefaultRoute, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/#"+anchor, http.StatusSeeOther)
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"status":   "ok",
		"sessions": h.Sessions.Store().GetSessionCount(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.LogError("Failed to write health response", err)
	}
}
