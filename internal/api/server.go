// Package api provides the HTTP server for the speed-date engine. It is the
// surface the app's UI/API layer consumes; all business rules live in the
// lifecycle orchestrator.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firstdate-app/firstdate/internal/app/lifecycle"
	"github.com/firstdate-app/firstdate/internal/domain"
	"github.com/firstdate-app/firstdate/internal/infra/payment"
)

// Server is the engine's HTTP API server.
type Server struct {
	svc            *lifecycle.Service
	payments       *payment.Service // nil when top-ups are not configured
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(svc *lifecycle.Service) *Server {
	return &Server{svc: svc}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetPayments enables the Omise top-up webhook.
func (s *Server) SetPayments(p *payment.Service) { s.payments = p }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/requests", s.handleSendRequest)
		r.Post("/requests/{id}/accept", s.handleAcceptRequest)
		r.Post("/requests/{id}/decline", s.handleDeclineRequest)
		r.Post("/requests/{id}/cancel", s.handleCancelRequest)

		r.Post("/events/{id}/cancel", s.handleCancelEvent)
		r.Post("/events/{id}/join", s.handleRecordJoin)
		r.Post("/events/{id}/exit", s.handleRecordExit)
		r.Post("/events/{id}/resolve", s.handleResolve)
		r.Post("/events/{id}/feedback", s.handleSubmitFeedback)
		r.Post("/events/{id}/connection", s.handleConnectionReport)
		r.Get("/events/{id}", s.handleGetEvent)

		r.Get("/users/{id}/balance", s.handleBalance)
		r.Get("/users/{id}/ledger", s.handleLedger)
		r.Get("/users/{id}/standing", s.handleStanding)
		r.Post("/users/{id}/reinstate", s.handleReinstate)
	})

	if s.payments != nil {
		r.Post("/webhooks/omise", s.handleOmiseWebhook)
	}

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Response helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to a structured JSON error the UI can
// render. ConcurrentModification is flagged retryable.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	retryable := false

	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrBookingNotAllowed),
		errors.Is(err, domain.ErrRecipientSuspended):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrEventNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRequestExpired),
		errors.Is(err, domain.ErrEventLocked),
		errors.Is(err, domain.ErrRequestSettled),
		errors.Is(err, domain.ErrInvariantViolation),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrNotJoined),
		errors.Is(err, domain.ErrFeedbackSubmitted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConcurrentModification):
		status = http.StatusConflict
		retryable = true
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message":   err.Error(),
			"retryable": retryable,
		},
	})
}
