package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/firstdate-app/firstdate/internal/domain"
	"github.com/firstdate-app/firstdate/internal/infra/payment"
)

// ─── Request Handlers ───────────────────────────────────────────────────────

// POST /api/requests
func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequesterID string      `json:"requester_id"`
		RecipientID string      `json:"recipient_id"`
		Slots       []time.Time `json:"slots"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.svc.SendRequest(r.Context(), body.RequesterID, body.RecipientID, body.Slots)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// POST /api/requests/{id}/accept
func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slot time.Time `json:"slot"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	event, err := s.svc.AcceptRequest(r.Context(), chi.URLParam(r, "id"), body.Slot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// POST /api/requests/{id}/decline
func (s *Server) handleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeclineRequest(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.CancelRequest(r.Context(), chi.URLParam(r, "id"), body.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ─── Event Handlers ─────────────────────────────────────────────────────────

// POST /api/events/{id}/cancel
func (s *Server) handleCancelEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.CancelEvent(r.Context(), chi.URLParam(r, "id"), body.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// POST /api/events/{id}/join
// The join instant is server-observed; the body carries no timestamp and any
// client-supplied one would be ignored.
func (s *Server) handleRecordJoin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.RecordJoin(r.Context(), chi.URLParam(r, "id"), body.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// POST /api/events/{id}/exit
func (s *Server) handleRecordExit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
		Detail string `json:"detail"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	err := s.svc.RecordExit(r.Context(), chi.URLParam(r, "id"), body.UserID, domain.ExitReason(body.Reason), body.Detail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "exited"})
}

// POST /api/events/{id}/resolve — idempotent, also called by the sweep.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ResolveIfExpired(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// POST /api/events/{id}/feedback
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string `json:"user_id"`
		Interest string `json:"interest"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	err := s.svc.SubmitFeedback(r.Context(), chi.URLParam(r, "id"), body.UserID, domain.InterestLevel(body.Interest))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// POST /api/events/{id}/connection — signaling relay reports.
func (s *Server) handleConnectionReport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reporter string `json:"reporter"`
		Quality  string `json:"quality"`
		Detail   string `json:"detail"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.ReportConnection(chi.URLParam(r, "id"), body.Reporter, body.Quality, body.Detail); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// GET /api/events/{id}
// The snapshot never includes feedback contents: before both sides are in,
// even the fact that the other side answered must not leak.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.GetEvent(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	unlocked, decided, err := s.svc.MessagingUnlocked(e.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":              e,
		"messaging_decided":  decided,
		"messaging_unlocked": decided && unlocked,
	})
}

// ─── User Handlers ──────────────────────────────────────────────────────────

// GET /api/users/{id}/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	balance, err := s.svc.Balance(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// GET /api/users/{id}/ledger?limit=N
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.svc.Ledger(chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// GET /api/users/{id}/standing
func (s *Server) handleStanding(w http.ResponseWriter, r *http.Request) {
	standing, err := s.svc.StandingFor(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standing)
}

// POST /api/users/{id}/reinstate — manual reinstatement by support.
func (s *Server) handleReinstate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Reinstate(chi.URLParam(r, "id"), body.Note); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reinstated"})
}

// ─── Webhook Handlers ───────────────────────────────────────────────────────

// POST /webhooks/omise
func (s *Server) handleOmiseWebhook(w http.ResponseWriter, r *http.Request) {
	var ev payment.WebhookEvent
	if err := decode(r, &ev); err != nil {
		writeError(w, err)
		return
	}
	if err := s.payments.HandleEvent(r.Context(), ev); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrValidation)
	}
	return nil
}
