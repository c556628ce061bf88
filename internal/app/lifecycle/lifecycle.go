// Package lifecycle is the speed-date engine's orchestrator. It sequences
// the request → event → resolution state machine in response to external
// events, drives the credit ledger, consults the no-show policy, and emits
// notifications to the external collaborator.
//
// Concurrency: every event transition goes through the store's version
// compare-and-swap, so two near-simultaneous triggers (a sweep and a user
// cancel, say) can never both apply. The loser sees
// ErrConcurrentModification and re-reads.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/firstdate-app/firstdate/internal/app/session"
	"github.com/firstdate-app/firstdate/internal/domain"
	"github.com/firstdate-app/firstdate/internal/infra/sqlite"
)

// Config controls engine behavior.
type Config struct {
	EscrowCost int64 // credits held per participant per speed date

	// ResolutionAlertSlack: how long past window close an unresolved LIVE
	// event may sit before both participants are told resolution is pending.
	ResolutionAlertSlack time.Duration

	MaxProposedSlots int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		EscrowCost:           200,
		ResolutionAlertSlack: 5 * time.Minute,
		MaxProposedSlots:     5,
	}
}

// Service is the orchestrator façade consumed by the API layer and the
// scheduler sweep.
type Service struct {
	cfg      Config
	db       *sqlite.DB
	clock    domain.Clock
	notifier domain.Notifier
	tracker  *session.Tracker
}

// New creates the orchestrator.
func New(cfg Config, db *sqlite.DB, clock domain.Clock, notifier domain.Notifier) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		clock:    clock,
		notifier: notifier,
		tracker:  session.NewTracker(db, clock, notifier),
	}
}

// ─── Request Operations ─────────────────────────────────────────────────────

// SendRequest proposes a speed date and escrows the requester's credits.
// Fails with ErrInsufficientCredits, ErrBookingNotAllowed (requester
// restricted), or ErrRecipientSuspended.
func (s *Service) SendRequest(ctx context.Context, requesterID, recipientID string, slots []time.Time) (*domain.SpeedDateRequest, error) {
	now := s.clock.Now()

	if requesterID == "" || recipientID == "" {
		return nil, fmt.Errorf("%w: requester and recipient are required", domain.ErrValidation)
	}
	if requesterID == recipientID {
		return nil, fmt.Errorf("%w: cannot request a speed date with yourself", domain.ErrValidation)
	}
	if len(slots) == 0 || len(slots) > s.cfg.MaxProposedSlots {
		return nil, fmt.Errorf("%w: between 1 and %d proposed slots required", domain.ErrValidation, s.cfg.MaxProposedSlots)
	}
	proposed := make([]domain.Slot, 0, len(slots))
	for _, t := range slots {
		if !t.After(now) {
			return nil, fmt.Errorf("%w: proposed slot %s is in the past", domain.ErrValidation, t.Format(time.RFC3339))
		}
		proposed = append(proposed, domain.Slot{Start: t})
	}

	// Booking gate: the no-show policy is consulted before any money moves.
	requesterStanding, err := s.StandingFor(requesterID)
	if err != nil {
		return nil, err
	}
	if !requesterStanding.BookingAllowed {
		return nil, domain.ErrBookingNotAllowed
	}
	recipientStanding, err := s.StandingFor(recipientID)
	if err != nil {
		return nil, err
	}
	if !recipientStanding.BookingAllowed {
		return nil, domain.ErrRecipientSuspended
	}

	req := &domain.SpeedDateRequest{
		ID:            uuid.NewString(),
		RequesterID:   requesterID,
		RecipientID:   recipientID,
		ProposedSlots: proposed,
		Cost:          s.cfg.EscrowCost,
		Status:        domain.RequestSent,
		CreatedAt:     now,
		ExpiresAt:     now.Add(domain.RequestTTL),
	}

	if _, err := s.db.Debit(requesterID, req.ID, req.Cost, domain.ReasonRequestHold, now); err != nil {
		return nil, err
	}
	settlementsTotal.WithLabelValues(string(domain.ReasonRequestHold)).Inc()

	if err := s.db.InsertRequest(req); err != nil {
		return nil, fmt.Errorf("persist request: %w", err)
	}

	s.notifier.Publish(ctx, domain.NotifyRequestReceived, map[string]interface{}{
		"request_id":   req.ID,
		"requester_id": requesterID,
		"recipient_id": recipientID,
		"expires_at":   req.ExpiresAt,
	})
	return req, nil
}

// AcceptRequest confirms a request on one of its proposed slots, escrows the
// recipient's matching hold, and creates the SCHEDULED event.
func (s *Service) AcceptRequest(ctx context.Context, requestID string, chosenSlot time.Time) (*domain.SpeedDateEvent, error) {
	now := s.clock.Now()

	req, err := s.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		if req.Status == domain.RequestExpired {
			return nil, domain.ErrRequestExpired
		}
		return nil, domain.ErrRequestSettled
	}
	if req.ExpiredAt(now) {
		// Accept raced the 48h deadline and lost; settle the expiry now
		// rather than waiting for the sweep.
		if err := s.expireRequest(ctx, req); err != nil {
			return nil, err
		}
		return nil, domain.ErrRequestExpired
	}
	if !req.HasSlot(chosenSlot) {
		return nil, fmt.Errorf("%w: chosen slot was not proposed", domain.ErrValidation)
	}

	// The recipient escrows an equal hold at accept time; settlement rules
	// for no-shows and failures are symmetric once both are committed.
	if _, err := s.db.Debit(req.RecipientID, req.ID, req.Cost, domain.ReasonAcceptHold, now); err != nil {
		return nil, err
	}
	settlementsTotal.WithLabelValues(string(domain.ReasonAcceptHold)).Inc()

	if err := s.db.SettleRequest(req.ID, domain.RequestAccepted); err != nil {
		// Lost the settle race after our hold landed (the expiry sweep or a
		// concurrent decline got there first). Hand the hold straight back.
		if _, cerr := s.db.Credit(req.RecipientID, req.ID, req.Cost, domain.ReasonAcceptReversal, now); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	event := &domain.SpeedDateEvent{
		ID:              uuid.NewString(),
		RequestID:       req.ID,
		ParticipantA:    req.RequesterID,
		ParticipantB:    req.RecipientID,
		EventTime:       chosenSlot,
		LockTime:        chosenSlot.Add(-domain.LockLead),
		State:           domain.EventScheduled,
		CreditsEscrowed: req.Cost,
		Version:         1,
		CreatedAt:       now,
	}
	if err := s.db.InsertEvent(event); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}

	s.notifier.Publish(ctx, domain.NotifyRequestAccepted, map[string]interface{}{
		"request_id": req.ID,
		"event_id":   event.ID,
		"event_time": event.EventTime,
	})
	return event, nil
}

// DeclineRequest settles a request as declined and refunds the requester
// immediately.
func (s *Service) DeclineRequest(ctx context.Context, requestID string) error {
	now := s.clock.Now()

	req, err := s.db.GetRequest(requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return domain.ErrRequestSettled
	}
	if err := s.db.SettleRequestRefund(req.ID, domain.RequestDeclined, req.RequesterID, req.Cost, domain.ReasonDeclineRefund, now); err != nil {
		return err
	}
	settlementsTotal.WithLabelValues(string(domain.ReasonDeclineRefund)).Inc()

	s.notifier.Publish(ctx, domain.NotifyRequestDeclined, map[string]interface{}{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
	})
	return nil
}

// CancelRequest withdraws a SENT request on behalf of its requester and
// refunds the hold.
func (s *Service) CancelRequest(ctx context.Context, requestID, userID string) error {
	now := s.clock.Now()

	req, err := s.db.GetRequest(requestID)
	if err != nil {
		return err
	}
	if userID != req.RequesterID {
		return fmt.Errorf("%w: only the requester can withdraw a request", domain.ErrValidation)
	}
	if req.Status.Terminal() {
		if req.Status == domain.RequestExpired {
			return domain.ErrRequestExpired
		}
		return domain.ErrRequestSettled
	}
	if err := s.db.SettleRequestRefund(req.ID, domain.RequestCancelled, req.RequesterID, req.Cost, domain.ReasonWithdrawRefund, now); err != nil {
		return err
	}
	settlementsTotal.WithLabelValues(string(domain.ReasonWithdrawRefund)).Inc()

	s.notifier.Publish(ctx, domain.NotifyRequestCancelled, map[string]interface{}{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
		"recipient_id": req.RecipientID,
	})
	return nil
}

func (s *Service) expireRequest(ctx context.Context, req *domain.SpeedDateRequest) error {
	now := s.clock.Now()
	if err := s.db.SettleRequestRefund(req.ID, domain.RequestExpired, req.RequesterID, req.Cost, domain.ReasonExpireRefund, now); err != nil {
		return err
	}
	settlementsTotal.WithLabelValues(string(domain.ReasonExpireRefund)).Inc()

	// An accept that reached its hold but never its ACCEPTED settle leaves
	// the recipient's credits attached to a request that now expires. Hand
	// them back with the expiry.
	entries, err := s.db.EntriesForScope(req.ID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Reason == domain.ReasonAcceptHold {
			if _, err := s.db.Credit(req.RecipientID, req.ID, req.Cost, domain.ReasonAcceptReversal, now); err != nil {
				return err
			}
			break
		}
	}

	s.notifier.Publish(ctx, domain.NotifyRequestExpired, map[string]interface{}{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
	})
	return nil
}

// ─── Event Operations ───────────────────────────────────────────────────────

// CancelEvent cancels a confirmed event on behalf of a participant. Accepted
// any time before the lock boundary; past it the call fails with
// ErrEventLocked, never silently ignored.
func (s *Service) CancelEvent(ctx context.Context, eventID, userID string) error {
	now := s.clock.Now()

	e, err := s.db.GetEvent(eventID)
	if err != nil {
		return err
	}
	if !e.Participant(userID) {
		return fmt.Errorf("%w: user is not a participant of this event", domain.ErrValidation)
	}
	if e.State.Terminal() || e.State == domain.EventLive {
		return fmt.Errorf("%w: cannot cancel from state %s", domain.ErrInvariantViolation, e.State)
	}
	if !e.Cancellable(now) {
		return domain.ErrEventLocked
	}

	if err := s.transition(e, domain.EventCancelledByUser, now); err != nil {
		return err
	}
	if err := s.settleAndMark(ctx, e); err != nil {
		return err
	}

	s.notifier.Publish(ctx, domain.NotifyEventCancelled, map[string]interface{}{
		"event_id":     e.ID,
		"cancelled_by": userID,
		"participants": []string{e.ParticipantA, e.ParticipantB},
	})
	return nil
}

// RecordJoin records a participant's arrival in the live window. The join
// instant is server-observed.
func (s *Service) RecordJoin(ctx context.Context, eventID, userID string) error {
	e, err := s.db.GetEvent(eventID)
	if err != nil {
		return err
	}
	if !e.Participant(userID) {
		return fmt.Errorf("%w: user is not a participant of this event", domain.ErrValidation)
	}
	e, err = s.advanceToDue(ctx, e)
	if err != nil {
		return err
	}
	if e.State != domain.EventLive {
		return fmt.Errorf("%w: event is %s, not live", domain.ErrInvariantViolation, e.State)
	}
	if !s.clock.Now().Before(e.ResolveAfter()) {
		// The join window already closed; settle rather than admit.
		if err := s.resolve(ctx, e); err != nil {
			return err
		}
		return fmt.Errorf("%w: join window has closed", domain.ErrInvariantViolation)
	}
	return s.tracker.Join(e, userID)
}

// RecordExit records an early exit from a live call. Safety reports are
// escalated out-of-band; a corroborated technical failure in the ambiguous
// attendance band resolves the event immediately as a system failure.
func (s *Service) RecordExit(ctx context.Context, eventID, userID string, reason domain.ExitReason, detail string) error {
	e, err := s.db.GetEvent(eventID)
	if err != nil {
		return err
	}
	if !e.Participant(userID) {
		return fmt.Errorf("%w: user is not a participant of this event", domain.ErrValidation)
	}
	if e.State != domain.EventLive {
		return fmt.Errorf("%w: event is %s, not live", domain.ErrInvariantViolation, e.State)
	}

	res, err := s.tracker.Exit(e, userID, reason, detail)
	if err != nil {
		return err
	}

	if res.Escalate {
		// Trust-and-safety routing is independent of settlement.
		s.notifier.Publish(ctx, domain.NotifySafetyReport, map[string]interface{}{
			"event_id":    e.ID,
			"reporter_id": userID,
			"reported_id": e.Counterpart(userID),
			"detail":      detail,
		})
	}

	if res.AmbiguousBandFailure {
		return s.resolve(ctx, e)
	}
	return nil
}

// ReportConnection stores a connection-quality report from the signaling
// relay. Reports feed the UI and corroborate technical-failure exits; they
// never drive settlement on their own.
func (s *Service) ReportConnection(eventID, reporter, quality, detail string) error {
	switch quality {
	case "good", "degraded", "failed":
	default:
		return fmt.Errorf("%w: unknown connection quality %q", domain.ErrValidation, quality)
	}
	return s.db.InsertConnectionReport(eventID, reporter, quality, detail, s.clock.Now())
}

// ResolveIfExpired applies any transitions the clock has made due, including
// final resolution once the live window has closed. Idempotent: resolving an
// already-terminal event re-drives settlement only if the credits never
// landed, and creates no further ledger entries otherwise.
func (s *Service) ResolveIfExpired(ctx context.Context, eventID string) error {
	e, err := s.db.GetEvent(eventID)
	if err != nil {
		return err
	}
	if e.State.Terminal() {
		if e.SettledAt.IsZero() {
			return s.settleAndMark(ctx, e)
		}
		return nil
	}
	e, err = s.advanceToDue(ctx, e)
	if err != nil {
		return err
	}
	if e.State == domain.EventLive && !s.clock.Now().Before(e.ResolveAfter()) {
		return s.resolve(ctx, e)
	}
	return nil
}

// GetEvent returns the event by id.
func (s *Service) GetEvent(eventID string) (*domain.SpeedDateEvent, error) {
	return s.db.GetEvent(eventID)
}

// ─── Read Models ────────────────────────────────────────────────────────────

// StandingFor computes the user's account standing from their no-show
// strikes inside the rolling window.
func (s *Service) StandingFor(userID string) (domain.UserStanding, error) {
	count, err := s.db.StrikeCount(userID, s.clock.Now())
	if err != nil {
		return domain.UserStanding{}, err
	}
	return domain.Standing(count), nil
}

// Balance returns the user's current credit balance.
func (s *Service) Balance(userID string) (int64, error) {
	return s.db.Balance(userID)
}

// Ledger returns the user's recent credit movements.
func (s *Service) Ledger(userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.db.LedgerEntries(userID, limit)
}

// Reinstate records a manual reinstatement for a suspended user.
func (s *Service) Reinstate(userID, note string) error {
	return s.db.InsertStandingOverride(userID, note, s.clock.Now())
}

// TopUp credits purchased credits to a user, idempotent on the charge id.
func (s *Service) TopUp(ctx context.Context, userID, chargeID string, amount int64) error {
	if _, err := s.db.Credit(userID, chargeID, amount, domain.ReasonTopUp, s.clock.Now()); err != nil {
		return err
	}
	settlementsTotal.WithLabelValues(string(domain.ReasonTopUp)).Inc()
	s.notifier.Publish(ctx, domain.NotifyTopUpApplied, map[string]interface{}{
		"user_id":   userID,
		"charge_id": chargeID,
		"amount":    amount,
	})
	return nil
}

// ─── Internal transitions ───────────────────────────────────────────────────

// advanceToDue lazily applies clock-driven transitions (lock boundary, live
// window open) that a sweep may not have reached yet. Intermediate states are
// never skipped.
func (s *Service) advanceToDue(ctx context.Context, e *domain.SpeedDateEvent) (*domain.SpeedDateEvent, error) {
	now := s.clock.Now()

	if e.State == domain.EventScheduled && !now.Before(e.LockTime) {
		if err := s.transition(e, domain.EventLocked, now); err != nil {
			return nil, err
		}
		s.notifier.Publish(ctx, domain.NotifyEventLocked, map[string]interface{}{
			"event_id":     e.ID,
			"participants": []string{e.ParticipantA, e.ParticipantB},
		})
		// The lock boundary doubles as the 24h reminder.
		s.notifier.Publish(ctx, domain.NotifyEventReminder, map[string]interface{}{
			"event_id":     e.ID,
			"event_time":   e.EventTime,
			"participants": []string{e.ParticipantA, e.ParticipantB},
		})
	}
	if e.State == domain.EventLocked && !now.Before(e.EventTime) {
		if err := s.transition(e, domain.EventLive, now); err != nil {
			return nil, err
		}
		s.notifier.Publish(ctx, domain.NotifyEventLive, map[string]interface{}{
			"event_id": e.ID,
		})
	}
	return e, nil
}

// transition applies one legal state-machine step through the store's CAS.
func (s *Service) transition(e *domain.SpeedDateEvent, to domain.EventState, now time.Time) error {
	if !domain.CanTransition(e.State, to) {
		return fmt.Errorf("%w: %s → %s", domain.ErrInvariantViolation, e.State, to)
	}
	if err := s.db.ApplyTransition(e, to, now); err != nil {
		return err
	}
	transitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}
