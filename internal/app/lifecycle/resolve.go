package lifecycle

import (
	"context"
	"errors"
	"log"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Resolution & Settlement ────────────────────────────────────────────────

// resolve classifies a LIVE event into its terminal state and settles
// credits. Safe to call from racing paths: the CAS rejects the loser, and
// settlement entries are idempotent, so a re-resolution produces no further
// ledger movement.
func (s *Service) resolve(ctx context.Context, e *domain.SpeedDateEvent) error {
	now := s.clock.Now()

	attA, attB, err := s.tracker.AttendanceAt(e)
	if err != nil {
		return err
	}
	outcome := domain.ResolveOutcome(attA, attB)

	if err := s.transition(e, outcome, now); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			// Someone else resolved first; terminal states are final.
			fresh, ferr := s.db.GetEvent(e.ID)
			if ferr == nil && fresh.State.Terminal() {
				return nil
			}
		}
		return err
	}

	if err := s.settleAndMark(ctx, e); err != nil {
		return err
	}

	s.notifier.Publish(ctx, domain.NotifyEventResolved, map[string]interface{}{
		"event_id":     e.ID,
		"state":        string(outcome),
		"participants": []string{e.ParticipantA, e.ParticipantB},
	})
	return nil
}

// settleAndMark applies the settlement table for the event's terminal state
// and then stamps it settled. If the process dies between the terminal
// transition and the stamp, the event stays in the unsettled scan and the
// next sweep re-drives it; the entries are idempotent, so each credit moves
// exactly once no matter how many re-drives it takes.
func (s *Service) settleAndMark(ctx context.Context, e *domain.SpeedDateEvent) error {
	if err := s.settle(ctx, e, e.State); err != nil {
		return err
	}
	return s.db.MarkSettled(e.ID, s.clock.Now())
}

// settle applies the settlement table for a terminal outcome. Every movement
// is idempotent on (event, user, reason), so retries settle exactly once.
func (s *Service) settle(ctx context.Context, e *domain.SpeedDateEvent, outcome domain.EventState) error {
	now := s.clock.Now()

	refund := func(userID string, reason domain.LedgerReason) error {
		if _, err := s.db.Credit(userID, e.ID, e.CreditsEscrowed, reason, now); err != nil {
			return err
		}
		settlementsTotal.WithLabelValues(string(reason)).Inc()
		return nil
	}
	strike := func(userID string) error {
		added, err := s.db.AddStrike(userID, e.ID, now)
		if err != nil {
			return err
		}
		if !added {
			// Re-driven settlement; the strike and its notification already
			// went out.
			return nil
		}
		noShowsTotal.Inc()
		// The warning escalation rides on the strike: the user hears about
		// their new tier immediately.
		standing, err := s.StandingFor(userID)
		if err != nil {
			return err
		}
		s.notifier.Publish(ctx, domain.NotifyStandingChanged, map[string]interface{}{
			"user_id":         userID,
			"tier":            string(standing.Tier),
			"no_show_count":   standing.NoShowCount,
			"booking_allowed": standing.BookingAllowed,
			"message":         standing.Message,
		})
		return nil
	}

	switch outcome {
	case domain.EventCompleted:
		// Holds are consumed as payment for the held session.
		return nil

	case domain.EventCancelledByUser:
		// Pre-lock cancel leaves no one out of pocket: each side recovers
		// the hold they escrowed.
		if err := refund(e.ParticipantA, domain.ReasonCancelRefund); err != nil {
			return err
		}
		return refund(e.ParticipantB, domain.ReasonCancelRefund)

	case domain.EventCompletedNoShowA:
		if err := refund(e.ParticipantB, domain.ReasonNoShowRefund); err != nil {
			return err
		}
		return strike(e.ParticipantA)

	case domain.EventCompletedNoShowB:
		if err := refund(e.ParticipantA, domain.ReasonNoShowRefund); err != nil {
			return err
		}
		return strike(e.ParticipantB)

	case domain.EventMutualNoShow:
		// Both holds forfeit; both standings take the strike.
		if err := strike(e.ParticipantA); err != nil {
			return err
		}
		return strike(e.ParticipantB)

	case domain.EventSystemFailure:
		// Infrastructure failed: both made whole, no penalty to either.
		// Independent idempotency keys per user.
		if err := refund(e.ParticipantA, domain.ReasonSystemRefund); err != nil {
			return err
		}
		return refund(e.ParticipantB, domain.ReasonSystemRefund)

	default:
		log.Printf("[lifecycle] settle: unexpected outcome %s for event %s", outcome, e.ID)
		return nil
	}
}
