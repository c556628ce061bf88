package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Scheduler Sweep ────────────────────────────────────────────────────────
// Every deadline in the engine is derived from persisted timestamps, so the
// sweep is the restart-safe timer: a tick missed while the process was down
// is simply applied on the next pass. Individual failures are logged and
// retried next sweep; they never abort the pass.

// Sweep applies all clock-driven work that has come due.
func (s *Service) Sweep(ctx context.Context) {
	timer := prometheus.NewTimer(sweepDuration)
	defer timer.ObserveDuration()

	now := s.clock.Now()

	// Expire unanswered requests past the 48h deadline and refund the hold.
	if ids, err := s.db.ListExpiredSent(now); err != nil {
		log.Printf("[sweep] list expired requests: %v", err)
	} else {
		for _, id := range ids {
			req, err := s.db.GetRequest(id)
			if err != nil {
				log.Printf("[sweep] load request %s: %v", id, err)
				continue
			}
			if err := s.expireRequest(ctx, req); err != nil {
				log.Printf("[sweep] expire request %s: %v", id, err)
			}
		}
	}

	// Lock boundary and live-window opening.
	for _, id := range s.dueIDs(s.db.ListEventsToLock, now) {
		s.advanceByID(ctx, id)
	}
	for _, id := range s.dueIDs(s.db.ListEventsToStart, now) {
		s.advanceByID(ctx, id)
	}

	// Live events: countdown warnings, resolution, delayed-resolution alert.
	live, err := s.db.ListLiveEvents()
	if err != nil {
		log.Printf("[sweep] list live events: %v", err)
		live = nil
	}
	for _, id := range live {
		e, err := s.db.GetEvent(id)
		if err != nil {
			log.Printf("[sweep] load event %s: %v", id, err)
			continue
		}
		if !now.Before(e.ResolveAfter()) {
			if err := s.resolve(ctx, e); err != nil {
				log.Printf("[sweep] resolve event %s: %v", id, err)
				s.alertIfDelayed(ctx, e)
			}
			continue
		}
		if err := s.tracker.EmitWarnings(ctx, e); err != nil {
			log.Printf("[sweep] warnings for event %s: %v", id, err)
		}
	}

	// Terminal events whose settlement never completed, such as a crash
	// between the terminal transition and the ledger write. Entries are
	// idempotent, so re-driving moves each credit exactly once.
	if ids, err := s.db.ListUnsettledTerminal(); err != nil {
		log.Printf("[sweep] list unsettled events: %v", err)
	} else {
		for _, id := range ids {
			e, err := s.db.GetEvent(id)
			if err != nil {
				log.Printf("[sweep] load event %s: %v", id, err)
				continue
			}
			if err := s.settleAndMark(ctx, e); err != nil {
				log.Printf("[sweep] settle event %s: %v", id, err)
			}
		}
	}

	// Feedback timeouts: treat silence as not_interested after 72h.
	cutoff := now.Add(-domain.FeedbackWindow)
	if ids, err := s.db.ListCompletedUndecided(cutoff); err != nil {
		log.Printf("[sweep] list undecided feedback: %v", err)
	} else {
		for _, id := range ids {
			e, err := s.db.GetEvent(id)
			if err != nil {
				log.Printf("[sweep] load event %s: %v", id, err)
				continue
			}
			if err := s.decideMutualInterest(ctx, e, true); err != nil {
				log.Printf("[sweep] decide feedback for event %s: %v", id, err)
			}
		}
	}
}

func (s *Service) dueIDs(list func(time.Time) ([]string, error), now time.Time) []string {
	ids, err := list(now)
	if err != nil {
		log.Printf("[sweep] list due events: %v", err)
		return nil
	}
	return ids
}

func (s *Service) advanceByID(ctx context.Context, id string) {
	e, err := s.db.GetEvent(id)
	if err != nil {
		log.Printf("[sweep] load event %s: %v", id, err)
		return
	}
	if _, err := s.advanceToDue(ctx, e); err != nil {
		log.Printf("[sweep] advance event %s: %v", id, err)
	}
}

// alertIfDelayed tells both participants resolution is pending when a LIVE
// event sits unresolved well past its window close. Sent at most once,
// recorded in the warnings log under threshold 0.
func (s *Service) alertIfDelayed(ctx context.Context, e *domain.SpeedDateEvent) {
	if s.clock.Now().Before(e.ResolveAfter().Add(s.cfg.ResolutionAlertSlack)) {
		return
	}
	sent, err := s.db.MarkWarningSent(e.ID, 0, s.clock.Now())
	if err != nil || !sent {
		return
	}
	s.notifier.Publish(ctx, domain.NotifyResolutionDelayed, map[string]interface{}{
		"event_id":     e.ID,
		"participants": []string{e.ParticipantA, e.ParticipantB},
	})
}
