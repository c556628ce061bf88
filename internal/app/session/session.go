// Package session tracks presence during a live speed date: server-observed
// join instants, accrued attendance, early exits, and countdown warnings.
// The tracker observes and classifies; it never moves the event's state —
// it returns decisions the lifecycle aggregate applies.
package session

import (
	"context"
	"fmt"

	"github.com/firstdate-app/firstdate/internal/domain"
	"github.com/firstdate-app/firstdate/internal/infra/sqlite"
)

// WarningThresholds are the seconds-remaining marks at which a countdown
// warning is pushed to both participants. Each fires at most once per event,
// recorded in the call_warnings log so a restart never re-sends.
var WarningThresholds = []int{300, 60, 30, 10}

// Tracker records and classifies call presence.
type Tracker struct {
	db       *sqlite.DB
	clock    domain.Clock
	notifier domain.Notifier
}

// NewTracker creates a call session tracker.
func NewTracker(db *sqlite.DB, clock domain.Clock, notifier domain.Notifier) *Tracker {
	return &Tracker{db: db, clock: clock, notifier: notifier}
}

// Join records the participant's join. The instant is taken from the
// tracker's clock: client-reported times are never trusted.
func (t *Tracker) Join(e *domain.SpeedDateEvent, userID string) error {
	now := t.clock.Now()
	if now.Before(e.EventTime) {
		return fmt.Errorf("%w: call has not opened yet", domain.ErrValidation)
	}
	return t.db.RecordJoin(e.ID, userID, now)
}

// ExitResult is what the tracker decided about an early exit.
type ExitResult struct {
	AttendedSeconds int64
	// AmbiguousBandFailure is true when the exit landed in the 120–300 s
	// band AND a corroborated connection failure covers the live window.
	// The aggregate resolves the event as a system failure in response.
	AmbiguousBandFailure bool
	// Escalate is true for safety/conduct reasons; routing to trust and
	// safety is independent of credit settlement.
	Escalate bool
}

// Exit records an early exit and classifies it. The free-text detail is
// mandatory: a reason with no explanation is rejected before any state
// change.
func (t *Tracker) Exit(e *domain.SpeedDateEvent, userID string, reason domain.ExitReason, detail string) (*ExitResult, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: unknown exit reason %q", domain.ErrValidation, reason)
	}
	if len(detail) < domain.MinExitDetailLen {
		return nil, fmt.Errorf("%w: exit detail must be at least %d characters", domain.ErrValidation, domain.MinExitDetailLen)
	}

	row, err := t.db.GetJoinRow(e.ID, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotJoined
	}

	now := t.clock.Now()
	attended := int64(now.Sub(row.JoinedAt).Seconds())
	if max := int64(domain.CallDuration.Seconds()); attended > max {
		attended = max
	}
	if attended < 0 {
		attended = 0
	}
	if err := t.db.RecordExit(e.ID, userID, now, reason, detail, attended); err != nil {
		return nil, err
	}

	res := &ExitResult{AttendedSeconds: attended, Escalate: reason.Escalate()}
	if reason == domain.ExitTechnical &&
		attended >= domain.MinAttendSeconds && attended < domain.FullAttendSeconds {
		verified, err := t.db.HasVerifiedFailure(e.ID, e.EventTime, e.ResolveAfter())
		if err != nil {
			return nil, err
		}
		res.AmbiguousBandFailure = verified
	}
	return res, nil
}

// AttendanceAt derives both participants' attendance as of the live window
// close, for resolution. A participant still in the call counts the full
// span from their join to the window close.
func (t *Tracker) AttendanceAt(e *domain.SpeedDateEvent) (a, b domain.Attendance, err error) {
	verified, err := t.db.HasVerifiedFailure(e.ID, e.EventTime, e.ResolveAfter())
	if err != nil {
		return a, b, err
	}
	a, err = t.attendanceFor(e, e.ParticipantA, verified)
	if err != nil {
		return a, b, err
	}
	b, err = t.attendanceFor(e, e.ParticipantB, verified)
	return a, b, err
}

func (t *Tracker) attendanceFor(e *domain.SpeedDateEvent, userID string, failureVerified bool) (domain.Attendance, error) {
	row, err := t.db.GetJoinRow(e.ID, userID)
	if err != nil {
		return domain.Attendance{}, err
	}
	if row == nil {
		return domain.Attendance{}, nil
	}

	att := domain.Attendance{Joined: true}
	if !row.LeftAt.IsZero() {
		att.Exited = true
		att.AttendedSeconds = row.AttendedSeconds
		// Corroboration only ever applies to a technical-failure exit.
		att.FailureVerified = failureVerified && domain.ExitReason(row.ExitReason) == domain.ExitTechnical
	} else {
		att.AttendedSeconds = int64(e.ResolveAfter().Sub(row.JoinedAt).Seconds())
	}
	return att, nil
}

// EmitWarnings sends any countdown warnings the live event has crossed.
// Thresholds already on record are skipped, so sweeps are idempotent.
func (t *Tracker) EmitWarnings(ctx context.Context, e *domain.SpeedDateEvent) error {
	remaining := int(e.ResolveAfter().Sub(t.clock.Now()).Seconds())
	for _, threshold := range WarningThresholds {
		if remaining > threshold {
			continue
		}
		sent, err := t.db.MarkWarningSent(e.ID, threshold, t.clock.Now())
		if err != nil {
			return err
		}
		if sent {
			t.notifier.Publish(ctx, domain.NotifyCallWarning, map[string]interface{}{
				"event_id":          e.ID,
				"seconds_remaining": threshold,
				"participants":      []string{e.ParticipantA, e.ParticipantB},
			})
		}
	}
	return nil
}
