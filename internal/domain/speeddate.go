// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Request Types ──────────────────────────────────────────────────────────

// RequestStatus is the lifecycle status of a speed-date request.
// SENT is the only non-terminal status.
type RequestStatus string

const (
	RequestSent      RequestStatus = "SENT"
	RequestAccepted  RequestStatus = "ACCEPTED"
	RequestDeclined  RequestStatus = "DECLINED"
	RequestExpired   RequestStatus = "EXPIRED"
	RequestCancelled RequestStatus = "CANCELLED_BY_REQUESTER"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool { return s != RequestSent }

// Slot is one proposed date/time for a speed date.
type Slot struct {
	Start time.Time `json:"start"`
}

// RequestTTL is how long a request waits for an answer before expiring.
const RequestTTL = 48 * time.Hour

// SpeedDateRequest is a proposal before mutual confirmation. The requester's
// escrow is held the moment the request is created.
type SpeedDateRequest struct {
	ID            string        `json:"id"`
	RequesterID   string        `json:"requester_id"`
	RecipientID   string        `json:"recipient_id"`
	ProposedSlots []Slot        `json:"proposed_slots"`
	Cost          int64         `json:"cost"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// HasSlot reports whether t matches one of the proposed slots.
func (r *SpeedDateRequest) HasSlot(t time.Time) bool {
	for _, s := range r.ProposedSlots {
		if s.Start.Equal(t) {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the request is past its answer deadline at now.
func (r *SpeedDateRequest) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ─── Event Types ────────────────────────────────────────────────────────────

// EventState is the lifecycle state of a confirmed speed-date event.
type EventState string

const (
	EventScheduled EventState = "SCHEDULED"
	EventLocked    EventState = "LOCKED"
	EventLive      EventState = "LIVE"

	// Terminal resolutions. The NOSHOW suffix names the absent participant.
	EventCompleted          EventState = "COMPLETED"
	EventCompletedNoShowA   EventState = "COMPLETED_NOSHOW_A"
	EventCompletedNoShowB   EventState = "COMPLETED_NOSHOW_B"
	EventMutualNoShow       EventState = "CANCELLED_MUTUAL_NOSHOW"
	EventSystemFailure      EventState = "CANCELLED_SYSTEM_FAILURE"
	EventCancelledByUser    EventState = "CANCELLED_USER"
)

// Terminal reports whether the state admits no further transitions.
func (s EventState) Terminal() bool {
	switch s {
	case EventScheduled, EventLocked, EventLive:
		return false
	}
	return true
}

// CanTransition reports whether from → to is a legal step of the state
// machine. No transition may skip an intermediate state: SCHEDULED reaches
// COMPLETED only through LOCKED and LIVE.
func CanTransition(from, to EventState) bool {
	switch from {
	case EventScheduled:
		return to == EventLocked || to == EventCancelledByUser
	case EventLocked:
		return to == EventLive || to == EventCancelledByUser
	case EventLive:
		switch to {
		case EventCompleted, EventCompletedNoShowA, EventCompletedNoShowB,
			EventMutualNoShow, EventSystemFailure:
			return true
		}
	}
	return false
}

// Timing constants for a speed-date event.
const (
	// LockLead is how long before the event cancellation closes.
	LockLead = 24 * time.Hour

	// CallDuration is the length of the live window. It doubles as the join
	// grace period: resolution happens when the window closes.
	CallDuration = 10 * time.Minute
)

// SpeedDateEvent is created the instant a request is accepted. The aggregate
// is the sole writer of State; collaborators return decisions it applies.
type SpeedDateEvent struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"request_id"`
	ParticipantA    string     `json:"participant_a"` // the requester
	ParticipantB    string     `json:"participant_b"` // the recipient
	EventTime       time.Time  `json:"event_time"`
	LockTime        time.Time  `json:"lock_time"` // EventTime - LockLead, fixed at creation
	State           EventState `json:"state"`
	CreditsEscrowed int64      `json:"credits_escrowed"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      time.Time  `json:"resolved_at,omitempty"`

	// SettledAt is stamped only after every ledger entry and strike for the
	// terminal state has landed. A terminal event without it is re-driven by
	// the sweep.
	SettledAt time.Time `json:"settled_at,omitempty"`
}

// Participant reports whether userID is one of the two parties.
func (e *SpeedDateEvent) Participant(userID string) bool {
	return userID == e.ParticipantA || userID == e.ParticipantB
}

// Counterpart returns the other participant's id, or "" if userID is not a
// participant.
func (e *SpeedDateEvent) Counterpart(userID string) string {
	switch userID {
	case e.ParticipantA:
		return e.ParticipantB
	case e.ParticipantB:
		return e.ParticipantA
	}
	return ""
}

// ResolveAfter is the instant the live window closes and the event must be
// resolved.
func (e *SpeedDateEvent) ResolveAfter() time.Time {
	return e.EventTime.Add(CallDuration)
}

// Cancellable reports whether a user cancel is still accepted at now.
// After the lock boundary the cancel must be rejected, never applied.
func (e *SpeedDateEvent) Cancellable(now time.Time) bool {
	return now.Before(e.LockTime)
}

// ─── Resolution ─────────────────────────────────────────────────────────────

// Attendance summarizes what the call session tracker observed for one
// participant by the time the live window closed.
type Attendance struct {
	Joined          bool
	AttendedSeconds int64
	Exited          bool // left before the window closed
	FailureVerified bool // corroborated connection-failure report on record
}

// Attendance classification bands for an early exit.
const (
	// MinAttendSeconds: below this an exit counts as never having attended.
	MinAttendSeconds = 120
	// FullAttendSeconds: at or past this an exit counts as full attendance.
	FullAttendSeconds = 300
)

// Attended reports whether this participant counts as having attended.
// A participant still in the call when the window closes always counts.
// An exited participant counts only past the full-attendance threshold —
// the ambiguous band below it is handled by ResolveOutcome, which needs the
// corroborating signal.
func (a Attendance) Attended() bool {
	if !a.Joined {
		return false
	}
	if !a.Exited {
		return true
	}
	return a.AttendedSeconds >= FullAttendSeconds
}

// ResolveOutcome classifies a LIVE event at window close into its terminal
// state. Pure: the aggregate applies the returned state.
//
// An exit inside the ambiguous band (120–300 s) resolves the whole event as
// a system failure when a corroborated connection-failure report exists for
// the window — the infrastructure failed for both sides, so both are made
// whole. Without corroboration the band forfeits exactly like an exit below
// the minimum threshold.
func ResolveOutcome(a, b Attendance) EventState {
	if !a.Joined && !b.Joined {
		return EventMutualNoShow
	}
	if ambiguousBandFailure(a) || ambiguousBandFailure(b) {
		return EventSystemFailure
	}
	aAttended, bAttended := a.Attended(), b.Attended()
	switch {
	case aAttended && bAttended:
		return EventCompleted
	case aAttended:
		return EventCompletedNoShowB
	case bAttended:
		return EventCompletedNoShowA
	default:
		return EventMutualNoShow
	}
}

func ambiguousBandFailure(a Attendance) bool {
	return a.Joined && a.Exited &&
		a.AttendedSeconds >= MinAttendSeconds &&
		a.AttendedSeconds < FullAttendSeconds &&
		a.FailureVerified
}

// ─── Exit Reasons ───────────────────────────────────────────────────────────

// ExitReason codes why a participant left a live call early.
type ExitReason string

const (
	ExitTechnical ExitReason = "technical"
	ExitPersonal  ExitReason = "personal"
	ExitSafety    ExitReason = "safety"
)

// Valid reports whether the reason code is known.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitTechnical, ExitPersonal, ExitSafety:
		return true
	}
	return false
}

// Escalate reports whether the reason must additionally be routed to the
// trust-and-safety collaborator, independent of credit settlement.
func (r ExitReason) Escalate() bool { return r == ExitSafety }

// MinExitDetailLen is the minimum free-text explanation required with an
// early exit. A reason with no explanation is rejected.
const MinExitDetailLen = 20
