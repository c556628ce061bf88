package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Input and state errors
	ErrValidation         = errors.New("invalid input")
	ErrInvariantViolation = errors.New("transition not allowed from current state")

	// Request errors
	ErrRequestNotFound = errors.New("speed-date request not found")
	ErrRequestExpired  = errors.New("speed-date request has expired")
	ErrRequestSettled  = errors.New("speed-date request already in a terminal state")

	// Event errors
	ErrEventNotFound          = errors.New("speed-date event not found")
	ErrEventLocked            = errors.New("event is past its lock boundary and can no longer be cancelled")
	ErrConcurrentModification = errors.New("event was modified concurrently, re-read and retry")

	// Credit errors
	ErrInsufficientCredits = errors.New("insufficient credit balance")

	// Standing errors
	ErrBookingNotAllowed  = errors.New("account standing does not allow new bookings")
	ErrRecipientSuspended = errors.New("recipient account is suspended")

	// Session errors
	ErrNotJoined         = errors.New("participant has not joined the call")
	ErrAlreadyJoined     = errors.New("participant already joined the call")
	ErrFeedbackSubmitted = errors.New("feedback already submitted for this event")
)
