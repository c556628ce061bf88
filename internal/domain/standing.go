package domain

import "time"

// ─── Account Standing ───────────────────────────────────────────────────────
// Standing is derived, never stored: it is a pure function of the user's
// no-show count inside a rolling window.

// StandingTier classifies a user's account standing.
type StandingTier string

const (
	TierNormal       StandingTier = "NORMAL"
	TierWarned       StandingTier = "WARNED"
	TierWarnedStrong StandingTier = "WARNED_STRONG"
	TierUnderReview  StandingTier = "UNDER_REVIEW"
	TierSuspended    StandingTier = "SUSPENDED"
)

// StandingWindow is the rolling window over which no-show strikes count.
// Strikes age out automatically; suspension still needs manual reinstatement.
const StandingWindow = 180 * 24 * time.Hour

// UserStanding is the result of the no-show policy for one user.
type UserStanding struct {
	NoShowCount    int          `json:"no_show_count"`
	Tier           StandingTier `json:"tier"`
	BookingAllowed bool         `json:"booking_allowed"`
	Message        string       `json:"message,omitempty"`
}

// Standing maps a no-show count to a standing tier and the booking
// restriction it implies.
func Standing(noShowCount int) UserStanding {
	s := UserStanding{NoShowCount: noShowCount, BookingAllowed: true}
	switch {
	case noShowCount <= 0:
		s.Tier = TierNormal
	case noShowCount == 1:
		s.Tier = TierWarned
		s.Message = "You missed a speed date. Repeated no-shows restrict your account."
	case noShowCount == 2:
		s.Tier = TierWarnedStrong
		s.Message = "You have missed two speed dates. One more puts your account under review."
	case noShowCount == 3:
		s.Tier = TierUnderReview
		s.Message = "Your account is under review for repeated no-shows. Another no-show suspends booking."
	default:
		s.Tier = TierSuspended
		s.BookingAllowed = false
		s.Message = "Booking is suspended until your account is manually reinstated."
	}
	return s
}
