package domain

import "time"

// ─── Feedback & Mutual Interest ─────────────────────────────────────────────

// InterestLevel is a participant's post-call decision.
type InterestLevel string

const (
	Interested    InterestLevel = "interested"
	Maybe         InterestLevel = "maybe"
	NotInterested InterestLevel = "not_interested"
)

// Valid reports whether the level is a known value.
func (l InterestLevel) Valid() bool {
	switch l {
	case Interested, Maybe, NotInterested:
		return true
	}
	return false
}

// FeedbackWindow is how long after completion a participant may submit
// feedback. Past it, silence counts as not_interested.
const FeedbackWindow = 72 * time.Hour

// FeedbackRecord is one participant's post-call decision.
type FeedbackRecord struct {
	EventID     string        `json:"event_id"`
	UserID      string        `json:"user_id"`
	Interest    InterestLevel `json:"interest"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// MutualInterest is true iff both decisions are `interested`. It must only
// ever be computed from two records — never from one side alone.
func MutualInterest(a, b FeedbackRecord) bool {
	return a.Interest == Interested && b.Interest == Interested
}
