package sqlite

import (
	"database/sql"
	"time"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Feedback Operations ────────────────────────────────────────────────────

// InsertFeedback stores one participant's post-call decision. A second
// submission for the same participant returns ErrFeedbackSubmitted.
func (db *DB) InsertFeedback(fb domain.FeedbackRecord) error {
	res, err := db.db.Exec(`
		INSERT OR IGNORE INTO feedback (event_id, user_id, interest, submitted_at)
		VALUES (?, ?, ?, ?)
	`, fb.EventID, fb.UserID, string(fb.Interest), fmtTime(fb.SubmittedAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrFeedbackSubmitted
	}
	return nil
}

// GetFeedback returns one participant's feedback, or nil if not submitted.
func (db *DB) GetFeedback(eventID, userID string) (*domain.FeedbackRecord, error) {
	var fb domain.FeedbackRecord
	var interest, submittedStr string
	err := db.db.QueryRow(`
		SELECT event_id, user_id, interest, submitted_at FROM feedback
		WHERE event_id = ? AND user_id = ?
	`, eventID, userID).Scan(&fb.EventID, &fb.UserID, &interest, &submittedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fb.Interest = domain.InterestLevel(interest)
	fb.SubmittedAt = parseTime(submittedStr)
	return &fb, nil
}

// SetMessagingUnlock records the mutual-interest decision. First write wins;
// the decision is computed once and never revised.
func (db *DB) SetMessagingUnlock(eventID string, unlocked bool, now time.Time) (bool, error) {
	v := 0
	if unlocked {
		v = 1
	}
	res, err := db.db.Exec(`
		INSERT OR IGNORE INTO messaging_unlocks (event_id, unlocked, decided_at) VALUES (?, ?, ?)
	`, eventID, v, fmtTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetMessagingUnlock returns (unlocked, decided). decided is false while the
// resolver is still waiting on feedback.
func (db *DB) GetMessagingUnlock(eventID string) (unlocked, decided bool, err error) {
	var v int
	err = db.db.QueryRow(`SELECT unlocked FROM messaging_unlocks WHERE event_id = ?`, eventID).Scan(&v)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == 1, true, nil
}

// ─── No-Show Strikes ────────────────────────────────────────────────────────

// AddStrike records a no-show against the user for the event. Idempotent:
// re-resolving an event never double-counts. Returns false when the strike
// was already on record.
func (db *DB) AddStrike(userID, eventID string, now time.Time) (bool, error) {
	res, err := db.db.Exec(`
		INSERT OR IGNORE INTO no_show_strikes (user_id, event_id, recorded_at) VALUES (?, ?, ?)
	`, userID, eventID, fmtTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// StrikeCount counts the user's strikes inside the rolling window, ignoring
// anything before the latest manual reinstatement.
func (db *DB) StrikeCount(userID string, now time.Time) (int, error) {
	since := now.Add(-domain.StandingWindow)

	var overrideStr sql.NullString
	err := db.db.QueryRow(`
		SELECT MAX(cleared_at) FROM standing_overrides WHERE user_id = ?
	`, userID).Scan(&overrideStr)
	if err != nil {
		return 0, err
	}
	if overrideStr.Valid {
		if cleared := parseTime(overrideStr.String); cleared.After(since) {
			since = cleared
		}
	}

	var count int
	err = db.db.QueryRow(`
		SELECT COUNT(*) FROM no_show_strikes WHERE user_id = ? AND recorded_at > ?
	`, userID, fmtTime(since)).Scan(&count)
	return count, err
}

// InsertStandingOverride records a manual reinstatement: strikes recorded at
// or before cleared_at stop counting toward standing.
func (db *DB) InsertStandingOverride(userID, note string, now time.Time) error {
	_, err := db.db.Exec(`
		INSERT INTO standing_overrides (user_id, cleared_at, note) VALUES (?, ?, ?)
	`, userID, fmtTime(now), note)
	return err
}
