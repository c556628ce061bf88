package sqlite

import (
	"database/sql"
	"time"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Event Operations ───────────────────────────────────────────────────────

// InsertEvent stores a freshly confirmed event at version 1.
func (db *DB) InsertEvent(e *domain.SpeedDateEvent) error {
	_, err := db.db.Exec(`
		INSERT INTO speed_date_events (id, request_id, participant_a, participant_b, event_time, lock_time, state, credits_escrowed, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, e.ID, e.RequestID, e.ParticipantA, e.ParticipantB,
		fmtTime(e.EventTime), fmtTime(e.LockTime), string(e.State), e.CreditsEscrowed, fmtTime(e.CreatedAt))
	return err
}

// GetEvent retrieves an event by id.
func (db *DB) GetEvent(id string) (*domain.SpeedDateEvent, error) {
	var e domain.SpeedDateEvent
	var state, eventStr, lockStr, createdStr string
	var resolvedStr, settledStr sql.NullString
	err := db.db.QueryRow(`
		SELECT id, request_id, participant_a, participant_b, event_time, lock_time, state, credits_escrowed, version, created_at, resolved_at, settled_at
		FROM speed_date_events WHERE id = ?
	`, id).Scan(&e.ID, &e.RequestID, &e.ParticipantA, &e.ParticipantB,
		&eventStr, &lockStr, &state, &e.CreditsEscrowed, &e.Version, &createdStr, &resolvedStr, &settledStr)
	if err == sql.ErrNoRows {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	e.State = domain.EventState(state)
	e.EventTime = parseTime(eventStr)
	e.LockTime = parseTime(lockStr)
	e.CreatedAt = parseTime(createdStr)
	e.ResolvedAt = parseNullTime(resolvedStr)
	e.SettledAt = parseNullTime(settledStr)
	return &e, nil
}

// MarkSettled stamps the event settled once all of its terminal-state ledger
// entries and strikes have landed. Idempotent: the first stamp wins.
func (db *DB) MarkSettled(id string, now time.Time) error {
	_, err := db.db.Exec(`
		UPDATE speed_date_events SET settled_at = ? WHERE id = ? AND settled_at IS NULL
	`, fmtTime(now), id)
	return err
}

// ApplyTransition moves an event from its version-e.Version state to `to`,
// bumping the version. Zero rows affected means another writer got there
// first: the caller receives ErrConcurrentModification and must re-read.
// Transition legality is the aggregate's job; this only enforces the
// single-writer discipline.
func (db *DB) ApplyTransition(e *domain.SpeedDateEvent, to domain.EventState, now time.Time) error {
	var resolved interface{}
	if to.Terminal() {
		resolved = fmtTime(now)
	}
	res, err := db.db.Exec(`
		UPDATE speed_date_events
		SET state = ?, version = version + 1, resolved_at = COALESCE(?, resolved_at)
		WHERE id = ? AND version = ?
	`, string(to), resolved, e.ID, e.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentModification
	}
	e.State = to
	e.Version++
	if to.Terminal() {
		e.ResolvedAt = now
	}
	return nil
}

// ─── Due-work queries (restart-safe timers) ─────────────────────────────────
// Every deadline is derived from persisted timestamps, so a sweep after a
// missed tick still applies the transition.

// ListEventsToLock returns SCHEDULED events past their lock boundary.
func (db *DB) ListEventsToLock(now time.Time) ([]string, error) {
	return db.listEventIDs(`SELECT id FROM speed_date_events WHERE state = 'SCHEDULED' AND lock_time <= ?`, fmtTime(now))
}

// ListEventsToStart returns LOCKED events past their start time.
func (db *DB) ListEventsToStart(now time.Time) ([]string, error) {
	return db.listEventIDs(`SELECT id FROM speed_date_events WHERE state = 'LOCKED' AND event_time <= ?`, fmtTime(now))
}

// ListLiveEvents returns all LIVE events.
func (db *DB) ListLiveEvents() ([]string, error) {
	return db.listEventIDs(`SELECT id FROM speed_date_events WHERE state = 'LIVE'`)
}

// ListUnsettledTerminal returns terminal events whose settlement never
// completed, such as a crash between the terminal transition and the ledger
// write. The sweeper re-drives them.
func (db *DB) ListUnsettledTerminal() ([]string, error) {
	return db.listEventIDs(`
		SELECT id FROM speed_date_events
		WHERE settled_at IS NULL AND state NOT IN ('SCHEDULED', 'LOCKED', 'LIVE')
	`)
}

// ListCompletedUndecided returns COMPLETED events resolved before cutoff that
// still have no mutual-interest decision. The sweeper treats the missing
// feedback as not_interested.
func (db *DB) ListCompletedUndecided(cutoff time.Time) ([]string, error) {
	return db.listEventIDs(`
		SELECT e.id FROM speed_date_events e
		LEFT JOIN messaging_unlocks m ON m.event_id = e.id
		WHERE e.state = 'COMPLETED' AND e.resolved_at <= ? AND m.event_id IS NULL
	`, fmtTime(cutoff))
}

func (db *DB) listEventIDs(query string, args ...interface{}) ([]string, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─── Join Log Operations ────────────────────────────────────────────────────

// JoinRow is one participant's server-observed presence during the live window.
type JoinRow struct {
	EventID         string
	UserID          string
	JoinedAt        time.Time
	LeftAt          time.Time // zero if still present at window close
	ExitReason      string
	ExitDetail      string
	AttendedSeconds int64
}

// RecordJoin writes the server-observed join instant. A second join for the
// same participant returns ErrAlreadyJoined; the first timestamp is the one
// that counts.
func (db *DB) RecordJoin(eventID, userID string, at time.Time) error {
	res, err := db.db.Exec(`
		INSERT OR IGNORE INTO join_log (event_id, user_id, joined_at) VALUES (?, ?, ?)
	`, eventID, userID, fmtTime(at))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyJoined
	}
	return nil
}

// RecordExit writes the exit instant, reason, and accrued attendance for a
// joined participant. Only the first exit is recorded.
func (db *DB) RecordExit(eventID, userID string, at time.Time, reason domain.ExitReason, detail string, attendedSeconds int64) error {
	res, err := db.db.Exec(`
		UPDATE join_log
		SET left_at = ?, exit_reason = ?, exit_detail = ?, attended_seconds = ?
		WHERE event_id = ? AND user_id = ? AND left_at IS NULL
	`, fmtTime(at), string(reason), detail, attendedSeconds, eventID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotJoined
	}
	return nil
}

// GetJoinRow returns the join-log row for one participant, or nil if the
// participant never joined.
func (db *DB) GetJoinRow(eventID, userID string) (*JoinRow, error) {
	var r JoinRow
	var joinedStr string
	var leftStr, reason, detail sql.NullString
	err := db.db.QueryRow(`
		SELECT event_id, user_id, joined_at, left_at, exit_reason, exit_detail, attended_seconds
		FROM join_log WHERE event_id = ? AND user_id = ?
	`, eventID, userID).Scan(&r.EventID, &r.UserID, &joinedStr, &leftStr, &reason, &detail, &r.AttendedSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.JoinedAt = parseTime(joinedStr)
	r.LeftAt = parseNullTime(leftStr)
	r.ExitReason = reason.String
	r.ExitDetail = detail.String
	return &r, nil
}

// ─── Countdown Warnings ─────────────────────────────────────────────────────

// MarkWarningSent records that the countdown warning at thresholdSeconds was
// emitted for the event. Returns false if it was already on record, so a
// restarted sweeper never re-sends.
func (db *DB) MarkWarningSent(eventID string, thresholdSeconds int, now time.Time) (bool, error) {
	res, err := db.db.Exec(`
		INSERT OR IGNORE INTO call_warnings (event_id, threshold_seconds, sent_at) VALUES (?, ?, ?)
	`, eventID, thresholdSeconds, fmtTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ─── Connection Reports ─────────────────────────────────────────────────────

// InsertConnectionReport stores a connection-quality report from the
// signaling relay. Reports feed the UI and corroborate technical-failure
// exits; they never drive settlement on their own.
func (db *DB) InsertConnectionReport(eventID, reporter, quality, detail string, at time.Time) error {
	_, err := db.db.Exec(`
		INSERT INTO connection_reports (event_id, reporter, quality, detail, reported_at)
		VALUES (?, ?, ?, ?, ?)
	`, eventID, reporter, quality, detail, fmtTime(at))
	return err
}

// HasVerifiedFailure reports whether a failed-connection report exists for
// the event inside [from, to].
func (db *DB) HasVerifiedFailure(eventID string, from, to time.Time) (bool, error) {
	var count int
	err := db.db.QueryRow(`
		SELECT COUNT(*) FROM connection_reports
		WHERE event_id = ? AND quality = 'failed' AND reported_at >= ? AND reported_at <= ?
	`, eventID, fmtTime(from), fmtTime(to)).Scan(&count)
	return count > 0, err
}
