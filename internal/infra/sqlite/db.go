// Package sqlite persists the speed-date engine's state: requests, events,
// the credit ledger, join logs, feedback, and no-show strikes. Every refund
// and no-show decision must be reconstructible from these rows alone.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the engine database at path and applies
// all migrations. Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serialize writers at the connection level; sqlite allows one writer.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{db: conn}
	for _, stmt := range Migrations() {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Speed-date requests (proposal before mutual confirmation)
		`CREATE TABLE IF NOT EXISTS speed_date_requests (
			id           TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			slots_json   TEXT NOT NULL,
			cost         INTEGER NOT NULL,
			status       TEXT NOT NULL DEFAULT 'SENT',
			created_at   TEXT NOT NULL,
			expires_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status_expiry ON speed_date_requests(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_requester ON speed_date_requests(requester_id)`,

		// Confirmed events; version column backs the compare-and-swap
		`CREATE TABLE IF NOT EXISTS speed_date_events (
			id               TEXT PRIMARY KEY,
			request_id       TEXT NOT NULL,
			participant_a    TEXT NOT NULL,
			participant_b    TEXT NOT NULL,
			event_time       TEXT NOT NULL,
			lock_time        TEXT NOT NULL,
			state            TEXT NOT NULL DEFAULT 'SCHEDULED',
			credits_escrowed INTEGER NOT NULL,
			version          INTEGER NOT NULL DEFAULT 1,
			created_at       TEXT NOT NULL,
			resolved_at      TEXT,
			settled_at       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_state ON speed_date_events(state)`,
		`CREATE INDEX IF NOT EXISTS idx_events_state_time ON speed_date_events(state, event_time)`,

		// Credit ledger; the unique idempotency key makes settlement exactly-once
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         TEXT NOT NULL,
			scope_id        TEXT NOT NULL,
			amount          INTEGER NOT NULL,
			reason          TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_scope ON ledger_entries(scope_id)`,

		// Server-observed join/exit log, one row per participant per event
		`CREATE TABLE IF NOT EXISTS join_log (
			event_id         TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			joined_at        TEXT NOT NULL,
			left_at          TEXT,
			exit_reason      TEXT,
			exit_detail      TEXT,
			attended_seconds INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (event_id, user_id)
		)`,

		// Countdown warnings already emitted, so a restart never re-sends
		`CREATE TABLE IF NOT EXISTS call_warnings (
			event_id          TEXT NOT NULL,
			threshold_seconds INTEGER NOT NULL,
			sent_at           TEXT NOT NULL,
			PRIMARY KEY (event_id, threshold_seconds)
		)`,

		// Connection-quality reports from the signaling relay
		`CREATE TABLE IF NOT EXISTS connection_reports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id    TEXT NOT NULL,
			reporter    TEXT NOT NULL,
			quality     TEXT NOT NULL,
			detail      TEXT DEFAULT '',
			reported_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connection_event ON connection_reports(event_id)`,

		// Post-call feedback, one row per participant per event
		`CREATE TABLE IF NOT EXISTS feedback (
			event_id     TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			interest     TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			PRIMARY KEY (event_id, user_id)
		)`,

		// Mutual-interest decision, written once per completed event
		`CREATE TABLE IF NOT EXISTS messaging_unlocks (
			event_id   TEXT PRIMARY KEY,
			unlocked   INTEGER NOT NULL,
			decided_at TEXT NOT NULL
		)`,

		// No-show strikes; at most one per user per event
		`CREATE TABLE IF NOT EXISTS no_show_strikes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			event_id    TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			UNIQUE(user_id, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strikes_user ON no_show_strikes(user_id, recorded_at)`,

		// Manual reinstatements: strikes before the latest override stop counting
		`CREATE TABLE IF NOT EXISTS standing_overrides (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			cleared_at TEXT NOT NULL,
			note       TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_user ON standing_overrides(user_id, cleared_at)`,
	}
}

// ─── Timestamp helpers ──────────────────────────────────────────────────────

// timeLayout keeps a fixed fractional width so that the text timestamps
// compare correctly in SQL range predicates. RFC3339Nano would trim trailing
// zeros and break lexicographic ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	return parseTime(s.String)
}
