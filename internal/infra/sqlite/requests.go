package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Request Operations ─────────────────────────────────────────────────────

// InsertRequest stores a new speed-date request.
func (db *DB) InsertRequest(r *domain.SpeedDateRequest) error {
	slots, err := json.Marshal(r.ProposedSlots)
	if err != nil {
		return fmt.Errorf("marshal slots: %w", err)
	}
	_, err = db.db.Exec(`
		INSERT INTO speed_date_requests (id, requester_id, recipient_id, slots_json, cost, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RequesterID, r.RecipientID, string(slots), r.Cost, string(r.Status), fmtTime(r.CreatedAt), fmtTime(r.ExpiresAt))
	return err
}

// GetRequest retrieves a request by id.
func (db *DB) GetRequest(id string) (*domain.SpeedDateRequest, error) {
	var r domain.SpeedDateRequest
	var slotsJSON, status, createdStr, expiresStr string
	err := db.db.QueryRow(`
		SELECT id, requester_id, recipient_id, slots_json, cost, status, created_at, expires_at
		FROM speed_date_requests WHERE id = ?
	`, id).Scan(&r.ID, &r.RequesterID, &r.RecipientID, &slotsJSON, &r.Cost, &status, &createdStr, &expiresStr)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(slotsJSON), &r.ProposedSlots); err != nil {
		return nil, fmt.Errorf("unmarshal slots: %w", err)
	}
	r.Status = domain.RequestStatus(status)
	r.CreatedAt = parseTime(createdStr)
	r.ExpiresAt = parseTime(expiresStr)
	return &r, nil
}

// SettleRequest moves a SENT request to a terminal status. It guards on the
// SENT status so racing settlers cannot both win; the loser gets
// ErrRequestSettled.
func (db *DB) SettleRequest(id string, to domain.RequestStatus) error {
	res, err := db.db.Exec(`
		UPDATE speed_date_requests SET status = ? WHERE id = ? AND status = 'SENT'
	`, string(to), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from already-settled.
		if _, err := db.GetRequest(id); err != nil {
			return err
		}
		return domain.ErrRequestSettled
	}
	return nil
}

// SettleRequestRefund settles a SENT request and writes the refund in one
// transaction, so a terminal status is never persisted without the credits
// that go with it. Guards on SENT exactly like SettleRequest.
func (db *DB) SettleRequestRefund(id string, to domain.RequestStatus, userID string, amount int64, reason domain.LedgerReason, now time.Time) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE speed_date_requests SET status = ? WHERE id = ? AND status = 'SENT'
	`, string(to), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		tx.Rollback()
		if _, err := db.GetRequest(id); err != nil {
			return err
		}
		return domain.ErrRequestSettled
	}

	if _, err := applyTx(tx, userID, id, amount, reason, now, false); err != nil {
		return err
	}
	return tx.Commit()
}

// ListExpiredSent returns SENT requests whose answer deadline has passed.
// The sweeper expires and refunds them.
func (db *DB) ListExpiredSent(now time.Time) ([]string, error) {
	rows, err := db.db.Query(`
		SELECT id FROM speed_date_requests WHERE status = 'SENT' AND expires_at <= ?
	`, fmtTime(now))
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
