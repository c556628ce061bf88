package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Credit Ledger Operations ───────────────────────────────────────────────
// Debit and Credit run inside one transaction so no caller ever observes a
// partial update. Idempotency is the row's unique key: a retried operation
// finds the prior entry and returns it unchanged.

// Debit removes amount credits from the user's balance. Fails with
// ErrInsufficientCredits when the balance cannot cover the amount.
func (db *DB) Debit(userID, scopeID string, amount int64, reason domain.LedgerReason, now time.Time) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", domain.ErrValidation)
	}
	return db.apply(userID, scopeID, -amount, reason, now, true)
}

// Credit adds amount credits to the user's balance.
func (db *DB) Credit(userID, scopeID string, amount int64, reason domain.LedgerReason, now time.Time) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}
	return db.apply(userID, scopeID, amount, reason, now, false)
}

func (db *DB) apply(userID, scopeID string, amount int64, reason domain.LedgerReason, now time.Time, checkBalance bool) (*domain.LedgerEntry, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := applyTx(tx, userID, scopeID, amount, reason, now, checkBalance)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// applyTx writes one ledger entry inside the caller's transaction, so a
// status change and its refund can commit atomically.
func applyTx(tx *sql.Tx, userID, scopeID string, amount int64, reason domain.LedgerReason, now time.Time, checkBalance bool) (*domain.LedgerEntry, error) {
	key := domain.IdemKey(scopeID, userID, reason)

	// Retried operation: return the prior result, no new entry.
	if prior, err := getEntryByKey(tx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	if checkBalance {
		var balance sql.NullInt64
		if err := tx.QueryRow(`SELECT SUM(amount) FROM ledger_entries WHERE user_id = ?`, userID).Scan(&balance); err != nil {
			return nil, err
		}
		if balance.Int64+amount < 0 {
			return nil, domain.ErrInsufficientCredits
		}
	}

	entry := &domain.LedgerEntry{
		UserID:         userID,
		ScopeID:        scopeID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: key,
		CreatedAt:      now.UTC(),
	}
	res, err := tx.Exec(`
		INSERT INTO ledger_entries (user_id, scope_id, amount, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.ScopeID, entry.Amount, string(entry.Reason), entry.IdempotencyKey, fmtTime(entry.CreatedAt))
	if err != nil {
		return nil, err
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func getEntryByKey(tx *sql.Tx, key string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var reason, createdStr string
	err := tx.QueryRow(`
		SELECT id, user_id, scope_id, amount, reason, idempotency_key, created_at
		FROM ledger_entries WHERE idempotency_key = ?
	`, key).Scan(&e.ID, &e.UserID, &e.ScopeID, &e.Amount, &reason, &e.IdempotencyKey, &createdStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Reason = domain.LedgerReason(reason)
	e.CreatedAt = parseTime(createdStr)
	return &e, nil
}

// Balance returns the user's current credit balance.
func (db *DB) Balance(userID string) (int64, error) {
	var balance sql.NullInt64
	err := db.db.QueryRow(`SELECT SUM(amount) FROM ledger_entries WHERE user_id = ?`, userID).Scan(&balance)
	return balance.Int64, err
}

// LedgerEntries returns the user's credit movements, newest first.
func (db *DB) LedgerEntries(userID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := db.db.Query(`
		SELECT id, user_id, scope_id, amount, reason, idempotency_key, created_at
		FROM ledger_entries WHERE user_id = ? ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var reason, createdStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ScopeID, &e.Amount, &reason, &e.IdempotencyKey, &createdStr); err != nil {
			return nil, err
		}
		e.Reason = domain.LedgerReason(reason)
		e.CreatedAt = parseTime(createdStr)
		result = append(result, e)
	}
	return result, rows.Err()
}

// EntriesForScope returns all movements tied to one request/event/charge.
func (db *DB) EntriesForScope(scopeID string) ([]domain.LedgerEntry, error) {
	rows, err := db.db.Query(`
		SELECT id, user_id, scope_id, amount, reason, idempotency_key, created_at
		FROM ledger_entries WHERE scope_id = ? ORDER BY id
	`, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var reason, createdStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ScopeID, &e.Amount, &reason, &e.IdempotencyKey, &createdStr); err != nil {
			return nil, err
		}
		e.Reason = domain.LedgerReason(reason)
		e.CreatedAt = parseTime(createdStr)
		result = append(result, e)
	}
	return result, rows.Err()
}
