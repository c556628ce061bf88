package domain

import (
	"fmt"
	"time"
)

// ─── Credit Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules: every
// credit movement is an immutable ledger row, and settlement must be
// reconstructible from the ledger alone.

// LedgerReason is the business reason for a credit movement.
type LedgerReason string

const (
	ReasonRequestHold    LedgerReason = "REQUEST_HOLD"    // debit requester at request time
	ReasonAcceptHold     LedgerReason = "ACCEPT_HOLD"     // debit recipient at accept time
	ReasonDeclineRefund  LedgerReason = "DECLINE_REFUND"  // requester made whole on decline
	ReasonExpireRefund   LedgerReason = "EXPIRE_REFUND"   // requester made whole on expiry
	ReasonWithdrawRefund LedgerReason = "WITHDRAW_REFUND" // requester withdrew a SENT request
	ReasonAcceptReversal LedgerReason = "ACCEPT_REVERSAL" // accept hold handed back after losing the settle race
	ReasonCancelRefund   LedgerReason = "CANCEL_REFUND"   // holds returned on pre-lock cancel
	ReasonNoShowRefund   LedgerReason = "NOSHOW_REFUND"   // attending party made whole
	ReasonSystemRefund   LedgerReason = "SYSTEM_REFUND"   // both made whole on infra failure
	ReasonTopUp          LedgerReason = "TOPUP"           // purchased credits
)

// LedgerEntry is a single immutable row in the credit ledger. Amount is
// signed: debits are negative, credits positive.
type LedgerEntry struct {
	ID             int64        `json:"id"`
	UserID         string       `json:"user_id"`
	ScopeID        string       `json:"scope_id"` // request id, event id, or charge id
	Amount         int64        `json:"amount"`
	Reason         LedgerReason `json:"reason"`
	IdempotencyKey string       `json:"idempotency_key"`
	CreatedAt      time.Time    `json:"created_at"`
}

// IdemKey derives the idempotency key for a settlement operation. At most one
// entry per (scope, user, reason) can ever exist, which is what makes retried
// settlement exactly-once.
func IdemKey(scopeID, userID string, reason LedgerReason) string {
	return fmt.Sprintf("%s:%s:%s", scopeID, userID, reason)
}
