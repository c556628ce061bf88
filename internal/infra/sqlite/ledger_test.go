package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/firstdate-app/firstdate/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLedger_DebitCredit(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Credit("alice", "charge-1", 500, domain.ReasonTopUp, testNow); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	if _, err := db.Debit("alice", "req-1", 200, domain.ReasonRequestHold, testNow); err != nil {
		t.Fatalf("Debit() error: %v", err)
	}

	balance, err := db.Balance("alice")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 300 {
		t.Errorf("Balance = %d, want 300", balance)
	}
}

func TestLedger_InsufficientCredits(t *testing.T) {
	db := newTestDB(t)
	db.Credit("bob", "charge-1", 100, domain.ReasonTopUp, testNow)

	_, err := db.Debit("bob", "req-1", 200, domain.ReasonRequestHold, testNow)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Errorf("Debit() error = %v, want ErrInsufficientCredits", err)
	}

	// The failed debit must not have moved anything.
	balance, _ := db.Balance("bob")
	if balance != 100 {
		t.Errorf("Balance = %d, want 100 after rejected debit", balance)
	}
}

func TestLedger_IdempotentRetry(t *testing.T) {
	db := newTestDB(t)
	db.Credit("carol", "charge-1", 500, domain.ReasonTopUp, testNow)

	first, err := db.Debit("carol", "req-1", 200, domain.ReasonRequestHold, testNow)
	if err != nil {
		t.Fatal(err)
	}
	retry, err := db.Debit("carol", "req-1", 200, domain.ReasonRequestHold, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("retried Debit() error: %v", err)
	}
	if retry.ID != first.ID {
		t.Errorf("retry returned entry %d, want the original %d", retry.ID, first.ID)
	}

	balance, _ := db.Balance("carol")
	if balance != 300 {
		t.Errorf("Balance = %d, want 300: retry must not double-charge", balance)
	}
}

func TestLedger_IdempotencyIsPerUserAndReason(t *testing.T) {
	db := newTestDB(t)

	// SYSTEM_REFUND to both participants of one event: independent keys.
	if _, err := db.Credit("a", "evt-1", 200, domain.ReasonSystemRefund, testNow); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Credit("b", "evt-1", 200, domain.ReasonSystemRefund, testNow); err != nil {
		t.Fatal(err)
	}

	entries, err := db.EntriesForScope("evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("EntriesForScope = %d entries, want 2", len(entries))
	}
}

func TestLedger_ZeroAmountRejected(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Debit("a", "s", 0, domain.ReasonRequestHold, testNow); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Debit(0) error = %v, want ErrValidation", err)
	}
	if _, err := db.Credit("a", "s", -5, domain.ReasonTopUp, testNow); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Credit(-5) error = %v, want ErrValidation", err)
	}
}

func TestLedger_Entries(t *testing.T) {
	db := newTestDB(t)
	db.Credit("dave", "c1", 500, domain.ReasonTopUp, testNow)
	db.Debit("dave", "r1", 200, domain.ReasonRequestHold, testNow)
	db.Credit("dave", "r1", 200, domain.ReasonDeclineRefund, testNow)

	entries, err := db.LedgerEntries("dave", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("LedgerEntries = %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Reason != domain.ReasonDeclineRefund {
		t.Errorf("entries[0].Reason = %s, want DECLINE_REFUND", entries[0].Reason)
	}
}
