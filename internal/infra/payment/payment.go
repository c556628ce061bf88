// Package payment turns verified Omise charges into credit top-ups. The
// webhook body is never trusted on its own: the event is re-fetched from
// Omise before any credits move, and the ledger's idempotency on the charge
// id makes redelivered webhooks harmless.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Ledger is the slice of the engine this package needs.
type Ledger interface {
	TopUp(ctx context.Context, userID, chargeID string, amount int64) error
}

// Service verifies charge webhooks and applies top-ups.
type Service struct {
	client          *omise.Client
	ledger          Ledger
	creditUnitPrice int64 // smallest currency units per credit
}

// New creates the payment intake. creditUnitPrice is how many smallest
// currency units (e.g. satang) buy one credit.
func New(publicKey, secretKey string, creditUnitPrice int64, ledger Ledger) (*Service, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	if creditUnitPrice <= 0 {
		creditUnitPrice = 1
	}
	return &Service{client: client, ledger: ledger, creditUnitPrice: creditUnitPrice}, nil
}

// WebhookEvent is the minimal shape of an incoming Omise webhook body.
type WebhookEvent struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// HandleEvent verifies the webhook event against Omise and, for a successful
// charge.complete, credits the buyer. The buyer's user id rides in the
// charge metadata set at checkout time.
func (s *Service) HandleEvent(ctx context.Context, incoming WebhookEvent) error {
	ev := &omise.Event{}
	if err := s.client.Do(ev, &operations.RetrieveEvent{EventID: incoming.ID}); err != nil {
		return fmt.Errorf("verify event %s: %w", incoming.ID, err)
	}
	if ev.Key != "charge.complete" {
		return nil // other event kinds are not ours
	}

	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	var charge omise.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return fmt.Errorf("unmarshal charge: %w", err)
	}
	if charge.Status != "successful" {
		log.Printf("[payment] charge %s not successful (%s), skipping", charge.ID, charge.Status)
		return nil
	}

	userID, _ := charge.Metadata["user_id"].(string)
	if userID == "" {
		return fmt.Errorf("charge %s has no user_id metadata", charge.ID)
	}

	credits := charge.Amount / s.creditUnitPrice
	if credits <= 0 {
		log.Printf("[payment] charge %s below one credit, skipping", charge.ID)
		return nil
	}
	return s.ledger.TopUp(ctx, userID, charge.ID, credits)
}
