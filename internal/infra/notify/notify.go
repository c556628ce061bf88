// Package notify publishes engine events to the external notification
// collaborator over an AMQP topic exchange. Delivery fan-out (push,
// WhatsApp, email) and retry with backoff live on the consumer side; the
// engine fires and forgets.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON payloads to a topic exchange, keyed by event kind
// (request.received, event.resolved, messaging.unlocked, ...).
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher connects to the broker and declares the topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends one notification. Errors are logged, never propagated: a
// broker hiccup must not block a state transition, and the next sweep's
// notifications are derived from persisted state anyway.
func (p *Publisher) Publish(ctx context.Context, key string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[notify] marshal %s: %v", key, err)
		return
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		log.Printf("[notify] publish %s: %v", key, err)
	}
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogNotifier is a broker-free fallback used when no AMQP URL is configured.
// It keeps single-binary deployments and local development working.
type LogNotifier struct{}

// Publish logs the notification instead of dispatching it.
func (LogNotifier) Publish(_ context.Context, key string, payload interface{}) {
	body, _ := json.Marshal(payload)
	log.Printf("[notify] %s %s", key, body)
}
