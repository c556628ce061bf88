package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Clock supplies the engine's notion of current time. Every settlement
// decision uses server-observed time — client-reported timestamps are never
// trusted.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Notifier dispatches engine events to the external notification
// collaborator (push/WhatsApp/email fan-out lives there). Publishing is
// fire-and-forget from the aggregate's perspective: delivery retries are the
// collaborator's job, and a publish failure never blocks a state transition.
type Notifier interface {
	Publish(ctx context.Context, key string, payload interface{})
}

// Notification routing keys.
const (
	NotifyRequestReceived   = "request.received"
	NotifyRequestAccepted   = "request.accepted"
	NotifyRequestDeclined   = "request.declined"
	NotifyRequestExpired    = "request.expired"
	NotifyRequestCancelled  = "request.cancelled"
	NotifyEventLocked       = "event.locked"
	NotifyEventReminder     = "event.reminder"
	NotifyEventLive         = "event.live"
	NotifyEventResolved     = "event.resolved"
	NotifyEventCancelled    = "event.cancelled"
	NotifyCallWarning       = "call.warning"
	NotifyMessagingUnlocked = "messaging.unlocked"
	NotifySafetyReport      = "trust.safety_report"
	NotifyResolutionDelayed = "event.resolution_delayed"
	NotifyStandingChanged   = "standing.changed"
	NotifyTopUpApplied      = "credits.topup"
)
