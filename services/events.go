package services

import (
	"context"
	"log"
	"time"
)

// Event types published after a transaction commits.
const (
	EventMatchAccepted       = "match.accepted"
	EventMatchCompleted      = "match.completed"
	EventMatchSettled        = "match.settled"
	EventAppealResolved      = "match.appeal_resolved"
	EventChallengeCreated    = "belt_challenge.created"
	EventChallengeResolved   = "belt_challenge.resolved"
	EventBeltTransferred     = "belt.transferred"
	EventTournamentStarted   = "tournament.started"
	EventTournamentAdvanced  = "tournament.round_advanced"
	EventTournamentCompleted = "tournament.completed"
	EventTournamentCancelled = "tournament.cancelled"
)

// Event is a domain notification for downstream consumers (notifications, feeds).
type Event struct {
	Type      string                 `json:"type"`
	EntityID  string                 `json:"entity_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventPublisher delivers events outside the process. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func newEvent(eventType, entityID string, payload map[string]interface{}) Event {
	return Event{Type: eventType, EntityID: entityID, Payload: payload, Timestamp: time.Now().UTC()}
}

func publishAll(ctx context.Context, pub EventPublisher, events []Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		if err := pub.Publish(ctx, e); err != nil {
			log.Printf("⚠️ [EVENTS] Failed to publish %s for %s: %v", e.Type, e.EntityID, err)
		}
	}
}
