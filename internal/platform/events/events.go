// Package events publishes domain events after their transaction commits.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TreatmentRecorded = "treatment.recorded"
	StockDepleted     = "stock.depleted"
)

// Event is the envelope put on the wire. Type doubles as the routing key.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, evt Event) error { return nil }
func (Nop) Close() error                                 { return nil }
