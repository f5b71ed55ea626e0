package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/events"
)

// ErrEventNotFound is returned by FetchByID for unknown or already sent events.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

// Event represents an outbox row
type Event struct {
	ID            uuid.UUID   `json:"id"`
	CompetitionID uuid.UUID   `json:"competition_id"`
	Identifier    string      `json:"identifier"`
	EventType     events.Type `json:"event_type"`
	Payload       []byte      `json:"payload"`
	CreatedAt     time.Time   `json:"created_at"`
	SentAt        *time.Time  `json:"sent_at,omitempty"`
}

// Publisher delivers an event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Store is what the relay needs from the outbox table.
type Store interface {
	FetchUnsent(ctx context.Context, limit int) ([]Event, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*Event, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

// NewEvent builds an unsent event with a fresh id and the JSON encoded payload.
func NewEvent(competitionID uuid.UUID, identifier string, eventType events.Type, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		Identifier:    identifier,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     now,
	}, nil
}

// Envelope wraps the event for the wire.
func (e Event) Envelope(at time.Time) events.Envelope {
	return events.Envelope{
		EventID:       e.ID.String(),
		EventType:     e.EventType,
		CompetitionID: e.CompetitionID.String(),
		Identifier:    e.Identifier,
		Timestamp:     at.UTC(),
		Payload:       json.RawMessage(e.Payload),
	}
}
