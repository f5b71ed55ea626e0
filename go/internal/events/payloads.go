package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event payload types shared between the session, submission, outbox,
// leaderboard projector and gateway packages.

// Type names an event written to the outbox.
type Type string

const (
	TypeSessionStarted      Type = "SessionStarted"
	TypeSubmissionCommitted Type = "SubmissionCommitted"
	TypeSessionExpired      Type = "SessionExpired"
)

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	Identifier    string    `json:"identifier"`
	CompetitionID string    `json:"competition_id"`
	QuestionID    string    `json:"question_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// SubmissionCommittedPayload is the payload for a SubmissionCommitted event
type SubmissionCommittedPayload struct {
	Identifier    string    `json:"identifier"`
	CompetitionID string    `json:"competition_id"`
	Score         int       `json:"score"`
	Trigger       string    `json:"trigger"`
	Empty         bool      `json:"empty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// SessionExpiredPayload is the payload for a SessionExpired event, written
// when expiry is recorded without a submission.
type SessionExpiredPayload struct {
	Identifier    string    `json:"identifier"`
	CompetitionID string    `json:"competition_id"`
	EndTime       time.Time `json:"end_time"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// Envelope is the JetStream message body wrapping every payload.
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     Type            `json:"eventType"`
	CompetitionID string          `json:"competitionId"`
	Identifier    string          `json:"identifier"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// ParsePayload decodes the envelope payload into its concrete type.
func ParsePayload(env Envelope) (any, error) {
	switch env.EventType {
	case TypeSessionStarted:
		var p SessionStartedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeSubmissionCommitted:
		var p SubmissionCommittedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeSessionExpired:
		var p SessionExpiredPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
}
