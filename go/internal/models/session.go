package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalIdentifier trims and upper-cases a participant identifier.
func CanonicalIdentifier(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// SessionKey is the unique key of a participant session.
type SessionKey struct {
	Identifier    string
	CompetitionID uuid.UUID
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s", k.CompetitionID, k.Identifier)
}

// Session is one identifier's attempt at one competition.
type Session struct {
	Identifier    string          `json:"identifier"`
	CompetitionID uuid.UUID       `json:"competition_id"`
	QuestionID    uuid.UUID       `json:"question_id"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Submitted     bool            `json:"submitted"`
	Expired       bool            `json:"expired"` // expiry recorded without a submission
	Answer        *AnswerManifest `json:"answer,omitempty"`
	Score         *int            `json:"score,omitempty"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Key returns the session's unique key.
func (s Session) Key() SessionKey {
	return SessionKey{Identifier: s.Identifier, CompetitionID: s.CompetitionID}
}

// Closed reports whether the session can no longer change state.
func (s Session) Closed() bool {
	return s.Submitted || s.Expired
}

// Terminal reports whether the identifier is burned for this competition at now.
func (s Session) Terminal(now time.Time) bool {
	return s.Closed() || now.After(s.EndTime)
}
