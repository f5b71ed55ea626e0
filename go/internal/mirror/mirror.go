// Package mirror keeps a resumption token per participant session so a
// reconnecting client can be sent back to its workspace without a round trip
// to the authoritative store. Tokens are hints only: callers must re-validate
// them against the session repository before trusting them.
package mirror

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/models"
)

// Token is the minimal resumption record for one session.
type Token struct {
	Identifier    string    `json:"identifier"`
	CompetitionID uuid.UUID `json:"competition_id"`
	EndTime       time.Time `json:"end_time"`
	Submitted     bool      `json:"submitted"`
}

// Key returns the session key the token belongs to.
func (t Token) Key() models.SessionKey {
	return models.SessionKey{Identifier: t.Identifier, CompetitionID: t.CompetitionID}
}

// Resumable reports whether the token points at a session that may still be
// in flight at now.
func (t Token) Resumable(now time.Time) bool {
	return !t.Submitted && now.Before(t.EndTime)
}

// TokenFor builds the token mirroring a session record.
func TokenFor(s models.Session) Token {
	return Token{
		Identifier:    s.Identifier,
		CompetitionID: s.CompetitionID,
		EndTime:       s.EndTime,
		Submitted:     s.Closed(),
	}
}

// Store persists resumption tokens.
type Store interface {
	// Put writes or replaces the token for its session.
	Put(ctx context.Context, token Token) error
	// Get returns the token for key, or nil when none is stored.
	Get(ctx context.Context, key models.SessionKey) (*Token, error)
	// MarkSubmitted flips the submitted flag of an existing token.
	MarkSubmitted(ctx context.Context, key models.SessionKey) error
	// Delete removes the token for key.
	Delete(ctx context.Context, key models.SessionKey) error
}
