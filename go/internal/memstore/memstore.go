// Package memstore is an in-memory implementation of the competition,
// session, leaderboard and outbox repositories. It backs STORE=memory and
// the package tests.
package memstore

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/outbox"
)

// Store holds every table in maps guarded by one mutex.
type Store struct {
	clock clockwork.Clock

	mu           sync.RWMutex
	competitions map[uuid.UUID]models.Competition
	questions    map[uuid.UUID]models.Question
	questionSeq  []uuid.UUID
	sessions     map[models.SessionKey]models.Session
	entries      map[entryKey]models.LeaderboardEntry
	overall      map[string]models.OverallScore
	outbox       []outbox.Event

	identifierLocks sync.Map // identifier -> *sync.Mutex
}

type entryKey struct {
	identifier    string
	competitionID uuid.UUID
}

// New returns an empty store stamping created rows with clock.
func New(clock clockwork.Clock) *Store {
	return &Store{
		clock:        clock,
		competitions: make(map[uuid.UUID]models.Competition),
		questions:    make(map[uuid.UUID]models.Question),
		sessions:     make(map[models.SessionKey]models.Session),
		entries:      make(map[entryKey]models.LeaderboardEntry),
		overall:      make(map[string]models.OverallScore),
	}
}

func copySession(s models.Session) *models.Session {
	out := s
	if s.Score != nil {
		score := *s.Score
		out.Score = &score
	}
	if s.SubmittedAt != nil {
		at := *s.SubmittedAt
		out.SubmittedAt = &at
	}
	if s.Answer != nil {
		manifest := *s.Answer
		manifest.Files = append([]models.StoredFile(nil), s.Answer.Files...)
		out.Answer = &manifest
	}
	return &out
}
