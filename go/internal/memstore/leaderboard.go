package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/models"
)

// WithIdentifierLock runs fn while holding the identifier's lock. Writes made
// through tx become visible immediately; there is no rollback.
func (s *Store) WithIdentifierLock(ctx context.Context, identifier string, fn func(tx leaderboard.Tx) error) error {
	v, _ := s.identifierLocks.LoadOrStore(identifier, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return fn(leaderboardTx{s: s})
}

func (s *Store) ListCompetition(_ context.Context, competitionID uuid.UUID) ([]models.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LeaderboardEntry
	for k, e := range s.entries {
		if k.competitionID == competitionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out, nil
}

func (s *Store) ListOverall(_ context.Context, limit int) ([]models.OverallScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.OverallScore, 0, len(s.overall))
	for _, o := range s.overall {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Identifier < out[j].Identifier
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetOverall(_ context.Context, identifier string) (*models.OverallScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overall[identifier]
	if !ok {
		return &models.OverallScore{Identifier: identifier}, nil
	}
	return &o, nil
}

type leaderboardTx struct {
	s *Store
}

func (t leaderboardTx) UpsertEntry(_ context.Context, e models.LeaderboardEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.s.entries[entryKey{identifier: e.Identifier, competitionID: e.CompetitionID}] = e
	return nil
}

func (t leaderboardTx) SumOverall(_ context.Context, identifier string) (int, int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	total, competitions := 0, 0
	for k, e := range t.s.entries {
		if k.identifier == identifier {
			total += e.Score
			competitions++
		}
	}
	return total, competitions, nil
}

func (t leaderboardTx) PutOverall(_ context.Context, o models.OverallScore) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.s.overall[o.Identifier] = o
	return nil
}
