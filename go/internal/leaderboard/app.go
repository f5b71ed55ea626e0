package leaderboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Tx is the set of writes performed while an identifier is locked.
type Tx interface {
	UpsertEntry(ctx context.Context, entry models.LeaderboardEntry) error
	SumOverall(ctx context.Context, identifier string) (total int, competitions int, err error)
	PutOverall(ctx context.Context, overall models.OverallScore) error
}

// Repository defines what the aggregator needs from the leaderboard store.
// WithIdentifierLock runs fn atomically and excludes every other writer for
// the same identifier until it returns.
type Repository interface {
	WithIdentifierLock(ctx context.Context, identifier string, fn func(tx Tx) error) error
	ListCompetition(ctx context.Context, competitionID uuid.UUID) ([]models.LeaderboardEntry, error)
	ListOverall(ctx context.Context, limit int) ([]models.OverallScore, error)
	GetOverall(ctx context.Context, identifier string) (*models.OverallScore, error)
}

// Aggregator turns committed scores into leaderboard entries and keeps each
// identifier's overall total equal to the sum of its competition scores.
type Aggregator struct {
	repo  Repository
	clock clockwork.Clock
	locks *keyedMutex
}

// NewAggregator creates a new leaderboard Aggregator
func NewAggregator(repo Repository, clock clockwork.Clock) *Aggregator {
	return &Aggregator{
		repo:  repo,
		clock: clock,
		locks: newKeyedMutex(),
	}
}

// RecordScore upserts the (identifier, competition) entry and recomputes the
// identifier's overall total. Recording the same score twice is a no-op in
// effect, so retried commits and replayed events are safe.
func (a *Aggregator) RecordScore(ctx context.Context, identifier string, competitionID uuid.UUID, score int) error {
	identifier = models.CanonicalIdentifier(identifier)
	if identifier == "" {
		return fmt.Errorf("identifier is required")
	}

	unlock := a.locks.Lock(identifier)
	defer unlock()

	now := a.clock.Now()
	var overall models.OverallScore
	err := a.repo.WithIdentifierLock(ctx, identifier, func(tx Tx) error {
		if err := tx.UpsertEntry(ctx, models.LeaderboardEntry{
			Identifier:    identifier,
			CompetitionID: competitionID,
			Score:         score,
			UpdatedAt:     now,
		}); err != nil {
			return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
		}

		total, competitions, err := tx.SumOverall(ctx, identifier)
		if err != nil {
			return fmt.Errorf("failed to sum overall score: %w", err)
		}

		overall = models.OverallScore{
			Identifier:   identifier,
			Total:        total,
			Competitions: competitions,
			UpdatedAt:    now,
		}
		if err := tx.PutOverall(ctx, overall); err != nil {
			return fmt.Errorf("failed to store overall score: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record score: %w", err)
	}

	log.Info().
		Str("identifier", identifier).
		Str("competition_id", competitionID.String()).
		Int("score", score).
		Int("overall", overall.Total).
		Msg("recorded leaderboard score")
	return nil
}

// ListCompetition returns a competition's entries, highest score first
func (a *Aggregator) ListCompetition(ctx context.Context, competitionID uuid.UUID) ([]models.LeaderboardEntry, error) {
	entries, err := a.repo.ListCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	return entries, nil
}

// ListOverall returns overall totals, highest first. limit <= 0 means all.
func (a *Aggregator) ListOverall(ctx context.Context, limit int) ([]models.OverallScore, error) {
	totals, err := a.repo.ListOverall(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overall leaderboard: %w", err)
	}
	return totals, nil
}

// Overall returns the overall total of one identifier
func (a *Aggregator) Overall(ctx context.Context, identifier string) (*models.OverallScore, error) {
	o, err := a.repo.GetOverall(ctx, models.CanonicalIdentifier(identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to get overall score: %w", err)
	}
	return o, nil
}

