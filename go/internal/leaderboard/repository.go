package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/sqlutil"
)

// PostgresRepository implements leaderboard data access on Postgres
type PostgresRepository struct {
	db sqlutil.DBTX
}

// NewPostgresRepository creates a new leaderboard repository
func NewPostgresRepository(db sqlutil.DBTX) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// WithIdentifierLock runs fn in a transaction holding a transaction scoped
// advisory lock on the identifier, which serializes writers across instances.
func (r *PostgresRepository) WithIdentifierLock(ctx context.Context, identifier string, fn func(tx Tx) error) error {
	err := sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, identifier); err != nil {
			return fmt.Errorf("failed to lock identifier: %w", err)
		}
		return fn(&pgTx{tx: tx})
	})
	if err != nil {
		return contesterr.Unavailable("leaderboard write", err)
	}
	return nil
}

// ListCompetition returns the entries of a competition, highest score first
func (r *PostgresRepository) ListCompetition(ctx context.Context, competitionID uuid.UUID) ([]models.LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT lan_id, competition_id, score, updated_at
		FROM leaderboard
		WHERE competition_id = $1
		ORDER BY score DESC, updated_at, lan_id`, competitionID)
	if err != nil {
		return nil, contesterr.Unavailable("list leaderboard", err)
	}
	defer rows.Close()

	var out []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Identifier, &e.CompetitionID, &e.Score, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, contesterr.Unavailable("list leaderboard", err)
	}
	return out, nil
}

// ListOverall returns overall totals, highest first
func (r *PostgresRepository) ListOverall(ctx context.Context, limit int) ([]models.OverallScore, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT lan_id, total, competitions, updated_at
		FROM leaderboard_overall
		ORDER BY total DESC, lan_id
		LIMIT $1`, limitArg)
	if err != nil {
		return nil, contesterr.Unavailable("list overall leaderboard", err)
	}
	defer rows.Close()

	var out []models.OverallScore
	for rows.Next() {
		var o models.OverallScore
		if err := rows.Scan(&o.Identifier, &o.Total, &o.Competitions, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan overall score: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, contesterr.Unavailable("list overall leaderboard", err)
	}
	return out, nil
}

// GetOverall returns one identifier's total; zero when it has no entries yet
func (r *PostgresRepository) GetOverall(ctx context.Context, identifier string) (*models.OverallScore, error) {
	o := models.OverallScore{Identifier: identifier}
	err := r.db.QueryRow(ctx, `
		SELECT total, competitions, updated_at
		FROM leaderboard_overall
		WHERE lan_id = $1`, identifier).Scan(&o.Total, &o.Competitions, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &o, nil
	}
	if err != nil {
		return nil, contesterr.Unavailable("get overall score", err)
	}
	return &o, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) UpsertEntry(ctx context.Context, e models.LeaderboardEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO leaderboard (lan_id, competition_id, score, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lan_id, competition_id)
		DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`,
		e.Identifier, e.CompetitionID, e.Score, e.UpdatedAt,
	)
	return err
}

func (t *pgTx) SumOverall(ctx context.Context, identifier string) (int, int, error) {
	var total, competitions int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(score), 0)::int, COUNT(*)::int
		FROM leaderboard
		WHERE lan_id = $1`, identifier).Scan(&total, &competitions)
	return total, competitions, err
}

func (t *pgTx) PutOverall(ctx context.Context, o models.OverallScore) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO leaderboard_overall (lan_id, total, competitions, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lan_id)
		DO UPDATE SET total = EXCLUDED.total, competitions = EXCLUDED.competitions, updated_at = EXCLUDED.updated_at`,
		o.Identifier, o.Total, o.Competitions, o.UpdatedAt,
	)
	return err
}
