package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/mcdev12/arena/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const sessionColumns = `lan_id, competition_id, question_id, start_time, end_time,
	submitted, expired, answer, score, submitted_at, created_at`

// errNotApplied rolls back a conditional update that matched no open session.
var errNotApplied = errors.New("session already closed")

// Repository implements participant session data access on Postgres
type Repository struct {
	db sqlutil.DBTX
}

// NewRepository creates a new session repository
func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

// FindSession returns the session for key or contesterr.ErrSessionNotFound.
func (r *Repository) FindSession(ctx context.Context, key models.SessionKey) (*models.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM participants
		WHERE lan_id = $1 AND competition_id = $2`, key.Identifier, key.CompetitionID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contesterr.ErrSessionNotFound
	}
	if err != nil {
		return nil, contesterr.Unavailable("find session", err)
	}
	return s, nil
}

// CreateSession inserts a new open session and its SessionStarted event in one
// transaction. A concurrent create for the same key yields contesterr.ErrSessionExists.
func (r *Repository) CreateSession(ctx context.Context, s models.Session, event outbox.Event) (*models.Session, error) {
	var created *models.Session
	err := sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO participants (lan_id, competition_id, question_id, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+sessionColumns,
			s.Identifier, s.CompetitionID, s.QuestionID, s.StartTime, s.EndTime,
		)
		var err error
		if created, err = scanSession(row); err != nil {
			return err
		}
		return outbox.Insert(ctx, tx, event)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, contesterr.ErrSessionExists
		}
		return nil, contesterr.Unavailable("create session", err)
	}
	return created, nil
}

// SubmitSession sets submitted, score and answer in a single conditional
// update. When the session is already closed nothing is written and the
// current record is returned with applied=false.
func (r *Repository) SubmitSession(ctx context.Context, key models.SessionKey, params SubmitParams, event outbox.Event) (*models.Session, bool, error) {
	answer, err := sqlutil.ToNullRawMessage(params.Answer)
	if err != nil {
		return nil, false, err
	}

	var updated *models.Session
	err = sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE participants
			SET submitted = true, score = $3, answer = $4, submitted_at = $5
			WHERE lan_id = $1 AND competition_id = $2 AND NOT submitted AND NOT expired
			RETURNING `+sessionColumns,
			key.Identifier, key.CompetitionID, params.Score, answer, params.SubmittedAt,
		)
		var err error
		if updated, err = scanSession(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotApplied
			}
			return err
		}
		return outbox.Insert(ctx, tx, event)
	})
	return r.conditionalResult(ctx, key, updated, err, "submit session")
}

// ExpireSession records expiry without a submission.
func (r *Repository) ExpireSession(ctx context.Context, key models.SessionKey, at time.Time, event outbox.Event) (*models.Session, bool, error) {
	var updated *models.Session
	err := sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE participants
			SET expired = true
			WHERE lan_id = $1 AND competition_id = $2 AND NOT submitted AND NOT expired
			RETURNING `+sessionColumns,
			key.Identifier, key.CompetitionID,
		)
		var err error
		if updated, err = scanSession(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotApplied
			}
			return err
		}
		return outbox.Insert(ctx, tx, event)
	})
	return r.conditionalResult(ctx, key, updated, err, "expire session")
}

func (r *Repository) conditionalResult(ctx context.Context, key models.SessionKey, updated *models.Session, err error, op string) (*models.Session, bool, error) {
	switch {
	case err == nil:
		return updated, true, nil
	case errors.Is(err, errNotApplied):
		current, findErr := r.FindSession(ctx, key)
		if findErr != nil {
			return nil, false, findErr
		}
		return current, false, nil
	default:
		return nil, false, contesterr.Unavailable(op, err)
	}
}

// ListDue returns open sessions whose end time is at or before cutoff, oldest first.
func (r *Repository) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM participants
		WHERE NOT submitted AND NOT expired AND end_time <= $1
		ORDER BY end_time
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, contesterr.Unavailable("list due sessions", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, contesterr.Unavailable("list due sessions", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s      models.Session
		answer pqtype.NullRawMessage
	)
	if err := row.Scan(
		&s.Identifier,
		&s.CompetitionID,
		&s.QuestionID,
		&s.StartTime,
		&s.EndTime,
		&s.Submitted,
		&s.Expired,
		&answer,
		&s.Score,
		&s.SubmittedAt,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	var manifest models.AnswerManifest
	ok, err := sqlutil.FromNullRawMessage(answer, &manifest)
	if err != nil {
		return nil, err
	}
	if ok {
		s.Answer = &manifest
	}
	return &s, nil
}
