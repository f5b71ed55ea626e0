package competition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const competitionColumns = `id, name, description, time_limit_minutes, status, start_date, created_at`

const questionColumns = `id, competition_id, title, description, attachments, created_at`

// Repository implements competition data access operations
type Repository struct {
	db sqlutil.DBTX
}

// NewRepository creates a new competition repository
func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{
		db: db,
	}
}

// CreateCompetition inserts a competition
func (r *Repository) CreateCompetition(ctx context.Context, req CreateCompetitionRequest) (*models.Competition, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO competitions (id, name, description, time_limit_minutes, status, start_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+competitionColumns,
		req.ID, req.Name, req.Description, req.TimeLimitMinutes, string(req.Status), req.StartDate,
	)
	comp, err := scanCompetition(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert competition: %w", err)
	}
	return comp, nil
}

// GetCompetition retrieves a competition by ID
func (r *Repository) GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	row := r.db.QueryRow(ctx, `SELECT `+competitionColumns+` FROM competitions WHERE id = $1`, id)
	comp, err := scanCompetition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contesterr.ErrCompetitionNotFound
	}
	if err != nil {
		return nil, contesterr.Unavailable("get competition", err)
	}
	return comp, nil
}

// ListCompetitions returns competitions, newest first
func (r *Repository) ListCompetitions(ctx context.Context) ([]models.Competition, error) {
	rows, err := r.db.Query(ctx, `SELECT `+competitionColumns+` FROM competitions ORDER BY created_at DESC`)
	if err != nil {
		return nil, contesterr.Unavailable("list competitions", err)
	}
	defer rows.Close()

	var comps []models.Competition
	for rows.Next() {
		comp, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan competition: %w", err)
		}
		comps = append(comps, *comp)
	}
	if err := rows.Err(); err != nil {
		return nil, contesterr.Unavailable("list competitions", err)
	}
	return comps, nil
}

// UpdateCompetitionStatus sets the status column
func (r *Repository) UpdateCompetitionStatus(ctx context.Context, id uuid.UUID, status models.CompetitionStatus) (*models.Competition, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE competitions SET status = $2 WHERE id = $1
		RETURNING `+competitionColumns, id, string(status))
	comp, err := scanCompetition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contesterr.ErrCompetitionNotFound
	}
	if err != nil {
		return nil, contesterr.Unavailable("update competition status", err)
	}
	return comp, nil
}

// CreateQuestion inserts a question
func (r *Repository) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*models.Question, error) {
	attachments, err := sqlutil.ToNullRawMessage(req.Attachments)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO questions (id, competition_id, title, description, attachments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+questionColumns,
		req.ID, req.CompetitionID, req.Title, req.Description, attachments,
	)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}
	return q, nil
}

// GetQuestion retrieves a question by ID
func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	row := r.db.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("question %s not found", id)
	}
	if err != nil {
		return nil, contesterr.Unavailable("get question", err)
	}
	return q, nil
}

// ListQuestions returns every question of a competition, oldest first
func (r *Repository) ListQuestions(ctx context.Context, competitionID uuid.UUID) ([]models.Question, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+questionColumns+` FROM questions
		WHERE competition_id = $1
		ORDER BY created_at, id`, competitionID)
	if err != nil {
		return nil, contesterr.Unavailable("list questions", err)
	}
	defer rows.Close()

	var qs []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		qs = append(qs, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, contesterr.Unavailable("list questions", err)
	}
	return qs, nil
}

// Helper functions for converting between database rows and domain models

func scanCompetition(row pgx.Row) (*models.Competition, error) {
	var (
		comp      models.Competition
		status    string
		startDate *time.Time
	)
	if err := row.Scan(
		&comp.ID,
		&comp.Name,
		&comp.Description,
		&comp.TimeLimitMinutes,
		&status,
		&startDate,
		&comp.CreatedAt,
	); err != nil {
		return nil, err
	}
	comp.Status = models.CompetitionStatus(status)
	comp.StartDate = startDate
	return &comp, nil
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var (
		q           models.Question
		attachments pqtype.NullRawMessage
	)
	if err := row.Scan(
		&q.ID,
		&q.CompetitionID,
		&q.Title,
		&q.Description,
		&attachments,
		&q.CreatedAt,
	); err != nil {
		return nil, err
	}
	if _, err := sqlutil.FromNullRawMessage(attachments, &q.Attachments); err != nil {
		return nil, err
	}
	if q.Attachments == nil {
		q.Attachments = []models.Attachment{}
	}
	return &q, nil
}
