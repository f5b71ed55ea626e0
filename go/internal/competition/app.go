package competition

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CompetitionRepository defines what the app layer needs from the repository.
// GetCompetition returns contesterr.ErrCompetitionNotFound for unknown ids.
type CompetitionRepository interface {
	CreateCompetition(ctx context.Context, req CreateCompetitionRequest) (*models.Competition, error)
	GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error)
	ListCompetitions(ctx context.Context) ([]models.Competition, error)
	UpdateCompetitionStatus(ctx context.Context, id uuid.UUID, status models.CompetitionStatus) (*models.Competition, error)
	CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*models.Question, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, competitionID uuid.UUID) ([]models.Question, error)
}

// App handles competition business logic
type App struct {
	repo CompetitionRepository
}

// NewApp creates a new competition App
func NewApp(repo CompetitionRepository) *App {
	return &App{
		repo: repo,
	}
}

// CreateCompetition creates a new competition with validation
func (a *App) CreateCompetition(ctx context.Context, req CreateCompetitionRequest) (*models.Competition, error) {
	if req.Status == "" {
		req.Status = models.CompetitionStatusUpcoming
	}
	if err := a.validateCreateCompetitionRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %w", contesterr.ErrInvalidRequest, err)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	comp, err := a.repo.CreateCompetition(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create competition: %w", err)
	}

	log.Info().
		Str("competition_id", comp.ID.String()).
		Str("name", comp.Name).
		Int("time_limit_minutes", comp.TimeLimitMinutes).
		Msg("created competition")
	return comp, nil
}

// GetCompetition retrieves a competition by ID
func (a *App) GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	comp, err := a.repo.GetCompetition(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	return comp, nil
}

// ListCompetitions returns every competition
func (a *App) ListCompetitions(ctx context.Context) ([]models.Competition, error) {
	comps, err := a.repo.ListCompetitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	return comps, nil
}

// SetStatus moves a competition to a new status. Status is managed by
// organisers; participants never change it.
func (a *App) SetStatus(ctx context.Context, id uuid.UUID, status models.CompetitionStatus) (*models.Competition, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", contesterr.ErrInvalidRequest, status)
	}

	comp, err := a.repo.UpdateCompetitionStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update competition status: %w", err)
	}

	log.Info().
		Str("competition_id", id.String()).
		Str("status", string(status)).
		Msg("updated competition status")
	return comp, nil
}

// AddQuestion adds a question to an existing competition
func (a *App) AddQuestion(ctx context.Context, req CreateQuestionRequest) (*models.Question, error) {
	if err := a.validateCreateQuestionRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %w", contesterr.ErrInvalidRequest, err)
	}

	// Verify competition exists
	if _, err := a.repo.GetCompetition(ctx, req.CompetitionID); err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	q, err := a.repo.CreateQuestion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}
	return q, nil
}

// GetQuestion retrieves a question by ID
func (a *App) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := a.repo.GetQuestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// ListQuestions returns the question set of a competition
func (a *App) ListQuestions(ctx context.Context, competitionID uuid.UUID) ([]models.Question, error) {
	qs, err := a.repo.ListQuestions(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return qs, nil
}

// Validation methods

func (a *App) validateCreateCompetitionRequest(req CreateCompetitionRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.TimeLimitMinutes <= 0 {
		return fmt.Errorf("time_limit_minutes must be greater than 0")
	}
	if !req.Status.Valid() {
		return fmt.Errorf("unknown status %q", req.Status)
	}
	return nil
}

func (a *App) validateCreateQuestionRequest(req CreateQuestionRequest) error {
	if req.CompetitionID == uuid.Nil {
		return fmt.Errorf("competition_id is required")
	}
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	for i, att := range req.Attachments {
		if att.Name == "" || att.URL == "" {
			return fmt.Errorf("attachment %d needs a name and url", i)
		}
	}
	return nil
}
