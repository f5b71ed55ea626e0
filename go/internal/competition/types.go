package competition

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/models"
)

// CreateCompetitionRequest represents the data needed to create a competition
type CreateCompetitionRequest struct {
	ID               uuid.UUID                `json:"id"`
	Name             string                   `json:"name"`
	Description      string                   `json:"description"`
	TimeLimitMinutes int                      `json:"time_limit_minutes"`
	Status           models.CompetitionStatus `json:"status"`
	StartDate        *time.Time               `json:"start_date,omitempty"`
}

// CreateQuestionRequest represents the data needed to add a question
type CreateQuestionRequest struct {
	ID            uuid.UUID           `json:"id"`
	CompetitionID uuid.UUID           `json:"competition_id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Attachments   []models.Attachment `json:"attachments"`
}
