package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a downloadable file attached to a question.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Question is one challenge belonging to a competition.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	CompetitionID uuid.UUID    `json:"competition_id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Attachments   []Attachment `json:"attachments"`
	CreatedAt     time.Time    `json:"created_at"`
}
