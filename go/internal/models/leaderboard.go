package models

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry is an identifier's score in one competition.
type LeaderboardEntry struct {
	Identifier    string    `json:"identifier"`
	CompetitionID uuid.UUID `json:"competition_id"`
	Score         int       `json:"score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OverallScore is the cross-competition total for an identifier.
type OverallScore struct {
	Identifier   string    `json:"identifier"`
	Total        int       `json:"total"`
	Competitions int       `json:"competitions"`
	UpdatedAt    time.Time `json:"updated_at"`
}
