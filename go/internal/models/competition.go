package models

import (
	"time"

	"github.com/google/uuid"
)

// CompetitionStatus defines the lifecycle status of a competition.
type CompetitionStatus string

const (
	CompetitionStatusUpcoming  CompetitionStatus = "upcoming"
	CompetitionStatusOngoing   CompetitionStatus = "ongoing"
	CompetitionStatusCompleted CompetitionStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s CompetitionStatus) Valid() bool {
	switch s {
	case CompetitionStatusUpcoming, CompetitionStatusOngoing, CompetitionStatusCompleted:
		return true
	}
	return false
}

// Competition is a timed challenge participants log into.
type Competition struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
	Status           CompetitionStatus `json:"status"`
	StartDate        *time.Time        `json:"start_date,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TimeLimit returns the per-participant time budget.
func (c Competition) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitMinutes) * time.Minute
}
