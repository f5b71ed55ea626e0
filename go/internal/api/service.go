package api

import (
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/mcdev12/arena/go/internal/workspace"
)

// DefaultMaxUploadBytes bounds a draft or submit request body.
const DefaultMaxUploadBytes = 32 << 20

// Service exposes the competition runner over HTTP
type Service struct {
	competitions *competition.App
	sessions     *session.Manager
	workspaces   *workspace.Manager
	leaderboard  *leaderboard.Aggregator
	clock        clockwork.Clock

	maxUploadBytes int64
}

// NewService creates a new HTTP service
func NewService(
	competitions *competition.App,
	sessions *session.Manager,
	workspaces *workspace.Manager,
	board *leaderboard.Aggregator,
	clock clockwork.Clock,
) *Service {
	return &Service{
		competitions:   competitions,
		sessions:       sessions,
		workspaces:     workspaces,
		leaderboard:    board,
		clock:          clock,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
}

// RegisterRoutes registers the API routes with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/competitions", s.ListCompetitions)
	mux.HandleFunc("GET /api/competitions/{id}", s.GetCompetition)

	mux.HandleFunc("POST /api/competitions/{id}/sessions", s.EstablishSession)
	mux.HandleFunc("GET /api/competitions/{id}/sessions/{identifier}", s.PeekSession)
	mux.HandleFunc("PUT /api/competitions/{id}/sessions/{identifier}/draft", s.SaveDraft)
	mux.HandleFunc("POST /api/competitions/{id}/sessions/{identifier}/submit", s.Submit)
	mux.HandleFunc("DELETE /api/competitions/{id}/sessions/{identifier}", s.Logout)

	mux.HandleFunc("GET /api/competitions/{id}/leaderboard", s.CompetitionLeaderboard)
	mux.HandleFunc("GET /api/leaderboard/overall", s.OverallLeaderboard)

	mux.HandleFunc("POST /api/admin/competitions", s.CreateCompetition)
	mux.HandleFunc("POST /api/admin/competitions/{id}/questions", s.AddQuestion)
	mux.HandleFunc("POST /api/admin/competitions/{id}/status", s.SetStatus)
}
