package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/models"
)

func (s *Service) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := s.competitions.ListCompetitions(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comps)
}

func (s *Service) GetCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := competitionID(w, r)
	if !ok {
		return
	}
	comp, err := s.competitions.GetCompetition(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Service) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req competition.CreateCompetitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	comp, err := s.competitions.CreateCompetition(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comp)
}

func (s *Service) AddQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := competitionID(w, r)
	if !ok {
		return
	}
	var req competition.CreateQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CompetitionID = id

	q, err := s.competitions.AddQuestion(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Service) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := competitionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status models.CompetitionStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	comp, err := s.competitions.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func competitionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "competition id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}
