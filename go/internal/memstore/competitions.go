package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
)

func (s *Store) CreateCompetition(_ context.Context, req competition.CreateCompetitionRequest) (*models.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.competitions[req.ID]; ok {
		return nil, fmt.Errorf("competition %s already exists", req.ID)
	}
	comp := models.Competition{
		ID:               req.ID,
		Name:             req.Name,
		Description:      req.Description,
		TimeLimitMinutes: req.TimeLimitMinutes,
		Status:           req.Status,
		StartDate:        req.StartDate,
		CreatedAt:        s.clock.Now(),
	}
	s.competitions[comp.ID] = comp
	return &comp, nil
}

func (s *Store) GetCompetition(_ context.Context, id uuid.UUID) (*models.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comp, ok := s.competitions[id]
	if !ok {
		return nil, contesterr.ErrCompetitionNotFound
	}
	return &comp, nil
}

func (s *Store) ListCompetitions(_ context.Context) ([]models.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Competition, 0, len(s.competitions))
	for _, comp := range s.competitions {
		out = append(out, comp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateCompetitionStatus(_ context.Context, id uuid.UUID, status models.CompetitionStatus) (*models.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comp, ok := s.competitions[id]
	if !ok {
		return nil, contesterr.ErrCompetitionNotFound
	}
	comp.Status = status
	s.competitions[id] = comp
	return &comp, nil
}

func (s *Store) CreateQuestion(_ context.Context, req competition.CreateQuestionRequest) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.competitions[req.CompetitionID]; !ok {
		return nil, contesterr.ErrCompetitionNotFound
	}
	attachments := append([]models.Attachment{}, req.Attachments...)
	q := models.Question{
		ID:            req.ID,
		CompetitionID: req.CompetitionID,
		Title:         req.Title,
		Description:   req.Description,
		Attachments:   attachments,
		CreatedAt:     s.clock.Now(),
	}
	s.questions[q.ID] = q
	s.questionSeq = append(s.questionSeq, q.ID)
	return &q, nil
}

func (s *Store) GetQuestion(_ context.Context, id uuid.UUID) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %s not found", id)
	}
	return &q, nil
}

// ListQuestions returns questions in insertion order.
func (s *Store) ListQuestions(_ context.Context, competitionID uuid.UUID) ([]models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Question
	for _, id := range s.questionSeq {
		if q := s.questions[id]; q.CompetitionID == competitionID {
			out = append(out, q)
		}
	}
	return out, nil
}
