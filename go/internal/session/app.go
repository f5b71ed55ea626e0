package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/events"
	"github.com/mcdev12/arena/go/internal/mirror"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/rs/zerolog/log"
)

// CompetitionReader defines what the manager needs from the competition store
type CompetitionReader interface {
	GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, competitionID uuid.UUID) ([]models.Question, error)
}

// SessionRepository defines what the manager needs from the session store
type SessionRepository interface {
	FindSession(ctx context.Context, key models.SessionKey) (*models.Session, error)
	CreateSession(ctx context.Context, s models.Session, event outbox.Event) (*models.Session, error)
}

// Manager establishes and resumes participant sessions. The session record in
// the repository is authoritative; the mirror is written after every
// successful login and only ever read as a hint.
type Manager struct {
	competitions CompetitionReader
	sessions     SessionRepository
	mirror       mirror.Store
	clock        clockwork.Clock
	pick         func(n int) int
}

// Option configures a Manager.
type Option func(*Manager)

// WithQuestionPicker replaces the uniform random question choice. pick
// receives the number of questions and returns an index.
func WithQuestionPicker(pick func(n int) int) Option {
	return func(m *Manager) {
		m.pick = pick
	}
}

// NewManager creates a new session Manager
func NewManager(competitions CompetitionReader, sessions SessionRepository, store mirror.Store, clock clockwork.Clock, opts ...Option) *Manager {
	m := &Manager{
		competitions: competitions,
		sessions:     sessions,
		mirror:       store,
		clock:        clock,
		pick:         rand.IntN,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EstablishOrResume logs identifier into a competition. An open session is
// returned unchanged; a closed or timed out one fails with ErrAlreadyUsed;
// otherwise a new session with a randomly assigned question is created.
func (m *Manager) EstablishOrResume(ctx context.Context, identifier string, competitionID uuid.UUID) (*Assignment, error) {
	key := models.SessionKey{
		Identifier:    models.CanonicalIdentifier(identifier),
		CompetitionID: competitionID,
	}
	if key.Identifier == "" {
		return nil, contesterr.ErrInvalidIdentifier
	}

	existing, err := m.sessions.FindSession(ctx, key)
	switch {
	case err == nil:
		return m.resume(ctx, *existing)
	case !errors.Is(err, contesterr.ErrSessionNotFound):
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return m.establish(ctx, key)
}

func (m *Manager) establish(ctx context.Context, key models.SessionKey) (*Assignment, error) {
	comp, err := m.competitions.GetCompetition(ctx, key.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if comp.Status != models.CompetitionStatusOngoing {
		return nil, contesterr.ErrCompetitionNotOngoing
	}

	questions, err := m.competitions.ListQuestions(ctx, comp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, contesterr.ErrNoQuestions
	}
	question := questions[m.pick(len(questions))]

	now := m.clock.Now()
	s := models.Session{
		Identifier:    key.Identifier,
		CompetitionID: key.CompetitionID,
		QuestionID:    question.ID,
		StartTime:     now,
		EndTime:       now.Add(comp.TimeLimit()),
	}

	event, err := outbox.NewEvent(s.CompetitionID, s.Identifier, events.TypeSessionStarted, events.SessionStartedPayload{
		Identifier:    s.Identifier,
		CompetitionID: s.CompetitionID.String(),
		QuestionID:    s.QuestionID.String(),
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
	}, now)
	if err != nil {
		return nil, err
	}

	created, err := m.sessions.CreateSession(ctx, s, event)
	if errors.Is(err, contesterr.ErrSessionExists) {
		// Lost a race with a concurrent login for the same key: resume theirs.
		existing, findErr := m.sessions.FindSession(ctx, key)
		if findErr != nil {
			return nil, fmt.Errorf("failed to find session after create conflict: %w", findErr)
		}
		return m.resume(ctx, *existing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.putMirror(ctx, *created)

	log.Info().
		Str("identifier", created.Identifier).
		Str("competition_id", created.CompetitionID.String()).
		Str("question_id", created.QuestionID.String()).
		Time("end_time", created.EndTime).
		Msg("session established")

	return &Assignment{Session: *created, Question: question}, nil
}

func (m *Manager) resume(ctx context.Context, s models.Session) (*Assignment, error) {
	m.putMirror(ctx, s)

	if s.Terminal(m.clock.Now()) {
		log.Info().
			Str("identifier", s.Identifier).
			Str("competition_id", s.CompetitionID.String()).
			Bool("submitted", s.Submitted).
			Msg("login rejected, identifier already used")
		return nil, contesterr.ErrAlreadyUsed
	}

	question, err := m.competitions.GetQuestion(ctx, s.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assigned question: %w", err)
	}

	log.Info().
		Str("identifier", s.Identifier).
		Str("competition_id", s.CompetitionID.String()).
		Time("end_time", s.EndTime).
		Msg("session resumed")

	return &Assignment{Session: s, Question: *question, Resumed: true}, nil
}

// Peek reports whether a session can be resumed without establishing one.
// The mirrored token is consulted first and then re-validated against the
// session record, which always wins; a stale token is rewritten.
func (m *Manager) Peek(ctx context.Context, identifier string, competitionID uuid.UUID) (*Resumption, error) {
	key := models.SessionKey{
		Identifier:    models.CanonicalIdentifier(identifier),
		CompetitionID: competitionID,
	}
	if key.Identifier == "" {
		return nil, contesterr.ErrInvalidIdentifier
	}

	hint, err := m.mirror.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("session", key.String()).Msg("failed to read session mirror")
		hint = nil
	}

	s, err := m.sessions.FindSession(ctx, key)
	if errors.Is(err, contesterr.ErrSessionNotFound) {
		if hint != nil {
			if err := m.mirror.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("session", key.String()).Msg("failed to delete stale session mirror")
			}
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	authoritative := mirror.TokenFor(*s)
	res := &Resumption{
		Session:   *s,
		Resumable: !s.Terminal(m.clock.Now()),
		Hint:      hint,
		HintStale: hint == nil || !sameToken(*hint, authoritative),
	}
	if res.HintStale {
		m.putMirror(ctx, *s)
	}
	return res, nil
}

func (m *Manager) putMirror(ctx context.Context, s models.Session) {
	if err := m.mirror.Put(ctx, mirror.TokenFor(s)); err != nil {
		log.Warn().Err(err).Str("session", s.Key().String()).Msg("failed to write session mirror")
	}
}

func sameToken(a, b mirror.Token) bool {
	return a.Identifier == b.Identifier &&
		a.CompetitionID == b.CompetitionID &&
		a.Submitted == b.Submitted &&
		a.EndTime.Equal(b.EndTime)
}

