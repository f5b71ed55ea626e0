package submission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/answerstore"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/events"
	"github.com/mcdev12/arena/go/internal/mirror"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/rs/zerolog/log"
)

// SessionStore defines what the coordinator needs from the session repository.
// SubmitSession and ExpireSession only write to an open session and report
// applied=false with the current record otherwise.
type SessionStore interface {
	FindSession(ctx context.Context, key models.SessionKey) (*models.Session, error)
	SubmitSession(ctx context.Context, key models.SessionKey, params session.SubmitParams, event outbox.Event) (*models.Session, bool, error)
	ExpireSession(ctx context.Context, key models.SessionKey, at time.Time, event outbox.Event) (*models.Session, bool, error)
}

// ScoreRecorder receives committed scores.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, identifier string, competitionID uuid.UUID, score int) error
}

type phase int

const (
	phaseActive phase = iota
	phaseSubmitting
	phaseTerminal
)

// slot is the guard state of one session. done is closed when the attempt
// holding the slot finishes.
type slot struct {
	phase   phase
	done    chan struct{}
	outcome *Outcome
}

// Coordinator owns the at-most-once submission of every session. Manual
// submits and expiry driven auto-submits both go through Submit; the first
// one admitted runs, concurrent ones wait for it and get its result.
type Coordinator struct {
	sessions SessionStore
	files    answerstore.Store
	grader   Grader
	scores   ScoreRecorder
	mirror   mirror.Store
	clock    clockwork.Clock
	cfg      Config

	mu    sync.Mutex
	slots map[models.SessionKey]*slot
}

// NewCoordinator creates a new Coordinator. cfg must pass Validate.
func NewCoordinator(
	sessions SessionStore,
	files answerstore.Store,
	grader Grader,
	scores ScoreRecorder,
	store mirror.Store,
	clock clockwork.Clock,
	cfg Config,
) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submission config: %w", err)
	}
	return &Coordinator{
		sessions: sessions,
		files:    files,
		grader:   grader,
		scores:   scores,
		mirror:   store,
		clock:    clock,
		cfg:      cfg,
		slots:    make(map[models.SessionKey]*slot),
	}, nil
}

// Submit drives the session identified by key to its terminal state.
//
// A session that is already terminal returns its earlier outcome with
// Replayed set and no side effects. A manual submit missing required parts
// fails with ErrIncompleteSubmission; a failed commit fails with
// ErrSubmissionFailed. Neither consumes the session, so a later attempt can
// still succeed.
func (c *Coordinator) Submit(ctx context.Context, key models.SessionKey, answer models.Answer, trigger Trigger) (*Outcome, error) {
	key.Identifier = models.CanonicalIdentifier(key.Identifier)
	if trigger != TriggerManual && trigger != TriggerAuto {
		return nil, fmt.Errorf("unknown trigger %q", trigger)
	}

	for {
		prior, wait := c.admit(key)
		if prior != nil {
			replay := *prior
			replay.Replayed = true
			log.Info().
				Str("session", key.String()).
				Str("trigger", string(trigger)).
				Msg("submission already terminal, returning prior outcome")
			return &replay, nil
		}
		if wait == nil {
			break
		}

		log.Debug().
			Str("session", key.String()).
			Str("trigger", string(trigger)).
			Msg("submission in flight, waiting")
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	log.Info().
		Str("session", key.String()).
		Str("trigger", string(trigger)).
		Msg("submission admitted")

	// Once admitted the attempt runs to completion even if the caller goes away.
	outcome, err := c.execute(context.WithoutCancel(ctx), key, answer, trigger)
	c.release(key, outcome, err)

	if err != nil {
		log.Warn().
			Err(err).
			Str("session", key.String()).
			Str("trigger", string(trigger)).
			Msg("submission attempt failed")
		return nil, err
	}
	return outcome, nil
}

// admit claims the slot for key. It returns the prior outcome when the
// session is terminal, a channel to wait on when another attempt holds the
// slot, or neither when the caller now holds it.
func (c *Coordinator) admit(key models.SessionKey) (*Outcome, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	switch s.phase {
	case phaseTerminal:
		return s.outcome, nil
	case phaseSubmitting:
		return nil, s.done
	}
	s.phase = phaseSubmitting
	s.done = make(chan struct{})
	return nil, nil
}

func (c *Coordinator) release(key models.SessionKey, outcome *Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[key]
	close(s.done)
	s.done = nil
	if err == nil && outcome != nil {
		s.phase = phaseTerminal
		s.outcome = outcome
		return
	}
	delete(c.slots, key)
}

// Forget drops the cached outcome of a terminal session. Later calls fall
// back to the session record, which is still terminal.
func (c *Coordinator) Forget(key models.SessionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key.Identifier = models.CanonicalIdentifier(key.Identifier)
	if s, ok := c.slots[key]; ok && s.phase == phaseTerminal {
		delete(c.slots, key)
	}
}

// InFlight reports whether an attempt currently holds the slot for key.
func (c *Coordinator) InFlight(key models.SessionKey) bool {
	key.Identifier = models.CanonicalIdentifier(key.Identifier)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	return ok && s.phase == phaseSubmitting
}

func (c *Coordinator) execute(ctx context.Context, key models.SessionKey, answer models.Answer, trigger Trigger) (*Outcome, error) {
	s, err := c.sessions.FindSession(ctx, key)
	if err != nil {
		if errors.Is(err, contesterr.ErrSessionNotFound) {
			return nil, err
		}
		return nil, contesterr.Submit(fmt.Errorf("failed to load session: %w", err))
	}
	if s.Closed() {
		c.markMirror(ctx, key)
		return outcomeFromRecord(*s), nil
	}

	now := c.clock.Now()
	switch trigger {
	case TriggerManual:
		// The record is terminal once the deadline has passed; only expiry
		// may close it from then on.
		if now.After(s.EndTime) {
			return nil, contesterr.ErrAlreadyUsed
		}
		if missing := answer.Missing(c.cfg.RequiredParts); len(missing) > 0 {
			return nil, fmt.Errorf("%w: missing %s", contesterr.ErrIncompleteSubmission, strings.Join(missing, ", "))
		}
	case TriggerAuto:
		if now.Before(s.EndTime) {
			return nil, fmt.Errorf("auto submit before deadline %s", s.EndTime.Format(time.RFC3339))
		}
		if answer.Empty() && c.cfg.ExpiryPolicy == PolicyRecordOnly {
			return c.expire(ctx, *s, now)
		}
	}

	return c.commit(ctx, *s, answer, trigger, now)
}

func (c *Coordinator) commit(ctx context.Context, s models.Session, answer models.Answer, trigger Trigger, now time.Time) (*Outcome, error) {
	key := s.Key()

	files, err := c.storeFiles(ctx, s, answer, now)
	if err != nil {
		return nil, contesterr.Submit(err)
	}

	score := c.cfg.EmptyScore
	empty := answer.Empty()
	if !empty {
		if score, err = c.grader.Grade(ctx, s, answer); err != nil {
			c.compensate(ctx, key, files)
			return nil, contesterr.Submit(fmt.Errorf("failed to grade answer: %w", err))
		}
	}

	event, err := outbox.NewEvent(s.CompetitionID, s.Identifier, events.TypeSubmissionCommitted, events.SubmissionCommittedPayload{
		Identifier:    s.Identifier,
		CompetitionID: s.CompetitionID.String(),
		Score:         score,
		Trigger:       string(trigger),
		Empty:         empty,
		SubmittedAt:   now,
	}, now)
	if err != nil {
		c.compensate(ctx, key, files)
		return nil, contesterr.Submit(err)
	}

	updated, applied, err := c.sessions.SubmitSession(ctx, key, session.SubmitParams{
		Score:       score,
		Answer:      &models.AnswerManifest{Text: answer.Text, Files: files},
		SubmittedAt: now,
	}, event)
	if err != nil {
		c.compensate(ctx, key, files)
		return nil, contesterr.Submit(fmt.Errorf("failed to commit submission: %w", err))
	}
	if !applied {
		// Closed by another process between our load and commit.
		c.compensate(ctx, key, files)
		c.markMirror(ctx, key)
		return outcomeFromRecord(*updated), nil
	}

	log.Info().
		Str("session", key.String()).
		Str("trigger", string(trigger)).
		Int("score", score).
		Bool("empty", empty).
		Int("files", len(files)).
		Msg("submission committed")

	if err := c.scores.RecordScore(ctx, s.Identifier, s.CompetitionID, score); err != nil {
		// The SubmissionCommitted event replays this through the projector.
		log.Error().Err(err).Str("session", key.String()).Msg("failed to record leaderboard score")
	}
	c.markMirror(ctx, key)

	return &Outcome{Session: *updated, Score: updated.Score, Trigger: trigger}, nil
}

func (c *Coordinator) expire(ctx context.Context, s models.Session, now time.Time) (*Outcome, error) {
	key := s.Key()

	event, err := outbox.NewEvent(s.CompetitionID, s.Identifier, events.TypeSessionExpired, events.SessionExpiredPayload{
		Identifier:    s.Identifier,
		CompetitionID: s.CompetitionID.String(),
		EndTime:       s.EndTime,
		ExpiredAt:     now,
	}, now)
	if err != nil {
		return nil, contesterr.Submit(err)
	}

	updated, applied, err := c.sessions.ExpireSession(ctx, key, now, event)
	if err != nil {
		return nil, contesterr.Submit(fmt.Errorf("failed to record expiry: %w", err))
	}
	c.markMirror(ctx, key)
	if !applied {
		return outcomeFromRecord(*updated), nil
	}

	log.Info().
		Str("session", key.String()).
		Msg("session expired without submission")
	return &Outcome{Session: *updated, Trigger: TriggerAuto, Expired: true}, nil
}

// storeFiles uploads every non-empty part. On failure the parts already
// uploaded are removed again.
func (c *Coordinator) storeFiles(ctx context.Context, s models.Session, answer models.Answer, now time.Time) ([]models.StoredFile, error) {
	names := make([]string, 0, len(answer.Parts))
	for name, part := range answer.Parts {
		if len(part.Data) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	files := make([]models.StoredFile, 0, len(names))
	for _, name := range names {
		part := answer.Parts[name]
		objectKey := answerstore.ObjectKey(s.CompetitionID, s.Identifier, name, now, part.FileName)
		locator, err := c.files.Put(ctx, objectKey, part)
		if err != nil {
			c.compensate(ctx, s.Key(), files)
			return nil, fmt.Errorf("failed to store %s: %w", name, err)
		}
		files = append(files, models.StoredFile{
			Part:    name,
			Name:    part.FileName,
			Key:     objectKey,
			Locator: locator,
		})
	}
	return files, nil
}

func (c *Coordinator) compensate(ctx context.Context, key models.SessionKey, files []models.StoredFile) {
	for _, f := range files {
		if err := c.files.Delete(ctx, f.Key); err != nil {
			log.Error().
				Err(err).
				Str("session", key.String()).
				Str("object", f.Key).
				Msg("failed to remove uploaded answer file")
		}
	}
}

func (c *Coordinator) markMirror(ctx context.Context, key models.SessionKey) {
	if err := c.mirror.MarkSubmitted(ctx, key); err != nil {
		log.Warn().Err(err).Str("session", key.String()).Msg("failed to update session mirror")
	}
}
