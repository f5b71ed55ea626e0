package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/mcdev12/arena/go/internal/session"
)

func (s *Store) FindSession(_ context.Context, key models.SessionKey) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, contesterr.ErrSessionNotFound
	}
	return copySession(sess), nil
}

func (s *Store) CreateSession(_ context.Context, sess models.Session, event outbox.Event) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sess.Key()
	if _, ok := s.sessions[key]; ok {
		return nil, contesterr.ErrSessionExists
	}
	sess.Submitted = false
	sess.Expired = false
	sess.Score = nil
	sess.Answer = nil
	sess.SubmittedAt = nil
	sess.CreatedAt = s.clock.Now()

	s.sessions[key] = sess
	s.outbox = append(s.outbox, event)
	return copySession(sess), nil
}

func (s *Store) SubmitSession(_ context.Context, key models.SessionKey, params session.SubmitParams, event outbox.Event) (*models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, false, contesterr.ErrSessionNotFound
	}
	if sess.Closed() {
		return copySession(sess), false, nil
	}

	score := params.Score
	at := params.SubmittedAt
	sess.Submitted = true
	sess.Score = &score
	sess.Answer = params.Answer
	sess.SubmittedAt = &at

	s.sessions[key] = sess
	s.outbox = append(s.outbox, event)
	return copySession(sess), true, nil
}

func (s *Store) ExpireSession(_ context.Context, key models.SessionKey, _ time.Time, event outbox.Event) (*models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, false, contesterr.ErrSessionNotFound
	}
	if sess.Closed() {
		return copySession(sess), false, nil
	}
	sess.Expired = true

	s.sessions[key] = sess
	s.outbox = append(s.outbox, event)
	return copySession(sess), true, nil
}

func (s *Store) ListDue(_ context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.Session
	for _, sess := range s.sessions {
		if !sess.Closed() && !sess.EndTime.After(cutoff) {
			due = append(due, *copySession(sess))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].EndTime.Before(due[j].EndTime)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
