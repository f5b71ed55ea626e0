package mirror

import (
	"context"
	"sync"

	"github.com/mcdev12/arena/go/internal/models"
)

// MemoryStore is a process-local token store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[models.SessionKey]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[models.SessionKey]Token)}
}

func (s *MemoryStore) Put(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Key()] = token
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key models.SessionKey) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token, ok := s.tokens[key]; ok {
		return &token, nil
	}
	return nil, nil
}

func (s *MemoryStore) MarkSubmitted(ctx context.Context, key models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[key]; ok {
		token.Submitted = true
		s.tokens[key] = token
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}
