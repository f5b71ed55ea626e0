package answerstore

import (
	"context"
	"sync"

	"github.com/mcdev12/arena/go/internal/models"
)

// MemoryStore keeps objects in a map. Locators use the mem:// scheme.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]models.AnswerPart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]models.AnswerPart)}
}

func (m *MemoryStore) Put(_ context.Context, key string, part models.AnswerPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	part.Data = append([]byte(nil), part.Data...)
	m.objects[key] = part
	return "mem://" + key, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (models.AnswerPart, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, ok := m.objects[key]
	return part, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
