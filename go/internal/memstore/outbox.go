package memstore

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/outbox"
)

func (s *Store) FetchUnsent(_ context.Context, limit int) ([]outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []outbox.Event
	for _, ev := range s.outbox {
		if ev.SentAt != nil {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) FetchByID(_ context.Context, id uuid.UUID) (*outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.outbox {
		if ev.ID == id && ev.SentAt == nil {
			return &ev, nil
		}
	}
	return nil, outbox.ErrEventNotFound
}

// MarkSent drops the event. Relayed events are not kept in memory.
func (s *Store) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox = slices.DeleteFunc(s.outbox, func(ev outbox.Event) bool {
		return ev.ID == id
	})
	return nil
}

// Events returns a copy of the events not yet relayed.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]outbox.Event(nil), s.outbox...)
}
