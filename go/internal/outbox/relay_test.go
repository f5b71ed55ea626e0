package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	events []Event
	sent   map[uuid.UUID]bool
}

func (s *fakeStore) FetchUnsent(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if !s.sent[ev.ID] && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) FetchByID(_ context.Context, id uuid.UUID) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id && !s.sent[id] {
			ev := ev
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *fakeStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

type flakyPublisher struct {
	failures  int
	published []uuid.UUID
}

func (p *flakyPublisher) Publish(_ context.Context, event Event) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("nats: timeout")
	}
	p.published = append(p.published, event.ID)
	return nil
}

func newEvent(t *testing.T) Event {
	t.Helper()
	ev, err := NewEvent(uuid.New(), "JDOE", events.TypeSubmissionCommitted,
		events.SubmissionCommittedPayload{Identifier: "JDOE", Score: 80}, time.Now())
	require.NoError(t, err)
	return ev
}

func testConfig() Config {
	return Config{PollInterval: time.Hour, BatchSize: 10, MaxRetries: 2, RetryDelay: time.Millisecond}
}

func TestRelayRetriesAndMarksSent(t *testing.T) {
	ev := newEvent(t)
	store := &fakeStore{events: []Event{ev}, sent: map[uuid.UUID]bool{}}
	pub := &flakyPublisher{failures: 2}

	relay := NewRelay(store, pub, testConfig())
	require.NoError(t, relay.ProcessUnsent(context.Background()))

	assert.Equal(t, []uuid.UUID{ev.ID}, pub.published)
	assert.True(t, store.sent[ev.ID])
}

func TestRelayGivesUpAfterMaxRetries(t *testing.T) {
	ev := newEvent(t)
	store := &fakeStore{events: []Event{ev}, sent: map[uuid.UUID]bool{}}
	pub := &flakyPublisher{failures: 10}

	relay := NewRelay(store, pub, testConfig())
	err := relay.PublishByID(context.Background(), ev.ID)
	require.Error(t, err)
	assert.False(t, store.sent[ev.ID], "unsent event stays in the outbox")
}

func TestRelaySkipsAlreadySent(t *testing.T) {
	ev := newEvent(t)
	store := &fakeStore{events: []Event{ev}, sent: map[uuid.UUID]bool{ev.ID: true}}
	pub := &flakyPublisher{}

	relay := NewRelay(store, pub, testConfig())
	require.NoError(t, relay.PublishByID(context.Background(), ev.ID))
	assert.Empty(t, pub.published)
}

func TestEventEnvelope(t *testing.T) {
	ev := newEvent(t)
	env := ev.Envelope(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, ev.ID.String(), env.EventID)
	assert.Equal(t, "JDOE", env.Identifier)

	payload, err := events.ParsePayload(env)
	require.NoError(t, err)
	assert.Equal(t, 80, payload.(events.SubmissionCommittedPayload).Score)
}
