package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenForClosedSession(t *testing.T) {
	end := time.Now().Add(time.Minute)
	s := models.Session{Identifier: "JDOE", CompetitionID: uuid.New(), EndTime: end}

	assert.False(t, TokenFor(s).Submitted)
	assert.True(t, TokenFor(s).Resumable(time.Now()))

	s.Expired = true
	assert.True(t, TokenFor(s).Submitted, "a recorded expiry closes the session like a submit")
	assert.False(t, TokenFor(s).Resumable(time.Now()))
}

func TestTokenResumableAfterDeadline(t *testing.T) {
	end := time.Now()
	token := Token{Identifier: "JDOE", EndTime: end}
	assert.False(t, token.Resumable(end.Add(time.Second)))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := models.SessionKey{Identifier: "JDOE", CompetitionID: uuid.New()}

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Marking an absent token is a no-op.
	require.NoError(t, store.MarkSubmitted(ctx, key))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	token := Token{Identifier: key.Identifier, CompetitionID: key.CompetitionID, EndTime: time.Now().Add(time.Minute)}
	require.NoError(t, store.Put(ctx, token))
	require.NoError(t, store.MarkSubmitted(ctx, key))

	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Submitted)
	assert.True(t, got.EndTime.Equal(token.EndTime))

	require.NoError(t, store.Delete(ctx, key))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	store := NewRedisStore(nil, clock, 0)
	token := Token{EndTime: clock.Now().Add(10 * time.Minute)}

	assert.Equal(t, 10*time.Minute+DefaultRetention, store.ttl(token))

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 6*time.Minute+DefaultRetention, store.ttl(token))

	clock.Advance(3 * time.Hour)
	assert.Equal(t, time.Minute, store.ttl(token))
}

func TestRedisStoreKey(t *testing.T) {
	store := NewRedisStore(nil, clockwork.NewFakeClock(), time.Hour)
	compID := uuid.MustParse("7f7c1f8e-6d2d-4a4b-8b44-7f0f9d0ab001")
	assert.Equal(t,
		"competition_session:7f7c1f8e-6d2d-4a4b-8b44-7f0f9d0ab001:JDOE",
		store.key(models.SessionKey{Identifier: "JDOE", CompetitionID: compID}))
}
