package leaderboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/answerstore"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/events"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/memstore"
	"github.com/mcdev12/arena/go/internal/mirror"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordScoreOverallIsSumAcrossCompetitions(t *testing.T) {
	ctx := context.Background()
	agg := leaderboard.NewAggregator(memstore.New(clockwork.NewFakeClock()), clockwork.NewFakeClock())
	compA, compB := uuid.New(), uuid.New()

	require.NoError(t, agg.RecordScore(ctx, "JDOE", compA, 80))
	require.NoError(t, agg.RecordScore(ctx, "jdoe ", compB, 70))

	overall, err := agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, 150, overall.Total)
	assert.Equal(t, 2, overall.Competitions)
}

func TestRecordScoreIsIdempotentAndOverwrites(t *testing.T) {
	ctx := context.Background()
	agg := leaderboard.NewAggregator(memstore.New(clockwork.NewFakeClock()), clockwork.NewFakeClock())
	comp := uuid.New()

	require.NoError(t, agg.RecordScore(ctx, "JDOE", comp, 80))
	require.NoError(t, agg.RecordScore(ctx, "JDOE", comp, 80))

	overall, err := agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, 80, overall.Total)

	// A corrected score replaces the old contribution.
	require.NoError(t, agg.RecordScore(ctx, "JDOE", comp, 65))
	overall, err = agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, 65, overall.Total)
	assert.Equal(t, 1, overall.Competitions)
}

func TestRecordScoreConcurrentWritersSameIdentifier(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(clockwork.NewFakeClock())
	agg := leaderboard.NewAggregator(store, clockwork.NewFakeClock())

	const competitions = 50
	var wg sync.WaitGroup
	for i := 0; i < competitions; i++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			assert.NoError(t, agg.RecordScore(ctx, "JDOE", uuid.New(), score))
		}(i + 1)
	}
	wg.Wait()

	overall, err := agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, competitions*(competitions+1)/2, overall.Total)
	assert.Equal(t, competitions, overall.Competitions)
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	agg := leaderboard.NewAggregator(memstore.New(clockwork.NewFakeClock()), clockwork.NewFakeClock())
	comp := uuid.New()

	for i, id := range []string{"ALICE", "BOB", "CAROL"} {
		require.NoError(t, agg.RecordScore(ctx, id, comp, 10*(i+1)))
	}
	require.NoError(t, agg.RecordScore(ctx, "ALICE", uuid.New(), 100))

	entries, err := agg.ListCompetition(ctx, comp)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "CAROL", entries[0].Identifier)

	totals, err := agg.ListOverall(ctx, 2)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "ALICE", totals[0].Identifier)
	assert.Equal(t, 110, totals[0].Total)
}

func TestProjectorHandle(t *testing.T) {
	ctx := context.Background()
	agg := leaderboard.NewAggregator(memstore.New(clockwork.NewFakeClock()), clockwork.NewFakeClock())
	p := leaderboard.NewLocalProjector(agg)
	comp := uuid.New()

	payload, err := json.Marshal(events.SubmissionCommittedPayload{
		Identifier: "JDOE", CompetitionID: comp.String(), Score: 42, Trigger: "auto",
	})
	require.NoError(t, err)
	envelope := func(typ events.Type) []byte {
		data, err := json.Marshal(events.Envelope{EventID: uuid.NewString(), EventType: typ, Payload: payload})
		require.NoError(t, err)
		return data
	}

	// Replays are harmless.
	require.NoError(t, p.Handle(ctx, envelope(events.TypeSubmissionCommitted)))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeSubmissionCommitted)))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeSessionStarted)))

	overall, err := agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, 42, overall.Total)

	assert.Error(t, p.Handle(ctx, []byte(fmt.Sprintf("%q", "not an envelope"))))
}

// flakyRecorder fails the first failures writes.
type flakyRecorder struct {
	leaderboard.ScoreRecorder
	failures atomic.Int32
}

func (r *flakyRecorder) RecordScore(ctx context.Context, identifier string, competitionID uuid.UUID, score int) error {
	if r.failures.Add(-1) >= 0 {
		return errors.New("leaderboard unavailable")
	}
	return r.ScoreRecorder.RecordScore(ctx, identifier, competitionID, score)
}

func TestLocalProjectorRecoversFailedScoreWrite(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := memstore.New(clock)
	agg := leaderboard.NewAggregator(store, clock)

	comps := competition.NewApp(store)
	comp, err := comps.CreateCompetition(ctx, competition.CreateCompetitionRequest{
		Name: "Prompt Sprint", TimeLimitMinutes: 1, Status: models.CompetitionStatusOngoing,
	})
	require.NoError(t, err)
	_, err = comps.AddQuestion(ctx, competition.CreateQuestionRequest{CompetitionID: comp.ID, Title: "Summarise the brief"})
	require.NoError(t, err)

	tokens := mirror.NewMemoryStore()
	assignment, err := session.NewManager(store, store, tokens, clock).EstablishOrResume(ctx, "jdoe", comp.ID)
	require.NoError(t, err)

	// The direct write after commit and the first relay pass both fail.
	recorder := &flakyRecorder{ScoreRecorder: agg}
	recorder.failures.Store(2)

	coordinator, err := submission.NewCoordinator(store, answerstore.NewMemoryStore(), submission.FixedGrader{Score: 80},
		recorder, tokens, clock, submission.Config{
			RequiredParts: []string{models.AnswerPartPrompt},
			ExpiryPolicy:  submission.PolicyAllowEmpty,
		})
	require.NoError(t, err)

	answer := models.Answer{Parts: map[string]models.AnswerPart{
		models.AnswerPartPrompt: {FileName: "prompt.txt", ContentType: "text/plain", Data: []byte("Summarise in one line.")},
	}}
	out, err := coordinator.Submit(ctx, assignment.Session.Key(), answer, submission.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, out.Score)
	assert.Equal(t, 80, *out.Score)

	overall, err := agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, 0, overall.Total)

	relay := outbox.NewRelay(store, leaderboard.NewLocalProjector(recorder), outbox.Config{BatchSize: 10})

	require.NoError(t, relay.ProcessUnsent(ctx))
	unsent, err := store.FetchUnsent(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, unsent, "failed projection keeps the event")

	require.NoError(t, relay.ProcessUnsent(ctx))
	unsent, err = store.FetchUnsent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	overall, err = agg.Overall(ctx, "JDOE")
	require.NoError(t, err)
	assert.Equal(t, 80, overall.Total)

	entries, err := agg.ListCompetition(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 80, entries[0].Score)
}
