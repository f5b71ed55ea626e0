package submission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/answerstore"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/contesterr"
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

type countingGrader struct {
	score int
	calls atomic.Int32
}

func (g *countingGrader) Grade(context.Context, models.Session, models.Answer) (int, error) {
	g.calls.Add(1)
	return g.score, nil
}

// flakySessions fails the first failSubmits commits and, when gate is set,
// blocks every commit until gate is closed.
type flakySessions struct {
	submission.SessionStore
	failSubmits atomic.Int32
	gate        chan struct{}
}

func (f *flakySessions) SubmitSession(ctx context.Context, key models.SessionKey, params session.SubmitParams, event outbox.Event) (*models.Session, bool, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.failSubmits.Add(-1) >= 0 {
		return nil, false, contesterr.Unavailable("submit session", errors.New("connection reset by peer"))
	}
	return f.SessionStore.SubmitSession(ctx, key, params, event)
}

type failingFiles struct {
	*answerstore.MemoryStore
	failOn string
}

func (f *failingFiles) Put(ctx context.Context, key string, part models.AnswerPart) (string, error) {
	if part.FileName == f.failOn {
		return "", contesterr.Unavailable("upload answer file", errors.New("503 slow down"))
	}
	return f.MemoryStore.Put(ctx, key, part)
}

type failingRecorder struct{}

func (failingRecorder) RecordScore(context.Context, string, uuid.UUID, int) error {
	return errors.New("leaderboard unavailable")
}

type fixture struct {
	clock    *clockwork.FakeClock
	store    *memstore.Store
	files    *answerstore.MemoryStore
	mirror   *mirror.MemoryStore
	grader   *countingGrader
	board    *leaderboard.Aggregator
	sessions submission.SessionStore
	key      models.SessionKey
	deadline time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := memstore.New(clock)

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

	return &fixture{
		clock:    clock,
		store:    store,
		files:    answerstore.NewMemoryStore(),
		mirror:   tokens,
		grader:   &countingGrader{score: 80},
		board:    leaderboard.NewAggregator(store, clock),
		sessions: store,
		key:      assignment.Session.Key(),
		deadline: assignment.Deadline(),
	}
}

func (f *fixture) coordinator(t *testing.T, policy submission.ExpiryPolicy) *submission.Coordinator {
	t.Helper()
	return f.coordinatorWith(t, policy, f.files, f.board)
}

func (f *fixture) coordinatorWith(t *testing.T, policy submission.ExpiryPolicy, files answerstore.Store, scores submission.ScoreRecorder) *submission.Coordinator {
	t.Helper()
	c, err := submission.NewCoordinator(f.sessions, files, f.grader, scores, f.mirror, f.clock, submission.Config{
		RequiredParts: []string{models.AnswerPartPrompt, models.AnswerPartOutput},
		ExpiryPolicy:  policy,
		EmptyScore:    0,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) committedEvents() int {
	n := 0
	for _, ev := range f.store.Events() {
		if ev.EventType == events.TypeSubmissionCommitted {
			n++
		}
	}
	return n
}

func (f *fixture) overall(t *testing.T) int {
	t.Helper()
	o, err := f.board.Overall(context.Background(), f.key.Identifier)
	require.NoError(t, err)
	return o.Total
}

func fullAnswer() models.Answer {
	return models.Answer{Parts: map[string]models.AnswerPart{
		models.AnswerPartPrompt: {FileName: "prompt.txt", ContentType: "text/plain", Data: []byte("You are a helpful summariser.")},
		models.AnswerPartOutput: {FileName: "output.txt", ContentType: "text/plain", Data: []byte("The brief asks for three things.")},
	}}
}

func TestNewCoordinatorRequiresExpiryPolicy(t *testing.T) {
	f := newFixture(t)
	_, err := submission.NewCoordinator(f.sessions, f.files, f.grader, f.board, f.mirror, f.clock, submission.Config{})
	assert.Error(t, err)
}

func TestManualSubmitCommitsOnce(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	f.clock.Advance(30 * time.Second)
	out, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, out.Score)
	assert.Equal(t, 80, *out.Score)
	assert.False(t, out.Replayed)
	assert.True(t, out.Session.Submitted)
	require.NotNil(t, out.Session.Answer)
	assert.Len(t, out.Session.Answer.Files, 2)

	again, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 80, *again.Score)

	assert.Equal(t, int32(1), f.grader.calls.Load())
	assert.Equal(t, 2, f.files.Len())
	assert.Equal(t, 1, f.committedEvents())
	assert.Equal(t, 80, f.overall(t))

	token, err := f.mirror.Get(ctx, f.key)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.True(t, token.Submitted)
}

func TestManualIncompleteDoesNotConsumeSlot(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	partial := fullAnswer()
	delete(partial.Parts, models.AnswerPartOutput)

	_, err := c.Submit(ctx, f.key, partial, submission.TriggerManual)
	require.ErrorIs(t, err, contesterr.ErrIncompleteSubmission)
	assert.Contains(t, err.Error(), "output")
	assert.False(t, c.InFlight(f.key))
	assert.Equal(t, 0, f.files.Len())

	out, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, 80, *out.Score)
}

func TestExpiryWithAllowEmptySubmitsEmptyAnswer(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)

	f.clock.Advance(61 * time.Second)
	out, err := c.Submit(context.Background(), f.key, models.Answer{}, submission.TriggerAuto)
	require.NoError(t, err)

	assert.True(t, out.Session.Submitted)
	assert.False(t, out.Expired)
	require.NotNil(t, out.Score)
	assert.Equal(t, 0, *out.Score)
	require.NotNil(t, out.Session.Answer)
	assert.Empty(t, out.Session.Answer.Files)
	assert.Equal(t, int32(0), f.grader.calls.Load(), "empty answers are not graded")
	assert.Equal(t, 1, f.committedEvents())
}

func TestExpiryWithRecordOnlyRecordsExpiry(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyRecordOnly)
	ctx := context.Background()

	f.clock.Advance(61 * time.Second)
	out, err := c.Submit(ctx, f.key, models.Answer{}, submission.TriggerAuto)
	require.NoError(t, err)
	assert.True(t, out.Expired)
	assert.Nil(t, out.Score)
	assert.False(t, out.Session.Submitted)

	again, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.True(t, again.Expired)
	assert.Equal(t, 0, f.committedEvents())
	assert.Equal(t, 0, f.overall(t))
}

func TestExpiryWithRecordOnlyStillSubmitsDraft(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyRecordOnly)

	draft := models.Answer{Parts: map[string]models.AnswerPart{
		models.AnswerPartPrompt: {FileName: "prompt.txt", Data: []byte("draft")},
	}}

	f.clock.Advance(60 * time.Second)
	out, err := c.Submit(context.Background(), f.key, draft, submission.TriggerAuto)
	require.NoError(t, err)
	assert.True(t, out.Session.Submitted)
	assert.Equal(t, 80, *out.Score)
	assert.Len(t, out.Session.Answer.Files, 1)
}

func TestManualThenExpiryIsNoop(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	f.clock.Advance(30 * time.Second)
	manual, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)

	f.grader.score = 5
	f.clock.Advance(30 * time.Second)
	auto, err := c.Submit(ctx, f.key, models.Answer{}, submission.TriggerAuto)
	require.NoError(t, err)

	assert.True(t, auto.Replayed)
	assert.Equal(t, submission.TriggerManual, auto.Trigger)
	assert.Equal(t, *manual.Score, *auto.Score)
	assert.Equal(t, int32(1), f.grader.calls.Load())
	assert.Equal(t, 1, f.committedEvents())
	assert.Equal(t, 80, f.overall(t))
}

func TestReplayFromRecordAfterForget(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	_, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)

	c.Forget(f.key)
	f.clock.Advance(time.Minute)
	out, err := c.Submit(ctx, f.key, models.Answer{}, submission.TriggerAuto)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, 80, *out.Score)
	assert.Equal(t, int32(1), f.grader.calls.Load())
}

func TestConcurrentTriggersCommitOnce(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	// The deadline instant: manual is still allowed, auto is due.
	f.clock.Advance(time.Minute)

	const callers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []*submission.Outcome
	)
	for i := 0; i < callers; i++ {
		trigger := submission.TriggerManual
		if i%2 == 1 {
			trigger = submission.TriggerAuto
		}
		wg.Add(1)
		go func(trigger submission.Trigger) {
			defer wg.Done()
			out, err := c.Submit(ctx, f.key, fullAnswer(), trigger)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(trigger)
	}
	wg.Wait()

	require.Len(t, outcomes, callers)
	fresh := 0
	for _, out := range outcomes {
		if !out.Replayed {
			fresh++
		}
		assert.Equal(t, 80, *out.Score)
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int32(1), f.grader.calls.Load())
	assert.Equal(t, 2, f.files.Len())
	assert.Equal(t, 1, f.committedEvents())
	assert.Equal(t, 80, f.overall(t))
}

func TestCommitFailureReleasesGuardAndRemovesFiles(t *testing.T) {
	f := newFixture(t)
	flaky := &flakySessions{SessionStore: f.store}
	flaky.failSubmits.Store(1)
	f.sessions = flaky
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	_, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.ErrorIs(t, err, contesterr.ErrSubmissionFailed)
	assert.ErrorIs(t, err, contesterr.ErrStorageUnavailable)
	assert.False(t, c.InFlight(f.key))
	assert.Equal(t, 0, f.files.Len(), "uploaded files are removed after a failed commit")

	record, err := f.store.FindSession(ctx, f.key)
	require.NoError(t, err)
	assert.False(t, record.Submitted)
	assert.Nil(t, record.Score)

	out, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, 2, f.files.Len())
	assert.Equal(t, 1, f.committedEvents())
}

func TestUploadFailureRemovesEarlierParts(t *testing.T) {
	f := newFixture(t)
	files := &failingFiles{MemoryStore: f.files, failOn: "prompt.txt"}
	c := f.coordinatorWith(t, submission.PolicyAllowEmpty, files, f.board)

	_, err := c.Submit(context.Background(), f.key, fullAnswer(), submission.TriggerManual)
	require.ErrorIs(t, err, contesterr.ErrSubmissionFailed)
	assert.Equal(t, 0, f.files.Len())
	assert.Equal(t, int32(0), f.grader.calls.Load())
}

func TestWaiterProceedsWhenHolderFails(t *testing.T) {
	f := newFixture(t)
	flaky := &flakySessions{SessionStore: f.store, gate: make(chan struct{})}
	flaky.failSubmits.Store(1)
	f.sessions = flaky
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	f.clock.Advance(time.Minute)

	manualErr := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
		manualErr <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight(f.key) }, time.Second, time.Millisecond)

	autoOut := make(chan *submission.Outcome, 1)
	go func() {
		out, err := c.Submit(ctx, f.key, models.Answer{}, submission.TriggerAuto)
		assert.NoError(t, err)
		autoOut <- out
	}()

	close(flaky.gate)
	require.ErrorIs(t, <-manualErr, contesterr.ErrSubmissionFailed)

	out := <-autoOut
	require.NotNil(t, out)
	assert.Equal(t, submission.TriggerAuto, out.Trigger)
	assert.True(t, out.Session.Submitted)
	assert.Equal(t, 1, f.committedEvents())
}

func TestWaiterHonoursContext(t *testing.T) {
	f := newFixture(t)
	flaky := &flakySessions{SessionStore: f.store, gate: make(chan struct{})}
	f.sessions = flaky
	c := f.coordinator(t, submission.PolicyAllowEmpty)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Submit(context.Background(), f.key, fullAnswer(), submission.TriggerManual)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return c.InFlight(f.key) }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	assert.ErrorIs(t, err, context.Canceled)

	close(flaky.gate)
	<-done
}

func TestManualAfterDeadlineIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	f.clock.Advance(time.Minute + time.Nanosecond)
	_, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.ErrorIs(t, err, contesterr.ErrAlreadyUsed)
	assert.False(t, c.InFlight(f.key))
	assert.Equal(t, int32(0), f.grader.calls.Load())
	assert.Zero(t, f.files.Len())
	assert.Zero(t, f.committedEvents())

	rec, err := f.store.FindSession(ctx, f.key)
	require.NoError(t, err)
	assert.False(t, rec.Submitted)

	out, err := c.Submit(ctx, f.key, models.Answer{}, submission.TriggerAuto)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, submission.TriggerAuto, out.Trigger)
	assert.Equal(t, 0, *out.Score)
}

func TestManualAtDeadlineIsAccepted(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)

	f.clock.Advance(time.Minute)
	out, err := c.Submit(context.Background(), f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, submission.TriggerManual, out.Trigger)
	assert.Equal(t, 80, *out.Score)
}

func TestAutoBeforeDeadlineIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)

	f.clock.Advance(59 * time.Second)
	_, err := c.Submit(context.Background(), f.key, models.Answer{}, submission.TriggerAuto)
	require.Error(t, err)
	assert.False(t, c.InFlight(f.key))
}

func TestLeaderboardFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	c := f.coordinatorWith(t, submission.PolicyAllowEmpty, f.files, failingRecorder{})

	out, err := c.Submit(context.Background(), f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)
	assert.True(t, out.Session.Submitted)
	assert.Equal(t, 1, f.committedEvents(), "projector can replay the score")
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)

	_, err := c.Submit(context.Background(), models.SessionKey{Identifier: "NOBODY", CompetitionID: f.key.CompetitionID}, fullAnswer(), submission.TriggerManual)
	assert.ErrorIs(t, err, contesterr.ErrSessionNotFound)
}

func TestSubmittedScoreNeverChanges(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, submission.PolicyAllowEmpty)
	ctx := context.Background()

	_, err := c.Submit(ctx, f.key, fullAnswer(), submission.TriggerManual)
	require.NoError(t, err)

	// A second writer going straight to the store cannot reopen or rescore.
	_, applied, err := f.store.SubmitSession(ctx, f.key, session.SubmitParams{Score: 1, SubmittedAt: f.clock.Now()}, outbox.Event{ID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, applied)

	record, err := f.store.FindSession(ctx, f.key)
	require.NoError(t, err)
	assert.True(t, record.Submitted)
	assert.Equal(t, 80, *record.Score)
}
