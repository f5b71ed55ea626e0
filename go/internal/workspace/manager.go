package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/countdown"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/rs/zerolog/log"
)

// Manager keeps the open workspaces of this process, one Run per session.
// Runs outlive the request that opened them and end on submission, expiry,
// Close or Shutdown.
type Manager struct {
	submitter Submitter
	sessions  SessionFinder
	clock     clockwork.Clock
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[models.SessionKey]*Run
}

// NewManager creates a new workspace Manager
func NewManager(submitter Submitter, sessions SessionFinder, clock clockwork.Clock, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		submitter: submitter,
		sessions:  sessions,
		clock:     clock,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[models.SessionKey]*Run),
	}
}

// Open starts the workspace of s, or returns the one already running.
// A session past its deadline is opened too; its countdown expires at once
// and drives the auto-submit.
func (m *Manager) Open(s models.Session) (*Run, error) {
	if s.Closed() {
		return nil, ErrClosed
	}
	key := s.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runs[key]; ok {
		return r, nil
	}
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}

	runCtx, stop := context.WithCancel(m.ctx)
	r := &Run{
		key:       key,
		countdown: countdown.Start(runCtx, m.clock, s.EndTime),
		requests:  make(chan request),
		stop:      stop,
		done:      make(chan struct{}),
		subs:      make(map[int]chan Update),
	}
	m.runs[key] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.loop(runCtx, m)
	}()

	log.Info().
		Str("session", key.String()).
		Time("end_time", s.EndTime).
		Int("remaining_seconds", r.countdown.Last()).
		Msg("workspace opened")
	return r, nil
}

// attach returns the running workspace of key, opening it from the session
// record when this process has none.
func (m *Manager) attach(ctx context.Context, key models.SessionKey) (*Run, error) {
	key.Identifier = models.CanonicalIdentifier(key.Identifier)
	if key.Identifier == "" {
		return nil, contesterr.ErrInvalidIdentifier
	}
	if r := m.get(key); r != nil {
		return r, nil
	}

	s, err := m.sessions.FindSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return m.Open(*s)
}

func (m *Manager) get(key models.SessionKey) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[key]
}

// SaveDraft merges answer into the draft held by the workspace. The draft is
// what expiry submits.
func (m *Manager) SaveDraft(ctx context.Context, key models.SessionKey, answer models.Answer) error {
	r, err := m.attach(ctx, key)
	if errors.Is(err, ErrClosed) {
		return contesterr.ErrAlreadyUsed
	}
	if err != nil {
		return err
	}

	res, ok := r.send(ctx, request{answer: answer, reply: make(chan result, 1)})
	if !ok {
		return contesterr.ErrAlreadyUsed
	}
	return res.err
}

// Submit is the manual submit of the participant. It runs on the workspace
// loop so it never overlaps the expiry auto-submit of the same session.
func (m *Manager) Submit(ctx context.Context, key models.SessionKey, answer models.Answer) (*submission.Outcome, error) {
	r, err := m.attach(ctx, key)
	if errors.Is(err, ErrClosed) {
		return m.submitDirect(ctx, key, answer)
	}
	if err != nil {
		return nil, err
	}

	res, ok := r.send(ctx, request{manual: true, answer: answer, reply: make(chan result, 1)})
	if !ok {
		// The run ended meanwhile; the coordinator has the terminal outcome.
		return m.submitDirect(ctx, key, answer)
	}
	return res.outcome, res.err
}

// submitDirect submits without a workspace. No run will call Forget for the
// session, so the coordinator's cached outcome is dropped here.
func (m *Manager) submitDirect(ctx context.Context, key models.SessionKey, answer models.Answer) (*submission.Outcome, error) {
	out, err := m.submitter.Submit(ctx, key, answer, submission.TriggerManual)
	m.submitter.Forget(key)
	return out, err
}

// Subscription is a stream of workspace updates. The last update has Final
// set, after which C is closed.
type Subscription struct {
	C     <-chan Update
	close func()
}

// Close detaches the subscriber. The workspace keeps running.
func (s *Subscription) Close() {
	s.close()
}

// Subscribe streams the remaining time of key and, at the end, its outcome.
// A closed session yields a single final update built from the record.
func (m *Manager) Subscribe(ctx context.Context, key models.SessionKey) (*Subscription, error) {
	r, err := m.attach(ctx, key)
	if errors.Is(err, ErrClosed) {
		key.Identifier = models.CanonicalIdentifier(key.Identifier)
		s, err := m.sessions.FindSession(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		ch := make(chan Update, 1)
		ch <- Update{Outcome: recordOutcome(*s), Final: true}
		close(ch)
		return &Subscription{C: ch, close: func() {}}, nil
	}
	if err != nil {
		return nil, err
	}

	ch, cancel := r.subscribe()
	return &Subscription{C: ch, close: cancel}, nil
}

// Close stops the workspace of key without submitting. The session stays
// resumable until its deadline.
func (m *Manager) Close(key models.SessionKey) bool {
	key.Identifier = models.CanonicalIdentifier(key.Identifier)
	r := m.get(key)
	if r == nil {
		return false
	}
	r.stop()
	return true
}

// IsActive reports whether key has a running workspace in this process.
func (m *Manager) IsActive(key models.SessionKey) bool {
	key.Identifier = models.CanonicalIdentifier(key.Identifier)
	return m.get(key) != nil
}

// Active returns the number of running workspaces.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// Shutdown stops every workspace and waits for their loops to exit.
// Pending deadlines are left to the sweeper.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
	log.Info().Msg("workspaces stopped")
}

// expire auto-submits the draft, retrying failed commits. If every attempt
// fails the session is left open for the sweeper.
func (m *Manager) expire(key models.SessionKey, draft models.Answer) *submission.Outcome {
	for attempt := 0; attempt <= m.cfg.ExpiryRetries; attempt++ {
		if attempt > 0 && m.cfg.RetryDelay > 0 {
			select {
			case <-m.clock.After(m.cfg.RetryDelay):
			case <-m.ctx.Done():
				return nil
			}
		}

		out, err := m.submitter.Submit(m.ctx, key, draft, submission.TriggerAuto)
		if err == nil {
			return out
		}
		if !errors.Is(err, contesterr.ErrSubmissionFailed) {
			log.Error().Err(err).Str("session", key.String()).Msg("auto-submit rejected")
			return nil
		}
		log.Warn().
			Err(err).
			Str("session", key.String()).
			Int("attempt", attempt+1).
			Msg("auto-submit failed, retrying")
	}

	log.Error().Str("session", key.String()).Msg("auto-submit retries exhausted, leaving session to the sweeper")
	return nil
}

// finish removes r once its loop has exited and delivers the final update.
func (m *Manager) finish(r *Run) {
	r.countdown.Stop()

	m.mu.Lock()
	if m.runs[r.key] == r {
		delete(m.runs, r.key)
	}
	m.mu.Unlock()

	final := r.markFinished()
	r.broadcast(final, true)
	close(r.done)

	if final.Outcome != nil {
		// The record is terminal now; the coordinator does not need to cache it.
		m.submitter.Forget(r.key)
	}
}
