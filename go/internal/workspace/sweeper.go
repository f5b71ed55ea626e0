package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/rs/zerolog/log"
)

// DueLister lists open sessions whose deadline is at or before cutoff
type DueLister interface {
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error)
}

// SweeperConfig controls the expiry sweeper
type SweeperConfig struct {
	Interval time.Duration
	// Grace is how long past its deadline a session is left to its own workspace.
	Grace   time.Duration
	Batch   int
	Workers int
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 15 * time.Second,
		Grace:    30 * time.Second,
		Batch:    100,
		Workers:  4,
	}
}

// Sweeper drives sessions that passed their deadline without a live
// workspace, e.g. after a logout or a restart, to their terminal state.
type Sweeper struct {
	sessions   DueLister
	submitter  Submitter
	workspaces *Manager
	clock      clockwork.Clock
	cfg        SweeperConfig

	workCh     chan models.SessionKey
	inFlight   map[models.SessionKey]bool
	inFlightMu sync.Mutex
	instanceID string
}

// NewSweeper creates a new Sweeper. Sessions with a running workspace in
// workspaces are skipped.
func NewSweeper(sessions DueLister, submitter Submitter, workspaces *Manager, clock clockwork.Clock, cfg SweeperConfig) *Sweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultSweeperConfig().Batch
	}
	return &Sweeper{
		sessions:   sessions,
		submitter:  submitter,
		workspaces: workspaces,
		clock:      clock,
		cfg:        cfg,
		workCh:     make(chan models.SessionKey, cfg.Batch),
		inFlight:   make(map[models.SessionKey]bool),
		instanceID: uuid.New().String()[:8],
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().
		Str("instance", s.instanceID).
		Int("workers", s.cfg.Workers).
		Dur("interval", s.cfg.Interval).
		Msg("expiry sweeper started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", s.instanceID).Msg("shutting down sweeper workers")
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("all sweeper workers shut down")
	}()

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("sweeper shutdown requested")
			return nil
		case <-ticker.Chan():
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Str("instance", s.instanceID).Msg("sweep failed")
			}
		}
	}
}

// Sweep enqueues one batch of due sessions and returns how many were queued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.Grace)
	due, err := s.sessions.ListDue(ctx, cutoff, s.cfg.Batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list due sessions: %w", err)
	}

	queued := 0
	for _, sess := range due {
		key := sess.Key()
		if s.workspaces != nil && s.workspaces.IsActive(key) {
			continue
		}
		if !s.claim(key) {
			continue
		}
		select {
		case s.workCh <- key:
			queued++
		default:
			s.unclaim(key)
			log.Warn().
				Str("session", key.String()).
				Str("instance", s.instanceID).
				Msg("sweeper work channel full")
		}
	}

	if queued > 0 {
		log.Info().
			Str("instance", s.instanceID).
			Int("due", len(due)).
			Int("queued", queued).
			Msg("queued expired sessions")
	}
	return queued, nil
}

func (s *Sweeper) claim(key models.SessionKey) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

func (s *Sweeper) unclaim(key models.SessionKey) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, key)
}

func (s *Sweeper) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Debug().
		Str("instance", s.instanceID).
		Int("worker_id", workerID).
		Msg("sweeper worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-s.workCh:
			if !ok {
				return
			}
			s.expire(ctx, key, workerID)
		}
	}
}

// expire submits whatever the session holds, which after a restart is nothing.
func (s *Sweeper) expire(ctx context.Context, key models.SessionKey, workerID int) {
	defer s.unclaim(key)

	out, err := s.submitter.Submit(ctx, key, models.Answer{}, submission.TriggerAuto)
	if err != nil {
		log.Error().
			Err(err).
			Str("session", key.String()).
			Str("instance", s.instanceID).
			Int("worker_id", workerID).
			Msg("sweeper auto-submit failed")
		return
	}
	s.submitter.Forget(key)

	log.Info().
		Str("session", key.String()).
		Str("instance", s.instanceID).
		Int("worker_id", workerID).
		Bool("expired", out.Expired).
		Bool("replayed", out.Replayed).
		Msg("sweeper closed session")
}
