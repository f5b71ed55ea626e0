package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/arena/go/internal/countdown"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/rs/zerolog/log"
)

// Run is the live workspace of one session. The countdown and participant
// requests are both consumed by a single loop goroutine, so submissions of a
// session are attempted strictly one after another.
type Run struct {
	key       models.SessionKey
	countdown *countdown.Countdown
	requests  chan request
	stop      context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	outcome  *submission.Outcome
	finished bool
	subs     map[int]chan Update
	nextSub  int
}

// Key returns the session key of the run.
func (r *Run) Key() models.SessionKey { return r.key }

// EndTime returns the session deadline.
func (r *Run) EndTime() time.Time { return r.countdown.EndTime() }

// Done is closed when the run has ended.
func (r *Run) Done() <-chan struct{} { return r.done }

// Outcome returns the terminal outcome, or nil if the run ended without one.
func (r *Run) Outcome() *submission.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

func (r *Run) loop(ctx context.Context, m *Manager) {
	defer m.finish(r)

	var draft models.Answer
	remaining := r.countdown.Remaining()
	for {
		select {
		case <-ctx.Done():
			r.countdown.Stop()
			log.Info().Str("session", r.key.String()).Msg("workspace closed")
			return

		case rem, ok := <-remaining:
			if !ok {
				remaining = nil
				continue
			}
			r.broadcast(Update{Remaining: rem}, false)

		case <-r.countdown.Expired():
			log.Info().Str("session", r.key.String()).Msg("countdown expired, auto-submitting")
			r.setOutcome(m.expire(r.key, draft))
			return

		case req := <-r.requests:
			if !req.manual {
				draft = mergeAnswer(draft, req.answer)
				req.reply <- result{}
				continue
			}
			out, err := m.submitter.Submit(ctx, r.key, mergeAnswer(draft, req.answer), submission.TriggerManual)
			req.reply <- result{outcome: out, err: err}
			if err == nil {
				r.setOutcome(out)
				return
			}
		}
	}
}

// send hands req to the loop. ok is false when the run ended first.
func (r *Run) send(ctx context.Context, req request) (res result, ok bool) {
	select {
	case r.requests <- req:
	case <-r.done:
		return result{}, false
	case <-ctx.Done():
		return result{err: ctx.Err()}, true
	}
	select {
	case res = <-req.reply:
		return res, true
	case <-ctx.Done():
		return result{err: ctx.Err()}, true
	}
}

func (r *Run) setOutcome(out *submission.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = out
}

// subscribe registers a stream of updates. The current remaining time is
// delivered first; a run that already ended yields only its final update.
func (r *Run) subscribe() (<-chan Update, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Update, 1)
	if r.finished {
		ch <- r.finalUpdate()
		close(ch)
		return ch, func() {}
	}

	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	ch <- Update{Remaining: r.countdown.Last()}

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
}

// broadcast publishes u to every subscriber, replacing unread values. When
// final is set the subscriber channels are closed afterwards.
func (r *Run) broadcast(u Update, final bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- u
		if final {
			close(ch)
			delete(r.subs, id)
		}
	}
}

// finalUpdate must be called with mu held.
func (r *Run) finalUpdate() Update {
	u := Update{Remaining: r.countdown.Last(), Outcome: r.outcome, Final: true}
	if r.outcome != nil {
		u.Remaining = 0
	}
	return u
}

func (r *Run) markFinished() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	return r.finalUpdate()
}
