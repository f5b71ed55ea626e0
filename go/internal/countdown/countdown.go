package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is how often the remaining time is recomputed.
const TickInterval = time.Second

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Remaining returns the whole seconds left until end, rounded up so that it
// only reaches zero once end has actually passed.
func Remaining(now, end time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Countdown ticks once per second against an absolute end time. It publishes
// the remaining seconds, fires Expired exactly once when they reach zero and
// then stops. A stopped countdown cannot be restarted.
type Countdown struct {
	clock   Clock
	endTime time.Time

	remaining chan int
	expired   chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	stopOnce  sync.Once

	last atomic.Int64
}

// Start begins a countdown towards endTime. The countdown stops when it
// expires, when Stop is called or when ctx is cancelled.
func Start(ctx context.Context, clock Clock, endTime time.Time) *Countdown {
	ctx, cancel := context.WithCancel(ctx)
	c := &Countdown{
		clock:     clock,
		endTime:   endTime,
		remaining: make(chan int, 1),
		expired:   make(chan struct{}),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	c.last.Store(int64(Remaining(clock.Now(), endTime)))

	// The ticker is created before the goroutine starts so that fake clocks
	// see it as a waiter as soon as Start returns.
	ticker := clock.NewTicker(TickInterval)
	go c.run(ctx, ticker)
	return c
}

// Remaining streams the remaining seconds. Only the latest value is kept
// for a slow reader. The channel is closed once the countdown stops.
func (c *Countdown) Remaining() <-chan int {
	return c.remaining
}

// Expired is closed when the remaining time reaches zero. It is never closed
// for a countdown stopped before expiry.
func (c *Countdown) Expired() <-chan struct{} {
	return c.expired
}

// Done is closed when the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Last returns the most recently computed remaining seconds.
func (c *Countdown) Last() int {
	return int(c.last.Load())
}

// EndTime returns the deadline the countdown runs against.
func (c *Countdown) EndTime() time.Time {
	return c.endTime
}

// Stop cancels the countdown without firing expiry.
func (c *Countdown) Stop() {
	c.stopOnce.Do(c.cancel)
}

func (c *Countdown) run(ctx context.Context, ticker clockwork.Ticker) {
	defer close(c.done)
	defer close(c.remaining)
	defer ticker.Stop()
	defer c.Stop()

	if c.tick() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Time("end_time", c.endTime).Msg("countdown stopped before expiry")
			return
		case <-ticker.Chan():
			if c.tick() {
				return
			}
		}
	}
}

// tick recomputes the remaining time from the absolute deadline and reports
// whether the countdown has expired.
func (c *Countdown) tick() bool {
	rem := Remaining(c.clock.Now(), c.endTime)
	c.last.Store(int64(rem))
	c.publish(rem)
	if rem > 0 {
		return false
	}
	close(c.expired)
	log.Debug().Time("end_time", c.endTime).Msg("countdown expired")
	return true
}

// publish replaces any unread value so the tick never blocks on a reader.
func (c *Countdown) publish(rem int) {
	select {
	case c.remaining <- rem:
		return
	default:
	}
	select {
	case <-c.remaining:
	default:
	}
	select {
	case c.remaining <- rem:
	default:
	}
}
