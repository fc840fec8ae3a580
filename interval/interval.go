// Package interval paces work on an absolute schedule. Unlike time.Ticker,
// whose period is measured from the previous delivery, the schedule here is
// anchored at the start: the i-th tick is due at start + i*d, so a slow
// consumer delays at most its own tick and the schedule never drifts.
//
// Pressure choreography and fixed-rate telemetry polling both want this
// property: if one step runs long, the following steps still land on the
// beat instead of an ever-later one.
package interval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/srg/myolink/internal/groutine"
	"github.com/srg/myolink/internal/timeutil"
)

// DefaultTolerance is how much the coarse sleep undershoots the tick
// deadline. The remainder is slept in a second, short wait that absorbs
// scheduler overshoot on the long one.
const DefaultTolerance = 100 * time.Microsecond

// ErrStop is returned by a Tick callback to end the loop without error.
var ErrStop = errors.New("stop interval")

// Clock is the subset of time operations the scheduler needs.
// timeutil.RealClock and timeutil.MockClock both satisfy it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Option configures the scheduler.
type Option func(*options)

type options struct {
	tolerance time.Duration
	clock     Clock
}

// WithTolerance sets the coarse-sleep undershoot. Larger values trade a
// little busywork for tighter tick placement on noisy schedulers.
func WithTolerance(d time.Duration) Option {
	return func(o *options) { o.tolerance = d }
}

// WithClock substitutes the time source, for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{
		tolerance: DefaultTolerance,
		clock:     timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Tick calls fn once per interval d on the absolute schedule anchored at the
// call instant. fn receives the scheduled tick time, not the wall clock at
// invocation. Tick returns when ctx is done (with ctx.Err()), when fn
// returns ErrStop (with nil), or when fn returns any other error (with that
// error).
func Tick(ctx context.Context, d time.Duration, fn func(tick time.Time) error, opts ...Option) error {
	if d <= 0 {
		return fmt.Errorf("non-positive interval %v", d)
	}
	o := buildOptions(opts)

	next := o.clock.Now().Add(d)
	for {
		if err := waitUntil(ctx, o, next); err != nil {
			return err
		}
		if err := fn(next); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		next = next.Add(d)
	}
}

// waitUntil sleeps toward the deadline in two legs: a coarse one that stops
// tolerance short, then a fine one for the re-measured remainder.
func waitUntil(ctx context.Context, o options, deadline time.Time) error {
	remaining := deadline.Sub(o.clock.Now())
	if remaining > o.tolerance {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.clock.After(remaining - o.tolerance):
		}
		remaining = deadline.Sub(o.clock.Now())
	}
	if remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.clock.After(remaining):
		}
	}
	return nil
}

// Ticker delivers schedule-anchored ticks over a channel. Like time.Ticker
// it drops ticks a slow receiver misses; unlike time.Ticker, dropped ticks
// do not postpone later ones.
type Ticker struct {
	// C carries the scheduled time of each delivered tick.
	C <-chan time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker starts a Ticker with interval d. It panics when d is not
// positive, matching time.NewTicker.
func NewTicker(d time.Duration, opts ...Option) *Ticker {
	if d <= 0 {
		panic("interval: non-positive interval for NewTicker")
	}

	ch := make(chan time.Time, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticker{
		C:      ch,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	groutine.Go(ctx, "interval-ticker", func(ctx context.Context) {
		defer close(t.done)
		_ = Tick(ctx, d, func(tick time.Time) error {
			select {
			case ch <- tick:
			default: // receiver is behind, drop the tick
			}
			return nil
		}, opts...)
	})

	return t
}

// Stop ends the schedule and waits for the delivery goroutine to exit. No
// ticks are delivered after Stop returns. The channel is not closed, again
// matching time.Ticker.
func (t *Ticker) Stop() {
	t.cancel()
	<-t.done
}
