package scheduler

import (
	"sync"
	"time"
)

// Clock is the time source used by schedulers and watchers
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is a Clock backed by the time package
type RealClock struct{}

// Now returns the current wall-clock time
func (RealClock) Now() time.Time { return time.Now() }

// NewTicker wraps time.NewTicker
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// FakeClock is a manually advanced Clock for deterministic tests.
//
// Ticks are delivered synchronously: Advance blocks until each due tick has
// been received by its consumer or the ticker is stopped. A consumer that runs
// its callback inline after receiving therefore finishes tick N before tick
// N+1 is handed over.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	created int
}

// NewFakeClock returns a FakeClock set to start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker registers a ticker that fires every d of fake time
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("scheduler: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time),
		done:   make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)
	c.created++
	return t
}

// Advance moves fake time forward by d, firing every due tick in order
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTicker
		for _, t := range c.tickers {
			if t.stopped {
				continue
			}
			if !t.next.After(target) && (due == nil || t.next.Before(due.next)) {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.next
		fireAt := due.next
		due.next = due.next.Add(due.period)
		c.mu.Unlock()

		select {
		case due.ch <- fireAt:
		case <-due.done:
		}
	}
}

// LiveTickers returns the number of tickers not yet stopped
func (c *FakeClock) LiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked()
}

// StoppedTickers returns the number of tickers that have been stopped
func (c *FakeClock) StoppedTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created - c.liveLocked()
}

// CreatedTickers returns how many tickers were ever created
func (c *FakeClock) CreatedTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// LivePeriods returns the periods of all live tickers
func (c *FakeClock) LivePeriods() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.tickers {
		if !t.stopped {
			out = append(out, t.period)
		}
	}
	return out
}

func (c *FakeClock) liveLocked() int {
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock   *FakeClock
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	done    chan struct{}
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}
