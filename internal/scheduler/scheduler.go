// Package scheduler provides the cancellable periodic tick source that drives
// wallet polling, along with the Clock abstraction it runs on.
package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wallet-sync/internal/logging"
)

// PollingScheduler invokes a tick function at a fixed interval until stopped.
//
// Changing the interval never mutates a running ticker: the current ticker is
// stopped and a fresh one created, so at most one ticker is live at a time.
type PollingScheduler struct {
	clock  Clock
	logger *logging.Logger

	mu       sync.Mutex
	interval time.Duration
	tick     func()
	current  *run

	ticks atomic.Uint64
}

// run is one ticker plus the goroutine draining it
type run struct {
	ticker Ticker
	stopCh chan struct{}
}

// NewPollingScheduler creates an idle scheduler. A nil clock means RealClock.
func NewPollingScheduler(clock Clock, logger *logging.Logger) *PollingScheduler {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PollingScheduler{
		clock:  clock,
		logger: logger.WithComponent("scheduler"),
	}
}

// Start begins ticking every interval. Starting an active scheduler replaces
// both the interval and the tick function.
func (s *PollingScheduler) Start(interval time.Duration, tick func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}
	if tick == nil {
		return fmt.Errorf("tick function cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.tick = tick
	s.interval = interval
	s.launchLocked()

	s.logger.WithField("interval", interval.String()).Debug("scheduler started")
	return nil
}

// Reset tears down the current ticker and creates one at the new interval
func (s *PollingScheduler) Reset(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return fmt.Errorf("scheduler is not running")
	}

	s.teardownLocked()
	s.interval = interval
	s.launchLocked()

	s.logger.WithField("interval", interval.String()).Debug("scheduler interval reset")
	return nil
}

// Stop cancels the ticker. It is idempotent and may be called from inside the
// tick function; it never waits for an in-progress tick to return.
func (s *PollingScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	s.teardownLocked()
	s.logger.Debug("scheduler stopped")
}

// Interval returns the most recently configured interval
func (s *PollingScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Active reports whether a ticker is live
func (s *PollingScheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Ticks returns the number of tick invocations so far
func (s *PollingScheduler) Ticks() uint64 {
	return s.ticks.Load()
}

func (s *PollingScheduler) launchLocked() {
	r := &run{
		ticker: s.clock.NewTicker(s.interval),
		stopCh: make(chan struct{}),
	}
	s.current = r
	go s.loop(r, s.tick)
}

func (s *PollingScheduler) teardownLocked() {
	if s.current == nil {
		return
	}
	close(s.current.stopCh)
	s.current.ticker.Stop()
	s.current = nil
}

func (s *PollingScheduler) loop(r *run, tick func()) {
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C():
			// a tick that raced with Stop is dropped
			select {
			case <-r.stopCh:
				return
			default:
			}
			s.ticks.Add(1)
			tick()
		}
	}
}
