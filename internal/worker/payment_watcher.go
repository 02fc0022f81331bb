package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/scheduler"
	"github.com/wallet-sync/internal/types"
)

const (
	// DefaultWatchInterval is how often a watched payment is polled
	DefaultWatchInterval = 2 * time.Second
	// DefaultWatchMaxDuration caps how long a payment is watched
	DefaultWatchMaxDuration = 10 * time.Minute
)

// WatchState is the lifecycle state of a PaymentStatusWatcher
type WatchState string

const (
	// WatchWatching means polling is active
	WatchWatching WatchState = "WATCHING"
	// WatchTerminal means the payment reached COMPLETED or PAID
	WatchTerminal WatchState = "TERMINAL"
	// WatchExpired means the max duration elapsed with the payment still pending
	WatchExpired WatchState = "EXPIRED"
	// WatchStopped means the owner tore the watcher down
	WatchStopped WatchState = "STOPPED"
)

// PaymentPageFunc fetches the most recent page of payments
type PaymentPageFunc func(ctx context.Context) ([]models.PaymentRecord, error)

// PaymentStatusWatcher polls the payment list until one payment turns
// terminal, the watch expires, or Stop is called. The poll timer is cancelled
// exactly once whichever happens first.
type PaymentStatusWatcher struct {
	paymentID   string
	fetch       PaymentPageFunc
	clock       scheduler.Clock
	sched       *scheduler.PollingScheduler
	interval    time.Duration
	maxDuration time.Duration
	onTerminal  func(models.PaymentRecord)
	onExpired   func(paymentID string)
	logger      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	endOnce sync.Once
	done    chan struct{}
	polls   atomic.Int64

	mu         sync.RWMutex
	state      WatchState
	lastStatus types.PaymentStatus
	final      *models.PaymentRecord
	startedAt  time.Time
	endedAt    time.Time
}

// PaymentWatcherConfig configures a PaymentStatusWatcher
type PaymentWatcherConfig struct {
	PaymentID string
	// Initial is the payment as known at creation, if any
	Initial     *models.PaymentRecord
	Fetch       PaymentPageFunc
	Clock       scheduler.Clock
	Interval    time.Duration
	MaxDuration time.Duration // 0 disables the cap
	OnTerminal  func(models.PaymentRecord)
	OnExpired   func(paymentID string)
	Logger      *logging.Logger
}

// WatchStatus is a snapshot of a watcher for status endpoints
type WatchStatus struct {
	PaymentID  string              `json:"paymentId"`
	State      WatchState          `json:"state"`
	LastStatus types.PaymentStatus `json:"lastStatus,omitempty"`
	Polls      int64               `json:"polls"`
	StartedAt  time.Time           `json:"startedAt"`
	EndedAt    *time.Time          `json:"endedAt,omitempty"`
}

// NewPaymentStatusWatcher creates and starts a watcher. When the initial
// record is already terminal the watcher starts in TERMINAL and never polls.
func NewPaymentStatusWatcher(ctx context.Context, cfg *PaymentWatcherConfig) (*PaymentStatusWatcher, error) {
	if cfg.PaymentID == "" {
		return nil, fmt.Errorf("payment id cannot be empty")
	}
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("fetch function cannot be nil")
	}
	if cfg.Initial != nil && cfg.Initial.ID != cfg.PaymentID {
		return nil, fmt.Errorf("initial record %s does not match payment id %s", cfg.Initial.ID, cfg.PaymentID)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithComponent("payment-watcher").WithField("paymentId", cfg.PaymentID)

	wctx, cancel := context.WithCancel(ctx)
	w := &PaymentStatusWatcher{
		paymentID:   cfg.PaymentID,
		fetch:       cfg.Fetch,
		clock:       clock,
		sched:       scheduler.NewPollingScheduler(clock, logger),
		interval:    interval,
		maxDuration: cfg.MaxDuration,
		onTerminal:  cfg.OnTerminal,
		onExpired:   cfg.OnExpired,
		logger:      logger,
		ctx:         wctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       WatchWatching,
		startedAt:   clock.Now(),
	}

	if cfg.Initial != nil {
		w.lastStatus = cfg.Initial.Status
		if cfg.Initial.Status.IsTerminal() {
			initial := *cfg.Initial
			w.end(WatchTerminal, &initial, false)
			logger.Debug("payment already terminal, not polling")
			return w, nil
		}
	}

	if err := w.sched.Start(interval, w.tick); err != nil {
		cancel()
		return nil, err
	}
	logger.WithField("interval", interval.String()).Debug("watching payment")
	return w, nil
}

// Stop tears the watcher down. It is idempotent and has no effect once the
// watcher already ended.
func (w *PaymentStatusWatcher) Stop() {
	w.end(WatchStopped, nil, false)
}

// Done is closed when the watcher ends for any reason
func (w *PaymentStatusWatcher) Done() <-chan struct{} {
	return w.done
}

// PaymentID returns the watched payment id
func (w *PaymentStatusWatcher) PaymentID() string {
	return w.paymentID
}

// State returns the lifecycle state
func (w *PaymentStatusWatcher) State() WatchState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Polls returns how many poll ticks ran
func (w *PaymentStatusWatcher) Polls() int64 {
	return w.polls.Load()
}

// Result returns the terminal record once the watcher reached TERMINAL
func (w *PaymentStatusWatcher) Result() (models.PaymentRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.final == nil {
		return models.PaymentRecord{}, false
	}
	return *w.final, true
}

// Status returns a snapshot for status endpoints
func (w *PaymentStatusWatcher) Status() WatchStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := WatchStatus{
		PaymentID:  w.paymentID,
		State:      w.state,
		LastStatus: w.lastStatus,
		Polls:      w.polls.Load(),
		StartedAt:  w.startedAt,
	}
	if !w.endedAt.IsZero() {
		ended := w.endedAt
		s.EndedAt = &ended
	}
	return s
}

func (w *PaymentStatusWatcher) tick() {
	if w.State() != WatchWatching {
		return
	}

	if w.maxDuration > 0 && w.clock.Now().Sub(w.startedAt) >= w.maxDuration {
		w.logger.WithField("maxDuration", w.maxDuration.String()).Info("payment still pending, watch expired")
		w.end(WatchExpired, nil, true)
		return
	}

	w.polls.Add(1)
	payments, err := w.fetch(w.ctx)
	if err != nil {
		// retried on the next tick
		w.logger.WithError(err).Debug("payment poll failed")
		return
	}

	p, ok := models.FindPayment(payments, w.paymentID)
	if !ok {
		return
	}

	w.mu.Lock()
	w.lastStatus = p.Status
	w.mu.Unlock()

	if p.Status.IsTerminal() {
		w.logger.WithField("status", p.Status).Info("payment reached terminal status")
		w.end(WatchTerminal, &p, true)
	}
}

// end performs the single transition out of WATCHING. Callbacks run after
// the transition so they may safely call Stop.
func (w *PaymentStatusWatcher) end(state WatchState, final *models.PaymentRecord, notify bool) {
	ended := false
	w.endOnce.Do(func() {
		w.sched.Stop()
		w.cancel()

		w.mu.Lock()
		w.state = state
		w.final = final
		w.endedAt = w.clock.Now()
		w.mu.Unlock()
		ended = true
	})
	if !ended {
		return
	}
	defer close(w.done)

	if !notify {
		return
	}
	switch state {
	case WatchTerminal:
		if w.onTerminal != nil && final != nil {
			w.onTerminal(*final)
		}
	case WatchExpired:
		if w.onExpired != nil {
			w.onExpired(w.paymentID)
		}
	}
}
