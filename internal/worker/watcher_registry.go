package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wallet-sync/internal/adapter"
	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/scheduler"
)

// PaymentReconciler receives terminal statuses observed by watchers
type PaymentReconciler interface {
	ReconcilePayment(record models.PaymentRecord)
}

// WatcherRegistry owns the payment watchers of one client. It keeps at most
// one active watcher per payment id and collapses concurrent page fetches
// from different watchers into a single backend call.
type WatcherRegistry struct {
	api          adapter.WalletAPI
	clock        scheduler.Clock
	interval     time.Duration
	maxDuration  time.Duration
	pageLimit    int
	fetchTimeout time.Duration
	reconciler   PaymentReconciler
	onTerminal   func(models.PaymentRecord)
	logger       *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	pageRequests   atomic.Int64
	backendFetches atomic.Int64

	mu       sync.Mutex
	watchers map[string]*PaymentStatusWatcher
}

// WatcherRegistryConfig configures a WatcherRegistry
type WatcherRegistryConfig struct {
	API          adapter.WalletAPI
	Clock        scheduler.Clock
	Interval     time.Duration
	MaxDuration  time.Duration
	PageLimit    int
	FetchTimeout time.Duration
	// Reconciler is usually the SyncController
	Reconciler PaymentReconciler
	// OnTerminal is invoked after reconciliation, e.g. to notify the user
	OnTerminal func(models.PaymentRecord)
	Logger     *logging.Logger
}

// NewWatcherRegistry creates a registry whose watchers live at most as long as ctx
func NewWatcherRegistry(ctx context.Context, cfg *WatcherRegistryConfig) (*WatcherRegistry, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("wallet API cannot be nil")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	rctx, cancel := context.WithCancel(ctx)
	return &WatcherRegistry{
		api:          cfg.API,
		clock:        clock,
		interval:     interval,
		maxDuration:  cfg.MaxDuration,
		pageLimit:    pageLimit,
		fetchTimeout: fetchTimeout,
		reconciler:   cfg.Reconciler,
		onTerminal:   cfg.OnTerminal,
		logger:       logger.WithComponent("watcher-registry"),
		ctx:          rctx,
		cancel:       cancel,
		watchers:     make(map[string]*PaymentStatusWatcher),
	}, nil
}

// Watch starts watching paymentID unless an active watcher already exists, in
// which case that watcher is returned with created=false. initial may be nil.
func (r *WatcherRegistry) Watch(paymentID string, initial *models.PaymentRecord) (w *PaymentStatusWatcher, created bool, err error) {
	if err := r.ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("watcher registry closed: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.watchers[paymentID]; ok && existing.State() == WatchWatching {
		return existing, false, nil
	}

	w, err = NewPaymentStatusWatcher(r.ctx, &PaymentWatcherConfig{
		PaymentID:   paymentID,
		Initial:     initial,
		Fetch:       r.fetchPage,
		Clock:       r.clock,
		Interval:    r.interval,
		MaxDuration: r.maxDuration,
		OnTerminal:  r.handleTerminal,
		OnExpired: func(id string) {
			r.logger.WithField("paymentId", id).Info("payment watch expired")
		},
		Logger: r.logger,
	})
	if err != nil {
		return nil, false, err
	}

	r.watchers[paymentID] = w
	return w, true, nil
}

// Track is Watch for callers that only need the watcher's status
func (r *WatcherRegistry) Track(paymentID string, initial *models.PaymentRecord) (WatchStatus, bool, error) {
	w, created, err := r.Watch(paymentID, initial)
	if err != nil {
		return WatchStatus{}, false, err
	}
	return w.Status(), created, nil
}

// Lookup returns the status of the most recent watcher for paymentID
func (r *WatcherRegistry) Lookup(paymentID string) (WatchStatus, bool) {
	w, ok := r.Get(paymentID)
	if !ok {
		return WatchStatus{}, false
	}
	return w.Status(), true
}

// Get returns the most recent watcher for paymentID, active or ended
func (r *WatcherRegistry) Get(paymentID string) (*PaymentStatusWatcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[paymentID]
	return w, ok
}

// Unwatch stops and forgets the watcher for paymentID
func (r *WatcherRegistry) Unwatch(paymentID string) bool {
	r.mu.Lock()
	w, ok := r.watchers[paymentID]
	delete(r.watchers, paymentID)
	r.mu.Unlock()

	if ok {
		w.Stop()
	}
	return ok
}

// Active returns the number of watchers still polling
func (r *WatcherRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, w := range r.watchers {
		if w.State() == WatchWatching {
			n++
		}
	}
	return n
}

// Statuses returns a snapshot of every known watcher
func (r *WatcherRegistry) Statuses() []WatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WatchStatus, 0, len(r.watchers))
	for _, w := range r.watchers {
		out = append(out, w.Status())
	}
	return out
}

// RegistryStats counts page requests from watchers and the backend fetches
// that served them
type RegistryStats struct {
	Active         int   `json:"active"`
	PageRequests   int64 `json:"pageRequests"`
	BackendFetches int64 `json:"backendFetches"`
}

// Stats returns fetch-sharing counters
func (r *WatcherRegistry) Stats() RegistryStats {
	return RegistryStats{
		Active:         r.Active(),
		PageRequests:   r.pageRequests.Load(),
		BackendFetches: r.backendFetches.Load(),
	}
}

// StopAll tears down every watcher. The registry can be reused afterwards.
func (r *WatcherRegistry) StopAll() {
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = make(map[string]*PaymentStatusWatcher)
	r.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	if len(watchers) > 0 {
		r.logger.WithField("count", len(watchers)).Debug("stopped all payment watchers")
	}
}

// Close stops all watchers and rejects further Watch calls
func (r *WatcherRegistry) Close() {
	r.cancel()
	r.StopAll()
}

func (r *WatcherRegistry) fetchPage(ctx context.Context) ([]models.PaymentRecord, error) {
	// the shared call runs on the registry context so that one watcher
	// stopping does not fail the fetch for the others
	ch := r.group.DoChan("payments", func() (interface{}, error) {
		r.backendFetches.Add(1)
		fctx, cancel := context.WithTimeout(r.ctx, r.fetchTimeout)
		defer cancel()
		return r.api.ListPayments(fctx, r.pageLimit)
	})
	r.pageRequests.Add(1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.PaymentRecord), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *WatcherRegistry) handleTerminal(p models.PaymentRecord) {
	if r.reconciler != nil {
		r.reconciler.ReconcilePayment(p)
	}
	if r.onTerminal != nil {
		r.onTerminal(p)
	}
}
