package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-sync/internal/adapter"
	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/scheduler"
	"github.com/wallet-sync/internal/types"
)

const (
	// DefaultForegroundInterval is the polling interval while the view is visible
	DefaultForegroundInterval = 10 * time.Second
	// DefaultBackgroundInterval is the polling interval while the view is hidden
	DefaultBackgroundInterval = 30 * time.Second
	// DefaultPageLimit is the page size for payments and withdrawals
	DefaultPageLimit = 20
	// DefaultFetchTimeout bounds each resource fetch within a cycle
	DefaultFetchTimeout = 15 * time.Second
)

// Resource names used in logs and cycle results
const (
	ResourceBalance   = "balance"
	ResourceProfile   = "profile"
	ResourcePayments  = "payments"
	ResourceWithdraws = "withdraws"
)

// SyncController keeps a periodically refreshed WalletState for one identity.
//
// At most one sync cycle runs at a time. A refresh requested while a cycle is
// in flight is dropped, not queued, since a cycle always fetches everything.
type SyncController struct {
	api                adapter.WalletAPI
	clock              scheduler.Clock
	sched              *scheduler.PollingScheduler
	foregroundInterval time.Duration
	backgroundInterval time.Duration
	pageLimit          int
	fetchTimeout       time.Duration
	logger             *logging.Logger

	mu         sync.RWMutex
	identity   string
	started    bool
	session    uint64
	visibility types.Visibility
	state      models.WalletState
	overlays   map[string]types.PaymentStatus
	lastCycle  *CycleResult
	sessionCtx context.Context
	cancel     context.CancelFunc

	inFlight atomic.Bool
	// cycleIdle is closed when the running cycle, owned by cycleSession, ends
	cycleMu      sync.Mutex
	cycleIdle    chan struct{}
	cycleSession uint64
	cycles       atomic.Uint64
	dropped      atomic.Uint64
	bg           sync.WaitGroup

	subsMu      sync.Mutex
	subscribers map[uint64]chan models.WalletState
	nextSubID   uint64
}

// SyncControllerConfig holds configuration for a sync controller
type SyncControllerConfig struct {
	API                adapter.WalletAPI
	Clock              scheduler.Clock
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
	PageLimit          int
	FetchTimeout       time.Duration
	// InitialVisibility defaults to foreground
	InitialVisibility types.Visibility
	Logger            *logging.Logger
}

// CycleResult summarizes one sync cycle
type CycleResult struct {
	ID         string            `json:"id"`
	Manual     bool              `json:"manual"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Updated    []string          `json:"updated"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// SyncStatus is a point-in-time view of the controller for status endpoints
type SyncStatus struct {
	Identity   string           `json:"identity"`
	Active     bool             `json:"active"`
	Visibility types.Visibility `json:"visibility"`
	Interval   string           `json:"interval"`
	InFlight   bool             `json:"inFlight"`
	Cycles     uint64           `json:"cycles"`
	Dropped    uint64           `json:"dropped"`
	LastCycle  *CycleResult     `json:"lastCycle,omitempty"`
}

// NewSyncController creates a new sync controller
func NewSyncController(cfg *SyncControllerConfig) (*SyncController, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("wallet API cannot be nil")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithComponent("sync-controller")

	foreground := cfg.ForegroundInterval
	if foreground <= 0 {
		foreground = DefaultForegroundInterval
	}
	background := cfg.BackgroundInterval
	if background <= 0 {
		background = DefaultBackgroundInterval
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	visibility := cfg.InitialVisibility
	if visibility == "" {
		visibility = types.VisibilityForeground
	}

	return &SyncController{
		api:                cfg.API,
		clock:              clock,
		sched:              scheduler.NewPollingScheduler(clock, logger),
		foregroundInterval: foreground,
		backgroundInterval: background,
		pageLimit:          pageLimit,
		fetchTimeout:       fetchTimeout,
		logger:             logger,
		visibility:         visibility,
		overlays:           make(map[string]types.PaymentStatus),
		subscribers:        make(map[uint64]chan models.WalletState),
	}, nil
}

// Start begins a polling session for identity and kicks off one refresh in
// the background. It is a no-op when identity is empty or a session for the
// same identity is already running. Starting for another identity stops the
// current session and discards its state.
//
// The session lives until Stop is called or ctx is done.
func (c *SyncController) Start(ctx context.Context, identity string) bool {
	if identity == "" {
		c.logger.Debug("start ignored: no identity")
		return false
	}

	c.mu.Lock()
	if c.started && c.identity == identity {
		c.mu.Unlock()
		return false
	}
	if c.started {
		c.logger.WithFields(map[string]interface{}{
			"previous": c.identity,
			"next":     identity,
		}).Info("identity changed, restarting sync session")
		c.stopLocked()
	}
	if c.state.Identity != identity {
		c.state = models.WalletState{Identity: identity}
		c.overlays = make(map[string]types.PaymentStatus)
		c.lastCycle = nil
	}

	c.identity = identity
	c.started = true
	c.session++
	session := c.session
	c.sessionCtx, c.cancel = context.WithCancel(ctx)
	sessionCtx := c.sessionCtx
	interval := c.intervalLocked()

	if err := c.sched.Start(interval, c.tick); err != nil {
		c.cancel()
		c.started = false
		c.identity = ""
		c.mu.Unlock()
		c.logger.WithError(err).Error("failed to start scheduler")
		return false
	}
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"interval": interval.String(),
	}).Info("sync session started")

	c.initialRefresh(sessionCtx, session)
	return true
}

// Stop cancels the scheduler and clears the identity binding. The last
// state stays readable until the next Start. Stop is idempotent.
func (c *SyncController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.stopLocked()
	c.logger.Info("sync session stopped")
}

func (c *SyncController) stopLocked() {
	c.sched.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	c.started = false
	c.identity = ""
	c.sessionCtx = nil
	c.cancel = nil
}

// Refresh runs one sync cycle and reports whether it ran. The call is dropped
// when no session is active or another cycle is in flight, whatever the value
// of force; force only marks the cycle as user-initiated.
func (c *SyncController) Refresh(ctx context.Context, force bool) bool {
	c.mu.RLock()
	identity, started, session := c.identity, c.started, c.session
	c.mu.RUnlock()

	if !started || identity == "" {
		return false
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		c.dropped.Add(1)
		c.logger.WithField("force", force).Debug("refresh dropped: cycle already in flight")
		return false
	}

	idle := make(chan struct{})
	c.cycleMu.Lock()
	c.cycleIdle, c.cycleSession = idle, session
	c.cycleMu.Unlock()
	defer func() {
		c.cycleMu.Lock()
		c.cycleIdle = nil
		c.cycleMu.Unlock()
		c.inFlight.Store(false)
		close(idle)
	}()

	c.runCycle(ctx, identity, session, force)
	return true
}

// SetVisibility switches the polling tier. Becoming visible restarts the
// scheduler at the foreground interval and fires one immediate refresh;
// becoming hidden only restarts at the background interval.
func (c *SyncController) SetVisibility(v types.Visibility) {
	c.mu.Lock()
	if c.visibility == v {
		c.mu.Unlock()
		return
	}
	c.visibility = v
	started := c.started
	sessionCtx := c.sessionCtx
	interval := c.intervalLocked()
	if started {
		if err := c.sched.Reset(interval); err != nil {
			c.logger.WithError(err).Error("failed to reset scheduler")
		}
	}
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"visibility": v,
		"interval":   interval.String(),
	}).Debug("visibility changed")

	if started && v == types.VisibilityForeground {
		c.refreshAsync(sessionCtx)
	}
}

// Visibility returns the current visibility tier
func (c *SyncController) Visibility() types.Visibility {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visibility
}

// State returns a copy of the current wallet state
func (c *SyncController) State() models.WalletState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Status returns a snapshot of controller bookkeeping
func (c *SyncController) Status() SyncStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := SyncStatus{
		Identity:   c.identity,
		Active:     c.started,
		Visibility: c.visibility,
		Interval:   c.intervalLocked().String(),
		InFlight:   c.inFlight.Load(),
		Cycles:     c.cycles.Load(),
		Dropped:    c.dropped.Load(),
	}
	if c.lastCycle != nil {
		last := *c.lastCycle
		status.LastCycle = &last
	}
	return status
}

// InFlight reports whether a cycle is currently running
func (c *SyncController) InFlight() bool {
	return c.inFlight.Load()
}

// Subscribe returns a channel receiving the latest state after each change.
// Slow consumers only ever see the most recent state. Call the returned
// function to unsubscribe.
func (c *SyncController) Subscribe() (<-chan models.WalletState, func()) {
	ch := make(chan models.WalletState, 1)

	c.subsMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subscribers, id)
			c.subsMu.Unlock()
			close(ch)
		})
	}
}

// ReconcilePayment overlays a terminal status observed by a payment watcher.
// The overlay persists across refetches until the backend itself reports a
// terminal status for that payment.
func (c *SyncController) ReconcilePayment(record models.PaymentRecord) {
	if !record.Status.IsTerminal() {
		return
	}

	c.mu.Lock()
	c.overlays[record.ID] = record.Status
	payments := append([]models.PaymentRecord(nil), c.state.Payments...)
	for i := range payments {
		if payments[i].ID == record.ID {
			payments[i] = payments[i].WithStatus(record.Status)
		}
	}
	c.state.Payments = payments
	snapshot := c.state.Clone()
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"paymentId": record.ID,
		"status":    record.Status,
	}).Debug("payment reconciled from watcher")
	c.publish(snapshot)
}

func (c *SyncController) intervalLocked() time.Duration {
	if c.visibility == types.VisibilityBackground {
		return c.backgroundInterval
	}
	return c.foregroundInterval
}

func (c *SyncController) tick() {
	c.mu.RLock()
	ctx := c.sessionCtx
	c.mu.RUnlock()
	if ctx == nil {
		return
	}
	c.Refresh(ctx, false)
}

func (c *SyncController) refreshAsync(ctx context.Context) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.Refresh(ctx, false)
	}()
}

// initialRefresh runs the first cycle of a session. A cycle still in flight
// from an earlier session would drop it, so it waits for that cycle to end
// and tries again. A cycle of the same session already covers it.
func (c *SyncController) initialRefresh(ctx context.Context, session uint64) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		for ctx.Err() == nil {
			if c.Refresh(ctx, false) {
				return
			}

			c.cycleMu.Lock()
			idle, owner := c.cycleIdle, c.cycleSession
			c.cycleMu.Unlock()
			if idle == nil {
				// the blocking cycle ended between the attempt and the check
				continue
			}
			if owner == session {
				return
			}
			c.logger.Debug("initial refresh waiting for stale cycle")
			select {
			case <-idle:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// waitBackground blocks until background refreshes started so far return
func (c *SyncController) waitBackground() {
	c.bg.Wait()
}

// runCycle fetches the four resources concurrently. Each result is applied on
// its own; a failed fetch leaves the previous snapshot of that resource.
func (c *SyncController) runCycle(ctx context.Context, identity string, session uint64, manual bool) {
	result := &CycleResult{
		ID:        uuid.NewString(),
		Manual:    manual,
		StartedAt: c.clock.Now(),
		Failed:    make(map[string]string),
	}
	logger := c.logger.WithField("cycleId", result.ID)

	var (
		resMu     sync.Mutex
		balance   *models.BalanceSnapshot
		profile   *models.UserProfile
		payments  []models.PaymentRecord
		withdraws []models.WithdrawRecord
	)
	record := func(resource string, err error) {
		resMu.Lock()
		defer resMu.Unlock()
		if err != nil {
			result.Failed[resource] = err.Error()
			logger.WithError(err).WithField("resource", resource).Warn("sync fetch failed")
			return
		}
		result.Updated = append(result.Updated, resource)
	}

	var g errgroup.Group
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		v, err := c.api.GetBalance(fctx)
		if err == nil {
			balance = v
		}
		record(ResourceBalance, err)
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		v, err := c.api.GetUser(fctx)
		if err == nil {
			profile = v
		}
		record(ResourceProfile, err)
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		v, err := c.api.ListPayments(fctx, c.pageLimit)
		if err == nil {
			payments = v
		}
		record(ResourcePayments, err)
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		v, err := c.api.ListWithdraws(fctx, c.pageLimit)
		if err == nil {
			withdraws = v
		}
		record(ResourceWithdraws, err)
		return nil
	})
	_ = g.Wait()

	result.FinishedAt = c.clock.Now()
	c.cycles.Add(1)

	c.mu.Lock()
	if c.identity != identity || c.session != session || !c.started {
		c.mu.Unlock()
		logger.Debug("discarding cycle results for stale session")
		return
	}
	if _, failed := result.Failed[ResourceBalance]; !failed {
		c.state.Balance = balance
	}
	if _, failed := result.Failed[ResourceProfile]; !failed {
		c.state.Profile = profile
	}
	if _, failed := result.Failed[ResourcePayments]; !failed {
		c.state.Payments = c.applyOverlaysLocked(payments)
	}
	if _, failed := result.Failed[ResourceWithdraws]; !failed {
		c.state.Withdraws = append([]models.WithdrawRecord(nil), withdraws...)
	}
	if len(result.Updated) > 0 {
		c.state.LastSyncAt = result.FinishedAt
	}
	c.state.LastCycleID = result.ID
	c.lastCycle = result
	snapshot := c.state.Clone()
	c.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"updated":    len(result.Updated),
		"failed":     len(result.Failed),
		"manual":     manual,
		"durationMs": result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}).Debug("sync cycle completed")

	c.publish(snapshot)
}

// applyOverlaysLocked keeps watcher-observed terminal statuses until the
// backend catches up
func (c *SyncController) applyOverlaysLocked(fetched []models.PaymentRecord) []models.PaymentRecord {
	out := append([]models.PaymentRecord(nil), fetched...)
	for i, p := range out {
		overlay, ok := c.overlays[p.ID]
		if !ok {
			continue
		}
		if p.Status.IsTerminal() {
			delete(c.overlays, p.ID)
			continue
		}
		out[i] = p.WithStatus(overlay)
	}
	return out
}

func (c *SyncController) publish(state models.WalletState) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subscribers {
		// replace an unread state with the newer one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state.Clone():
		default:
		}
	}
}
