// Package notification bridges platform push and notification capabilities
// with backend push registrations and the user's notification preferences.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wallet-sync/internal/adapter"
	apperrors "github.com/wallet-sync/internal/errors"
	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/retry"
	"github.com/wallet-sync/internal/storage"
	"github.com/wallet-sync/internal/types"
)

const (
	// DefaultIcon is applied to notifications without an icon
	DefaultIcon = "/icons/icon-192x192.png"
	// DefaultBadge is applied to notifications without a badge
	DefaultBadge = "/icons/badge-72x72.png"
)

// PreferencePort persists NotificationPreferences
type PreferencePort interface {
	Load(ctx context.Context) (models.NotificationPreferences, error)
	Save(ctx context.Context, prefs models.NotificationPreferences) error
	Clear(ctx context.Context) error
}

// OrphanPort tracks push endpoints whose backend registration may outlive them
type OrphanPort interface {
	Record(ctx context.Context, endpoint string, cause error) error
	Remove(ctx context.Context, endpoint string) error
	List(ctx context.Context) ([]storage.OrphanEntry, error)
}

// Manager is the notification subscription manager.
//
// Preferences are loaded once at construction and every mutation rewrites the
// full record. Subscribe, Unsubscribe, Reconcile and each orphan deletion
// attempt are serialized.
type Manager struct {
	platform Platform
	api      adapter.PushAPI
	store    PreferencePort
	orphans  OrphanPort
	retryCfg *retry.RetryConfig
	logger   *logging.Logger

	opMu  sync.Mutex
	mu    sync.RWMutex
	prefs models.NotificationPreferences
}

// ManagerConfig configures a Manager
type ManagerConfig struct {
	Platform    Platform
	API         adapter.PushAPI
	Preferences PreferencePort
	// Orphans is optional; without it failed backend deletions are only logged
	Orphans OrphanPort
	Retry   *retry.RetryConfig
	Logger  *logging.Logger
}

// PreferenceUpdate changes category flags. Enabled follows the subscription
// and can only be changed through Subscribe and Unsubscribe.
type PreferenceUpdate struct {
	PaymentReceived   *bool `json:"paymentReceived,omitempty"`
	WithdrawCompleted *bool `json:"withdrawCompleted,omitempty"`
}

// NewManager creates a manager and loads the stored preferences. A store
// failure is logged and the defaults are used.
func NewManager(ctx context.Context, cfg *ManagerConfig) (*Manager, error) {
	if cfg.Platform == nil {
		return nil, fmt.Errorf("platform cannot be nil")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("push API cannot be nil")
	}
	if cfg.Preferences == nil {
		return nil, fmt.Errorf("preference store cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}

	m := &Manager{
		platform: cfg.Platform,
		api:      cfg.API,
		store:    cfg.Preferences,
		orphans:  cfg.Orphans,
		retryCfg: retryCfg,
		logger:   logger.WithComponent("notifications"),
	}

	prefs, err := cfg.Preferences.Load(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("failed to load notification preferences, using defaults")
		prefs = models.DefaultNotificationPreferences()
	}
	m.prefs = prefs
	return m, nil
}

// IsSupported reports whether notifications, service workers and push are all available
func (m *Manager) IsSupported() bool {
	return m.platform.SupportsNotifications() &&
		m.platform.SupportsServiceWorker() &&
		m.platform.SupportsPush()
}

// Permission returns the platform permission, or denied when notifications
// are unsupported
func (m *Manager) Permission() types.Permission {
	if !m.platform.SupportsNotifications() {
		return types.PermissionDenied
	}
	return m.platform.Permission()
}

// RequestPermission prompts for notification permission and reports whether
// it is granted. Unsupported platforms return false without prompting.
func (m *Manager) RequestPermission(ctx context.Context) (bool, error) {
	if !m.IsSupported() {
		return false, nil
	}

	perm, err := m.platform.RequestPermission(ctx)
	if err != nil {
		return false, apperrors.NewInternalError("permission request failed", err)
	}
	m.logger.WithField("permission", perm).Info("notification permission requested")
	return perm == types.PermissionGranted, nil
}

// Subscribe creates (or reuses) the platform push subscription, registers it
// with the backend and enables notifications. Preferences are only changed
// once every step has succeeded.
func (m *Manager) Subscribe(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.IsSupported() {
		return apperrors.NewUnsupportedError("push notifications")
	}
	if perm := m.platform.Permission(); perm != types.PermissionGranted {
		return apperrors.NewPermissionDeniedError(perm)
	}

	key, err := m.api.GetVAPIDKey(ctx)
	if err != nil {
		return apperrors.NewSubscriptionError("vapid-key", err)
	}
	if key == "" {
		return apperrors.NewSubscriptionError("vapid-key", errors.New("backend returned no public key"))
	}
	appKey, err := DecodeVAPIDKey(key)
	if err != nil {
		return apperrors.NewSubscriptionError("decode-key", err)
	}

	reg, err := m.platform.ServiceWorker(ctx)
	if err != nil {
		return apperrors.NewSubscriptionError("service-worker", err)
	}

	handle, err := reg.PushSubscription(ctx)
	if err != nil {
		return apperrors.NewSubscriptionError("push-subscription", err)
	}
	reused := handle != nil
	if !reused {
		handle, err = reg.Subscribe(ctx, SubscribeOptions{
			UserVisibleOnly:      true,
			ApplicationServerKey: appKey,
		})
		if err != nil {
			return apperrors.NewSubscriptionError("push-subscribe", err)
		}
	}

	sub := handle.Serialize()
	device := ClassifyDevice(m.platform.UserAgent())
	if err := m.api.RegisterPushSubscription(ctx, sub, device); err != nil {
		return apperrors.NewSubscriptionError("register", err)
	}

	if m.orphans != nil {
		// a live endpoint is no longer an orphan
		if err := m.orphans.Remove(ctx, sub.Endpoint); err != nil {
			m.logger.WithError(err).Warn("failed to clear orphan journal entry")
		}
	}

	if _, err := m.mutate(ctx, func(p *models.NotificationPreferences) { p.Enabled = true }); err != nil {
		return err
	}

	m.logger.WithFields(map[string]interface{}{
		"deviceType": device,
		"reused":     reused,
	}).Info("push subscription registered")
	return nil
}

// Unsubscribe tears down the platform subscription, deletes the backend
// registration and disables notifications. Having no subscription is a
// successful no-op.
//
// When the platform teardown succeeds but the backend deletion fails, the
// endpoint is journaled for ReconcileOrphans, notifications are still
// disabled and an orphan error is returned. A platform that refuses the
// teardown leaves both the backend registration and preferences untouched.
func (m *Manager) Unsubscribe(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var orphanErr error
	if m.IsSupported() {
		handle, err := m.currentSubscription(ctx)
		if err != nil {
			return apperrors.NewSubscriptionError("push-subscription", err)
		}
		if handle != nil {
			endpoint := handle.Serialize().Endpoint
			ok, err := handle.Unsubscribe(ctx)
			if err != nil {
				return apperrors.NewSubscriptionError("platform-unsubscribe", err)
			}
			if !ok {
				return apperrors.NewSubscriptionError("platform-unsubscribe", errors.New("platform kept the subscription"))
			}
			if err := m.api.DeletePushSubscription(ctx, endpoint); err != nil {
				orphanErr = apperrors.NewOrphanError(endpoint, err)
				m.recordOrphan(ctx, endpoint, err)
			}
		}
	}

	if _, err := m.mutate(ctx, func(p *models.NotificationPreferences) { p.Enabled = false }); err != nil {
		return err
	}
	m.logger.Info("push notifications disabled")
	return orphanErr
}

// ShowNotification displays a notification when notifications are enabled
// and permitted. It returns whether a notification was shown. The service
// worker registration is preferred; without one the platform is called
// directly.
func (m *Manager) ShowNotification(ctx context.Context, title string, opts models.NotificationOptions) (bool, error) {
	if !m.Preferences().Enabled {
		return false, nil
	}
	return m.show(ctx, title, opts)
}

// NotifyPaymentReceived announces a paid payment when the category is enabled
func (m *Manager) NotifyPaymentReceived(ctx context.Context, p models.PaymentRecord) (bool, error) {
	prefs := m.Preferences()
	if !prefs.Enabled || !prefs.PaymentReceived {
		return false, nil
	}

	amount := p.NetValue
	if amount.IsZero() {
		amount = p.Value
	}
	return m.show(ctx, "Payment received", models.NotificationOptions{
		Body: fmt.Sprintf("You received %s", amount.StringFixed(2)),
		Tag:  "payment-" + p.ID,
		Data: map[string]interface{}{"url": "/payments", "paymentId": p.ID},
		Actions: []models.NotificationAction{
			{Action: "view", Title: "View"},
		},
	})
}

// NotifyWithdrawCompleted announces a completed withdrawal when the category is enabled
func (m *Manager) NotifyWithdrawCompleted(ctx context.Context, w models.WithdrawRecord) (bool, error) {
	prefs := m.Preferences()
	if !prefs.Enabled || !prefs.WithdrawCompleted {
		return false, nil
	}
	return m.show(ctx, "Withdrawal completed", models.NotificationOptions{
		Body: fmt.Sprintf("Your withdrawal of %s was completed", w.Amount.StringFixed(2)),
		Tag:  "withdraw-" + w.ID,
		Data: map[string]interface{}{"url": "/withdraws", "withdrawId": w.ID},
	})
}

// Preferences returns the in-memory preferences
func (m *Manager) Preferences() models.NotificationPreferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs
}

// UpdatePreferences applies category flag changes and persists the full record
func (m *Manager) UpdatePreferences(ctx context.Context, update PreferenceUpdate) (models.NotificationPreferences, error) {
	return m.mutate(ctx, func(p *models.NotificationPreferences) {
		if update.PaymentReceived != nil {
			p.PaymentReceived = *update.PaymentReceived
		}
		if update.WithdrawCompleted != nil {
			p.WithdrawCompleted = *update.WithdrawCompleted
		}
	})
}

// ClearPreferences removes the stored record and resets to defaults
func (m *Manager) ClearPreferences(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return apperrors.NewStorageError("clear", err)
	}
	m.prefs = models.DefaultNotificationPreferences()
	return nil
}

// ServerStatus returns the backend's view of this user's push registrations
func (m *Manager) ServerStatus(ctx context.Context) (*models.PushStatus, error) {
	return m.api.GetPushStatus(ctx)
}

// Reconcile disables notifications when preferences claim a subscription
// that the platform no longer has. It reports whether preferences changed.
func (m *Manager) Reconcile(ctx context.Context) (bool, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.Preferences().Enabled {
		return false, nil
	}

	live := false
	if m.IsSupported() {
		handle, err := m.currentSubscription(ctx)
		if err != nil {
			return false, apperrors.NewSubscriptionError("push-subscription", err)
		}
		live = handle != nil
	}
	if live {
		return false, nil
	}

	if _, err := m.mutate(ctx, func(p *models.NotificationPreferences) { p.Enabled = false }); err != nil {
		return false, err
	}
	m.logger.Warn("notifications were enabled without a live push subscription, disabled")
	return true, nil
}

// ReconcileOrphans retries backend deletion of journaled endpoints with
// exponential backoff. Endpoints the backend acknowledges, or no longer
// knows, are removed from the journal. It returns how many were removed.
//
// Every delete attempt is serialized with Subscribe and Unsubscribe and
// first re-checks the journal. An endpoint that left the journal or became
// the live platform subscription again is skipped, so a registration made
// during backoff is never deleted.
func (m *Manager) ReconcileOrphans(ctx context.Context) (int, error) {
	if m.orphans == nil {
		return 0, nil
	}

	entries, err := m.orphans.List(ctx)
	if err != nil {
		return 0, apperrors.NewStorageError("list orphans", err)
	}

	rctx := logging.WithLogger(ctx, m.logger)
	removed := 0
	var errs []error
	for _, entry := range entries {
		endpoint := entry.Endpoint
		skipped := false
		result := retry.WithExponentialBackoff(rctx, m.retryCfg, func(ctx context.Context, _ int) error {
			m.opMu.Lock()
			defer m.opMu.Unlock()

			pending, err := m.orphanPending(ctx, endpoint)
			if err != nil {
				return err
			}
			if !pending {
				skipped = true
				return nil
			}
			err = m.api.DeletePushSubscription(ctx, endpoint)
			if apperrors.Is(err, apperrors.CategoryNotFound) {
				return nil
			}
			return err
		})

		logger := m.logger.WithFields(map[string]interface{}{
			"endpoint": endpoint,
			"attempts": result.Attempts,
		})
		if result.Success && skipped {
			logger.Debug("endpoint no longer orphaned, skipped")
			continue
		}
		if !result.Success {
			logger.WithError(result.LastError).Warn("orphaned push registration still present")
			if err := m.rejournal(ctx, endpoint, result.LastError); err != nil {
				errs = append(errs, apperrors.NewStorageError("record orphan", err))
			}
			errs = append(errs, apperrors.NewOrphanError(endpoint, result.LastError))
			continue
		}

		if err := m.orphans.Remove(ctx, endpoint); err != nil {
			errs = append(errs, apperrors.NewStorageError("remove orphan", err))
			continue
		}
		removed++
		logger.Info("orphaned push registration removed")
	}

	return removed, errors.Join(errs...)
}

// orphanPending reports whether endpoint is still journaled and is not the
// live platform subscription. A live endpoint is dropped from the journal.
// Callers hold opMu.
func (m *Manager) orphanPending(ctx context.Context, endpoint string) (bool, error) {
	entries, err := m.orphans.List(ctx)
	if err != nil {
		return false, apperrors.NewStorageError("list orphans", err)
	}
	journaled := false
	for _, e := range entries {
		if e.Endpoint == endpoint {
			journaled = true
			break
		}
	}
	if !journaled {
		return false, nil
	}

	if m.IsSupported() {
		handle, err := m.currentSubscription(ctx)
		if err != nil {
			return false, apperrors.NewSubscriptionError("push-subscription", err)
		}
		if handle != nil && handle.Serialize().Endpoint == endpoint {
			if err := m.orphans.Remove(ctx, endpoint); err != nil {
				m.logger.WithError(err).Warn("failed to clear orphan journal entry")
			}
			return false, nil
		}
	}
	return true, nil
}

// rejournal records another failed deletion unless the endpoint was claimed
// by a subscription in the meantime
func (m *Manager) rejournal(ctx context.Context, endpoint string, cause error) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	pending, err := m.orphanPending(ctx, endpoint)
	if err != nil {
		m.logger.WithError(err).Debug("orphan re-check failed, recording anyway")
	} else if !pending {
		return nil
	}
	return m.orphans.Record(ctx, endpoint, cause)
}

func (m *Manager) show(ctx context.Context, title string, opts models.NotificationOptions) (bool, error) {
	if m.Permission() != types.PermissionGranted {
		return false, nil
	}
	if opts.Icon == "" {
		opts.Icon = DefaultIcon
	}
	if opts.Badge == "" {
		opts.Badge = DefaultBadge
	}

	if m.platform.SupportsServiceWorker() {
		reg, err := m.platform.ServiceWorker(ctx)
		if err == nil {
			if err := reg.ShowNotification(ctx, title, opts); err != nil {
				return false, apperrors.NewInternalError("service worker notification failed", err)
			}
			return true, nil
		}
		m.logger.WithError(err).Debug("no service worker, showing notification directly")
	}

	if err := m.platform.ShowNotification(ctx, title, opts); err != nil {
		return false, apperrors.NewInternalError("notification failed", err)
	}
	return true, nil
}

// currentSubscription returns the live platform subscription, nil when none
func (m *Manager) currentSubscription(ctx context.Context) (PushSubscriptionHandle, error) {
	reg, err := m.platform.ServiceWorker(ctx)
	if errors.Is(err, ErrNoServiceWorker) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reg.PushSubscription(ctx)
}

func (m *Manager) recordOrphan(ctx context.Context, endpoint string, cause error) {
	logger := m.logger.WithError(cause).WithField("endpoint", endpoint)
	if m.orphans == nil {
		logger.Warn("backend push registration orphaned")
		return
	}
	if err := m.orphans.Record(ctx, endpoint, cause); err != nil {
		logger.WithField("journalError", err.Error()).Error("failed to journal orphaned push registration")
		return
	}
	logger.Warn("backend push registration orphaned, queued for reconciliation")
}

// mutate applies fn to a copy of the preferences, persists the full record
// and only then publishes it in memory
func (m *Manager) mutate(ctx context.Context, fn func(*models.NotificationPreferences)) (models.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.prefs
	fn(&next)
	if err := m.store.Save(ctx, next); err != nil {
		return m.prefs, apperrors.NewStorageError("save", err)
	}
	m.prefs = next
	return next, nil
}
