package notification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/types"
)

// DeliverFunc hands a notification to whatever displays it
type DeliverFunc func(ctx context.Context, title string, opts models.NotificationOptions) error

// HeadlessPlatform is a Platform for daemons without a browser runtime.
//
// Notifications are handed to a DeliverFunc (logged when none is set). Push
// is supported only when a push endpoint is configured, e.g. a UnifiedPush
// distributor URL; the platform then issues a single subscription for it with
// freshly generated client keys.
type HeadlessPlatform struct {
	userAgent  string
	endpoint   string
	permission types.Permission
	deliver    DeliverFunc
	logger     *logging.Logger

	mu  sync.Mutex
	sub *headlessSubscription
}

// HeadlessConfig configures a HeadlessPlatform
type HeadlessConfig struct {
	UserAgent    string
	PushEndpoint string
	// Permission defaults to granted
	Permission types.Permission
	Deliver    DeliverFunc
	Logger     *logging.Logger
}

// NewHeadlessPlatform creates a headless platform
func NewHeadlessPlatform(cfg HeadlessConfig) *HeadlessPlatform {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	perm := cfg.Permission
	if perm == "" {
		perm = types.PermissionGranted
	}
	return &HeadlessPlatform{
		userAgent:  cfg.UserAgent,
		endpoint:   cfg.PushEndpoint,
		permission: perm,
		deliver:    cfg.Deliver,
		logger:     logger.WithComponent("headless-platform"),
	}
}

func (h *HeadlessPlatform) SupportsNotifications() bool { return true }
func (h *HeadlessPlatform) SupportsServiceWorker() bool { return h.endpoint != "" }
func (h *HeadlessPlatform) SupportsPush() bool          { return h.endpoint != "" }
func (h *HeadlessPlatform) UserAgent() string           { return h.userAgent }

// Permission returns the configured permission
func (h *HeadlessPlatform) Permission() types.Permission { return h.permission }

// RequestPermission cannot prompt anyone and returns the configured permission
func (h *HeadlessPlatform) RequestPermission(context.Context) (types.Permission, error) {
	return h.permission, nil
}

// ServiceWorker returns the platform itself as the registration when push is configured
func (h *HeadlessPlatform) ServiceWorker(context.Context) (ServiceWorkerRegistration, error) {
	if h.endpoint == "" {
		return nil, ErrNoServiceWorker
	}
	return (*headlessRegistration)(h), nil
}

// ShowNotification delivers a notification directly
func (h *HeadlessPlatform) ShowNotification(ctx context.Context, title string, opts models.NotificationOptions) error {
	if h.deliver == nil {
		h.logger.WithFields(map[string]interface{}{
			"title": title,
			"body":  opts.Body,
			"tag":   opts.Tag,
		}).Info("notification")
		return nil
	}
	return h.deliver(ctx, title, opts)
}

type headlessRegistration HeadlessPlatform

func (r *headlessRegistration) PushSubscription(context.Context) (PushSubscriptionHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return nil, nil
	}
	return r.sub, nil
}

func (r *headlessRegistration) Subscribe(_ context.Context, opts SubscribeOptions) (PushSubscriptionHandle, error) {
	if !opts.UserVisibleOnly {
		return nil, fmt.Errorf("only user-visible push subscriptions are supported")
	}
	if len(opts.ApplicationServerKey) == 0 {
		return nil, fmt.Errorf("application server key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// subscribing again returns the existing subscription
	if r.sub != nil {
		return r.sub, nil
	}

	keys, err := generateClientKeys()
	if err != nil {
		return nil, err
	}
	r.sub = &headlessSubscription{
		owner: (*HeadlessPlatform)(r),
		data: models.PushSubscription{
			Endpoint: r.endpoint,
			Keys:     keys,
		},
	}
	return r.sub, nil
}

func (r *headlessRegistration) ShowNotification(ctx context.Context, title string, opts models.NotificationOptions) error {
	return (*HeadlessPlatform)(r).ShowNotification(ctx, title, opts)
}

type headlessSubscription struct {
	owner *HeadlessPlatform
	data  models.PushSubscription
}

func (s *headlessSubscription) Serialize() models.PushSubscription { return s.data }

func (s *headlessSubscription) Unsubscribe(context.Context) (bool, error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.owner.sub != s {
		return false, nil
	}
	s.owner.sub = nil
	return true, nil
}

// generateClientKeys creates a P-256 key pair and a 16-byte auth secret,
// encoded the way browsers serialize them
func generateClientKeys() (models.PushSubscriptionKeys, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return models.PushSubscriptionKeys{}, fmt.Errorf("generate p256dh key: %w", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return models.PushSubscriptionKeys{}, fmt.Errorf("generate auth secret: %w", err)
	}
	return models.PushSubscriptionKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(auth),
	}, nil
}
