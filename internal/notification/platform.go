package notification

import (
	"context"
	"errors"

	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/types"
)

// ErrNoServiceWorker is returned by Platform.ServiceWorker when no active
// registration exists
var ErrNoServiceWorker = errors.New("no active service worker registration")

// Platform is the notification capability surface of the host runtime
type Platform interface {
	SupportsNotifications() bool
	SupportsServiceWorker() bool
	SupportsPush() bool

	// Permission returns the current permission without prompting
	Permission() types.Permission
	// RequestPermission prompts the user and returns the resulting state
	RequestPermission(ctx context.Context) (types.Permission, error)

	// ServiceWorker waits for the active registration
	ServiceWorker(ctx context.Context) (ServiceWorkerRegistration, error)

	// ShowNotification displays a notification without a service worker
	ShowNotification(ctx context.Context, title string, opts models.NotificationOptions) error

	UserAgent() string
}

// ServiceWorkerRegistration is the push and notification scope of a service worker
type ServiceWorkerRegistration interface {
	// PushSubscription returns the current subscription, or nil when none exists
	PushSubscription(ctx context.Context) (PushSubscriptionHandle, error)
	Subscribe(ctx context.Context, opts SubscribeOptions) (PushSubscriptionHandle, error)
	ShowNotification(ctx context.Context, title string, opts models.NotificationOptions) error
}

// PushSubscriptionHandle is a platform-issued push subscription
type PushSubscriptionHandle interface {
	Serialize() models.PushSubscription
	// Unsubscribe tears the subscription down at the platform level
	Unsubscribe(ctx context.Context) (bool, error)
}

// SubscribeOptions are passed to the push manager
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey []byte
}
