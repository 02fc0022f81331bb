package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/retry"
	"github.com/wallet-sync/internal/storage"
	"github.com/wallet-sync/internal/types"
)

// testVAPIDKey is a URL-safe base64 P-256 public key without padding
const testVAPIDKey = "BEl62iUYgUivxIkv69yViEuiBIa-Ib9-SkvMeAtA3LFgDzkrxZJjSgSnfckjBJuBkr3qBUYIHBQFLXYp5Nksh8U"

type shownNotification struct {
	via   string
	title string
	opts  models.NotificationOptions
}

type fakePlatform struct {
	mu            sync.Mutex
	notifications bool
	serviceWorker bool
	push          bool
	permission    types.Permission
	promptResult  types.Permission
	userAgent     string
	swErr         error
	reg           *fakeRegistration
	shown         []shownNotification
	prompts       int
}

func newFakePlatform() *fakePlatform {
	p := &fakePlatform{
		notifications: true,
		serviceWorker: true,
		push:          true,
		permission:    types.PermissionGranted,
		promptResult:  types.PermissionGranted,
		userAgent:     "Mozilla/5.0 (X11; Linux x86_64)",
	}
	p.reg = &fakeRegistration{platform: p}
	return p
}

func (p *fakePlatform) SupportsNotifications() bool { return p.notifications }
func (p *fakePlatform) SupportsServiceWorker() bool { return p.serviceWorker }
func (p *fakePlatform) SupportsPush() bool          { return p.push }
func (p *fakePlatform) UserAgent() string           { return p.userAgent }

func (p *fakePlatform) Permission() types.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *fakePlatform) RequestPermission(context.Context) (types.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts++
	p.permission = p.promptResult
	return p.permission, nil
}

func (p *fakePlatform) ServiceWorker(context.Context) (ServiceWorkerRegistration, error) {
	if p.swErr != nil {
		return nil, p.swErr
	}
	if !p.serviceWorker {
		return nil, ErrNoServiceWorker
	}
	return p.reg, nil
}

func (p *fakePlatform) ShowNotification(_ context.Context, title string, opts models.NotificationOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, shownNotification{via: "direct", title: title, opts: opts})
	return nil
}

func (p *fakePlatform) notificationsShown() []shownNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shownNotification(nil), p.shown...)
}

type fakeRegistration struct {
	platform       *fakePlatform
	sub            *fakeHandle
	subscribeErr   error
	unsubscribeErr error
	// keepOnUnsubscribe makes Unsubscribe report false and keep the subscription
	keepOnUnsubscribe bool
	subscribes        int
	lastOpts          SubscribeOptions
}

func (r *fakeRegistration) PushSubscription(context.Context) (PushSubscriptionHandle, error) {
	if r.sub == nil {
		return nil, nil
	}
	return r.sub, nil
}

func (r *fakeRegistration) Subscribe(_ context.Context, opts SubscribeOptions) (PushSubscriptionHandle, error) {
	r.subscribes++
	r.lastOpts = opts
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.sub = &fakeHandle{reg: r, endpoint: "https://push.example.com/ep-1"}
	return r.sub, nil
}

func (r *fakeRegistration) ShowNotification(_ context.Context, title string, opts models.NotificationOptions) error {
	r.platform.mu.Lock()
	defer r.platform.mu.Unlock()
	r.platform.shown = append(r.platform.shown, shownNotification{via: "service-worker", title: title, opts: opts})
	return nil
}

type fakeHandle struct {
	reg      *fakeRegistration
	endpoint string
}

func (h *fakeHandle) Serialize() models.PushSubscription {
	return models.PushSubscription{
		Endpoint: h.endpoint,
		Keys:     models.PushSubscriptionKeys{P256dh: "p256", Auth: "auth"},
	}
}

func (h *fakeHandle) Unsubscribe(context.Context) (bool, error) {
	if h.reg.unsubscribeErr != nil {
		return false, h.reg.unsubscribeErr
	}
	if h.reg.keepOnUnsubscribe {
		return false, nil
	}
	h.reg.sub = nil
	return true, nil
}

type registration struct {
	sub    models.PushSubscription
	device types.DeviceType
}

type fakePushAPI struct {
	mu          sync.Mutex
	vapidKey    string
	vapidErr    error
	registerErr error
	deleteErrs  []error // consumed one per DeletePushSubscription call
	registered  []registration
	deleted     []string
	status      models.PushStatus
}

func newFakePushAPI() *fakePushAPI {
	return &fakePushAPI{vapidKey: testVAPIDKey}
}

func (a *fakePushAPI) GetVAPIDKey(context.Context) (string, error) {
	return a.vapidKey, a.vapidErr
}

func (a *fakePushAPI) GetPushStatus(context.Context) (*models.PushStatus, error) {
	s := a.status
	return &s, nil
}

func (a *fakePushAPI) RegisterPushSubscription(_ context.Context, sub models.PushSubscription, device types.DeviceType) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registerErr != nil {
		return a.registerErr
	}
	a.registered = append(a.registered, registration{sub: sub, device: device})
	return nil
}

func (a *fakePushAPI) DeletePushSubscription(_ context.Context, endpoint string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, endpoint)
	if len(a.deleteErrs) > 0 {
		err := a.deleteErrs[0]
		a.deleteErrs = a.deleteErrs[1:]
		return err
	}
	return nil
}

// failingStore fails Set after failAfter successful writes
type failingStore struct {
	*storage.MemoryStore
	mu        sync.Mutex
	failAfter int
	writes    int
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.writes++
	fail := s.writes > s.failAfter
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Set(ctx, key, value)
}

type testEnv struct {
	platform *fakePlatform
	api      *fakePushAPI
	kv       storage.KeyValueStore
	prefs    *storage.PreferenceStore
	orphans  *storage.OrphanJournal
	manager  *Manager
}

func newTestEnv(kv storage.KeyValueStore) *testEnv {
	if kv == nil {
		kv = storage.NewMemoryStore()
	}
	env := &testEnv{
		platform: newFakePlatform(),
		api:      newFakePushAPI(),
		kv:       kv,
		prefs:    storage.NewPreferenceStore(kv),
		orphans:  storage.NewOrphanJournal(kv),
	}
	env.manager = env.newManager()
	return env
}

// newManager builds a fresh manager over the same store, like a new session
func (e *testEnv) newManager() *Manager {
	m, err := NewManager(context.Background(), &ManagerConfig{
		Platform:    e.platform,
		API:         e.api,
		Preferences: e.prefs,
		Orphans:     e.orphans,
		Retry: &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 0,
			Multiplier:   2,
			Sleep:        func(context.Context, time.Duration) error { return nil },
		},
		Logger: logging.NewNopLogger(),
	})
	if err != nil {
		panic(err)
	}
	return m
}
