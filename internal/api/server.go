// Package api provides the local HTTP API through which UI consumers read
// wallet state and drive the sync client.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/notification"
	"github.com/wallet-sync/internal/types"
	"github.com/wallet-sync/internal/worker"
)

// Service interfaces for dependency injection and testing

// SyncService is the sync controller surface used by the API
type SyncService interface {
	State() models.WalletState
	Status() worker.SyncStatus
	Refresh(ctx context.Context, force bool) bool
	SetVisibility(v types.Visibility)
}

// WatchService is the payment watcher registry surface used by the API
type WatchService interface {
	Track(paymentID string, initial *models.PaymentRecord) (worker.WatchStatus, bool, error)
	Lookup(paymentID string) (worker.WatchStatus, bool)
	Unwatch(paymentID string) bool
	Stats() worker.RegistryStats
}

// NotificationService is the notification manager surface used by the API
type NotificationService interface {
	IsSupported() bool
	Permission() types.Permission
	Preferences() models.NotificationPreferences
	UpdatePreferences(ctx context.Context, update notification.PreferenceUpdate) (models.NotificationPreferences, error)
	Subscribe(ctx context.Context) error
	Unsubscribe(ctx context.Context) error
	ServerStatus(ctx context.Context) (*models.PushStatus, error)
	ShowNotification(ctx context.Context, title string, opts models.NotificationOptions) (bool, error)
}

// PublicStatsService fetches the unauthenticated platform statistics
type PublicStatsService interface {
	GetPublicStats(ctx context.Context) (*models.PublicStats, error)
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	sync          SyncService
	watchers      WatchService
	notifications NotificationService
	stats         PublicStatsService
	config        *ServerConfig
	logger        *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ClientRPS       int // Requests per second per client
	ClientBurst     int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	syncService SyncService,
	watchService WatchService,
	notificationService NotificationService,
	statsService PublicStatsService,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:        mux.NewRouter(),
		sync:          syncService,
		watchers:      watchService,
		notifications: notificationService,
		stats:         statsService,
		config:        config,
		logger:        logger.WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.ClientRPS, s.config.ClientBurst)

	// order matters
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Sync endpoints
	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/visibility", s.handleSetVisibility).Methods("PUT")
	if s.stats != nil {
		api.HandleFunc("/public-stats", s.handlePublicStats).Methods("GET")
	}

	// Payment watch endpoints
	api.HandleFunc("/payments/{id}/watch", s.handleWatchPayment).Methods("POST")
	api.HandleFunc("/payments/{id}/watch", s.handleGetWatch).Methods("GET")
	api.HandleFunc("/payments/{id}/watch", s.handleUnwatchPayment).Methods("DELETE")

	// Notification endpoints
	api.HandleFunc("/notifications/preferences", s.handleGetPreferences).Methods("GET")
	api.HandleFunc("/notifications/preferences", s.handleUpdatePreferences).Methods("PUT")
	api.HandleFunc("/notifications/subscription", s.handleSubscribe).Methods("POST")
	api.HandleFunc("/notifications/subscription", s.handleUnsubscribe).Methods("DELETE")
	api.HandleFunc("/notifications/status", s.handleNotificationStatus).Methods("GET")
	api.HandleFunc("/notifications/click", s.handleNotificationClick).Methods("POST")

	// Push delivery endpoints
	api.HandleFunc("/push", s.handlePushReceived).Methods("POST")
	api.HandleFunc("/push/control", s.handleControlMessage).Methods("POST")
}

// Handler returns the fully wired HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "walletsync",
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
