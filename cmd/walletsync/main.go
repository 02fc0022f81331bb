// Package main provides the entry point for the wallet sync client.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-sync/internal/adapter"
	"github.com/wallet-sync/internal/api"
	"github.com/wallet-sync/internal/circuitbreaker"
	"github.com/wallet-sync/internal/config"
	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/notification"
	"github.com/wallet-sync/internal/retry"
	"github.com/wallet-sync/internal/scheduler"
	"github.com/wallet-sync/internal/storage"
	"github.com/wallet-sync/internal/types"
	"github.com/wallet-sync/internal/worker"
)

func main() {
	fmt.Println("Wallet Sync Client")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Preference store
	kv, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		logger.WithError(err).WithField("backend", cfg.Store.Backend).Fatal("Failed to open preference store")
	}
	defer kv.Close()
	logger.WithField("backend", cfg.Store.Backend).Info("Preference store ready")

	// Backend client
	statsBreakerCfg := circuitbreaker.DefaultConfig("public-stats")
	statsBreakerCfg.Logger = logger
	client, err := adapter.NewWalletClient(&adapter.WalletClientConfig{
		BaseURL:           cfg.Backend.BaseURL,
		Tokens:            adapter.NewJWTTokenSource(cfg.Backend.Token, adapter.DefaultExpiryLeeway, nil),
		RequestsPerSecond: cfg.Backend.RequestsPerSec,
		Timeout:           cfg.Backend.Timeout,
		StatsBreaker:      circuitbreaker.NewCircuitBreaker(statsBreakerCfg),
		Logger:            logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create wallet client")
	}

	// Notification delivery: Telegram when configured, log otherwise
	var deliver notification.DeliverFunc
	if cfg.Notifications.TelegramBotToken != "" {
		telegram, err := notification.NewTelegramNotifier(
			cfg.Notifications.TelegramBotToken,
			cfg.Notifications.TelegramChatID,
			cfg.Notifications.PublicBaseURL,
			logger,
		)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Telegram notifier")
		}
		deliver = telegram.Deliver
		logger.WithField("chatId", cfg.Notifications.TelegramChatID).Info("Telegram delivery enabled")
	}

	platform := notification.NewHeadlessPlatform(notification.HeadlessConfig{
		UserAgent:    cfg.Notifications.UserAgent,
		PushEndpoint: cfg.Notifications.PushEndpoint,
		Deliver:      deliver,
		Logger:       logger,
	})

	manager, err := notification.NewManager(ctx, &notification.ManagerConfig{
		Platform:    platform,
		API:         client,
		Preferences: storage.NewPreferenceStore(kv),
		Orphans:     storage.NewOrphanJournal(kv),
		Retry:       retry.DefaultRetryConfig(),
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification manager")
	}

	// Sync controller and payment watchers
	controller, err := worker.NewSyncController(&worker.SyncControllerConfig{
		API:                client,
		ForegroundInterval: cfg.Sync.ForegroundInterval,
		BackgroundInterval: cfg.Sync.BackgroundInterval,
		PageLimit:          cfg.Sync.PageLimit,
		FetchTimeout:       cfg.Sync.FetchTimeout,
		Logger:             logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create sync controller")
	}

	watchers, err := worker.NewWatcherRegistry(ctx, &worker.WatcherRegistryConfig{
		API:          client,
		Interval:     cfg.Watch.Interval,
		MaxDuration:  cfg.Watch.MaxDuration,
		PageLimit:    cfg.Sync.PageLimit,
		FetchTimeout: cfg.Sync.FetchTimeout,
		Reconciler:   controller,
		OnTerminal: func(p models.PaymentRecord) {
			if _, err := manager.NotifyPaymentReceived(ctx, p); err != nil {
				logger.WithError(err).WithField("paymentId", p.ID).Warn("Payment notification failed")
			}
		},
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create watcher registry")
	}
	defer watchers.Close()

	withdraws := worker.NewWithdrawTracker(func(w models.WithdrawRecord) {
		if _, err := manager.NotifyWithdrawCompleted(ctx, w); err != nil {
			logger.WithError(err).WithField("withdrawId", w.ID).Warn("Withdraw notification failed")
		}
	})
	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	go withdraws.Run(ctx, updates)

	// Bring the enabled flag in line with the platform before serving
	if changed, err := manager.Reconcile(ctx); err != nil {
		logger.WithError(err).Warn("Initial push reconcile failed")
	} else if changed {
		logger.Info("Push subscription state reconciled")
	}

	orphanSweeper := scheduler.NewPollingScheduler(nil, logger)
	err = orphanSweeper.Start(cfg.Notifications.OrphanReconcileInterval, func() {
		sctx, scancel := context.WithTimeout(ctx, time.Minute)
		defer scancel()
		removed, err := manager.ReconcileOrphans(sctx)
		if err != nil {
			logger.WithError(err).Warn("Orphan reconcile incomplete")
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("Orphaned push registrations cleaned up")
		}
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to start orphan sweeper")
	}
	defer orphanSweeper.Stop()

	if cfg.Backend.Identity != "" {
		controller.Start(ctx, cfg.Backend.Identity)
	} else {
		logger.Warn("WALLET_IDENTITY not set - sync stays idle")
	}
	defer controller.Stop()

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    cfg.Sync.FetchTimeout + 15*time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ClientRPS:       cfg.Server.ClientRPS,
		ClientBurst:     cfg.Server.ClientBurst,
	}
	server := api.NewServer(serverConfig, controller, watchers, manager, client, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// SIGUSR1/SIGUSR2 switch the polling tier like a view gaining or losing focus
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
wait:
	for sig := range quit {
		switch sig {
		case syscall.SIGUSR1:
			controller.SetVisibility(types.VisibilityForeground)
		case syscall.SIGUSR2:
			controller.SetVisibility(types.VisibilityBackground)
		default:
			break wait
		}
	}

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Wallet sync client exited")
}
