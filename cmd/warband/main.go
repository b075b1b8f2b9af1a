// Warband orchestrator server: spawns synthetic game clients, drives them
// through declarative task routes, and reports the results over HTTP,
// websocket events, metrics, and Slack.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warbandhq/warband/pkg/admin"
	"github.com/warbandhq/warband/pkg/api"
	"github.com/warbandhq/warband/pkg/bot"
	"github.com/warbandhq/warband/pkg/cleanup"
	"github.com/warbandhq/warband/pkg/config"
	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/metrics"
	"github.com/warbandhq/warband/pkg/route"
	"github.com/warbandhq/warband/pkg/runner"
	"github.com/warbandhq/warband/pkg/slack"
	"github.com/warbandhq/warband/pkg/store"
	"github.com/warbandhq/warband/pkg/suite"
	"github.com/warbandhq/warband/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting warband", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Snapshot store (optional)
	var storeClient *store.Client
	var stateStore runner.StateStore
	if cfg.Database.Enabled {
		storeClient, err = store.NewClient(ctx, store.Config{
			Host:                      cfg.Database.Host,
			Port:                      cfg.Database.Port,
			User:                      cfg.Database.User,
			Password:                  cfg.Database.Password,
			Database:                  cfg.Database.Database,
			SSLMode:                   cfg.Database.SSLMode,
			MaxOpenConns:              cfg.Database.MaxOpenConns,
			MaxIdleConns:              cfg.Database.MaxIdleConns,
			RequiresOfflineForRestore: cfg.Database.RequiresOfflineForRestore,
		})
		if err != nil {
			slog.Error("Failed to connect to character database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storeClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		stateStore = store.NewSnapshotManager(storeClient)
		slog.Info("Connected to character database",
			"host", cfg.Database.Host, "database", cfg.Database.Database)
	} else {
		slog.Info("Character database disabled, snapshots unavailable")
	}

	// 3. Admin control channel pool (optional)
	var adminPool *admin.Pool
	if cfg.Admin.Enabled {
		adminPool = admin.NewPool(admin.Config{
			Addr:        cfg.Admin.Addr,
			Username:    cfg.Admin.Username,
			Password:    cfg.Admin.Password,
			PoolSize:    cfg.Admin.PoolSize,
			DialTimeout: cfg.Admin.DialTimeout,
			IOTimeout:   cfg.Admin.IOTimeout,
		}, slog.Default())
		defer adminPool.Dispose()
		slog.Info("Admin channel pool configured", "addr", cfg.Admin.Addr)
	}

	// 4. Event hub and websocket fan-out
	publisher := events.NewPublisher(cfg.Events.BufferSize)
	connManager := events.NewConnectionManager(publisher)
	publisher.SetBroadcaster(connManager)

	// 5. Metrics
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		publisher.AddObserver(collector)
		connManager.SetConnectionGauge(collector)
		if adminPool != nil {
			adminPool.SetRecorder(collector)
		}
	}

	// 6. Slack notifications (nil service when unconfigured)
	slackService := slack.NewService(slack.ServiceConfig{
		Token:        os.Getenv(cfg.Slack.TokenEnv),
		Channel:      cfg.Slack.Channel,
		DashboardURL: cfg.Slack.DashboardURL,
	})
	if observer := slack.NewObserver(slackService); observer != nil {
		publisher.AddObserver(observer)
		slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
	}

	// 7. Route loader and bot factory
	loader := route.NewLoader(route.LoaderConfig{
		Dir:       cfg.Routes.Dir,
		CacheSize: cfg.Routes.CacheSize,
		CacheTTL:  cfg.Routes.CacheTTL,
	}, slog.Default())

	factory, err := runner.BuildFactory(cfg.Factory, bot.SimConfig{}, adminPool, slog.Default())
	if err != nil {
		slog.Error("Failed to build bot factory", "factory", cfg.Factory, "error", err)
		os.Exit(1)
	}
	slog.Info("Bot factory ready", "factory", cfg.Factory)

	// 8. Coordinators
	var recorder runner.TaskRecorder
	if collector != nil {
		recorder = collector
	}
	runs := runner.NewCoordinator(runner.Config{
		TickInterval: cfg.Harness.TickInterval,
		StartStagger: cfg.Harness.StartStagger,
		SettleGrace:  cfg.Harness.SettleGrace,
		SetupTimeout: time.Duration(cfg.Harness.SetupTimeoutSeconds) * time.Second,
		TestTimeout:  time.Duration(cfg.Harness.TestTimeoutSeconds) * time.Second,
	}, loader, factory, stateStore, publisher, recorder)
	defer runs.Shutdown()

	suites := suite.NewCoordinator(runs, cfg.Routes.Dir, publisher)
	defer suites.Shutdown()

	// 9. Retention cleanup loop
	cleanupSvc := cleanup.NewService(cfg.Retention, runs, suites)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	// 10. HTTP server
	httpServer := api.NewServer(runs, suites, loader)
	if storeClient != nil {
		httpServer.SetStoreClient(storeClient)
	}
	if adminPool != nil {
		httpServer.SetAdminPool(adminPool)
	}
	httpServer.SetConnectionManager(connManager)
	if collector != nil {
		httpServer.SetMetricsCollector(collector)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Warband started successfully", "routes_dir", cfg.Routes.Dir)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: stop accepting requests, then cancel active
	// runs through the deferred coordinator shutdowns.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
