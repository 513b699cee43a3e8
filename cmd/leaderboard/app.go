package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/noc-leaderboard/internal/audit"
	"github.com/smartdevs17/noc-leaderboard/internal/auth"
	"github.com/smartdevs17/noc-leaderboard/internal/broadcast"
	"github.com/smartdevs17/noc-leaderboard/internal/config"
	"github.com/smartdevs17/noc-leaderboard/internal/leaderboard"
	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/internal/notification"
	"github.com/smartdevs17/noc-leaderboard/internal/server"
	"github.com/smartdevs17/noc-leaderboard/internal/storage"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// Application represents the main application
type Application struct {
	config         *config.Config
	logger         *logrus.Logger
	metricsManager *metrics.Manager
	storage        storage.Storage
	auditLog       *audit.Log
	hub            *broadcast.Hub
	service        *leaderboard.EntryService
	forwarder      *notification.Forwarder
	server         *server.HTTPServer
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	app := &Application{config: cfg}

	if err := app.initializeLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents wires store, audit log, hub, service and server
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metricsManager = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.auditLog = audit.NewLog()
	app.hub = broadcast.NewHub(app.config.Realtime.QueueSize, app.metricsManager)
	app.service = leaderboard.NewService(app.storage, app.auditLog, app.hub, app.metricsManager)

	if app.config.Notifications.Enabled {
		app.forwarder = notification.NewForwarder(&app.config.Notifications, app.hub, app.metricsManager)
	}

	var err error
	app.server, err = server.NewHTTPServer(app.config, server.Dependencies{
		Service:       app.service,
		Storage:       app.storage,
		Hub:           app.hub,
		Forwarder:     app.forwarder,
		Authenticator: auth.NewAuthenticator(&app.config.Auth),
		Metrics:       app.metricsManager,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage connects and migrates the record store
func (app *Application) initializeStorage() error {
	app.logger.WithField("type", app.config.Storage.Type).Info("Initializing storage layer")

	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metricsManager)
	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// Run serves until ctx is cancelled, then shuts everything down in order:
// HTTP, broadcast hub, webhook forwarder, store.
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
		"address":     app.server.Addr(),
	}).Info("Starting NOC leaderboard")

	g, gctx := errgroup.WithContext(ctx)

	if app.forwarder != nil {
		if err := app.forwarder.Start(gctx); err != nil {
			return fmt.Errorf("failed to start webhook forwarder: %w", err)
		}
	}

	g.Go(func() error {
		return app.server.Run(gctx)
	})

	err := g.Wait()
	app.stop()
	return err
}

func (app *Application) stop() {
	app.logger.Info("Stopping NOC leaderboard")

	app.hub.Close()

	if app.forwarder != nil {
		if err := app.forwarder.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop webhook forwarder")
		}
	}

	app.closeStorage()

	app.logger.WithField("audit_log_entries", app.auditLog.Len()).Info("Discarding in-memory audit log")
	app.logger.Info("NOC leaderboard stopped")
}

func (app *Application) closeStorage() {
	if app.storage == nil {
		return
	}
	if err := app.storage.Close(); err != nil {
		app.logger.WithError(err).Error("Failed to close storage")
	}
}
