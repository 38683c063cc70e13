// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "quickcheck-service/docs"
	"quickcheck-service/internal/config"
	"quickcheck-service/internal/database"
	"quickcheck-service/internal/handler"
	"quickcheck-service/internal/metrics"
	"quickcheck-service/internal/repository"
	"quickcheck-service/internal/routes"
	"quickcheck-service/internal/service"
	"quickcheck-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	registry   *prometheus.Registry
	appMetrics *metrics.AppMetrics
	eventBus   *handler.EventBus

	// Services
	deviceService  *service.DeviceService
	harvestService *service.HarvestService
	reportService  *service.ReportService

	// Repositories
	deviceRepo  repository.DeviceRepository
	measRepo    repository.MeasurementRepository
	harvestRepo repository.HarvestRepository

	pollCancel context.CancelFunc
}

// @title QuickCheck Service API
// @version 1.0.0
// @description Measurement harvesting and reporting service for PTW QuickCheck daily QA devices
// @termsOfService http://swagger.io/terms/

// @contact.name QuickCheck Service API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8086
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "quickcheck-service")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up database connection and runs migrations
func (app *Application) initializeDatabase() error {
	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() error {
	app.deviceRepo = repository.NewDeviceRepository(app.database, app.logger)
	app.measRepo = repository.NewMeasurementRepository(app.database, app.logger)
	app.harvestRepo = repository.NewHarvestRepository(app.database, app.logger)

	app.logger.Info("Repositories initialized successfully")
	return nil
}

// initializeServices creates metrics, event bus and service instances
func (app *Application) initializeServices() error {
	app.registry = metrics.NewRegistry()
	app.appMetrics = metrics.NewAppMetrics(app.registry)

	app.eventBus = handler.NewEventBus(app.logger)
	go app.eventBus.Start()

	app.deviceService = service.NewDeviceService(
		app.deviceRepo,
		app.config,
		app.logger,
	)

	app.harvestService = service.NewHarvestService(
		app.deviceRepo,
		app.measRepo,
		app.harvestRepo,
		app.config,
		app.logger,
		app.eventBus,
		app.appMetrics,
	)

	app.reportService = service.NewReportService(
		app.measRepo,
		app.config,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.registry,
		app.eventBus,
		app.deviceService,
		app.harvestService,
		app.reportService,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.pollCancel = cancel

	if app.config.Device.PollEnabled {
		go app.startHarvestPoller(ctx)
	}

	app.logger.Info("Background services started")
}

// startHarvestPoller periodically harvests every registered device
func (app *Application) startHarvestPoller(ctx context.Context) {
	ticker := time.NewTicker(app.config.Device.PollInterval)
	defer ticker.Stop()

	app.logger.Info("Harvest poller started",
		zap.Duration("interval", app.config.Device.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			app.logger.Info("Harvest poller stopped")
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, app.config.Device.PollInterval)
			app.harvestService.HarvestAll(sweepCtx, "poller")
			cancel()
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "quickcheck-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	if app.pollCancel != nil {
		app.pollCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown()

	return nil
}
