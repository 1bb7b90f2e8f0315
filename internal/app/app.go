// Package app provides the main application lifecycle management for the
// monitor service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/monitor/internal/api"
	"github.com/jonesrussell/north-cloud/monitor/internal/config"
	"github.com/jonesrussell/north-cloud/monitor/internal/content"
	"github.com/jonesrussell/north-cloud/monitor/internal/database"
	"github.com/jonesrussell/north-cloud/monitor/internal/delivery"
	"github.com/jonesrussell/north-cloud/monitor/internal/detector"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/generation"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
	"github.com/jonesrussell/north-cloud/monitor/internal/metrics"
	"github.com/jonesrussell/north-cloud/monitor/internal/monitor"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	pingTimeout = 5 * time.Second
)

// App represents the monitor application with all its dependencies
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient redis.UniversalClient
	runner      *monitor.Runner
	httpServer  *http.Server
	scheduler   *cron.Cron
	version     string
	configPath  string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "monitor"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
		_ = appLogger.Sync()
		db.Close()
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}

	app, err := build(cfg, appLogger, db, redisClient, opts)
	if err != nil {
		_ = appLogger.Sync()
		db.Close()
		_ = redisClient.Close()
		return nil, err
	}
	return app, nil
}

// build wires repositories, clients, detectors, and the runner together.
func build(cfg *config.Config, appLogger logger.Logger, db *sqlx.DB, redisClient redis.UniversalClient, opts Options) (*App, error) {
	issueRepo := database.NewIssueRepository(db.DB)
	executionRepo := database.NewExecutionRepository(db.DB)
	pipelineRepo := database.NewPipelineRepository(db.DB)

	contentClient, err := content.NewClient(content.Config{
		URL:      cfg.Elasticsearch.URL,
		Username: cfg.Elasticsearch.Username,
		Password: cfg.Elasticsearch.Password,
		Index:    cfg.Elasticsearch.Index,
	}, appLogger)
	if err != nil {
		return nil, fmt.Errorf("create content client: %w", err)
	}

	generationClient, err := generation.NewClient(
		cfg.Generation.URL, cfg.Generation.Token, cfg.Generation.Timeout, appLogger)
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	deliveryClient, err := delivery.NewClient(
		cfg.Delivery.URL, cfg.Delivery.Token, cfg.Delivery.Timeout, appLogger)
	if err != nil {
		return nil, fmt.Errorf("create delivery client: %w", err)
	}

	window := cfg.Monitor.DetectionWindow
	detectors := []detector.Detector{
		detector.NewPlaceholderDetector(contentClient, window),
		detector.NewUndersizedDetector(contentClient, window, detector.DefaultMinWordCount),
		detector.NewMissingOutputDetector(contentClient, pipelineRepo, window),
		detector.NewMissedScheduleDetector(pipelineRepo, window),
		detector.NewJobFailureDetector(pipelineRepo, window),
		detector.NewMissedDeliveryDetector(pipelineRepo, window),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promCollectors := metrics.NewCollectors(registry)
	tracker := metrics.NewTracker(redisClient, issueTypeNames(), appLogger)
	observer := metrics.NewObserver(promCollectors, tracker)

	fixers := monitor.NewRegistry(generationClient, deliveryClient)
	intake := monitor.NewIntake(issueRepo, appLogger)
	dispatcher := monitor.NewDispatcher(fixers, issueRepo, cfg.Monitor, appLogger)
	batchFixer := monitor.NewBatchFixer(issueRepo, generationClient, contentClient, cfg.Monitor, appLogger)

	runner := monitor.NewRunner(
		detectors, intake, dispatcher, batchFixer,
		issueRepo, executionRepo, cfg.Monitor, observer, appLogger,
	)

	router := api.NewRouter(
		runner, issueRepo, executionRepo, db, redisClient,
		registry, cfg.Server.CORSOrigins, cfg.Monitor.AuthToken, cfg.Debug, appLogger,
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	app := &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		runner:      runner,
		httpServer:  httpServer,
		version:     opts.Version,
		configPath:  opts.ConfigPath,
	}

	if cfg.Monitor.Schedule != "" {
		scheduler, schedErr := app.newScheduler(cfg.Monitor.Schedule)
		if schedErr != nil {
			return nil, schedErr
		}
		app.scheduler = scheduler
	}

	return app, nil
}

// newScheduler builds the optional built-in cadence. The runner rejects
// overlapping runs itself, so a slow run simply causes the next tick to be
// skipped.
func (a *App) newScheduler(schedule string) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(schedule, func() {
		summary, runErr := a.runner.Run(context.Background())
		if runErr != nil {
			if errors.Is(runErr, monitor.ErrRunInProgress) {
				a.logger.Warn("Skipping scheduled run, previous run still active")
				return
			}
			a.logger.Error("Scheduled run failed", logger.Error(runErr))
			return
		}
		a.logger.Info("Scheduled run completed",
			logger.Int("fixed", summary.IssuesFixed),
			logger.Int("failed", summary.IssuesFailed),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return scheduler, nil
}

func issueTypeNames() []string {
	types := []domain.IssueType{
		domain.IssueTypeMissingOutput,
		domain.IssueTypePlaceholderOutput,
		domain.IssueTypeJobFailure,
		domain.IssueTypeMissingScheduledItem,
		domain.IssueTypeUndersizedOutput,
		domain.IssueTypeMissedDelivery,
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// RunOnce executes a single monitor pass and exits, for ad hoc invocations.
func (a *App) RunOnce(ctx context.Context) error {
	summary, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Run completed",
		logger.Int("detected", summary.IssuesDetected),
		logger.Int("created", summary.IssuesCreated),
		logger.Int("fixed", summary.IssuesFixed),
		logger.Int("failed", summary.IssuesFailed),
		logger.Int("skipped", summary.IssuesSkipped),
	)
	return nil
}

// Run starts the HTTP server and optional scheduler, blocking until
// shutdown.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.logger.Info("Starting HTTP server",
			logger.String("address", a.config.Server.Address),
			logger.Bool("debug", a.config.Debug),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	if a.scheduler != nil {
		a.logger.Info("Starting scheduler",
			logger.String("schedule", a.config.Monitor.Schedule),
		)
		a.scheduler.Start()
	}

	return a.waitForShutdown(ctx, serverErr)
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(ctx context.Context, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)
	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down")
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", logger.Error(err))
			shutdownErr = err
		}
	}

	a.shutdown()
	a.logger.Info("Service stopped")
	return shutdownErr
}

// shutdown stops the scheduler and the HTTP server. A run already in flight
// finishes naturally; the cron stop context waits for it.
func (a *App) shutdown() {
	if a.scheduler != nil {
		stopCtx := a.scheduler.Stop()
		<-stopCtx.Done()
		a.logger.Info("Scheduler stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
