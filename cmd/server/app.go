package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/reelgen/internal/config"
	"github.com/phrazzld/reelgen/internal/execution"
	"github.com/phrazzld/reelgen/internal/platform/postgres"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/phrazzld/reelgen/internal/provider/kling"
	"github.com/phrazzld/reelgen/internal/provider/seedance"
	"github.com/phrazzld/reelgen/internal/provider/veo"
	"github.com/phrazzld/reelgen/internal/service/auth"
	"github.com/phrazzld/reelgen/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	jobStore      store.JobStore
	artifactStore store.ArtifactStore
	metricStore   store.MetricStore
	reportStore   store.ReportStore
	counterStore  store.RateLimitStore

	// Services
	jwtService auth.JWTService
	registry   *provider.Registry
	limiter    *execution.RateLimiter
	queue      *execution.Queue
	executor   *execution.Executor
	estimator  *execution.CostEstimator
}

// setupApp wires all application dependencies from configuration. The
// returned application owns the database handle; callers run cleanup on
// shutdown.
func setupApp(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*application, error) {
	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, appLogger); err != nil {
		closeDatabase(db, appLogger)
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		closeDatabase(db, appLogger)
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	registry, err := setupProviders(ctx, cfg, appLogger)
	if err != nil {
		closeDatabase(db, appLogger)
		return nil, err
	}

	app := &application{
		config: cfg,
		logger: appLogger,
		db:     db,

		jobStore:      postgres.NewPostgresJobStore(db),
		artifactStore: postgres.NewPostgresArtifactStore(db),
		metricStore:   postgres.NewPostgresMetricStore(db),
		reportStore:   postgres.NewPostgresReportStore(db),
		counterStore:  postgres.NewPostgresRateLimitStore(db),

		jwtService: jwtService,
		registry:   registry,
	}

	payloads := execution.NewFilePayloadSource(cfg.Storage.PayloadDir)
	app.estimator = execution.NewCostEstimator(registry, payloads)
	app.limiter = execution.NewRateLimiter(
		app.counterStore,
		registry,
		execution.RateLimiterConfig{
			ThrottleCooldown:     time.Duration(cfg.Execution.ThrottleCooldownSeconds) * time.Second,
			UnavailableThreshold: cfg.Execution.UnavailableThreshold,
			UnavailablePause:     time.Duration(cfg.Execution.UnavailablePauseSeconds) * time.Second,
		},
		appLogger,
	)

	downloader := execution.NewDownloader(
		nil,
		cfg.Storage.OutputDir,
		cfg.Storage.MaxClipsPerUnit,
		appLogger,
	)

	app.queue = execution.NewQueue(db, app.jobStore, app.artifactStore, registry, app.estimator, appLogger)
	app.executor = execution.NewExecutor(
		app.jobStore,
		app.artifactStore,
		app.metricStore,
		app.reportStore,
		registry,
		app.limiter,
		payloads,
		downloader,
		executorConfig(cfg.Execution),
		appLogger,
	)

	appLogger.Info("Application dependencies initialized",
		"providers", registry.Names(),
		"output_dir", cfg.Storage.OutputDir)

	return app, nil
}

// setupProviders registers every provider that has credentials configured.
// The configured default provider must end up registered.
func setupProviders(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.Providers.Seedance.APIKey != "" {
		client, err := seedance.New(cfg.Providers.Seedance, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create seedance client: %w", err)
		}
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}

	if cfg.Providers.Kling.APIKey != "" {
		client, err := kling.New(cfg.Providers.Kling, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kling client: %w", err)
		}
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}

	if cfg.Providers.Veo.APIKey != "" {
		client, err := veo.New(ctx, cfg.Providers.Veo, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create veo client: %w", err)
		}
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}

	if _, err := registry.Get(cfg.Providers.Default); err != nil {
		return nil, fmt.Errorf(
			"default provider %q has no credentials configured: %w",
			cfg.Providers.Default, err)
	}

	return registry, nil
}

// executorConfig translates the flat seconds-based configuration into the
// executor's duration-typed config.
func executorConfig(cfg config.ExecutionConfig) execution.ExecutorConfig {
	return execution.ExecutorConfig{
		MaxConcurrent: cfg.MaxConcurrentJobs,
		Retry: execution.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
			MaxDelay:   time.Duration(cfg.RetryMaxDelaySeconds) * time.Second,
		},
		Poll: execution.PollerConfig{
			InitialInterval: time.Duration(cfg.PollInitialIntervalSeconds) * time.Second,
			MaxInterval:     time.Duration(cfg.PollMaxIntervalSeconds) * time.Second,
			MaxWait:         time.Duration(cfg.PollMaxWaitSeconds) * time.Second,
		},
	}
}

// cleanup releases application resources during shutdown.
func (app *application) cleanup() {
	closeDatabase(app.db, app.logger)
}

func closeDatabase(db *sql.DB, appLogger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		appLogger.Error("Failed to close database connection", "error", err)
		return
	}
	appLogger.Info("Database connection closed")
}
