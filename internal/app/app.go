// Package app wires configuration, telemetry and the database into the batch-fetch demo
// harness and owns the lifecycle of everything it opens.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"batchfetch/internal/config"
	"batchfetch/internal/dbexec"
	"batchfetch/internal/logging"
	"batchfetch/internal/observability"
)

// App owns runtime resources for one batchfetch process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	batchMetrics   *observability.BatchMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	metricsSrv *http.Server

	harness *Harness

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Run seeds the demo tables when demo.setup is set and then runs the load rounds.
// It requires Init to have completed.
func (a *App) Run(ctx context.Context) (*Report, error) {
	a.stateMu.Lock()
	harness := a.harness
	initialized := a.initialized
	a.stateMu.Unlock()

	if !initialized {
		return nil, fmt.Errorf("app is not initialized")
	}

	ctx = logging.WithLogger(ctx, a.logger)
	if a.cfg.Demo.Setup {
		if err := harness.Setup(ctx); err != nil {
			return nil, fmt.Errorf("failed to set up demo data: %w", err)
		}
	}

	report, err := harness.Run(ctx)
	if err != nil {
		return report, err
	}

	a.logger.Info("batch fetch demo succeeded",
		slog.Uint64("seed", report.Seed),
		slog.Int("rounds", len(report.Rounds)),
		slog.Int64("queries", report.Queries()),
	)
	return report, nil
}

// NewWithExecutor builds an initialized App over an existing executor, skipping
// telemetry and connection setup.
func NewWithExecutor(cfg *config.Config, logger *logging.Logger, exec dbexec.QueryExecutor) (*App, error) {
	a, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}
	harness, err := NewHarness(exec, dialect, cfg, nil)
	if err != nil {
		return nil, err
	}
	a.harness = harness
	a.initialized = true
	return a, nil
}
