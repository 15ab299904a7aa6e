package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BatchMetrics holds the instruments recorded by the batch engine
type BatchMetrics struct {
	executionDuration metric.Float64Histogram
	executions        metric.Int64Counter
	failures          metric.Int64Counter
	parentCount       metric.Int64Histogram
	resultRows        metric.Int64Histogram
	chunks            metric.Int64Histogram
	queriesSaved      metric.Int64Counter
	cacheHits         metric.Int64Counter
	waits             metric.Int64Counter
	sessionsActive    metric.Int64UpDownCounter
}

// InitBatchMetrics initializes batch engine metrics from the global meter provider
func InitBatchMetrics() (*BatchMetrics, error) {
	return newBatchMetrics(otel.Meter("batchfetch"))
}

func newBatchMetrics(meter metric.Meter) (*BatchMetrics, error) {
	executionDuration, err := meter.Float64Histogram(
		"batchfetch.batch.duration",
		metric.WithDescription("Duration of batch executions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	executions, err := meter.Int64Counter(
		"batchfetch.batch.executions",
		metric.WithDescription("Number of batch executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch executions counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"batchfetch.batch.failures",
		metric.WithDescription("Number of batch executions that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch failures counter: %w", err)
	}

	parentCount, err := meter.Int64Histogram(
		"batchfetch.batch.parent_count",
		metric.WithDescription("Number of owner keys included in a batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"batchfetch.batch.result_rows",
		metric.WithDescription("Number of rows returned by a batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}

	chunks, err := meter.Int64Histogram(
		"batchfetch.batch.chunks",
		metric.WithDescription("Number of sub-queries issued for a batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch chunks histogram: %w", err)
	}

	queriesSaved, err := meter.Int64Counter(
		"batchfetch.batch.queries_saved",
		metric.WithDescription("Number of queries saved by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"batchfetch.collection.cache_hits",
		metric.WithDescription("Number of collection reads served from resolved data"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection cache hits counter: %w", err)
	}

	waits, err := meter.Int64Counter(
		"batchfetch.collection.waits",
		metric.WithDescription("Number of collection reads that waited on an in-flight batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection waits counter: %w", err)
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"batchfetch.sessions.active",
		metric.WithDescription("Number of open sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active sessions counter: %w", err)
	}

	return &BatchMetrics{
		executionDuration: executionDuration,
		executions:        executions,
		failures:          failures,
		parentCount:       parentCount,
		resultRows:        resultRows,
		chunks:            chunks,
		queriesSaved:      queriesSaved,
		cacheHits:         cacheHits,
		waits:             waits,
		sessionsActive:    sessionsActive,
	}, nil
}

// RecordExecution records one batch execution with its duration and outcome
func (m *BatchMetrics) RecordExecution(ctx context.Context, duration time.Duration, failed bool, path string) {
	attrs := metric.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("failed", failed),
	)
	m.executionDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.executions.Add(ctx, 1, attrs)
	if failed {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
	}
}

func (m *BatchMetrics) RecordParentCount(ctx context.Context, count int64, path string) {
	m.parentCount.Record(ctx, count, metric.WithAttributes(attribute.String("path", path)))
}

func (m *BatchMetrics) RecordResultRows(ctx context.Context, count int64, path string) {
	m.resultRows.Record(ctx, count, metric.WithAttributes(attribute.String("path", path)))
}

func (m *BatchMetrics) RecordChunks(ctx context.Context, count int64, path string) {
	m.chunks.Record(ctx, count, metric.WithAttributes(attribute.String("path", path)))
}

// RecordQueriesSaved records the difference between per-owner queries and issued sub-queries.
func (m *BatchMetrics) RecordQueriesSaved(ctx context.Context, count int64, path string) {
	if count <= 0 {
		return
	}
	m.queriesSaved.Add(ctx, count, metric.WithAttributes(attribute.String("path", path)))
}

func (m *BatchMetrics) RecordCacheHit(ctx context.Context, path string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

func (m *BatchMetrics) RecordWait(ctx context.Context, path string) {
	m.waits.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// SessionOpened increments the active sessions counter
func (m *BatchMetrics) SessionOpened(ctx context.Context) {
	m.sessionsActive.Add(ctx, 1)
}

// SessionClosed decrements the active sessions counter
func (m *BatchMetrics) SessionClosed(ctx context.Context) {
	m.sessionsActive.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the BatchMetrics instance
func InitMetrics(logger *slog.Logger) (*BatchMetrics, error) {
	metrics, err := InitBatchMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize batch metrics: %w", err)
	}

	logger.Info("batch metrics initialized")
	return metrics, nil
}
