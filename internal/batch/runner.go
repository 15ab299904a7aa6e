package batch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"batchfetch/internal/logging"
	"batchfetch/internal/model"
	"batchfetch/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Store is the persistence layer consumed by the engine. LoadCollection must return rows
// for the given owners only, each naming its owner; rows may arrive in any order.
type Store interface {
	LoadEntities(ctx context.Context, t *model.EntityType, ids []any) ([]map[string]any, error)
	LoadCollection(ctx context.Context, c *model.Collection, ownerIDs []any) ([]ResultRow, error)
}

// QueryRunner executes the grouped query of a batch, splitting the owner keys into
// sub-queries of bounded size and concatenating their rows.
type QueryRunner struct {
	store     Store
	chunkSize int
	logger    *logging.Logger
	metrics   *observability.BatchMetrics

	invocations atomic.Int64
	subQueries  atomic.Int64
}

// NewQueryRunner creates a runner. A chunkSize of zero or less disables chunking.
func NewQueryRunner(store Store, chunkSize int, logger *logging.Logger, metrics *observability.BatchMetrics) *QueryRunner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &QueryRunner{store: store, chunkSize: chunkSize, logger: logger, metrics: metrics}
}

// Run loads the collection rows of every owner in ids. batchSize overrides the runner
// chunk size when positive. Any sub-query failure fails the whole run.
func (r *QueryRunner) Run(ctx context.Context, coll *model.Collection, ids []any, batchSize int) ([]ResultRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	r.invocations.Add(1)

	size := batchSize
	if size <= 0 {
		size = r.chunkSize
	}
	chunks := chunkValues(ids, size)
	path := coll.Path()

	var rows []ResultRow
	for i, chunk := range chunks {
		chunkRows, err := r.runChunk(ctx, coll, chunk, i)
		if err != nil {
			return nil, &QueryError{Path: path, Keys: len(ids), Err: err}
		}
		rows = append(rows, chunkRows...)
	}

	if r.metrics != nil {
		r.metrics.RecordParentCount(ctx, int64(len(ids)), path)
		r.metrics.RecordResultRows(ctx, int64(len(rows)), path)
		r.metrics.RecordChunks(ctx, int64(len(chunks)), path)
		r.metrics.RecordQueriesSaved(ctx, int64(len(ids)-len(chunks)), path)
	}
	r.logger.Debug("batch query executed",
		slog.String("path", path),
		slog.Int("keys", len(ids)),
		slog.Int("chunks", len(chunks)),
		slog.Int("rows", len(rows)),
	)
	return rows, nil
}

func (r *QueryRunner) runChunk(ctx context.Context, coll *model.Collection, ids []any, index int) (rows []ResultRow, err error) {
	r.subQueries.Add(1)
	ctx, span := startBatchSpan(ctx, "batch.chunk",
		attribute.String("batch.path", coll.Path()),
		attribute.Int("batch.chunk.index", index),
		attribute.Int("batch.keys", len(ids)),
	)
	defer func() {
		if err == nil {
			span.SetAttributes(attribute.Int("batch.rows", len(rows)))
		}
		finishBatchSpan(span, err, "")
	}()
	return r.store.LoadCollection(ctx, coll, ids)
}

// Invocations returns how many batches the runner has executed.
func (r *QueryRunner) Invocations() int64 { return r.invocations.Load() }

// SubQueries returns how many chunked sub-queries the runner has issued.
func (r *QueryRunner) SubQueries() int64 { return r.subQueries.Load() }

func chunkValues(values []any, size int) [][]any {
	if size <= 0 || len(values) <= size {
		return [][]any{values}
	}
	chunks := make([][]any, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
