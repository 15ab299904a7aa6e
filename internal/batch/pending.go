package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"batchfetch/internal/model"

	"go.opentelemetry.io/otel/attribute"
)

// Hints select which collection paths are batched and how large each sub-query may be.
type Hints struct {
	// BatchPaths are dotted collection paths relative to the loaded kind, e.g. "answers.tags".
	// Every prefix of a path is batched as well.
	BatchPaths []string
	// BatchSize caps the owner keys per batch sub-query; zero uses the session chunk size.
	// Root loads in Find are chunked by the session chunk size only.
	BatchSize int
}

// batches reports whether the collection at path is covered by a hinted batch path.
func (h Hints) batches(path string) bool {
	want := model.SplitPath(path)
	if len(want) == 0 {
		return false
	}
	for _, hinted := range h.BatchPaths {
		parts := model.SplitPath(hinted)
		if len(parts) < len(want) {
			continue
		}
		match := true
		for i := range want {
			if parts[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type attempt struct {
	done chan struct{}
	err  error
}

// PendingBatch is the set of owners whose collection on one property path awaits
// resolution. It executes at most once per attempt: concurrent readers wait for the
// in-flight attempt, and a failed attempt leaves the batch pending for the next read.
type PendingBatch struct {
	session    *Session
	collection *model.Collection
	path       string
	depth      int
	hints      Hints

	mu       sync.Mutex
	members  map[Key]*DeferredCollection
	order    []Key
	current  *attempt
	resolved bool
}

func newPendingBatch(s *Session, c *model.Collection, path string, depth int, hints Hints) *PendingBatch {
	return &PendingBatch{
		session:    s,
		collection: c,
		path:       path,
		depth:      depth,
		hints:      hints,
		members:    make(map[Key]*DeferredCollection),
	}
}

// Path returns the hinted path of the batch, e.g. "answers.tags".
func (b *PendingBatch) Path() string { return b.path }

// Collection returns the collection property resolved by the batch.
func (b *PendingBatch) Collection() *model.Collection { return b.collection }

// Depth returns the nesting level: 1 for collections of loaded entities, 0 for unhinted reads.
func (b *PendingBatch) Depth() int { return b.depth }

// Keys returns the owner keys in registration order.
func (b *PendingBatch) Keys() []Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Key(nil), b.order...)
}

// Len returns the number of owners in the batch.
func (b *PendingBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Resolved reports whether the batch has published its results.
func (b *PendingBatch) Resolved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolved
}

// add registers a collection. A different collection already registered under the same
// owner key is a key collision.
func (b *PendingBatch) add(c *DeferredCollection) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := c.owner.key
	if existing, ok := b.members[key]; ok {
		if existing == c {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s registered twice in batch %s", ErrKeyCollision, c.owner, b.collection.Path())
	}
	if b.resolved || b.current != nil {
		return false, nil
	}
	if !c.join(b) {
		return false, nil
	}
	b.members[key] = c
	b.order = append(b.order, key)
	return true, nil
}

func (b *PendingBatch) snapshot() []*DeferredCollection {
	members := make([]*DeferredCollection, 0, len(b.order))
	for _, key := range b.order {
		members = append(members, b.members[key])
	}
	return members
}

// load resolves the batch, or waits for the attempt already in flight.
func (b *PendingBatch) load(ctx context.Context) error {
	s := b.session
	for {
		if s.Closed() {
			return ErrSessionClosed
		}
		b.mu.Lock()
		if b.resolved {
			b.mu.Unlock()
			return nil
		}
		if a := b.current; a != nil {
			b.mu.Unlock()
			s.recordWait(ctx, b.collection.Path())
			select {
			case <-a.done:
				// A trigger that gave up is not a failure for this caller; take over.
				if a.err != nil && !(isContextError(a.err) && ctx.Err() == nil) {
					return a.err
				}
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		a := &attempt{done: make(chan struct{})}
		b.current = a
		members := b.snapshot()
		for _, m := range members {
			m.markPending()
		}
		b.mu.Unlock()

		err := b.execute(ctx, members)

		b.mu.Lock()
		if err == nil {
			b.resolved = true
		}
		a.err = err
		b.current = nil
		close(a.done)
		b.mu.Unlock()

		if err == nil {
			s.untrack(b)
		}
		return err
	}
}

func (b *PendingBatch) execute(ctx context.Context, members []*DeferredCollection) (err error) {
	s := b.session
	path := b.collection.Path()
	ctx, span := startBatchSpan(ctx, "batch.execute",
		attribute.String("batch.path", path),
		attribute.Int("batch.depth", b.depth),
		attribute.Int("batch.keys", len(members)),
	)
	start := time.Now()
	defer func() {
		finishBatchSpan(span, err, "")
		if s.metrics != nil {
			s.metrics.RecordExecution(ctx, time.Since(start), err != nil, path)
		}
	}()

	ids := make([]any, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.owner.id)
	}

	rows, err := s.runner.Run(ctx, b.collection, ids, b.hints.BatchSize)
	if err != nil {
		s.logger.Warn("batch query failed",
			slog.String("path", path),
			slog.Int("keys", len(ids)),
			slog.String("error", err.Error()),
		)
		return err
	}
	span.SetAttributes(attribute.Int("batch.rows", len(rows)))

	if err := s.resolver.Resolve(ctx, b, members, rows); err != nil {
		return err
	}

	s.logger.Info("batch resolved",
		slog.String("path", path),
		slog.Int("depth", b.depth),
		slog.Int("keys", len(ids)),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// markClosed leaves every unresolved member pending after the session ends.
func (b *PendingBatch) markClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resolved {
		return
	}
	for _, m := range b.snapshot() {
		m.markPending()
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
