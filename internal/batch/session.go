package batch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"batchfetch/internal/logging"
	"batchfetch/internal/model"
	"batchfetch/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultChunkSize bounds the owner keys of one sub-query when no size is configured.
	DefaultChunkSize = 500
	// DefaultMaxDepth is the deepest batched collection level registered from load hints.
	DefaultMaxDepth = 2
)

// Options configures a Session.
type Options struct {
	ChunkSize int
	MaxDepth  int
	Logger    *logging.Logger
	Metrics   *observability.BatchMetrics
}

// Stats summarizes the batch activity of a session.
type Stats struct {
	Executions int64
	SubQueries int64
	Waits      int64
	CacheHits  int64
	// Pending counts registered batches that have not resolved yet.
	Pending int
}

type identity struct {
	kind string
	key  Key
}

// Session is one unit of work. It owns the identity map of the entities it loaded and the
// batches registered for them. After Close every collection read fails with ErrSessionClosed.
type Session struct {
	id       string
	registry *model.Registry
	store    Store
	runner   *QueryRunner
	resolver *Resolver
	logger   *logging.Logger
	metrics  *observability.BatchMetrics
	maxDepth int

	mu       sync.Mutex
	entities map[identity]*Entity
	batches  []*PendingBatch

	lifecycle sync.RWMutex
	closed    bool

	waits     atomic.Int64
	cacheHits atomic.Int64
}

// NewSession opens a session over store.
func NewSession(registry *model.Registry, store Store, opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithSessionID(id)
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	s := &Session{
		id:       id,
		registry: registry,
		store:    store,
		logger:   logger,
		metrics:  opts.Metrics,
		maxDepth: opts.MaxDepth,
		entities: make(map[identity]*Entity),
	}
	s.runner = NewQueryRunner(store, opts.ChunkSize, logger, opts.Metrics)
	s.resolver = &Resolver{session: s}
	if s.metrics != nil {
		s.metrics.SessionOpened(context.Background())
	}
	return s
}

// ID returns the session identifier attached to its log records.
func (s *Session) ID() string { return s.id }

// Runner returns the query runner shared by the session's batches.
func (s *Session) Runner() *QueryRunner { return s.runner }

// Find loads the entities of kind with the given ids and registers the collections named
// by hints as pending batches. Entities are returned in the order of ids; ids with no row
// are skipped.
func (s *Session) Find(ctx context.Context, kind string, ids []any, hints Hints) (result []*Entity, err error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	t, ok := s.registry.Type(kind)
	if !ok {
		return nil, fmt.Errorf("%w %s", model.ErrUnknownKind, kind)
	}
	for _, path := range hints.BatchPaths {
		if _, err := s.registry.ResolvePath(kind, path); err != nil {
			return nil, err
		}
	}

	ctx, span := startBatchSpan(ctx, "session.find",
		attribute.String("batch.kind", kind),
		attribute.Int("batch.keys", len(ids)),
	)
	defer func() { finishBatchSpan(span, err, "") }()

	keys := make([]Key, 0, len(ids))
	unique := make([]any, 0, len(ids))
	seen := make(map[Key]struct{}, len(ids))
	for _, id := range ids {
		key, ok := KeyOf(id)
		if !ok {
			return nil, fmt.Errorf("%s: nil id", kind)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	loaded := make(map[Key]*Entity, len(unique))
	for _, chunk := range chunkValues(unique, s.runner.chunkSize) {
		rows, err := s.store.LoadEntities(ctx, t, chunk)
		if err != nil {
			return nil, &QueryError{Path: kind, Keys: len(unique), Err: err}
		}
		for _, row := range rows {
			e, err := s.materialize(t, row[t.KeyColumn], row)
			if err != nil {
				return nil, err
			}
			loaded[e.key] = e
		}
	}

	result = make([]*Entity, 0, len(loaded))
	for _, key := range keys {
		if e, ok := loaded[key]; ok {
			result = append(result, e)
		}
	}

	if err := s.Register(hints, result...); err != nil {
		return nil, err
	}
	s.logger.Debug("entities loaded",
		slog.String("kind", kind),
		slog.Int("requested", len(unique)),
		slog.Int("found", len(result)),
	)
	return result, nil
}

// Register puts the hinted collections of roots into first-level pending batches. The
// roots must share one kind; hint paths are relative to it.
func (s *Session) Register(hints Hints, roots ...*Entity) error {
	if len(roots) == 0 || len(hints.BatchPaths) == 0 {
		return nil
	}
	kind := roots[0].kind
	t, ok := s.registry.Type(kind)
	if !ok {
		return fmt.Errorf("%w %s", model.ErrUnknownKind, kind)
	}
	for _, e := range roots[1:] {
		if e.kind != kind {
			return fmt.Errorf("register %s with %s roots: mixed kinds", e, kind)
		}
	}

	return s.publish(func() error {
		for i := range t.Collections {
			c := &t.Collections[i]
			if !hints.batches(c.Name) {
				continue
			}
			b := newPendingBatch(s, c, c.Name, 1, hints)
			s.track(b)
			for _, e := range roots {
				if _, err := b.add(e.Collection(c.Name)); err != nil {
					return err
				}
			}
			if b.Len() == 0 {
				s.untrack(b)
				continue
			}
			s.logger.Debug("registered batch",
				slog.String("path", c.Name),
				slog.Int("keys", b.Len()),
			)
		}
		return nil
	})
}

// Attach adds an entity known to exist without loading it. Attaching a key the session
// already holds is a key collision.
func (s *Session) Attach(kind string, id any, values map[string]any) (*Entity, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	t, ok := s.registry.Type(kind)
	if !ok {
		return nil, fmt.Errorf("%w %s", model.ErrUnknownKind, kind)
	}
	key, ok := KeyOf(id)
	if !ok {
		return nil, fmt.Errorf("%s: nil id", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ident := identity{kind: kind, key: key}
	if existing, exists := s.entities[ident]; exists {
		return nil, fmt.Errorf("%w: %s already in session", ErrKeyCollision, existing)
	}
	e := newEntity(s, t, key, id, values)
	s.entities[ident] = e
	return e, nil
}

// Lookup returns an entity from the identity map.
func (s *Session) Lookup(kind string, id any) (*Entity, bool) {
	key, ok := KeyOf(id)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[identity{kind: kind, key: key}]
	return e, ok
}

// materialize returns the session's entity for a row, creating it on first sight. A row
// that disagrees with the entity already held for its key is a key collision.
func (s *Session) materialize(t *model.EntityType, id any, values map[string]any) (*Entity, error) {
	key, ok := KeyOf(id)
	if !ok {
		return nil, fmt.Errorf("%s row has no %s value", t.Name, t.KeyColumn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ident := identity{kind: t.Name, key: key}
	if existing, exists := s.entities[ident]; exists {
		if !sameColumns(existing.values, values) {
			return nil, fmt.Errorf("%w: %s loaded with conflicting values", ErrKeyCollision, existing)
		}
		return existing, nil
	}
	e := newEntity(s, t, key, id, values)
	s.entities[ident] = e
	return e, nil
}

// track records a batch before any of its members can trigger it.
func (s *Session) track(b *PendingBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
}

// untrack drops a batch once it has resolved or turned out empty.
func (s *Session) untrack(b *PendingBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = slices.DeleteFunc(s.batches, func(p *PendingBatch) bool { return p == b })
}

// publish runs fn unless the session has closed. Close waits for a running publish.
func (s *Session) publish(fn func() error) error {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	return s.closed
}

// Close ends the session. Unresolved collections stay pending and later reads fail.
// Close is idempotent.
func (s *Session) Close() {
	s.lifecycle.Lock()
	if s.closed {
		s.lifecycle.Unlock()
		return
	}
	s.closed = true
	s.lifecycle.Unlock()

	s.mu.Lock()
	batches := append([]*PendingBatch(nil), s.batches...)
	s.mu.Unlock()

	pending := 0
	for _, b := range batches {
		if !b.Resolved() {
			pending++
		}
		b.markClosed()
	}
	if s.metrics != nil {
		s.metrics.SessionClosed(context.Background())
	}
	s.logger.Info("session closed",
		slog.Int("unresolved", pending),
		slog.Int64("executions", s.runner.Invocations()),
	)
}

// Stats returns a snapshot of the session's batch activity.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	pending := len(s.batches)
	s.mu.Unlock()
	return Stats{
		Executions: s.runner.Invocations(),
		SubQueries: s.runner.SubQueries(),
		Waits:      s.waits.Load(),
		CacheHits:  s.cacheHits.Load(),
		Pending:    pending,
	}
}

func (s *Session) recordWait(ctx context.Context, path string) {
	s.waits.Add(1)
	if s.metrics != nil {
		s.metrics.RecordWait(ctx, path)
	}
}

func (s *Session) recordCacheHit(ctx context.Context, path string) {
	s.cacheHits.Add(1)
	if s.metrics != nil {
		s.metrics.RecordCacheHit(ctx, path)
	}
}
