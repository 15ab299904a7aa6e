package batch

import (
	"context"
	"sync"

	"batchfetch/internal/model"
)

// CollectionState is the lifecycle state of a deferred collection.
type CollectionState int

const (
	Unloaded CollectionState = iota
	BatchPending
	Resolved
)

func (s CollectionState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case BatchPending:
		return "batch_pending"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// DeferredCollection is the lazily resolved value of one collection property of one entity.
// Reading it resolves the whole PendingBatch it belongs to.
type DeferredCollection struct {
	session *Session
	owner   *Entity
	prop    *model.Collection

	mu       sync.Mutex
	state    CollectionState
	batch    *PendingBatch
	entities []*Entity
}

func newDeferredCollection(s *Session, owner *Entity, prop *model.Collection) *DeferredCollection {
	return &DeferredCollection{session: s, owner: owner, prop: prop}
}

// Owner returns the entity the collection belongs to.
func (c *DeferredCollection) Owner() *Entity { return c.owner }

// Property returns the mapped collection property.
func (c *DeferredCollection) Property() *model.Collection { return c.prop }

// State returns the current lifecycle state.
func (c *DeferredCollection) State() CollectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entities resolves the collection if needed and returns a copy of its elements.
func (c *DeferredCollection) Entities(ctx context.Context) ([]*Entity, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Entity(nil), c.entities...), nil
}

// Len resolves the collection if needed and returns its size.
func (c *DeferredCollection) Len(ctx context.Context) (int, error) {
	if err := c.ensure(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entities), nil
}

// Each resolves the collection if needed and calls fn for every element until fn returns an error.
func (c *DeferredCollection) Each(ctx context.Context, fn func(*Entity) error) error {
	entities, err := c.Entities(ctx)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (c *DeferredCollection) ensure(ctx context.Context) error {
	s := c.session
	if s.Closed() {
		return ErrSessionClosed
	}

	c.mu.Lock()
	if c.state == Resolved {
		c.mu.Unlock()
		s.recordCacheHit(ctx, c.prop.Path())
		return nil
	}
	b := c.batch
	if b == nil {
		// Not part of any hinted batch: resolve this collection on its own.
		b = newPendingBatch(s, c.prop, c.prop.Name, 0, Hints{})
		b.members[c.owner.key] = c
		b.order = append(b.order, c.owner.key)
		s.track(b)
		c.batch = b
		c.mu.Unlock()
	} else {
		c.mu.Unlock()
	}

	return b.load(ctx)
}

func (c *DeferredCollection) join(b *PendingBatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Unloaded || c.batch != nil {
		return false
	}
	c.batch = b
	return true
}

func (c *DeferredCollection) markPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Resolved {
		c.state = BatchPending
	}
}

func (c *DeferredCollection) resolve(entities []*Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = entities
	c.state = Resolved
	c.batch = nil
}
