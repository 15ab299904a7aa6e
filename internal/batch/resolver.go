package batch

import (
	"context"
	"fmt"
	"log/slog"

	"batchfetch/internal/model"
)

// Resolver routes the rows of an executed batch to their owners by key and registers the
// next level of batched collections.
type Resolver struct {
	session *Session
}

// Resolve groups rows by owner key and assigns every member its (possibly empty) children.
// Rows owned by keys outside the batch are ignored. Nothing is published when the session
// has closed in the meantime.
func (r *Resolver) Resolve(ctx context.Context, b *PendingBatch, members []*DeferredCollection, rows []ResultRow) error {
	s := r.session
	coll := b.collection
	index := BuildKeyIndex(rows, func(row ResultRow) Key { return row.Owner })

	memberKeys := make(map[Key]struct{}, len(members))
	for _, m := range members {
		memberKeys[m.owner.key] = struct{}{}
	}
	for _, key := range index.Keys() {
		if _, ok := memberKeys[key]; !ok {
			s.logger.Debug("ignoring rows for owner outside batch",
				slog.String("path", coll.Path()),
				slog.String("owner", key.String()),
				slog.Int("rows", len(index.Lookup(key))),
			)
		}
	}

	var target *model.EntityType
	if !coll.IsElementCollection() {
		t, ok := s.registry.Type(coll.Target)
		if !ok {
			return fmt.Errorf("%w %s", model.ErrUnknownKind, coll.Target)
		}
		target = t
	}

	resolved := make(map[Key][]*Entity, len(members))
	for _, m := range members {
		owned := index.Lookup(m.owner.key)
		children := make([]*Entity, 0, len(owned))
		if target == nil {
			for _, row := range owned {
				children = append(children, newElement(coll, row.Values))
			}
			resolved[m.owner.key] = children
			continue
		}

		seen := make(map[Key]struct{}, len(owned))
		for _, row := range owned {
			child, err := s.materialize(target, row.ID, row.Values)
			if err != nil {
				return fmt.Errorf("resolve %s for %s: %w", coll.Path(), m.owner, err)
			}
			if _, dup := seen[child.key]; dup {
				continue
			}
			seen[child.key] = struct{}{}
			children = append(children, child)
		}
		resolved[m.owner.key] = children
	}

	return s.publish(func() error {
		for _, m := range members {
			m.resolve(resolved[m.owner.key])
		}
		return r.registerNext(b, members, resolved, target)
	})
}

// registerNext creates the PendingBatch of every hinted child collection one level down.
// The children stay unloaded until one of them is read.
func (r *Resolver) registerNext(b *PendingBatch, members []*DeferredCollection, resolved map[Key][]*Entity, target *model.EntityType) error {
	s := r.session
	if target == nil || b.depth == 0 || b.depth+1 > s.maxDepth {
		return nil
	}
	for i := range target.Collections {
		child := &target.Collections[i]
		path := b.path + "." + child.Name
		if !b.hints.batches(path) {
			continue
		}
		next := newPendingBatch(s, child, path, b.depth+1, b.hints)
		s.track(next)
		for _, m := range members {
			for _, e := range resolved[m.owner.key] {
				if _, err := next.add(e.Collection(child.Name)); err != nil {
					return err
				}
			}
		}
		if next.Len() == 0 {
			s.untrack(next)
			continue
		}
		s.logger.Debug("registered nested batch",
			slog.String("path", path),
			slog.Int("depth", next.depth),
			slog.Int("keys", next.Len()),
		)
	}
	return nil
}
