package model

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind       = errors.New("unknown entity kind")
	ErrUnknownCollection = errors.New("unknown collection property")
)

// Registry holds the mapped entity kinds by name.
type Registry struct {
	types map[string]*EntityType
	order []string
}

// NewRegistry applies naming defaults to the given kinds and validates the result.
func NewRegistry(types ...EntityType) (*Registry, error) {
	r := &Registry{types: make(map[string]*EntityType, len(types))}
	for i := range types {
		t := types[i]
		if t.Name == "" {
			return nil, fmt.Errorf("entity type %d has no name", i)
		}
		if _, exists := r.types[t.Name]; exists {
			return nil, fmt.Errorf("duplicate entity type %s", t.Name)
		}
		if t.Table == "" {
			t.Table = DefaultTableName(t.Name)
		}
		if t.KeyColumn == "" {
			t.KeyColumn = "id"
		}
		t.Collections = append([]Collection(nil), t.Collections...)
		r.types[t.Name] = &t
		r.order = append(r.order, t.Name)
	}

	// Collections are completed in a second pass so targets can be declared in any order.
	for _, name := range r.order {
		t := r.types[name]
		seen := make(map[string]struct{}, len(t.Collections))
		for i := range t.Collections {
			c := &t.Collections[i]
			if c.Name == "" {
				return nil, fmt.Errorf("%s: collection %d has no name", t.Name, i)
			}
			if _, dup := seen[c.Name]; dup {
				return nil, fmt.Errorf("%s: duplicate collection %s", t.Name, c.Name)
			}
			seen[c.Name] = struct{}{}
			if err := r.completeCollection(t, c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Registry) completeCollection(owner *EntityType, c *Collection) error {
	c.Owner = owner.Name
	if c.ForeignKey == "" {
		c.ForeignKey = DefaultForeignKey(owner.Table, owner.KeyColumn)
	}

	if c.IsElementCollection() {
		if c.Table == "" {
			c.Table = DefaultElementTable(owner.Table, c.Name)
		}
		if c.KeyColumn != "" {
			return fmt.Errorf("%s: element collection cannot declare a key column", c.Path())
		}
		if len(c.ValueColumns) == 0 {
			return fmt.Errorf("%s: element collection requires value columns", c.Path())
		}
		return nil
	}

	target, ok := r.types[c.Target]
	if !ok {
		return fmt.Errorf("%s: %w %s", c.Path(), ErrUnknownKind, c.Target)
	}
	if c.Table == "" {
		c.Table = target.Table
	}
	if c.KeyColumn == "" {
		c.KeyColumn = target.KeyColumn
	}
	if len(c.ValueColumns) == 0 {
		c.ValueColumns = append([]string(nil), target.Columns...)
	}
	return nil
}

// Type returns the kind with the given name.
func (r *Registry) Type(name string) (*EntityType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns the kinds in declaration order.
func (r *Registry) Types() []*EntityType {
	out := make([]*EntityType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// Collection returns a collection property of a kind.
func (r *Registry) Collection(kind, name string) (*Collection, error) {
	t, ok := r.types[kind]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownKind, kind)
	}
	c, ok := t.Collection(name)
	if !ok {
		return nil, fmt.Errorf("%w %s.%s", ErrUnknownCollection, kind, name)
	}
	return c, nil
}

// ResolvePath walks a dotted collection path starting at the root kind and returns
// the collection for each segment, e.g. ("Assessment", "answers.tags").
func (r *Registry) ResolvePath(root, path string) ([]*Collection, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty collection path")
	}
	kind := root
	out := make([]*Collection, 0, len(segments))
	for i, segment := range segments {
		c, err := r.Collection(kind, segment)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		if c.IsElementCollection() && i < len(segments)-1 {
			return nil, fmt.Errorf("path %q: element collection %s cannot nest", path, c.Path())
		}
		out = append(out, c)
		kind = c.Target
	}
	return out, nil
}
