package batch

import (
	"fmt"
	"maps"
	"reflect"

	"batchfetch/internal/model"
)

// Entity is a materialized row of a mapped kind. Entities of element collections carry no
// key and no collections.
type Entity struct {
	kind        string
	key         Key
	id          any
	values      map[string]any
	collections map[string]*DeferredCollection
}

func newEntity(s *Session, t *model.EntityType, key Key, id any, values map[string]any) *Entity {
	e := &Entity{
		kind:   t.Name,
		key:    key,
		id:     id,
		values: maps.Clone(values),
	}
	if len(t.Collections) > 0 {
		e.collections = make(map[string]*DeferredCollection, len(t.Collections))
		for i := range t.Collections {
			c := &t.Collections[i]
			e.collections[c.Name] = newDeferredCollection(s, e, c)
		}
	}
	return e
}

func newElement(c *model.Collection, values map[string]any) *Entity {
	return &Entity{kind: c.Path(), values: maps.Clone(values)}
}

func (e *Entity) Kind() string { return e.kind }

func (e *Entity) Key() Key { return e.key }

// ID returns the identity value as loaded, before normalization.
func (e *Entity) ID() any { return e.id }

// HasKey reports whether the entity has an identity (false for element collection values).
func (e *Entity) HasKey() bool { return e.key != "" }

// Value returns one column value.
func (e *Entity) Value(column string) any {
	return e.values[column]
}

// Values returns a copy of the column values.
func (e *Entity) Values() map[string]any {
	return maps.Clone(e.values)
}

// Collection returns the deferred collection for a mapped property, or nil.
func (e *Entity) Collection(name string) *DeferredCollection {
	return e.collections[name]
}

func (e *Entity) String() string {
	if !e.HasKey() {
		return fmt.Sprintf("%s%v", e.kind, e.values)
	}
	return fmt.Sprintf("%s[%s]", e.kind, e.key)
}

// sameColumns reports whether two value sets agree on every column they share.
func sameColumns(a, b map[string]any) bool {
	for col, av := range a {
		bv, ok := b[col]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
