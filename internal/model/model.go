// Package model describes the mapped entity kinds and their collection properties.
// It is the contract the batch engine needs from the entity model: an identity key
// column per kind and, for every collection property, the table and foreign key that
// tie child rows back to their owner.
package model

import "strings"

// EntityType describes one mapped entity kind.
type EntityType struct {
	Name      string
	Table     string
	KeyColumn string
	// Columns lists the non-key columns loaded for the kind.
	Columns     []string
	Collections []Collection
}

// SelectColumns returns the key column followed by the data columns.
func (t *EntityType) SelectColumns() []string {
	return withKeyColumn(t.KeyColumn, t.Columns)
}

// Collection returns the named collection property of the kind.
func (t *EntityType) Collection(name string) (*Collection, bool) {
	for i := range t.Collections {
		if t.Collections[i].Name == name {
			return &t.Collections[i], true
		}
	}
	return nil, false
}

// Collection describes a one-to-many collection property.
// When Target is empty the collection holds plain values (an element collection)
// read from ValueColumns; elements carry no identity and cannot nest further.
type Collection struct {
	Name   string
	Owner  string
	Target string
	// Table holds the child rows; defaults to the target table or "<owner table>_<name>".
	Table string
	// ForeignKey is the column in Table referencing the owner's key column.
	ForeignKey string
	// KeyColumn is the child's identity column; empty for element collections.
	KeyColumn    string
	ValueColumns []string
	OrderBy      []string
}

// IsElementCollection reports whether the collection holds keyless values.
func (c *Collection) IsElementCollection() bool {
	return c.Target == ""
}

// Path returns the qualified property path, e.g. "Assessment.answers".
func (c *Collection) Path() string {
	return c.Owner + "." + c.Name
}

// SelectColumns returns the child columns read by a batch query.
func (c *Collection) SelectColumns() []string {
	return withKeyColumn(c.KeyColumn, c.ValueColumns)
}

func withKeyColumn(key string, columns []string) []string {
	out := make([]string, 0, len(columns)+1)
	if key != "" {
		out = append(out, key)
	}
	for _, col := range columns {
		if col == key {
			continue
		}
		out = append(out, col)
	}
	return out
}

// SplitPath splits a dotted property path into its segments, dropping empty ones.
func SplitPath(path string) []string {
	raw := strings.Split(strings.TrimSpace(path), ".")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
