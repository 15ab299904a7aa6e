package batch

// ResultRow is one row returned by a collection batch query.
type ResultRow struct {
	// Owner is the key of the entity owning the collection the row belongs to.
	Owner Key
	// Key and ID identify the child; both are empty for element collections.
	Key    Key
	ID     any
	Values map[string]any
}

// KeyIndex groups result rows by key. Lookups never fail: a key with no rows maps to an
// empty sequence.
type KeyIndex struct {
	groups map[Key][]ResultRow
	keys   []Key
}

// BuildKeyIndex groups rows by keyFn, preserving arrival order within each key.
func BuildKeyIndex(rows []ResultRow, keyFn func(ResultRow) Key) *KeyIndex {
	idx := &KeyIndex{groups: make(map[Key][]ResultRow)}
	for _, row := range rows {
		k := keyFn(row)
		if _, seen := idx.groups[k]; !seen {
			idx.keys = append(idx.keys, k)
		}
		idx.groups[k] = append(idx.groups[k], row)
	}
	return idx
}

// Lookup returns the rows grouped under key, or an empty slice.
func (idx *KeyIndex) Lookup(key Key) []ResultRow {
	rows, ok := idx.groups[key]
	if !ok {
		return []ResultRow{}
	}
	return rows
}

// Keys returns the distinct keys in first-seen order.
func (idx *KeyIndex) Keys() []Key {
	return append([]Key(nil), idx.keys...)
}

// Len returns the number of distinct keys.
func (idx *KeyIndex) Len() int {
	return len(idx.keys)
}
