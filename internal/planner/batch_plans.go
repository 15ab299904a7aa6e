package planner

import (
	"fmt"

	"batchfetch/internal/model"
	"batchfetch/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// PlanEntityLoad builds the lookup of owning entities by key:
// SELECT key, cols FROM table WHERE key IN (...) ORDER BY key.
func PlanEntityLoad(d sqlutil.Dialect, t *model.EntityType, keys []interface{}) (SQLQuery, error) {
	if len(keys) == 0 {
		return SQLQuery{}, nil
	}
	if t.KeyColumn == "" {
		return SQLQuery{}, fmt.Errorf("entity load for %s requires a key column", t.Name)
	}
	key := d.QuoteIdentifier(t.KeyColumn)
	builder := sq.Select(quotedColumnNames(d, t.SelectColumns())...).
		From(d.QuoteIdentifier(t.Table)).
		Where(sq.Eq{key: keys}).
		OrderBy(key).
		PlaceholderFormat(placeholderFormat(d))
	return toSQL(builder)
}

// PlanCollectionBatch builds the grouped fetch of a collection for many owners. The
// foreign key is projected as BatchOwnerAlias so every row names its owner explicitly;
// rows are ordered by owner and then by the collection ordering (or the child key).
func PlanCollectionBatch(d sqlutil.Dialect, c *model.Collection, ownerKeys []interface{}) (SQLQuery, error) {
	if len(ownerKeys) == 0 {
		return SQLQuery{}, nil
	}
	if c.ForeignKey == "" {
		return SQLQuery{}, fmt.Errorf("collection batch for %s requires a foreign key", c.Path())
	}
	columns := c.SelectColumns()
	if len(columns) == 0 {
		return SQLQuery{}, fmt.Errorf("collection batch for %s selects no columns", c.Path())
	}

	fk := d.QuoteIdentifier(c.ForeignKey)
	orderBy := []string{fk}
	switch {
	case len(c.OrderBy) > 0:
		orderBy = append(orderBy, quotedColumnNames(d, c.OrderBy)...)
	case c.KeyColumn != "":
		orderBy = append(orderBy, d.QuoteIdentifier(c.KeyColumn))
	}

	builder := sq.Select(quotedColumnNames(d, columns)...).
		Column(fmt.Sprintf("%s AS %s", fk, BatchOwnerAlias)).
		From(d.QuoteIdentifier(c.Table)).
		Where(sq.Eq{fk: ownerKeys}).
		OrderBy(orderBy...).
		PlaceholderFormat(placeholderFormat(d))
	return toSQL(builder)
}
