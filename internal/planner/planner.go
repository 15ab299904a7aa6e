// Package planner builds the parameterized SQL statements issued by the batch engine.
// Only batched key lookups are planned here: the owning-entity load and the grouped
// collection fetch that returns child rows for many owners at once.
package planner

import (
	"fmt"

	"batchfetch/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// BatchOwnerAlias is the column alias carrying the owning key of each collection row.
const BatchOwnerAlias = "__batch_owner"

// SQLQuery is a planned statement with its bound arguments.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// IsEmpty reports whether planning produced no statement (no keys to look up).
func (q SQLQuery) IsEmpty() bool {
	return q.SQL == ""
}

func placeholderFormat(d sqlutil.Dialect) sq.PlaceholderFormat {
	if d == sqlutil.DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

func quotedColumnNames(d sqlutil.Dialect, columns []string) []string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.QuoteIdentifier(col)
	}
	return quoted
}

func toSQL(builder sq.Sqlizer) (SQLQuery, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("failed to build SQL: %w", err)
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
