package planner

import (
	"fmt"

	"batchfetch/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// PlanInsertRows builds a multi-row INSERT used to load demo fixtures.
func PlanInsertRows(d sqlutil.Dialect, table string, columns []string, rows [][]interface{}) (SQLQuery, error) {
	if len(rows) == 0 {
		return SQLQuery{}, nil
	}
	builder := sq.Insert(d.QuoteIdentifier(table)).Columns(quotedColumnNames(d, columns)...)
	for i, row := range rows {
		if len(row) != len(columns) {
			return SQLQuery{}, fmt.Errorf("fixture row %d has %d values, want %d", i, len(row), len(columns))
		}
		builder = builder.Values(row...)
	}
	return toSQL(builder.PlaceholderFormat(placeholderFormat(d)))
}

// PlanDeleteAll builds an unconditional DELETE used to reset demo fixtures.
func PlanDeleteAll(d sqlutil.Dialect, table string) (SQLQuery, error) {
	return toSQL(sq.Delete(d.QuoteIdentifier(table)).PlaceholderFormat(placeholderFormat(d)))
}
