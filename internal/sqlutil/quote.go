// Package sqlutil provides SQL dialect helpers shared by the planner and the demo schema setup.
package sqlutil

import (
	"fmt"
	"strings"
)

// Dialect identifies the SQL flavour spoken by the configured driver.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql":
		return DialectMySQL, nil
	case "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (use mysql or pgx)", driver)
	}
}

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// for the dialect, escaping any embedded quote characters.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == DialectPostgres {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return QuoteIdentifier(name)
}

// QuoteIdentifier quotes a SQL identifier with backticks and escapes any
// backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}
