// Package sqlstore implements the batch engine's persistence layer over database/sql.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"batchfetch/internal/batch"
	"batchfetch/internal/dbexec"
	"batchfetch/internal/model"
	"batchfetch/internal/planner"
	"batchfetch/internal/sqlutil"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	mysqlErrDBAccessDenied     = 1044
	mysqlErrTableAccessDenied  = 1142
	mysqlErrColumnAccessDenied = 1143
	mysqlErrNoSuchTable        = 1146

	pgErrInsufficientPrivilege = "42501"
	pgErrUndefinedTable        = "42P01"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrMissingTable = errors.New("table does not exist")
)

// Store loads entities and collection batches with planned SQL.
type Store struct {
	exec    dbexec.QueryExecutor
	dialect sqlutil.Dialect
}

var _ batch.Store = (*Store)(nil)

// New creates a store issuing statements for dialect through exec.
func New(exec dbexec.QueryExecutor, dialect sqlutil.Dialect) *Store {
	return &Store{exec: exec, dialect: dialect}
}

// Dialect returns the SQL dialect statements are planned for.
func (s *Store) Dialect() sqlutil.Dialect { return s.dialect }

// LoadEntities reads the rows of t whose key is one of ids.
func (s *Store) LoadEntities(ctx context.Context, t *model.EntityType, ids []any) ([]map[string]any, error) {
	query, err := planner.PlanEntityLoad(s.dialect, t, ids)
	if err != nil {
		return nil, err
	}
	if query.IsEmpty() {
		return nil, nil
	}
	return s.query(ctx, query, t.SelectColumns())
}

// LoadCollection reads the child rows of c for every owner in ownerIDs. Each row names its
// owner through the projected foreign key.
func (s *Store) LoadCollection(ctx context.Context, c *model.Collection, ownerIDs []any) ([]batch.ResultRow, error) {
	query, err := planner.PlanCollectionBatch(s.dialect, c, ownerIDs)
	if err != nil {
		return nil, err
	}
	if query.IsEmpty() {
		return nil, nil
	}

	columns := append(c.SelectColumns(), planner.BatchOwnerAlias)
	scanned, err := s.query(ctx, query, columns)
	if err != nil {
		return nil, err
	}

	rows := make([]batch.ResultRow, 0, len(scanned))
	for i, values := range scanned {
		owner, ok := batch.KeyOf(values[planner.BatchOwnerAlias])
		if !ok {
			return nil, fmt.Errorf("%s row %d has no owner key", c.Path(), i)
		}
		delete(values, planner.BatchOwnerAlias)

		row := batch.ResultRow{Owner: owner, Values: values}
		if c.KeyColumn != "" {
			row.ID = values[c.KeyColumn]
			key, ok := batch.KeyOf(row.ID)
			if !ok {
				return nil, fmt.Errorf("%s row %d has no %s value", c.Path(), i, c.KeyColumn)
			}
			row.Key = key
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Exec runs a planned statement that returns no rows.
func (s *Store) Exec(ctx context.Context, query planner.SQLQuery) (int64, error) {
	if query.IsEmpty() {
		return 0, nil
	}
	result, err := s.exec.ExecContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return 0, normalizeQueryError(err)
	}
	return result.RowsAffected()
}

func (s *Store) query(ctx context.Context, query planner.SQLQuery, columns []string) ([]map[string]any, error) {
	rows, err := s.exec.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	results, err := scanRows(rows, columns)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	return results, nil
}

func scanRows(rows dbexec.Rows, columns []string) ([]map[string]any, error) {
	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func convertValue(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// normalizeQueryError maps driver errors the caller can act on to package errors,
// keeping the driver error in the chain.
func normalizeQueryError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case mysqlErrNoSuchTable:
			return fmt.Errorf("%w: %w", ErrMissingTable, err)
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrInsufficientPrivilege:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case pgErrUndefinedTable:
			return fmt.Errorf("%w: %w", ErrMissingTable, err)
		}
	}
	return err
}
