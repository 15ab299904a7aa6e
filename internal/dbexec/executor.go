// Package dbexec provides the database execution abstraction used by the SQL store.
package dbexec

import (
	"context"
	"database/sql"
	"sync/atomic"
)

// Rows abstracts sql.Rows so tests and wrappers can supply their own cursors.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can swap in wrapped behavior.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor executes statements directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs statements directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// CountingExecutor counts the read statements issued through an executor.
// The demo harness uses it to report how many round trips each round cost.
type CountingExecutor struct {
	next    QueryExecutor
	queries atomic.Int64
}

// NewCountingExecutor wraps next with a query counter.
func NewCountingExecutor(next QueryExecutor) *CountingExecutor {
	return &CountingExecutor{next: next}
}

func (e *CountingExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	e.queries.Add(1)
	return e.next.QueryContext(ctx, query, args...)
}

func (e *CountingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return e.next.ExecContext(ctx, query, args...)
}

// Queries returns the number of queries issued so far.
func (e *CountingExecutor) Queries() int64 {
	return e.queries.Load()
}

// Reset zeroes the counter and returns the previous value.
func (e *CountingExecutor) Reset() int64 {
	return e.queries.Swap(0)
}
