package dbexec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor_NilDB(t *testing.T) {
	exec := NewStandardExecutor(nil)

	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)

	_, err = exec.ExecContext(context.Background(), "DELETE FROM t")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestCountingExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"x"}))

	exec := NewCountingExecutor(NewStandardExecutor(db))
	ctx := context.Background()

	rows, err := exec.QueryContext(ctx, "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	_, err = exec.ExecContext(ctx, "DELETE FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), exec.Queries())

	assert.Equal(t, int64(1), exec.Reset())

	rows, err = exec.QueryContext(ctx, "SELECT 2")
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	assert.Equal(t, int64(1), exec.Queries())

	require.NoError(t, mock.ExpectationsWereMet())
}
