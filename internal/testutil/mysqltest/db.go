// Package mysqltest provisions throwaway MySQL-compatible databases for integration tests.
package mysqltest

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNEnv names the variable holding the server DSN. Its database part is ignored.
const DSNEnv = "BATCHFETCH_TEST_MYSQL_DSN"

// TestDB is an isolated database created for one test.
type TestDB struct {
	DB           *sql.DB
	DatabaseName string
	DSN          string
}

// New creates a uniquely named database on the server in BATCHFETCH_TEST_MYSQL_DSN and
// drops it when the test finishes. The test is skipped when the variable is unset.
func New(t *testing.T) *TestDB {
	t.Helper()

	raw := os.Getenv(DSNEnv)
	if raw == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	base, err := mysql.ParseDSN(raw)
	if err != nil {
		t.Fatalf("invalid %s: %v", DSNEnv, err)
	}
	base.ParseTime = true

	dbName := fmt.Sprintf("test_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())
	if !isValidDatabaseName(dbName) {
		t.Fatalf("invalid database name generated: %s", dbName)
	}

	admin := base.Clone()
	admin.DBName = ""
	bootstrap, err := sql.Open("mysql", admin.FormatDSN())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer closeDB(t, bootstrap)

	if _, err := bootstrap.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); err != nil {
		t.Fatalf("failed to create test database %s: %v", dbName, err)
	}

	scoped := base.Clone()
	scoped.DBName = dbName
	dsn := scoped.FormatDSN()
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		closeDB(t, db)
		t.Fatalf("failed to ping test database: %v", err)
	}

	tdb := &TestDB{DB: db, DatabaseName: dbName, DSN: dsn}
	t.Cleanup(func() { tdb.Teardown(t) })
	return tdb
}

// Teardown drops the database and closes the connection.
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if tdb.DB == nil {
		return
	}
	if isValidDatabaseName(tdb.DatabaseName) {
		if _, err := tdb.DB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", tdb.DatabaseName)); err != nil {
			t.Logf("warning: failed to drop test database %s: %v", tdb.DatabaseName, err)
		}
	}
	closeDB(t, tdb.DB)
	tdb.DB = nil
}

func closeDB(t *testing.T, db *sql.DB) {
	if err := db.Close(); err != nil {
		t.Logf("warning: failed to close database connection: %v", err)
	}
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, ch := range name {
		if isAlphanumeric(ch) {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	// Leave room for the timestamp within MySQL's 64 character limit.
	return truncate(b.String(), 40)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func isValidDatabaseName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, ch := range name {
		if !isAlphanumeric(ch) && ch != '_' {
			return false
		}
	}
	return true
}

func isAlphanumeric(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
