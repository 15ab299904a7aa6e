package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"batchfetch/internal/sqlutil"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	DriverMySQL = "mysql"
	DriverPgx   = "pgx"

	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

// DriverName returns the database/sql driver name to open.
func (d *DatabaseConfig) DriverName() string {
	if strings.EqualFold(strings.TrimSpace(d.Driver), DriverPgx) {
		return DriverPgx
	}
	return DriverMySQL
}

// Dialect returns the SQL dialect spoken by the configured driver.
func (d *DatabaseConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.DialectForDriver(d.Driver)
}

// EffectivePort returns the configured port, falling back to the driver default.
func (d *DatabaseConfig) EffectivePort() int {
	if d.Port > 0 {
		return d.Port
	}
	if d.DriverName() == DriverPgx {
		return defaultPostgresPort
	}
	return defaultMySQLPort
}

// DSN returns a data source name for the configured driver.
// If ConnectionString is set it wins over the discrete fields.
func (d *DatabaseConfig) DSN() string {
	if d.DriverName() == DriverPgx {
		return d.postgresDSN()
	}
	return d.mysqlDSN()
}

func (d *DatabaseConfig) mysqlDSN() string {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			// Validate reports the parse error; hand the raw string to the driver.
			return dsn
		}
		parsed.ParseTime = true
		return parsed.FormatDSN()
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort()))
	cfg.DBName = d.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

func (d *DatabaseConfig) postgresDSN() string {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		return dsn
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort())),
		Path:   "/" + d.Database,
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}
	return u.String()
}

// DatabaseName returns the database the DSN targets, preferring the DSN over
// the discrete field.
func (d *DatabaseConfig) DatabaseName() (string, error) {
	dsn := strings.TrimSpace(d.ConnectionString)
	if dsn == "" {
		return strings.TrimSpace(d.Database), nil
	}
	if d.DriverName() == DriverPgx {
		parsed, err := pgconn.ParseConfig(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		return parsed.Database, nil
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}
