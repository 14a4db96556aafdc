// Package db opens the application database through sqlx. Postgres is served by pgx's database/sql
// driver, SQLite by modernc.org/sqlite.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	pgxDriverName    = "pgx"
	sqliteDriverName = "sqlite"
)

func init() {
	// Queries are written with ? placeholders and rebound per driver.
	sqlx.BindDriver(pgxDriverName, sqlx.DOLLAR)
	sqlx.BindDriver(sqliteDriverName, sqlx.QUESTION)
}

// Open connects to the database for driver ("postgres" or "sqlite") and pings it.
// For sqlite, dsn is a file path (or ":memory:"). Caller must call Close when done.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: DATABASE_URL is not set")
	}
	var (
		conn *sqlx.DB
		err  error
	)
	switch driver {
	case DriverPostgres:
		conn, err = sqlx.Open(pgxDriverName, dsn)
	case DriverSQLite:
		conn, err = sqlx.Open(sqliteDriverName, SQLiteDSN(dsn))
		if err == nil {
			// One writer at a time; busy_timeout covers the rest.
			conn.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// SQLiteDSN adds the pragmas the stores rely on to a SQLite file path: a busy timeout, foreign keys,
// and the textual time format that keeps UTC timestamps comparable in SQL.
func SQLiteDSN(path string) string {
	if strings.HasPrefix(path, "file:") && strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}
