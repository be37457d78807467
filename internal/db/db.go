// Package db opens sqlite databases through sqlx. The driver is chosen at
// build time, see db_sqlite3_default.go and db_sqlite3_cgo.go.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/drivesync/drivesync/internal/utils"
)

// SQLite pragmas for the manifest.
// synchronous=FULL: a committed manifest row must survive a crash.
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=FULL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

// Pragmas for read only connections. journal_mode can't be changed without
// write access, so it is left as stored in the file.
const readOnlyPragma = `
PRAGMA busy_timeout=5000;
PRAGMA query_only=ON;
PRAGMA temp_store=MEMORY;
`

// config holds internal configuration for DB creation
type config struct {
	path            string
	pragmas         string
	readOnly        bool
	maxOpenConns    int
	connMaxLifetime time.Duration
}

// SqliteOption defines a function that configures the DB
type SqliteOption func(*config)

// WithPath sets the path for the SQLite database
// Use ":memory:" for an in-memory database, which is also the default.
func WithPath(path string) SqliteOption {
	return func(c *config) {
		c.path = path
	}
}

// WithPragmas sets custom pragmas for the SQLite connection
// This replaces the default pragmas
func WithPragmas(pragmas string) SqliteOption {
	return func(c *config) {
		c.pragmas = pragmas
	}
}

// WithReadOnly opens an existing database file without write access.
// The file is never created, and neither is its parent directory.
func WithReadOnly() SqliteOption {
	return func(c *config) {
		c.readOnly = true
		c.pragmas = readOnlyPragma
	}
}

// WithMaxOpenConns sets the maximum number of open connections
// Use 1 for a single writer; in-memory databases need it to share state.
func WithMaxOpenConns(n int) SqliteOption {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

// WithConnMaxLifetime sets the maximum amount of time a connection may be reused
func WithConnMaxLifetime(d time.Duration) SqliteOption {
	return func(c *config) {
		c.connMaxLifetime = d
	}
}

// dsn builds the connection string for cfg.
func (c *config) dsn() (string, error) {
	switch {
	case c.path == ":memory:":
		return ":memory:", nil
	case c.readOnly:
		if !utils.FileExists(c.path) {
			return "", fmt.Errorf("database %s does not exist", c.path)
		}
		return fmt.Sprintf("file:%s?mode=ro", c.path), nil
	default:
		if err := utils.EnsureParent(c.path); err != nil {
			return "", fmt.Errorf("ensure parent directory: %w", err)
		}
		return fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", c.path), nil
	}
}

// NewSqliteDB creates a new SQLite database connection with the given options
func NewSqliteDB(opts ...SqliteOption) (*sqlx.DB, error) {
	cfg := &config{
		path:    ":memory:",
		pragmas: defaultPragma,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}

	slog.Debug("db open", "driver", driverID, "path", cfg.path, "readOnly", cfg.readOnly)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}

	// Apply pragmas
	if _, err := db.Exec(cfg.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return db, nil
}
