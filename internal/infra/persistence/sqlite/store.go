// Package sqlite provides the SQLite backend of the reaction-network store
// using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"interactiondb/internal/infra/persistence/sqlstore"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "interactiondb.db"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect describes SQLite to the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite3",
	Driver:            "sqlite",
	Migrations:        migrationsFS,
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// Option tunes NewStore.
type Option func(*sqlstore.Options)

// WithStaleAfter overrides the idle period after which the connection is recycled.
func WithStaleAfter(d time.Duration) Option {
	return func(o *sqlstore.Options) { o.StaleAfter = d }
}

// WithLogger attaches a logger to the connection lifecycle.
func WithLogger(l zerolog.Logger) Option {
	return func(o *sqlstore.Options) { o.Logger = l }
}

// NewStore opens (creating if needed) the database file at path and applies
// pending migrations.
func NewStore(ctx context.Context, path string, opts ...Option) (*sqlstore.Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}
	o := sqlstore.Options{Configure: configure}
	for _, opt := range opts {
		opt(&o)
	}
	store, err := sqlstore.Open(ctx, Dialect, dsn(path), o)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	return store, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// A single writer avoids SQLITE_BUSY between pooled connections.
func configure(db *sql.DB) {
	db.SetMaxOpenConns(1)
}
