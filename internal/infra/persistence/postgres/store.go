// Package postgres provides the PostgreSQL backend of the reaction-network
// store using pgx through database/sql.
package postgres

import (
	"context"
	"embed"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/internal/infra/persistence/sqlstore"
)

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "postgres://localhost/interactiondb?sslmode=disable"

const uniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect describes PostgreSQL to the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Driver:            "pgx",
	Numbered:          true,
	Migrations:        migrationsFS,
	IsUniqueViolation: isUniqueViolation,
	IsTransient:       isTransient,
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Class 08 is "connection exception"; SafeToRetry marks failures before the
// statement reached the server.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
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

// NewStore connects to dsn and applies pending migrations.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	var o sqlstore.Options
	for _, opt := range opts {
		opt(&o)
	}
	store, err := sqlstore.Open(ctx, Dialect, dsn, o)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return store, nil
}
