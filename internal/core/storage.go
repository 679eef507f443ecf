package core

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/internal/blob"
	"interactiondb/internal/config"
	"interactiondb/internal/infra/blob/s3"
	"interactiondb/internal/infra/decisions/redis"
	"interactiondb/internal/infra/persistence/memory"
	"interactiondb/internal/infra/persistence/postgres"
	"interactiondb/internal/infra/persistence/sqlite"
	"interactiondb/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore opens the configured store and applies migrations.
func OpenPersistentStore(ctx context.Context, opts config.StorageOptions, logger zerolog.Logger) (domain.PersistentStore, error) {
	driver := StorageDriver(strings.ToLower(opts.Driver))
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, opts.SQLitePath,
			sqlite.WithStaleAfter(opts.StaleAfter), sqlite.WithLogger(logger))
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN,
			postgres.WithStaleAfter(opts.StaleAfter), postgres.WithLogger(logger))
	default:
		return nil, errors.Errorf("unknown storage driver %s", opts.Driver)
	}
}

// OpenDecisionStore returns the decision store selected by opts. The
// "store" driver keeps decisions in primary. The returned closer may be nil.
func OpenDecisionStore(ctx context.Context, opts config.DecisionOptions, primary domain.DecisionStore) (domain.DecisionStore, io.Closer, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "store":
		return primary, nil, nil
	case "redis":
		store, client, err := redis.Open(ctx, opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, client, nil
	default:
		return nil, nil, errors.Errorf("unknown decisions driver %s", opts.Driver)
	}
}

// OpenBlobStore opens the document store holding rules and exports.
func OpenBlobStore(ctx context.Context, opts config.BlobOptions) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(strings.ToLower(opts.Driver)),
		FSRoot: opts.FSRoot,
		S3: s3.Config{
			Bucket:    opts.S3Bucket,
			Region:    opts.S3Region,
			Endpoint:  opts.S3Endpoint,
			PathStyle: opts.S3PathStyle,
		},
	})
}
