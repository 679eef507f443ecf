package blob

import (
	"context"

	"github.com/pkg/errors"

	"interactiondb/internal/infra/blob/fs"
	"interactiondb/internal/infra/blob/memory"
	"interactiondb/internal/infra/blob/s3"
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     s3.Config
}

// Open constructs the configured store. An empty driver selects the
// filesystem backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, errors.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
