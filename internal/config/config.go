// Package config loads process configuration from the environment and
// optional dotenv files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Prefix is prepended to every variable name.
const Prefix = "INTERACTIONDB_"

// DefaultEnvFiles are loaded when present, earlier files winning.
var DefaultEnvFiles = []string{".env", ".env.local"}

// StorageOptions selects the persistent store.
type StorageOptions struct {
	Driver      string        `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"interactiondb.db"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
	StaleAfter  time.Duration `env:"STALE_AFTER" envDefault:"1h"`
}

// DecisionOptions selects where resolution decisions are cached.
type DecisionOptions struct {
	Driver   string `env:"DECISIONS_DRIVER" envDefault:"store"`
	RedisURL string `env:"REDIS_URL"`
}

// BlobOptions selects the document store holding rule files and exports.
type BlobOptions struct {
	Driver      string `env:"BLOB_DRIVER" envDefault:"fs"`
	FSRoot      string `env:"BLOB_FS_ROOT" envDefault:"./blobdata"`
	S3Bucket    string `env:"BLOB_S3_BUCKET"`
	S3Region    string `env:"BLOB_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `env:"BLOB_S3_PATH_STYLE" envDefault:"false"`
}

// ResolverOptions tunes conflict resolution.
type ResolverOptions struct {
	RulesKey       string        `env:"RULES_KEY" envDefault:"urn_rules.xml"`
	SymmetricDeny  bool          `env:"SYMMETRIC_DENY" envDefault:"false"`
	MaxEscalations int           `env:"MAX_ESCALATIONS" envDefault:"3"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	OpenViewer     bool          `env:"OPEN_VIEWER" envDefault:"false"`
	ViewerCommand  string        `env:"VIEWER_COMMAND" envDefault:"xdg-open"`
}

// Config is the full process configuration.
type Config struct {
	Storage   StorageOptions
	Decisions DecisionOptions
	Blob      BlobOptions
	Resolver  ResolverOptions

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LoadEnv loads the dotenv files that exist and reports how many did.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if st, err := os.Stat(f); err == nil && !st.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads DefaultEnvFiles then parses the environment.
func Load() (Config, error) {
	if _, err := LoadEnv(DefaultEnvFiles); err != nil {
		return Config{}, errors.Wrap(err, "load env files")
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects unknown drivers and incomplete driver settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New(Prefix + "POSTGRES_DSN required for postgres storage")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Decisions.Driver) {
	case "store":
	case "redis":
		if c.Decisions.RedisURL == "" {
			return errors.New(Prefix + "REDIS_URL required for redis decisions")
		}
	default:
		return errors.Errorf("unknown decisions driver %q", c.Decisions.Driver)
	}
	switch strings.ToLower(c.Blob.Driver) {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return errors.New(Prefix + "BLOB_S3_BUCKET required for s3 blob driver")
		}
	default:
		return errors.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Resolver.MaxEscalations < 1 {
		return errors.Errorf("max escalations must be positive, got %d", c.Resolver.MaxEscalations)
	}
	return nil
}
