// Package config assembles the embedder's process configuration: storage
// backend selection, queue sizing, encryption key material, and
// observability toggles. Values come from environment variables via
// internal/env; anything left unset falls back to the defaults below, since
// internal/env itself only loads zero values and leaves defaulting to its
// caller.
package config

import (
	"encoding/hex"
	"fmt"

	"github.com/fileforge/fileforge/internal/env"
)

// Config holds the file-processing core's process configuration.
type Config struct {
	Env string `env:"FILEFORGE_ENV"` // dev, prod

	// Storage backend selection.
	StorageType string `env:"FILEFORGE_STORAGE_TYPE"` // fs, gcs, s3
	FSDir       string `env:"FILEFORGE_FS_DIR"`
	GCSBucket   string `env:"FILEFORGE_GCS_BUCKET"`
	S3Bucket    string `env:"FILEFORGE_S3_BUCKET"`
	S3Region    string `env:"FILEFORGE_S3_REGION"`

	// Processing queue sizing (see internal/fileproc.Orchestrator).
	ProcessingConcurrency int `env:"FILEFORGE_PROCESSING_CONCURRENCY"`
	ProcessingMaxJobs     int `env:"FILEFORGE_PROCESSING_MAX_JOBS"`

	// Batch policy defaults (see internal/batch.Coordinator).
	BatchDefaultMaxConcurrency int   `env:"FILEFORGE_BATCH_MAX_CONCURRENCY"`
	DefaultQuotaBytes          int64 `env:"FILEFORGE_DEFAULT_QUOTA_BYTES"`

	// EncryptionKeyHex is a 32-byte AES-256 key, hex-encoded, used by
	// internal/cryptutil to encrypt buffers at rest. Authentication/session
	// tokens are handled upstream of this service; JWTSecret is kept here
	// only because the embedder's HTTP layer needs it from the same
	// configuration surface the core loads.
	EncryptionKeyHex string `env:"FILEFORGE_ENCRYPTION_KEY"`
	JWTSecret        string `env:"FILEFORGE_JWT_SECRET"`

	// DB, when its DSN is set, backs internal/repository/sql instead of the
	// in-memory repository defaults.
	DB DatabaseConfig

	// OTelEnabled defaults to off since internal/env has no bool "default"
	// tag to distinguish unset-false from explicit-false; set
	// FILEFORGE_OTEL_ENABLED=true to turn on the OTLP exporters.
	OTelEnabled   bool   `env:"FILEFORGE_OTEL_ENABLED"`
	OTelCollector string `env:"FILEFORGE_OTEL_COLLECTOR"`
}

// Load parses environment variables into a Config, applies defaults for
// anything left unset, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.StorageType == "" {
		c.StorageType = "fs"
	}
	if c.FSDir == "" {
		c.FSDir = "./fileforge-data"
	}
	if c.ProcessingConcurrency <= 0 {
		c.ProcessingConcurrency = 3
	}
	if c.ProcessingMaxJobs <= 0 {
		c.ProcessingMaxJobs = 500
	}
	if c.BatchDefaultMaxConcurrency <= 0 {
		c.BatchDefaultMaxConcurrency = 3
	}
	if c.DefaultQuotaBytes <= 0 {
		c.DefaultQuotaBytes = 5 * 1024 * 1024 * 1024
	}
	if c.OTelCollector == "" {
		c.OTelCollector = "localhost:4317"
	}
}

// EncryptionKey decodes EncryptionKeyHex to its raw 32-byte form.
func (c *Config) EncryptionKey() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("FILEFORGE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("FILEFORGE_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *Config) validate() error {
	switch c.StorageType {
	case "fs":
		if c.FSDir == "" {
			return fmt.Errorf("FILEFORGE_FS_DIR is required when FILEFORGE_STORAGE_TYPE is 'fs'")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("FILEFORGE_GCS_BUCKET is required when FILEFORGE_STORAGE_TYPE is 'gcs'")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("FILEFORGE_S3_BUCKET is required when FILEFORGE_STORAGE_TYPE is 's3'")
		}
	default:
		return fmt.Errorf("unknown FILEFORGE_STORAGE_TYPE: %s", c.StorageType)
	}
	return nil
}
