// Package app is the composition root for embedders of the file-processing
// core: given a loaded internal/config.Config it selects a storage backend,
// selects in-memory or SQL-backed repositories, wires the queue registry,
// the file-processing orchestrator, and the batch coordinator, and hands the
// result back as one App for cmd/server and cmd/worker to drive.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fileforge/fileforge/internal/batch"
	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/cryptutil"
	"github.com/fileforge/fileforge/internal/fileproc"
	"github.com/fileforge/fileforge/internal/queue"
	"github.com/fileforge/fileforge/internal/repository"
	repositorysql "github.com/fileforge/fileforge/internal/repository/sql"
	"github.com/fileforge/fileforge/internal/storage"
	"github.com/fileforge/fileforge/internal/storage/encrypted"
	"github.com/fileforge/fileforge/internal/storage/fs"
	"github.com/fileforge/fileforge/internal/storage/gcs"
	"github.com/fileforge/fileforge/internal/storage/s3"
	sqlstorage "github.com/fileforge/fileforge/internal/storage/sql"
)

// App bundles the wired components an embedder drives: the queue registry
// (for introspection and shutdown), the processing queue file jobs run on,
// the orchestrator and batch coordinator built on top of it, and the
// repositories backing metadata lookups.
type App struct {
	Config *config.Config

	Store    storage.Store
	Registry *queue.Registry
	Queue    *queue.JobQueue

	Orchestrator *fileproc.Orchestrator
	Batches      *batch.Coordinator

	Files    repository.FileRepository
	Versions repository.VersionRepository
	Shares   repository.ShareRepository
	Quotas   repository.QuotaRepository
	BatchDB  repository.BatchRepository

	db *sql.DB
}

// Build wires an App from cfg. The returned close func releases the
// database pool (if one was opened) and shuts every registered queue down;
// callers should defer it.
func Build(ctx context.Context, cfg *config.Config) (*App, func(context.Context) error, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build storage backend: %w", err)
	}

	if cfg.EncryptionKeyHex != "" {
		key, err := cfg.EncryptionKey()
		if err != nil {
			return nil, nil, err
		}
		box, err := cryptutil.NewBox(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init encryption box: %w", err)
		}
		store = encrypted.Wrap(store, box)
		slog.InfoContext(ctx, "object storage encryption at rest enabled")
	}

	a := &App{Config: cfg, Store: store}

	if cfg.DB.DSN != "" {
		db, err := sqlstorage.NewDB(ctx, sqlstorage.DBConfig{
			Driver:          "pgx",
			DSN:             cfg.DB.DSN,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.DB.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.DB.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.Files = repositorysql.NewFileRepository(db)
		a.Quotas = repositorysql.NewQuotaRepository(db, cfg.DefaultQuotaBytes)
		a.BatchDB = repositorysql.NewBatchRepository(db)
		// VersionRepository and ShareRepository have no SQL-backed
		// implementation yet (see DESIGN.md); they run on the in-memory
		// defaults regardless of DB configuration.
		a.Versions = repository.NewMemoryVersionRepository()
		a.Shares = repository.NewMemoryShareRepository()
		slog.InfoContext(ctx, "repositories backed by SQL database")
	} else {
		a.Files = repository.NewMemoryFileRepository()
		a.Versions = repository.NewMemoryVersionRepository()
		a.Shares = repository.NewMemoryShareRepository()
		a.Quotas = repository.NewMemoryQuotaRepository(cfg.DefaultQuotaBytes)
		a.BatchDB = repository.NewMemoryBatchRepository()
		slog.InfoContext(ctx, "repositories backed by in-memory defaults")
	}

	a.Registry = queue.NewRegistry(func(name string) queue.Config {
		c := queue.DefaultConfig(name)
		if name == fileproc.ProcessingQueueName {
			c.Concurrency = cfg.ProcessingConcurrency
			c.MaxJobs = cfg.ProcessingMaxJobs
		}
		return c
	})
	a.Queue = a.Registry.Get(fileproc.ProcessingQueueName)

	a.Orchestrator = fileproc.NewOrchestrator(store)
	a.Orchestrator.Register(a.Queue)

	a.Batches = batch.NewCoordinator(store, a.Orchestrator, a.Queue, a.Quotas, a.BatchDB).
		WithFileRepository(a.Files, a.Versions)

	return a, a.close, nil
}

func (a *App) close(ctx context.Context) error {
	err := a.Registry.Shutdown(ctx)
	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// buildStore selects the object-storage backend per cfg.StorageType.
func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageType {
	case "fs":
		return fs.NewStore(cfg.FSDir)
	case "gcs":
		return gcs.NewStore(ctx, cfg.GCSBucket)
	case "s3":
		if cfg.S3Region != "" {
			if _, set := os.LookupEnv("AWS_REGION"); !set {
				os.Setenv("AWS_REGION", cfg.S3Region)
			}
		}
		return s3.NewStore(ctx, cfg.S3Bucket)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.StorageType)
	}
}
