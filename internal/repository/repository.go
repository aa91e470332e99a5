// Package repository defines the minimal metadata-persistence contracts the
// file-processing core consumes: file/version records, share links,
// per-user quotas, and batch records. Each interface is scoped by userId and
// has a thread-safe in-memory default suitable for tests and single-process
// deployments; Postgres-backed file, quota, and batch implementations live
// in internal/repository/sql.
package repository

import (
	"context"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
)

// FileRecord is one uploaded file's metadata, independent of its processing
// result (which lives in the job/batch result, not here).
type FileRecord struct {
	FileID       string
	UserID       string
	OriginalName string
	Mimetype     string
	Size         int64
	StorageKey   string
	ContentHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VersionRecord is one revision of a file's stored bytes.
type VersionRecord struct {
	VersionID  string
	FileID     string
	StorageKey string
	Size       int64
	CreatedAt  time.Time
}

// ShareRecord is a share link granting access to a file by opaque token.
type ShareRecord struct {
	Token     string
	FileID    string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// QuotaRecord tracks one user's storage usage against their byte budget.
type QuotaRecord struct {
	UserID    string
	LimitByte int64
	UsedByte  int64
}

// FileRepository is the CRUD surface for file metadata records.
type FileRepository interface {
	Create(ctx context.Context, rec FileRecord) error
	Get(ctx context.Context, fileID string) (FileRecord, error)
	ListByUser(ctx context.Context, userID string) ([]FileRecord, error)
	Delete(ctx context.Context, fileID string) error
}

// VersionRepository is the CRUD surface for file version records.
type VersionRepository interface {
	Create(ctx context.Context, rec VersionRecord) error
	ListByFile(ctx context.Context, fileID string) ([]VersionRecord, error)
}

// ShareRepository creates, looks up, and revokes file share links.
type ShareRepository interface {
	Create(ctx context.Context, rec ShareRecord) error
	Get(ctx context.Context, token string) (ShareRecord, error)
	Revoke(ctx context.Context, token string) error
}

// QuotaRepository tracks and enforces per-user storage budgets. CheckAndReserve
// is consulted by BatchCoordinator before admitting a batch's files so a
// user's upload can't exceed their quota mid-batch.
type QuotaRepository interface {
	CheckAndReserve(ctx context.Context, userID string, bytes int64) error
	Release(ctx context.Context, userID string, bytes int64) error
	Get(ctx context.Context, userID string) (QuotaRecord, error)
}

// BatchRepository persists BatchJob records for listing and lookup across
// the lifetime of a batch. BatchCoordinator is the only writer; callers only
// read through it.
type BatchRepository interface {
	Create(ctx context.Context, b domain.BatchJob) error
	Update(ctx context.Context, b domain.BatchJob) error
	Get(ctx context.Context, batchID string) (domain.BatchJob, error)
	// ListByUser returns userID's batches, newest first. An empty userID
	// returns every batch, which BatchCoordinator uses for admin listing.
	ListByUser(ctx context.Context, userID string) ([]domain.BatchJob, error)
	Delete(ctx context.Context, batchID string) error
}
