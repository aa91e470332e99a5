// Package sql provides Postgres-backed implementations of the
// internal/repository interfaces, for embedders that configured
// internal/config.DatabaseConfig.DSN instead of running on the in-memory
// defaults. It targets the pgx driver's "$N" placeholder style; the
// SQLite pool internal/storage/sql also offers is meant for lightweight
// single-process deployments that run on the in-memory repositories
// instead, not this package.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/repository"
)

// FileRepository is a Postgres-backed repository.FileRepository.
type FileRepository struct {
	db *sql.DB
}

// NewFileRepository builds a FileRepository over db.
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

var _ repository.FileRepository = (*FileRepository)(nil)

func (r *FileRepository) Create(ctx context.Context, rec repository.FileRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO files (file_id, user_id, original_name, mimetype, size, storage_key, content_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (file_id) DO UPDATE SET
			original_name = EXCLUDED.original_name,
			mimetype = EXCLUDED.mimetype,
			size = EXCLUDED.size,
			storage_key = EXCLUDED.storage_key,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at`,
		rec.FileID, rec.UserID, rec.OriginalName, rec.Mimetype, rec.Size, rec.StorageKey, rec.ContentHash, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file record: %w", err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, fileID string) (repository.FileRecord, error) {
	var rec repository.FileRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT file_id, user_id, original_name, mimetype, size, storage_key, content_hash, created_at, updated_at
		FROM files WHERE file_id = $1`, fileID,
	).Scan(&rec.FileID, &rec.UserID, &rec.OriginalName, &rec.Mimetype, &rec.Size, &rec.StorageKey, &rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.FileRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.FileRecord{}, fmt.Errorf("failed to query file record: %w", err)
	}
	return rec, nil
}

func (r *FileRepository) ListByUser(ctx context.Context, userID string) ([]repository.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT file_id, user_id, original_name, mimetype, size, storage_key, content_hash, created_at, updated_at
		FROM files WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	var out []repository.FileRecord
	for rows.Next() {
		var rec repository.FileRecord
		if err := rows.Scan(&rec.FileID, &rec.UserID, &rec.OriginalName, &rec.Mimetype, &rec.Size, &rec.StorageKey, &rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *FileRepository) Delete(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	return nil
}

// QuotaRepository is a Postgres-backed repository.QuotaRepository. Reservation
// is done in a single UPDATE guarded by a WHERE clause, with RowsAffected
// telling success from an exceeded quota, so two concurrent requests for the
// same user can't both pass the check.
type QuotaRepository struct {
	db           *sql.DB
	defaultLimit int64
}

// NewQuotaRepository builds a QuotaRepository. defaultLimit is the budget a
// user is provisioned with on first use.
func NewQuotaRepository(db *sql.DB, defaultLimit int64) *QuotaRepository {
	if defaultLimit <= 0 {
		defaultLimit = repository.DefaultQuotaBytes
	}
	return &QuotaRepository{db: db, defaultLimit: defaultLimit}
}

var _ repository.QuotaRepository = (*QuotaRepository)(nil)

func (r *QuotaRepository) ensureRow(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotas (user_id, limit_byte, used_byte) VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING`, userID, r.defaultLimit)
	if err != nil {
		return fmt.Errorf("failed to provision quota row: %w", err)
	}
	return nil
}

func (r *QuotaRepository) CheckAndReserve(ctx context.Context, userID string, bytes int64) error {
	if err := r.ensureRow(ctx, userID); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE quotas SET used_byte = used_byte + $1
		WHERE user_id = $2 AND used_byte + $1 <= limit_byte`, bytes, userID)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read reservation result: %w", err)
	}
	if n == 0 {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (r *QuotaRepository) Release(ctx context.Context, userID string, bytes int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quotas SET used_byte = GREATEST(used_byte - $1, 0) WHERE user_id = $2`, bytes, userID)
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

func (r *QuotaRepository) Get(ctx context.Context, userID string) (repository.QuotaRecord, error) {
	if err := r.ensureRow(ctx, userID); err != nil {
		return repository.QuotaRecord{}, err
	}

	var rec repository.QuotaRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, limit_byte, used_byte FROM quotas WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.LimitByte, &rec.UsedByte)
	if err != nil {
		return repository.QuotaRecord{}, fmt.Errorf("failed to query quota: %w", err)
	}
	return rec, nil
}

// BatchRepository is a Postgres-backed repository.BatchRepository. It persists
// aggregate batch state only; per-file buffers never leave Coordinator's
// in-process memory, so Files is not round-tripped through this table.
type BatchRepository struct {
	db *sql.DB
}

// NewBatchRepository builds a BatchRepository over db.
func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

var _ repository.BatchRepository = (*BatchRepository)(nil)

func (r *BatchRepository) Create(ctx context.Context, b domain.BatchJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batches (batch_id, user_id, description, status, total_files, processed_files,
			successful_files, failed_files, progress, process_in_parallel, max_concurrency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.BatchID, b.UserID, b.Description, b.Status, b.TotalFiles, b.ProcessedFiles,
		b.SuccessfulFiles, b.FailedFiles, b.Progress, b.ProcessInParallel, b.MaxConcurrency, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert batch record: %w", err)
	}
	return nil
}

func (r *BatchRepository) Update(ctx context.Context, b domain.BatchJob) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE batches SET status = $1, processed_files = $2, successful_files = $3, failed_files = $4,
			progress = $5, started_at = $6, completed_at = $7
		WHERE batch_id = $8`,
		b.Status, b.ProcessedFiles, b.SuccessfulFiles, b.FailedFiles, b.Progress,
		nullableTime(b.StartedAt), nullableTime(b.CompletedAt), b.BatchID)
	if err != nil {
		return fmt.Errorf("failed to update batch record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *BatchRepository) Get(ctx context.Context, batchID string) (domain.BatchJob, error) {
	var b domain.BatchJob
	var startedAt, completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT batch_id, user_id, description, status, total_files, processed_files, successful_files,
			failed_files, progress, process_in_parallel, max_concurrency, created_at, started_at, completed_at
		FROM batches WHERE batch_id = $1`, batchID,
	).Scan(&b.BatchID, &b.UserID, &b.Description, &b.Status, &b.TotalFiles, &b.ProcessedFiles, &b.SuccessfulFiles,
		&b.FailedFiles, &b.Progress, &b.ProcessInParallel, &b.MaxConcurrency, &b.CreatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BatchJob{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("failed to query batch record: %w", err)
	}
	b.StartedAt = startedAt.Time
	b.CompletedAt = completedAt.Time
	return b, nil
}

func (r *BatchRepository) ListByUser(ctx context.Context, userID string) ([]domain.BatchJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, user_id, description, status, total_files, processed_files, successful_files,
			failed_files, progress, process_in_parallel, max_concurrency, created_at, started_at, completed_at
		FROM batches WHERE $1 = '' OR user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch records: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchJob
	for rows.Next() {
		var b domain.BatchJob
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&b.BatchID, &b.UserID, &b.Description, &b.Status, &b.TotalFiles, &b.ProcessedFiles,
			&b.SuccessfulFiles, &b.FailedFiles, &b.Progress, &b.ProcessInParallel, &b.MaxConcurrency,
			&b.CreatedAt, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch record: %w", err)
		}
		b.StartedAt = startedAt.Time
		b.CompletedAt = completedAt.Time
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BatchRepository) Delete(ctx context.Context, batchID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE batch_id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("failed to delete batch record: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
