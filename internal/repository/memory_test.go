package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileRepository_CreateGetListDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryFileRepository()

	rec := FileRecord{FileID: "f1", UserID: "u1", OriginalName: "a.jpg", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, rec.OriginalName, got.OriginalName)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "f1"))
	_, err = repo.Get(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryQuotaRepository_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryQuotaRepository(100)

	require.NoError(t, repo.CheckAndReserve(ctx, "u1", 60))
	err := repo.CheckAndReserve(ctx, "u1", 60)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	require.NoError(t, repo.Release(ctx, "u1", 60))
	require.NoError(t, repo.CheckAndReserve(ctx, "u1", 60))

	q, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), q.UsedByte)
}

func TestMemoryShareRepository_CreateGetRevoke(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryShareRepository()

	require.NoError(t, repo.Create(ctx, ShareRecord{Token: "tok1", FileID: "f1", UserID: "u1"}))
	got, err := repo.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	require.NoError(t, repo.Revoke(ctx, "tok1"))
	got, err = repo.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestMemoryBatchRepository_CreateUpdateGetList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBatchRepository()

	b := domain.BatchJob{BatchID: "b1", UserID: "u1", Status: domain.BatchStatusCreated, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, b))

	b.Status = domain.BatchStatusProcessing
	require.NoError(t, repo.Update(ctx, b))

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusProcessing, got.Status)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = repo.Update(ctx, domain.BatchJob{BatchID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}
