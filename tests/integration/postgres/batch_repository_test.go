package integration

import (
	"context"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/repository"
	sqlrepo "github.com/fileforge/fileforge/internal/repository/sql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRepository_CreateUpdateGetListDelete(t *testing.T) {
	db := SetupTestDB(t)
	repo := sqlrepo.NewBatchRepository(db)
	ctx := context.Background()

	job := domain.BatchJob{
		BatchID:        uuid.NewString(),
		UserID:         "user-1",
		Description:    "nightly import",
		Status:         domain.BatchStatusCreated,
		TotalFiles:     3,
		MaxConcurrency: 2,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.Create(ctx, job))

	job.Status = domain.BatchStatusCompleted
	job.ProcessedFiles = 3
	job.SuccessfulFiles = 3
	job.Progress = 100
	job.StartedAt = time.Now().UTC().Truncate(time.Second)
	job.CompletedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Update(ctx, job))

	got, err := repo.Get(ctx, job.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
	assert.Equal(t, 3, got.SuccessfulFiles)
	assert.False(t, got.StartedAt.IsZero())

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	all, err := repo.ListByUser(ctx, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 1)

	require.NoError(t, repo.Delete(ctx, job.BatchID))
	_, err = repo.Get(ctx, job.BatchID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBatchRepository_UpdateMissingReturnsErrNotFound(t *testing.T) {
	db := SetupTestDB(t)
	repo := sqlrepo.NewBatchRepository(db)

	err := repo.Update(context.Background(), domain.BatchJob{BatchID: "does-not-exist"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
