package fileproc

import (
	"context"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orchestratorQueueConfig(name string) queue.Config {
	cfg := queue.DefaultConfig(name)
	cfg.Concurrency = 2
	cfg.RetryInitialDelay = 5 * time.Millisecond
	cfg.RetryMaxDelay = 20 * time.Millisecond
	cfg.RetrySweepInterval = 10 * time.Millisecond
	cfg.HousekeepingInterval = time.Hour
	return cfg
}

func TestOrchestrator_DispatchesImageJobToCompletion(t *testing.T) {
	store := newFakeStore()
	store.put("img.jpg", encodeTestJPEG(t, 100, 50), "image/jpeg")

	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-image"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	snapshot, err := o.Submit(context.Background(), q, FileMeta{
		FileID: "f1", StorageKey: "img.jpg", Mimetype: "image/jpeg",
	}, queue.AddJobOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, snapshot.Status)

	result, ok := snapshot.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, result.Status)
	require.NotNil(t, result.Image)
	assert.Equal(t, 100, result.Image.Width)
}

func TestOrchestrator_UnsupportedMimetypeFailsJob(t *testing.T) {
	store := newFakeStore()
	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-unsupported"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	snapshot, err := o.Submit(context.Background(), q, FileMeta{
		FileID: "f1", StorageKey: "whatever.bin", Mimetype: "application/octet-stream",
	}, queue.AddJobOptions{MaxAttempts: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, snapshot.Status)
}

func TestOrchestrator_TypedProcessorFailureCompletesWithFailedResult(t *testing.T) {
	store := newFakeStore()
	// Valid PDF signature but unparseable body: PDFProcessor returns a
	// permanent error, which the orchestrator folds into a failed Result
	// rather than propagating as a job error.
	store.put("bad.pdf", []byte("%PDF-1.4\nnot a real pdf"), "application/pdf")

	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-typedfail"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	snapshot, err := o.Submit(context.Background(), q, FileMeta{
		FileID: "f1", StorageKey: "bad.pdf", Mimetype: "application/pdf",
	}, queue.AddJobOptions{})
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, snapshot.Status)

	result, ok := snapshot.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, result.Status)
	assert.NotEmpty(t, result.ProcessingError)
}

func TestOrchestrator_DownloadFailurePropagatesAsJobError(t *testing.T) {
	store := newFakeStore() // object missing: the fetch fails before interpretation starts
	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-download"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	snapshot, err := o.Submit(context.Background(), q, FileMeta{
		FileID: "f1", StorageKey: "gone.jpg", Mimetype: "image/jpeg",
	}, queue.AddJobOptions{MaxAttempts: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, snapshot.Status)
	require.NotEmpty(t, snapshot.Errors)
	assert.Nil(t, snapshot.Result, "a failed transfer must not produce a processing result")
}

func TestOrchestrator_CompressionFailureStillCompletesJob(t *testing.T) {
	store := newFakeStore() // object missing: compressObject's fetch will fail
	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-compress"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	job, err := q.AddJob(context.Background(), domain.JobTypeFileCompression, FileMeta{
		FileID: "f1", StorageKey: "missing.bin", Size: 10,
	}, queue.AddJobOptions{})
	require.NoError(t, err)

	snapshot, err := o.awaitTerminal(context.Background(), q, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, snapshot.Status)

	result, ok := snapshot.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Zero(t, result.CompressedBytes)
}

func TestOrchestrator_ThumbnailGenerationFailureStillCompletesJob(t *testing.T) {
	store := newFakeStore()
	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-thumb"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	job, err := q.AddJob(context.Background(), domain.JobTypeThumbnailGeneration, FileMeta{
		FileID: "f1", StorageKey: "missing.jpg", Mimetype: "image/jpeg",
	}, queue.AddJobOptions{})
	require.NoError(t, err)

	snapshot, err := o.awaitTerminal(context.Background(), q, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, snapshot.Status)

	result, ok := snapshot.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Empty(t, result.ThumbnailURL)
}

func TestOrchestrator_CSVJobReportsColumnsAndRows(t *testing.T) {
	store := newFakeStore()
	store.put("data.csv", []byte("a,b\n1,2\n3,4\n"), "text/csv")

	o := NewOrchestrator(store)
	q := queue.New(orchestratorQueueConfig("orch-csv"))
	defer q.Shutdown(context.Background())
	o.Register(q)

	snapshot, err := o.Submit(context.Background(), q, FileMeta{
		FileID: "f1", StorageKey: "data.csv", Mimetype: "text/csv",
	}, queue.AddJobOptions{})
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, snapshot.Status)

	result, ok := snapshot.Result.(Result)
	require.True(t, ok)
	require.NotNil(t, result.CSV)
	assert.Equal(t, 2, result.CSV.RowCount)
}
