package batch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fileforge/fileforge/internal/cryptutil"
	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/fileproc"
	"github.com/fileforge/fileforge/internal/queue"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/fileforge/fileforge/internal/storage"
	"github.com/google/uuid"
)

// RoleAdmin is the role value CancelBatch/DeleteBatch accept in addition to
// a batch's own owner.
const RoleAdmin = "admin"

// DefaultMaxConcurrency is used when CreateBatchOptions.MaxConcurrency is unset.
const DefaultMaxConcurrency = 3

// FileInput is one file handed to CreateBatch: its original name, declared
// mimetype, and the caller-owned buffer of bytes to upload and process.
type FileInput struct {
	OriginalName string
	Mimetype     string
	Buffer       []byte
}

// CreateBatchOptions customizes a batch's execution policy.
type CreateBatchOptions struct {
	Description       string
	ProcessInParallel bool
	MaxConcurrency    int
}

// runningBatch is the live, in-process state of a batch while it has not yet
// reached a terminal status. Its buffers are exclusively owned here until
// run() finalizes the batch and clears them.
type runningBatch struct {
	mu        sync.Mutex
	job       domain.BatchJob
	cancelled atomic.Bool
	deleted   atomic.Bool
}

// Coordinator drives BatchJobs: it persists each file's buffer to storage,
// submits it to the file-processing orchestrator either sequentially or
// under a bounded per-batch Semaphore, and aggregates per-file outcomes into
// one BatchJob record. A batch's own concurrency cap is independent of the
// processing queue's, so one large batch cannot starve other users' jobs on
// the same queue.
type Coordinator struct {
	store        storage.Store
	orchestrator *fileproc.Orchestrator
	queue        *queue.JobQueue
	quotas       repository.QuotaRepository
	batches      repository.BatchRepository

	// files/versions are optional; set via WithFileRepository. When nil,
	// batch entries are processed without recording file metadata.
	files    repository.FileRepository
	versions repository.VersionRepository

	mu      sync.Mutex
	running map[string]*runningBatch
}

// WithFileRepository enables file-metadata recording: after each batch
// entry's bytes are uploaded to storage, a FileRecord (content-hashed via
// internal/cryptutil) and its first VersionRecord are persisted. Returns c
// for chaining off NewCoordinator; safe to leave uncalled for callers that
// don't need a metadata catalog (e.g. tests exercising processing alone).
func (c *Coordinator) WithFileRepository(files repository.FileRepository, versions repository.VersionRepository) *Coordinator {
	c.files = files
	c.versions = versions
	return c
}

// NewCoordinator builds a Coordinator. quotas may be nil to skip quota
// enforcement entirely.
func NewCoordinator(store storage.Store, orchestrator *fileproc.Orchestrator, q *queue.JobQueue, quotas repository.QuotaRepository, batches repository.BatchRepository) *Coordinator {
	return &Coordinator{
		store:        store,
		orchestrator: orchestrator,
		queue:        q,
		quotas:       quotas,
		batches:      batches,
		running:      make(map[string]*runningBatch),
	}
}

// CreateBatch allocates a batchId, captures files' buffers, and persists the
// batch in status=created. Call StartBatch to begin processing it.
func (c *Coordinator) CreateBatch(ctx context.Context, userID string, files []FileInput, opts CreateBatchOptions) (domain.BatchJob, error) {
	if len(files) == 0 {
		return domain.BatchJob{}, domain.PermanentErrorf("batch must contain at least one file")
	}

	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}

	now := time.Now()
	entries := make([]domain.BatchFileEntry, len(files))
	for i, f := range files {
		entries[i] = domain.BatchFileEntry{
			Index:        i,
			OriginalName: f.OriginalName,
			Mimetype:     f.Mimetype,
			Size:         int64(len(f.Buffer)),
			Buffer:       f.Buffer,
			Status:       domain.BatchFileStatusPending,
		}
	}

	job := domain.BatchJob{
		BatchID:           uuid.NewString(),
		UserID:            userID,
		Description:       opts.Description,
		Status:            domain.BatchStatusCreated,
		TotalFiles:        len(files),
		ProcessInParallel: opts.ProcessInParallel,
		MaxConcurrency:    maxConcurrency,
		Files:             entries,
		CreatedAt:         now,
	}

	if err := c.batches.Create(ctx, job); err != nil {
		return domain.BatchJob{}, fmt.Errorf("failed to persist batch: %w", err)
	}

	rb := &runningBatch{job: job}
	c.mu.Lock()
	c.running[job.BatchID] = rb
	c.mu.Unlock()

	return job, nil
}

// StartBatch transitions batchId from created to processing and runs its
// entries in the background, either sequentially or bounded-parallel per
// the batch's own policy. It returns once the batch has started, not once
// it finishes; poll GetBatch for completion.
func (c *Coordinator) StartBatch(ctx context.Context, batchID string) error {
	rb, err := c.lookupRunning(batchID)
	if err != nil {
		return err
	}

	rb.mu.Lock()
	if rb.job.Status != domain.BatchStatusCreated {
		rb.mu.Unlock()
		return domain.ErrBatchNotCreated
	}
	rb.job.Status = domain.BatchStatusProcessing
	rb.job.StartedAt = time.Now()
	snapshot := rb.job
	rb.mu.Unlock()

	if err := c.batches.Update(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist batch start: %w", err)
	}

	go c.run(rb)
	return nil
}

// GetBatch returns the current state of batchID, reading from in-process
// state while the batch is still running and from the repository once it
// has terminated and its buffers have been released.
func (c *Coordinator) GetBatch(ctx context.Context, batchID string) (domain.BatchJob, error) {
	c.mu.Lock()
	rb, ok := c.running[batchID]
	c.mu.Unlock()

	if ok {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		return copyBatch(rb.job), nil
	}

	job, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return domain.BatchJob{}, domain.ErrBatchNotFound
	}
	return job, nil
}

// CancelBatch cooperatively cancels batchID: a batch not yet started is
// marked cancelled immediately; a processing batch stops admitting new
// entries but lets in-flight ones finish or fail on their own. Only the
// batch's owner or an admin may cancel it; an already-terminal batch
// reports ErrBatchTerminal.
func (c *Coordinator) CancelBatch(ctx context.Context, batchID, userID, role string) error {
	rb, err := c.lookupRunning(batchID)
	if err != nil {
		// Not running anymore: the batch either never existed or already
		// reached a terminal status and was handed off to the repository.
		job, repoErr := c.batches.Get(ctx, batchID)
		if repoErr != nil {
			return domain.ErrBatchNotFound
		}
		if !authorized(job.UserID, userID, role) {
			return domain.ErrForbidden
		}
		return domain.ErrBatchTerminal
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !authorized(rb.job.UserID, userID, role) {
		return domain.ErrForbidden
	}
	if isTerminal(rb.job.Status) {
		return domain.ErrBatchTerminal
	}

	rb.cancelled.Store(true)
	if rb.job.Status == domain.BatchStatusCreated {
		rb.job.Status = domain.BatchStatusCancelled
		rb.job.CompletedAt = time.Now()
		snapshot := copyBatch(rb.job)
		go func() {
			_ = c.batches.Update(context.Background(), snapshot)
			c.mu.Lock()
			delete(c.running, batchID)
			c.mu.Unlock()
		}()
	}
	// Processing batches are finalized by run() once in-flight entries drain.
	return nil
}

// DeleteBatch removes batchID's record. If the batch is still processing,
// its goroutine is left to drain but its eventual result is discarded.
// Only the batch's owner or an admin may delete it.
func (c *Coordinator) DeleteBatch(ctx context.Context, batchID, userID, role string) error {
	job, err := c.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !authorized(job.UserID, userID, role) {
		return domain.ErrForbidden
	}

	c.mu.Lock()
	if rb, ok := c.running[batchID]; ok {
		rb.deleted.Store(true)
		delete(c.running, batchID)
	}
	c.mu.Unlock()

	return c.batches.Delete(ctx, batchID)
}

// ListBatches returns userID's batches (or every batch, for an admin),
// newest first.
func (c *Coordinator) ListBatches(ctx context.Context, userID, role string) ([]domain.BatchJob, error) {
	if role == RoleAdmin {
		return c.batches.ListByUser(ctx, "")
	}
	return c.batches.ListByUser(ctx, userID)
}

func (c *Coordinator) lookupRunning(batchID string) (*runningBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rb, ok := c.running[batchID]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return rb, nil
}

// run drives every entry of rb to completion, then finalizes the batch's
// terminal status and releases its file buffers.
func (c *Coordinator) run(rb *runningBatch) {
	ctx := context.Background()

	rb.mu.Lock()
	n := len(rb.job.Files)
	parallel := rb.job.ProcessInParallel
	maxConcurrency := rb.job.MaxConcurrency
	rb.mu.Unlock()

	if parallel {
		sem := NewSemaphore(maxConcurrency)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			if rb.cancelled.Load() {
				break
			}
			if err := sem.Acquire(ctx); err != nil {
				break
			}
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer sem.Release()
				c.processEntry(ctx, rb, idx)
			}(i)
		}
		wg.Wait()
	} else {
		for i := 0; i < n; i++ {
			if rb.cancelled.Load() {
				break
			}
			c.processEntry(ctx, rb, i)
		}
	}

	rb.mu.Lock()
	rb.job.CompletedAt = time.Now()
	if rb.cancelled.Load() {
		rb.job.Status = domain.BatchStatusCancelled
	} else {
		rb.job.Status = rb.job.FinalStatus()
	}
	for i := range rb.job.Files {
		rb.job.Files[i].Buffer = nil
	}
	final := copyBatch(rb.job)
	deleted := rb.deleted.Load()
	rb.mu.Unlock()

	if !deleted {
		if err := c.batches.Update(context.Background(), final); err != nil {
			slog.Error("failed to persist finished batch", "batch_id", final.BatchID, "error", err)
		}
	}

	c.mu.Lock()
	delete(c.running, final.BatchID)
	c.mu.Unlock()
}

// processEntry uploads and processes rb.job.Files[idx], then records the
// outcome under rb's lock. Entries never fail the batch itself; their
// errors only accumulate in the batch's per-file state.
func (c *Coordinator) processEntry(ctx context.Context, rb *runningBatch, idx int) {
	rb.mu.Lock()
	entry := rb.job.Files[idx]
	entry.Status = domain.BatchFileStatusProcessing
	rb.job.Files[idx] = entry
	userID := rb.job.UserID
	rb.mu.Unlock()

	fileID, storageKey, result, err := c.processOneFile(ctx, userID, entry)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	e := rb.job.Files[idx]
	e.ProcessedAt = time.Now()
	if err != nil {
		e.Status = domain.BatchFileStatusFailed
		e.Error = err.Error()
		rb.job.FailedFiles++
	} else {
		e.Status = domain.BatchFileStatusCompleted
		e.FileID = fileID
		e.StorageRef = storageKey
		e.ProcessingResult = result
		rb.job.SuccessfulFiles++
	}
	rb.job.Files[idx] = e
	rb.job.ProcessedFiles++
	rb.job.RecomputeProgress()
}

// processOneFile is one batch entry's pipeline: validate, store, dispatch to
// the file-processing orchestrator, and interpret the outcome.
func (c *Coordinator) processOneFile(ctx context.Context, userID string, entry domain.BatchFileEntry) (fileID, storageKey string, result fileproc.Result, err error) {
	if len(entry.Buffer) == 0 {
		return "", "", fileproc.Result{}, domain.PermanentErrorf("empty file buffer for %q", entry.OriginalName)
	}

	if c.quotas != nil {
		if err := c.quotas.CheckAndReserve(ctx, userID, entry.Size); err != nil {
			return "", "", fileproc.Result{}, err
		}
	}

	fileID = uuid.NewString()
	key := fmt.Sprintf("uploads/%s/%s", userID, fileID)

	meta, err := c.store.Upload(ctx, key, bytes.NewReader(entry.Buffer), entry.Size, entry.Mimetype)
	if err != nil {
		if c.quotas != nil {
			_ = c.quotas.Release(ctx, userID, entry.Size)
		}
		return "", "", fileproc.Result{}, domain.RetryableErrorf("failed to store %q: %v", entry.OriginalName, err)
	}

	if c.files != nil {
		c.recordFile(ctx, fileID, userID, entry, meta)
	}

	fileMeta := fileproc.FileMeta{
		FileID:       fileID,
		UserID:       userID,
		OriginalName: entry.OriginalName,
		Mimetype:     entry.Mimetype,
		Size:         meta.Size,
		StorageKey:   meta.Key,
	}

	snapshot, err := c.orchestrator.Submit(ctx, c.queue, fileMeta, queue.AddJobOptions{UserID: userID})
	if err != nil {
		return "", "", fileproc.Result{}, err
	}
	if snapshot.Status != domain.JobStatusCompleted {
		msg := "processing job did not complete"
		if len(snapshot.Errors) > 0 {
			msg = snapshot.Errors[len(snapshot.Errors)-1].Message
		}
		return "", "", fileproc.Result{}, fmt.Errorf("%s", msg)
	}

	procResult, ok := snapshot.Result.(fileproc.Result)
	if !ok {
		return "", "", fileproc.Result{}, fmt.Errorf("unexpected processing result type for %q", entry.OriginalName)
	}
	if procResult.Status == fileproc.StatusFailed {
		return "", "", fileproc.Result{}, fmt.Errorf("%s", procResult.ProcessingError)
	}

	return fileID, meta.Key, procResult, nil
}

// recordFile persists a FileRecord (and, if a VersionRepository was
// configured, its first VersionRecord) for a newly uploaded batch entry.
// Recording failures are logged and swallowed: the catalog entry is a
// convenience for listing/versioning, not a precondition for processing the
// file the user actually asked for.
func (c *Coordinator) recordFile(ctx context.Context, fileID, userID string, entry domain.BatchFileEntry, meta storage.ObjectMetadata) {
	now := time.Now()
	rec := repository.FileRecord{
		FileID:       fileID,
		UserID:       userID,
		OriginalName: entry.OriginalName,
		Mimetype:     entry.Mimetype,
		Size:         meta.Size,
		StorageKey:   meta.Key,
		ContentHash:  cryptutil.ContentHash(entry.Buffer),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.files.Create(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to record file metadata", "file_id", fileID, "error", err)
		return
	}
	if c.versions == nil {
		return
	}
	version := repository.VersionRecord{
		VersionID:  uuid.NewString(),
		FileID:     fileID,
		StorageKey: meta.Key,
		Size:       meta.Size,
		CreatedAt:  now,
	}
	if err := c.versions.Create(ctx, version); err != nil {
		slog.WarnContext(ctx, "failed to record file version", "file_id", fileID, "error", err)
	}
}

func authorized(ownerID, userID, role string) bool {
	return ownerID == userID || role == RoleAdmin
}

func isTerminal(s domain.BatchStatus) bool {
	switch s {
	case domain.BatchStatusCompleted, domain.BatchStatusCompletedWithError,
		domain.BatchStatusFailed, domain.BatchStatusCancelled:
		return true
	default:
		return false
	}
}

func copyBatch(b domain.BatchJob) domain.BatchJob {
	out := b
	out.Files = make([]domain.BatchFileEntry, len(b.Files))
	copy(out.Files, b.Files)
	return out
}
