package fileproc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/queue"
	"github.com/fileforge/fileforge/internal/storage"
)

// ProcessingQueueName is the queue this orchestrator registers its handlers on.
const ProcessingQueueName = "processing"

// DefaultConcurrency and DefaultMaxJobs match the processing queue's admission
// policy: bounded parallelism across image/PDF/CSV work with headroom for a
// deep backlog of queued uploads.
const (
	DefaultConcurrency = 3
	DefaultMaxJobs      = 500
)

// Orchestrator dispatches file_processing/file_compression/thumbnail_generation
// jobs to MIME-specific processors and reports progressive status.
type Orchestrator struct {
	store storage.Store
	image *ImageProcessor
	pdf   *PDFProcessor
	csv   *CSVProcessor
}

// NewOrchestrator constructs an Orchestrator backed by store.
func NewOrchestrator(store storage.Store) *Orchestrator {
	return &Orchestrator{
		store: store,
		image: NewImageProcessor(store),
		pdf:   NewPDFProcessor(store),
		csv:   NewCSVProcessor(store),
	}
}

// Register binds this orchestrator's handlers onto q.
func (o *Orchestrator) Register(q *queue.JobQueue) {
	q.RegisterProcessor(domain.JobTypeFileProcessing, o.handleFileProcessing)
	q.RegisterProcessor(domain.JobTypeFileCompression, o.handleFileCompression)
	q.RegisterProcessor(domain.JobTypeThumbnailGeneration, o.handleThumbnailGeneration)
}

// Start enqueues meta for full processing (dispatch + compression +
// thumbnail) and returns immediately with the job's initial snapshot,
// without waiting for it to reach a terminal state. This is the non-blocking
// "submit single file" operation the embedder's HTTP layer calls; pair it
// with Await to learn the outcome, or call Submit to do both in one step.
func (o *Orchestrator) Start(ctx context.Context, q *queue.JobQueue, meta FileMeta, opts queue.AddJobOptions) (domain.Snapshot, error) {
	return q.AddJob(ctx, domain.JobTypeFileProcessing, meta, opts)
}

// Await blocks until jobID reaches a terminal state on q (completed, failed,
// or cancelled), resolving on the queue's event bus rather than polling.
func (o *Orchestrator) Await(ctx context.Context, q *queue.JobQueue, jobID string) (domain.Snapshot, error) {
	return o.awaitTerminal(ctx, q, jobID)
}

// Submit queues meta for full processing and blocks until the job reaches a
// terminal state, the way a synchronous "process this file now" API call is
// expected to behave even though the work runs on the queue. It is Start
// followed by Await.
func (o *Orchestrator) Submit(ctx context.Context, q *queue.JobQueue, meta FileMeta, opts queue.AddJobOptions) (domain.Snapshot, error) {
	job, err := o.Start(ctx, q, meta, opts)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return o.Await(ctx, q, job.ID)
}

// awaitTerminal blocks on the queue's event bus until jobID completes, fails,
// or is cancelled, instead of polling on a fixed interval.
func (o *Orchestrator) awaitTerminal(ctx context.Context, q *queue.JobQueue, jobID string) (domain.Snapshot, error) {
	// Subscribe before the status check so a job finishing in between still
	// delivers its terminal event.
	events := q.Subscribe()
	if s, ok := q.GetJob(jobID); ok && terminal(s.Status) {
		return s, nil
	}

	for {
		select {
		case <-ctx.Done():
			return domain.Snapshot{}, ctx.Err()
		case ev := <-events:
			if ev.Job.ID != jobID {
				continue
			}
			if terminal(ev.Job.Status) {
				return ev.Job, nil
			}
		}
	}
}

func terminal(s domain.JobStatus) bool {
	return s == domain.JobStatusCompleted || s == domain.JobStatusFailed || s == domain.JobStatusCancelled
}

// handleFileProcessing dispatches meta by MIME type, builds a Result, and
// drives the job's progress from 10 through 100. Download, size-cap, and
// signature failures propagate as job errors (retryable or permanent per
// their classification) so the queue can retry or dead-letter them; an
// interpretation failure after a successful transfer is captured in the
// result instead, and the queue job itself still completes.
func (o *Orchestrator) handleFileProcessing(ctx context.Context, job *domain.Job) (any, error) {
	meta, ok := job.Payload.(FileMeta)
	if !ok {
		return nil, domain.PermanentErrorf("file_processing job payload is not FileMeta")
	}

	job.SetProgress(10)

	result := Result{
		FileID:       meta.FileID,
		OriginalName: meta.OriginalName,
		Mimetype:     meta.Mimetype,
		StorageKey:   meta.StorageKey,
		Size:         meta.Size,
	}

	mt := mediaType(meta.Mimetype)

	switch {
	case strings.HasPrefix(mt, "image/"):
		imgResult, err := o.image.Process(ctx, meta)
		if err != nil {
			if isTransferError(err) {
				return nil, err
			}
			return o.asTypedFailure(result, err), nil
		}
		result.Image = &imgResult
		job.SetProgress(70)

	case mt == "application/pdf":
		pdfResult, err := o.pdf.Process(ctx, meta)
		if err != nil {
			if isTransferError(err) {
				return nil, err
			}
			return o.asTypedFailure(result, err), nil
		}
		result.PDF = &pdfResult
		job.SetProgress(70)

	case isCSVMimetype(mt):
		csvResult, err := o.csv.Process(ctx, meta)
		if err != nil {
			if isTransferError(err) {
				return nil, err
			}
			return o.asTypedFailure(result, err), nil
		}
		result.CSV = &csvResult
		job.SetProgress(70)

	default:
		return nil, domain.PermanentErrorf("unsupported mimetype: %s", meta.Mimetype)
	}

	if !meta.DisableCompression && compressible(mt) {
		compressed, err := compressObject(ctx, o.store, meta)
		if err != nil {
			slog.WarnContext(ctx, "inline compression failed, leaving original in place",
				"file_id", meta.FileID, "error", err)
		} else {
			result.CompressedBytes = compressed
		}
	}

	job.SetProgress(90)
	if url, err := o.store.SignedURL(ctx, meta.StorageKey, signedURLTTL); err == nil {
		result.SecureURL = url
	}
	result.Status = StatusCompleted
	result.ProcessedAt = time.Now()
	job.SetProgress(100)

	return result, nil
}

// signedURLTTL is how long a processing result's download URL stays valid.
const signedURLTTL = 24 * time.Hour

// maxCompressBytes caps a compression fetch when the job carries no declared size.
const maxCompressBytes = 64 * 1024 * 1024

// mediaType strips any parameters (e.g. "; charset=utf-8") off a declared
// MIME type so dispatch matches on the bare type.
func mediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

// isCSVMimetype accepts the declared types CSV uploads commonly arrive
// under; plain text is treated as CSV rather than rejected.
func isCSVMimetype(mt string) bool {
	switch mt {
	case "text/csv", "application/csv", "application/vnd.ms-excel", "text/plain":
		return true
	default:
		return false
	}
}

// compressible reports whether inline compression is worth running for mt.
// Images are already entropy-coded; compressing them again buys nothing.
func compressible(mt string) bool {
	return !strings.HasPrefix(mt, "image/")
}

// asTypedFailure converts a processor error into a completed-with-failure
// result. Transfer-class errors (see fetch.go) never reach here; by the time
// control does, the error is specific to interpreting an already-fetched
// file, which retrying will not fix.
func (o *Orchestrator) asTypedFailure(result Result, err error) Result {
	result.Status = StatusFailed
	result.ProcessingError = err.Error()
	result.ProcessedAt = time.Now()
	return result
}

// handleFileCompression compresses an already-processed file's storage
// object. Failures are logged and swallowed: compression is a
// nice-to-have, and the original file remains usable either way.
func (o *Orchestrator) handleFileCompression(ctx context.Context, job *domain.Job) (any, error) {
	meta, ok := job.Payload.(FileMeta)
	if !ok {
		return nil, domain.PermanentErrorf("file_compression job payload is not FileMeta")
	}

	job.SetProgress(10)
	compressed, err := compressObject(ctx, o.store, meta)
	if err != nil {
		slog.WarnContext(ctx, "file compression failed, leaving original in place",
			"file_id", meta.FileID, "error", err)
		job.SetProgress(100)
		return Result{FileID: meta.FileID, Status: StatusCompleted, ProcessedAt: time.Now()}, nil
	}

	job.SetProgress(100)
	return Result{
		FileID:          meta.FileID,
		Status:          StatusCompleted,
		CompressedBytes: compressed,
		ProcessedAt:     time.Now(),
	}, nil
}

// handleThumbnailGeneration produces a standalone thumbnail job result.
// Like compression, failures here are logged and swallowed.
func (o *Orchestrator) handleThumbnailGeneration(ctx context.Context, job *domain.Job) (any, error) {
	meta, ok := job.Payload.(FileMeta)
	if !ok {
		return nil, domain.PermanentErrorf("thumbnail_generation job payload is not FileMeta")
	}

	job.SetProgress(10)
	imgResult, err := o.image.Process(ctx, meta)
	if err != nil {
		slog.WarnContext(ctx, "thumbnail generation failed",
			"file_id", meta.FileID, "error", err)
		job.SetProgress(100)
		return Result{FileID: meta.FileID, Status: StatusCompleted, ProcessedAt: time.Now()}, nil
	}

	job.SetProgress(100)
	return Result{
		FileID:       meta.FileID,
		Status:       StatusCompleted,
		ThumbnailURL: imgResult.ThumbnailURL,
		ProcessedAt:  time.Now(),
	}, nil
}

// compressObject fetches the object's bytes, gzips them via gzipUpload, and
// uploads the result under a ".gz"-suffixed key, returning the compressed
// size. The original object is left in place.
func compressObject(ctx context.Context, store storage.Store, meta FileMeta) (int64, error) {
	limit := meta.Size + 1
	if meta.Size <= 0 {
		limit = maxCompressBytes
	}
	data, err := fetchBuffer(ctx, store, meta.StorageKey, limit)
	if err != nil {
		return 0, err
	}
	compressedKey := fmt.Sprintf("%s.gz", meta.StorageKey)
	out, err := gzipUpload(ctx, store, compressedKey, data)
	if err != nil {
		return 0, domain.RetryableErrorf("failed to store compressed object: %v", err)
	}
	return out.Size, nil
}
