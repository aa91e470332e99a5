// Package domain holds the value types shared across the queue, file-processing,
// and batch packages: jobs, batches, priorities, and the small set of statuses
// each can be in.
package domain

import (
	"sync/atomic"
	"time"
)

// JobType is a closed tag identifying what kind of work a Job performs.
type JobType string

const (
	JobTypeFileUpload          JobType = "file_upload"
	JobTypeFileProcessing      JobType = "file_processing"
	JobTypeFileCompression     JobType = "file_compression"
	JobTypeThumbnailGeneration JobType = "thumbnail_generation"
	JobTypeVirusScan           JobType = "virus_scan"
	JobTypeBatchProcessing     JobType = "batch_processing"
	JobTypeFileCleanup         JobType = "file_cleanup"
)

// Priority orders jobs within a queue; higher values run first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityUrgent   Priority = 4
	PriorityCritical Priority = 5
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusRetrying   JobStatus = "retrying"
)

// JobErrorEntry is one append-only record in a Job's error history.
type JobErrorEntry struct {
	Message   string
	Code      string
	Attempt   int
	Timestamp time.Time
}

// Job is one unit of work plus its lifecycle bookkeeping. Fields are mutated only
// by the owning queue's scheduler goroutine, or by CancelJob for non-processing jobs.
type Job struct {
	ID         string
	Type       JobType
	Priority   Priority
	Status     JobStatus
	Payload    any
	UserID     string
	Attempts   int
	MaxAttempts int

	Delay         time.Duration
	NextAttemptAt time.Time

	Errors []JobErrorEntry
	Result any
	// progress is updated by a running handler via SetProgress while the
	// queue's scheduler reads Snapshot() concurrently, so it is atomic
	// rather than a plain int guarded by the queue's mutex.
	progress atomic.Int32

	Metadata map[string]any

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// DefaultMaxAttempts is used when AddJobOptions.MaxAttempts is unset.
const DefaultMaxAttempts = 3

// DefaultJobTimeout is used when a job's metadata carries no "timeout" entry.
const DefaultJobTimeout = 300 * time.Second

// Timeout returns the job's configured handler timeout, or DefaultJobTimeout.
func (j *Job) Timeout() time.Duration {
	if j.Metadata == nil {
		return DefaultJobTimeout
	}
	switch v := j.Metadata["timeout"].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	default:
		return DefaultJobTimeout
	}
}

// CanRetry reports whether the job has attempts remaining.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// IsTerminal reports whether the job's status cannot transition further.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled
}

// SetProgress records handler progress (0-100) while the job is processing.
// Safe to call from the handler's goroutine concurrently with Snapshot.
func (j *Job) SetProgress(pct int) {
	j.progress.Store(int32(pct))
}

// Progress returns the job's last reported progress (0-100).
func (j *Job) Progress() int {
	return int(j.progress.Load())
}

// Snapshot is an immutable copy of a Job's externally visible state, returned
// from GetJob/GetJobs so callers can't mutate queue-owned state.
type Snapshot struct {
	ID            string
	Type          JobType
	Priority      Priority
	Status        JobStatus
	UserID        string
	Attempts      int
	MaxAttempts   int
	Progress      int
	Errors        []JobErrorEntry
	Result        any
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	NextAttemptAt time.Time
}

// Snapshot copies the externally visible state of a Job.
func (j *Job) Snapshot() Snapshot {
	errs := make([]JobErrorEntry, len(j.Errors))
	copy(errs, j.Errors)
	return Snapshot{
		ID:            j.ID,
		Type:          j.Type,
		Priority:      j.Priority,
		Status:        j.Status,
		UserID:        j.UserID,
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		Progress:      j.Progress(),
		Errors:        errs,
		Result:        j.Result,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		NextAttemptAt: j.NextAttemptAt,
	}
}
