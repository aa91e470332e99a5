package domain

import (
	"math"
	"time"
)

// BatchStatus is the lifecycle state of a BatchJob.
type BatchStatus string

const (
	BatchStatusCreated            BatchStatus = "created"
	BatchStatusProcessing         BatchStatus = "processing"
	BatchStatusCompleted          BatchStatus = "completed"
	BatchStatusCompletedWithError BatchStatus = "completed_with_errors"
	BatchStatusFailed             BatchStatus = "failed"
	BatchStatusCancelled          BatchStatus = "cancelled"
)

// BatchFileStatus is the lifecycle state of one file entry within a batch.
type BatchFileStatus string

const (
	BatchFileStatusPending    BatchFileStatus = "pending"
	BatchFileStatusProcessing BatchFileStatus = "processing"
	BatchFileStatusCompleted  BatchFileStatus = "completed"
	BatchFileStatusFailed     BatchFileStatus = "failed"
)

// BatchFileEntry is one file's position, payload, and outcome within a batch.
type BatchFileEntry struct {
	Index            int
	OriginalName     string
	Mimetype         string
	Size             int64
	Buffer           []byte
	Status           BatchFileStatus
	FileID           string
	StorageRef       string
	Error            string
	ProcessedAt      time.Time
	ProcessingResult any
}

// BatchError is the aggregated, index-ordered view of one failed file entry.
type BatchError struct {
	FileIndex int    `json:"fileIndex"`
	FileName  string `json:"fileName"`
	Message   string `json:"message"`
}

// BatchResult is the aggregated, index-ordered view of one succeeded file entry.
type BatchResult struct {
	FileIndex int    `json:"fileIndex"`
	FileName  string `json:"fileName"`
	FileID    string `json:"fileId"`
	Result    any    `json:"result"`
}

// BatchJob is a user-facing aggregate of N file submissions sharing policy and
// aggregated status. It exclusively owns its file entries' buffers until terminal.
type BatchJob struct {
	BatchID     string
	UserID      string
	Description string
	Status      BatchStatus

	TotalFiles      int
	ProcessedFiles  int
	SuccessfulFiles int
	FailedFiles     int
	Progress        int

	ProcessInParallel bool
	MaxConcurrency    int

	Files []BatchFileEntry

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Results returns the successful file entries as an index-ordered aggregate view.
func (b *BatchJob) Results() []BatchResult {
	var out []BatchResult
	for _, f := range b.Files {
		if f.Status == BatchFileStatusCompleted {
			out = append(out, BatchResult{
				FileIndex: f.Index,
				FileName:  f.OriginalName,
				FileID:    f.FileID,
				Result:    f.ProcessingResult,
			})
		}
	}
	return out
}

// Errors returns the failed file entries as an index-ordered aggregate view.
func (b *BatchJob) Errors() []BatchError {
	var out []BatchError
	for _, f := range b.Files {
		if f.Status == BatchFileStatusFailed {
			out = append(out, BatchError{
				FileIndex: f.Index,
				FileName:  f.OriginalName,
				Message:   f.Error,
			})
		}
	}
	return out
}

// RecomputeProgress sets Progress from ProcessedFiles/TotalFiles.
func (b *BatchJob) RecomputeProgress() {
	if b.TotalFiles == 0 {
		b.Progress = 100
		return
	}
	b.Progress = int(math.Round(float64(b.ProcessedFiles) / float64(b.TotalFiles) * 100))
}

// FinalStatus derives the terminal status once all files have been processed.
func (b *BatchJob) FinalStatus() BatchStatus {
	if b.FailedFiles > 0 {
		return BatchStatusCompletedWithError
	}
	return BatchStatusCompleted
}
