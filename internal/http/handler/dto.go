package handler

import (
	"time"

	"github.com/fileforge/fileforge/internal/domain"
)

// jobDTO is the JSON-facing view of a domain.Snapshot.
type jobDTO struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Priority      int       `json:"priority"`
	Status        string    `json:"status"`
	UserID        string    `json:"userId,omitempty"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"maxAttempts"`
	Progress      int       `json:"progress"`
	Errors        []errDTO  `json:"errors,omitempty"`
	Result        any       `json:"result,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	CompletedAt   time.Time `json:"completedAt,omitempty"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitempty"`
}

type errDTO struct {
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

func newJobDTO(s domain.Snapshot) jobDTO {
	errs := make([]errDTO, len(s.Errors))
	for i, e := range s.Errors {
		errs[i] = errDTO{Message: e.Message, Code: e.Code, Attempt: e.Attempt, Timestamp: e.Timestamp}
	}
	return jobDTO{
		ID:            s.ID,
		Type:          string(s.Type),
		Priority:      int(s.Priority),
		Status:        string(s.Status),
		UserID:        s.UserID,
		Attempts:      s.Attempts,
		MaxAttempts:   s.MaxAttempts,
		Progress:      s.Progress,
		Errors:        errs,
		Result:        s.Result,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
		NextAttemptAt: s.NextAttemptAt,
	}
}

// batchFileDTO is the JSON-facing view of one domain.BatchFileEntry. Buffer
// bytes are deliberately omitted: the wire format never echoes file
// contents back to the caller.
type batchFileDTO struct {
	Index        int       `json:"index"`
	OriginalName string    `json:"originalName"`
	Mimetype     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	Status       string    `json:"status"`
	FileID       string    `json:"fileId,omitempty"`
	StorageRef   string    `json:"storageRef,omitempty"`
	Error        string    `json:"error,omitempty"`
	ProcessedAt  time.Time `json:"processedAt,omitempty"`
}

type batchDTO struct {
	BatchID           string               `json:"batchId"`
	UserID            string               `json:"userId"`
	Description       string               `json:"description,omitempty"`
	Status            string               `json:"status"`
	TotalFiles        int                  `json:"totalFiles"`
	ProcessedFiles    int                  `json:"processedFiles"`
	SuccessfulFiles   int                  `json:"successfulFiles"`
	FailedFiles       int                  `json:"failedFiles"`
	Progress          int                  `json:"progress"`
	ProcessInParallel bool                 `json:"processInParallel"`
	MaxConcurrency    int                  `json:"maxConcurrency"`
	Files             []batchFileDTO       `json:"files"`
	Results           []domain.BatchResult `json:"results,omitempty"`
	Errors            []domain.BatchError  `json:"errors,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	StartedAt         time.Time            `json:"startedAt,omitempty"`
	CompletedAt       time.Time            `json:"completedAt,omitempty"`
}

func newBatchDTO(b domain.BatchJob) batchDTO {
	files := make([]batchFileDTO, len(b.Files))
	for i, f := range b.Files {
		files[i] = batchFileDTO{
			Index:        f.Index,
			OriginalName: f.OriginalName,
			Mimetype:     f.Mimetype,
			Size:         f.Size,
			Status:       string(f.Status),
			FileID:       f.FileID,
			StorageRef:   f.StorageRef,
			Error:        f.Error,
			ProcessedAt:  f.ProcessedAt,
		}
	}
	return batchDTO{
		BatchID:           b.BatchID,
		UserID:            b.UserID,
		Description:       b.Description,
		Status:            string(b.Status),
		TotalFiles:        b.TotalFiles,
		ProcessedFiles:    b.ProcessedFiles,
		SuccessfulFiles:   b.SuccessfulFiles,
		FailedFiles:       b.FailedFiles,
		Progress:          b.Progress,
		ProcessInParallel: b.ProcessInParallel,
		MaxConcurrency:    b.MaxConcurrency,
		Files:             files,
		Results:           b.Results(),
		Errors:            b.Errors(),
		CreatedAt:         b.CreatedAt,
		StartedAt:         b.StartedAt,
		CompletedAt:       b.CompletedAt,
	}
}

type queueStatsDTO struct {
	Name                    string    `json:"name"`
	Pending                 int       `json:"pending"`
	Processing              int       `json:"processing"`
	Completed               int       `json:"completed"`
	Failed                  int       `json:"failed"`
	Cancelled               int       `json:"cancelled"`
	Retrying                int       `json:"retrying"`
	TotalJobs               int       `json:"totalJobs"`
	RetriedJobs             int       `json:"retriedJobs"`
	AverageProcessingTimeMS int64     `json:"averageProcessingTimeMs"`
	LastProcessedAt         time.Time `json:"lastProcessedAt,omitempty"`
}

type shareDTO struct {
	Token     string    `json:"token"`
	FileID    string    `json:"fileId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"createdAt"`
}
