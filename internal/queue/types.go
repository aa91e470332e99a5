// Package queue implements an in-memory, per-name priority job queue with
// bounded concurrency, per-job timeouts, exponential-backoff retries, and
// completed/failed history ring buffers.
package queue

import (
	"context"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
)

// Handler processes one job's payload and returns its result. Handlers
// receive a context scoped to the job's timeout and must respect
// cancellation; ctx.Err() surfaces as a retryable timeout.
type Handler func(ctx context.Context, job *domain.Job) (any, error)

// Config controls one JobQueue's admission, concurrency, and retry policy.
type Config struct {
	Name        string
	Concurrency int // max jobs processed simultaneously
	MaxJobs     int // max jobs (any non-terminal status) admitted at once

	CompletedCapacity int // ring buffer size for completed jobs, default 100
	FailedCapacity    int // ring buffer size for failed jobs, default 50

	RetryInitialDelay time.Duration // default 1s
	RetryMaxDelay     time.Duration // default 60s
	RetryMultiplier   float64       // default 2

	HousekeepingInterval time.Duration // default 60s
	ArchiveTTL           time.Duration // default 24h
	RetrySweepInterval   time.Duration // default 30s
}

// DefaultConfig returns the queue's default Config for name.
func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		Concurrency:          5,
		MaxJobs:              1000,
		CompletedCapacity:    100,
		FailedCapacity:       50,
		RetryInitialDelay:    time.Second,
		RetryMaxDelay:        60 * time.Second,
		RetryMultiplier:      2,
		HousekeepingInterval: 60 * time.Second,
		ArchiveTTL:           24 * time.Hour,
		RetrySweepInterval:   30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.Name)
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxJobs == 0 {
		c.MaxJobs = d.MaxJobs
	}
	if c.CompletedCapacity == 0 {
		c.CompletedCapacity = d.CompletedCapacity
	}
	if c.FailedCapacity == 0 {
		c.FailedCapacity = d.FailedCapacity
	}
	if c.RetryInitialDelay == 0 {
		c.RetryInitialDelay = d.RetryInitialDelay
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.RetryMultiplier == 0 {
		c.RetryMultiplier = d.RetryMultiplier
	}
	if c.HousekeepingInterval == 0 {
		c.HousekeepingInterval = d.HousekeepingInterval
	}
	if c.ArchiveTTL == 0 {
		c.ArchiveTTL = d.ArchiveTTL
	}
	if c.RetrySweepInterval == 0 {
		c.RetrySweepInterval = d.RetrySweepInterval
	}
}

// AddJobOptions customizes a single job's admission.
type AddJobOptions struct {
	Priority    domain.Priority
	MaxAttempts int
	UserID      string
	Metadata    map[string]any
	Delay       time.Duration // minimum time before the job becomes eligible to run
}

// Filter narrows GetJobs to active jobs matching every non-zero field.
type Filter struct {
	Status domain.JobStatus
	UserID string
	Type   domain.JobType
}

func (f Filter) matches(s domain.Snapshot) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	return true
}

// Stats is a point-in-time snapshot of one queue's composition plus its
// lifetime counters.
type Stats struct {
	Name       string
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
	Retrying   int

	TotalJobs             int
	RetriedJobs           int
	AverageProcessingTime time.Duration
	LastProcessedAt       time.Time
}
