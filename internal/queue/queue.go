package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/retry"
	"github.com/google/uuid"
)

type jobRecord struct {
	job *domain.Job
	seq uint64
}

// JobQueue is an in-memory, priority-ordered, bounded-concurrency scheduler
// for one named class of work. Jobs are selected by (-priority, createdAt,
// insertion order), run at most Concurrency at a time, retried with
// exponential backoff on retryable failure, and archived into completed/
// failed ring buffers once terminal.
type JobQueue struct {
	name string
	cfg  Config

	mu         sync.Mutex
	jobs       map[string]*jobRecord
	processors map[domain.JobType]Handler
	processing int
	nextSeq    uint64

	completed *ring
	failed    *ring
	events    *bus

	// lifetime counters, distinct from the bounded rings above
	totalJobs       int
	completedJobs   int
	failedJobs      int
	retriedJobs     int
	cancelledJobs   int
	processingTime  time.Duration
	lastProcessedAt time.Time

	wakeCh  chan struct{}
	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// New constructs a JobQueue and starts its scheduling loop.
func New(cfg Config) *JobQueue {
	cfg.applyDefaults()
	q := &JobQueue{
		name:       cfg.Name,
		cfg:        cfg,
		jobs:       make(map[string]*jobRecord),
		processors: make(map[domain.JobType]Handler),
		completed:  newRing(cfg.CompletedCapacity),
		failed:     newRing(cfg.FailedCapacity),
		events:     newBus(),
		wakeCh:     make(chan struct{}, 1),
		closing:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// RegisterProcessor binds a handler to a job type, replacing any existing
// registration for that type.
func (q *JobQueue) RegisterProcessor(t domain.JobType, h Handler) {
	q.mu.Lock()
	q.processors[t] = h
	q.mu.Unlock()
}

// Subscribe returns a channel of lifecycle events for this queue.
func (q *JobQueue) Subscribe() <-chan Event {
	return q.events.Subscribe()
}

// AddJob admits a new job of the given type. It fails with ErrNoProcessor if
// no handler is registered for t, or ErrQueueFull if the queue is already at
// its MaxJobs admission cap.
func (q *JobQueue) AddJob(ctx context.Context, t domain.JobType, payload any, opts AddJobOptions) (domain.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.Snapshot{}, fmt.Errorf("queue %q is shut down", q.name)
	}
	if _, ok := q.processors[t]; !ok {
		return domain.Snapshot{}, domain.ErrNoProcessor
	}
	if len(q.jobs) >= q.cfg.MaxJobs {
		return domain.Snapshot{}, domain.ErrQueueFull
	}

	now := time.Now()
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	priority := opts.Priority
	if priority == 0 {
		priority = domain.PriorityNormal
	}

	job := &domain.Job{
		ID:            uuid.NewString(),
		Type:          t,
		Priority:      priority,
		Status:        domain.JobStatusQueued,
		Payload:       payload,
		UserID:        opts.UserID,
		MaxAttempts:   maxAttempts,
		Metadata:      opts.Metadata,
		Delay:         opts.Delay,
		NextAttemptAt: now.Add(opts.Delay),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	q.nextSeq++
	q.jobs[job.ID] = &jobRecord{job: job, seq: q.nextSeq}
	q.totalJobs++

	slog.InfoContext(ctx, "job added", "queue", q.name, "job_id", job.ID, "type", string(t), "priority", int(priority))
	q.events.publish(Event{Type: EventJobAdded, QueueName: q.name, Job: job.Snapshot()})
	q.signal()

	return job.Snapshot(), nil
}

// GetJob returns the current snapshot of job id, searching active jobs first
// and then the completed/failed history.
func (q *JobQueue) GetJob(id string) (domain.Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rec, ok := q.jobs[id]; ok {
		return rec.job.Snapshot(), true
	}
	for _, s := range q.completed.items {
		if s.ID == id {
			return s, true
		}
	}
	for _, s := range q.failed.items {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Snapshot{}, false
}

// GetJobs returns snapshots of every active (non-terminal) job matching f.
// A zero Filter matches everything.
func (q *JobQueue) GetJobs(f Filter) []domain.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Snapshot, 0, len(q.jobs))
	for _, rec := range q.jobs {
		s := rec.job.Snapshot()
		if f.matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// GetCompleted returns the completed-history ring, oldest first.
func (q *JobQueue) GetCompleted() []domain.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed.snapshot()
}

// GetFailedJobs returns the dead-letter ring, oldest first.
func (q *JobQueue) GetFailedJobs() []domain.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failed.snapshot()
}

// CancelJob cancels a pending or retrying job. Processing jobs cannot be
// cancelled (ErrJobProcessing): the handler is left to finish cooperatively.
// Jobs that already reached a terminal state are no longer tracked as
// active and report ErrJobNotFound.
func (q *JobQueue) CancelJob(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	switch rec.job.Status {
	case domain.JobStatusProcessing:
		return domain.ErrJobProcessing
	case domain.JobStatusCompleted, domain.JobStatusCancelled:
		return domain.ErrJobAlreadyCancel
	}

	now := time.Now()
	rec.job.Status = domain.JobStatusCancelled
	rec.job.UpdatedAt = now
	rec.job.CompletedAt = now
	delete(q.jobs, id)
	q.completed.push(rec.job.Snapshot())
	q.cancelledJobs++

	slog.InfoContext(ctx, "job cancelled", "queue", q.name, "job_id", id)
	q.events.publish(Event{Type: EventJobCancelled, QueueName: q.name, Job: rec.job.Snapshot()})
	return nil
}

// GetStats returns a point-in-time count of this queue's jobs by status.
func (q *JobQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Name: q.name}
	for _, rec := range q.jobs {
		switch rec.job.Status {
		case domain.JobStatusPending, domain.JobStatusQueued:
			s.Pending++
		case domain.JobStatusProcessing:
			s.Processing++
		case domain.JobStatusRetrying:
			s.Retrying++
		}
	}
	s.Completed = q.completedJobs
	s.Failed = q.failedJobs
	s.Cancelled = q.cancelledJobs
	s.TotalJobs = q.totalJobs
	s.RetriedJobs = q.retriedJobs
	if q.completedJobs > 0 {
		s.AverageProcessingTime = q.processingTime / time.Duration(q.completedJobs)
	}
	s.LastProcessedAt = q.lastProcessedAt
	return s
}

// Shutdown stops admission and the scheduling loop, then waits for in-flight
// attempts to finish (each bounded by its job timeout) or for ctx to end.
func (q *JobQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.closing)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *JobQueue) signal() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

func (q *JobQueue) loop() {
	defer q.wg.Done()

	housekeeping := time.NewTicker(q.cfg.HousekeepingInterval)
	retrySweep := time.NewTicker(q.cfg.RetrySweepInterval)
	defer housekeeping.Stop()
	defer retrySweep.Stop()

	for {
		select {
		case <-q.closing:
			return
		case <-q.wakeCh:
			q.dispatch()
		case <-retrySweep.C:
			q.dispatch()
		case <-housekeeping.C:
			q.evictArchived()
		}
	}
}

// dispatch starts as many eligible jobs as there is free concurrency for.
func (q *JobQueue) dispatch() {
	for {
		rec, ok := q.claimNext()
		if !ok {
			return
		}
		q.wg.Add(1)
		go q.runJob(rec)
	}
}

// claimNext selects the best eligible queued/retrying job and marks it
// processing, or returns ok=false if concurrency is saturated or nothing is
// eligible yet.
func (q *JobQueue) claimNext() (*jobRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing >= q.cfg.Concurrency {
		return nil, false
	}

	now := time.Now()
	var best *jobRecord
	for _, rec := range q.jobs {
		st := rec.job.Status
		if st != domain.JobStatusQueued && st != domain.JobStatusRetrying {
			continue
		}
		if rec.job.NextAttemptAt.After(now) {
			continue
		}
		if best == nil || better(rec, best) {
			best = rec
		}
	}
	if best == nil {
		return nil, false
	}

	best.job.Status = domain.JobStatusProcessing
	best.job.Attempts++
	best.job.StartedAt = now
	best.job.UpdatedAt = now
	best.job.SetProgress(0)
	q.processing++

	q.events.publish(Event{Type: EventJobStarted, QueueName: q.name, Job: best.job.Snapshot()})
	return best, true
}

// better reports whether a should be scheduled ahead of b: higher priority
// first, then earlier createdAt, then earlier insertion order.
func better(a, b *jobRecord) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
		return a.job.CreatedAt.Before(b.job.CreatedAt)
	}
	return a.seq < b.seq
}

// runJob executes rec's handler under a per-job timeout, recovering panics,
// then routes the outcome through finishAttempt.
func (q *JobQueue) runJob(rec *jobRecord) {
	defer q.wg.Done()

	q.mu.Lock()
	handler := q.processors[rec.job.Type]
	timeout := rec.job.Timeout()
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: domain.PermanentErrorf("panic in job handler: %v\n%s", r, debug.Stack())}
			}
		}()
		res, err := handler(ctx, rec.job)
		resultCh <- outcome{result: res, err: err}
	}()

	var res any
	var err error
	select {
	case o := <-resultCh:
		res, err = o.result, o.err
	case <-ctx.Done():
		err = domain.RetryableErrorf("job timeout after %dms", timeout.Milliseconds())
	}

	q.finishAttempt(rec, res, err)
	q.signal()
}

// finishAttempt records the outcome of one attempt: success completes the
// job, a permanent or exhausted failure dead-letters it, otherwise it's
// rescheduled with exponential backoff.
func (q *JobQueue) finishAttempt(rec *jobRecord, result any, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := rec.job
	now := time.Now()
	q.processing--

	if err == nil {
		job.Status = domain.JobStatusCompleted
		job.Result = result
		job.SetProgress(100)
		job.CompletedAt = now
		job.UpdatedAt = now
		delete(q.jobs, job.ID)
		q.completed.push(job.Snapshot())
		q.completedJobs++
		q.processingTime += now.Sub(job.StartedAt)
		q.lastProcessedAt = now

		slog.Info("job completed", "queue", q.name, "job_id", job.ID, "attempts", job.Attempts)
		q.events.publish(Event{Type: EventJobCompleted, QueueName: q.name, Job: job.Snapshot()})
		return
	}

	class := retry.Classify(err)
	job.Errors = append(job.Errors, domain.JobErrorEntry{
		Message: err.Error(), Code: class.String(), Attempt: job.Attempts, Timestamp: now,
	})
	job.UpdatedAt = now

	if class == retry.Permanent || !job.CanRetry() {
		job.Status = domain.JobStatusFailed
		job.CompletedAt = now
		delete(q.jobs, job.ID)
		q.failed.push(job.Snapshot())
		q.failedJobs++
		q.lastProcessedAt = now

		slog.Warn("job failed", "queue", q.name, "job_id", job.ID, "attempts", job.Attempts, "error", err.Error())
		q.events.publish(Event{Type: EventJobFailed, QueueName: q.name, Job: job.Snapshot()})
		return
	}

	job.Status = domain.JobStatusRetrying
	job.NextAttemptAt = now.Add(q.backoffDelay(job.Attempts))
	q.retriedJobs++

	slog.Info("job scheduled for retry", "queue", q.name, "job_id", job.ID, "attempt", job.Attempts, "next_attempt_at", job.NextAttemptAt)
	q.events.publish(Event{Type: EventJobRetry, QueueName: q.name, Job: job.Snapshot()})
}

// backoffDelay computes min(initialDelay*multiplier^(attempts-1), maxDelay).
func (q *JobQueue) backoffDelay(attempts int) time.Duration {
	d := float64(q.cfg.RetryInitialDelay) * math.Pow(q.cfg.RetryMultiplier, float64(attempts-1))
	max := float64(q.cfg.RetryMaxDelay)
	if d > max {
		d = max
	}
	return time.Duration(d)
}

// evictArchived drops completed/failed history entries older than ArchiveTTL.
func (q *JobQueue) evictArchived() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-q.cfg.ArchiveTTL)
	q.completed.items = filterNewerThan(q.completed.items, cutoff)
	q.failed.items = filterNewerThan(q.failed.items, cutoff)
}

func filterNewerThan(items []domain.Snapshot, cutoff time.Time) []domain.Snapshot {
	out := items[:0]
	for _, s := range items {
		ts := s.CompletedAt
		if ts.IsZero() {
			ts = s.CreatedAt
		}
		if ts.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}
