// Package batch implements BatchCoordinator, which drives N file submissions
// through the file-processing orchestrator under a shared policy (sequential
// or bounded-parallel) and aggregates their outcomes into one BatchJob.
package batch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore bounding how many of one batch's entries
// run concurrently. It is independent of any JobQueue's own concurrency cap
// so a single large batch cannot starve other users' jobs on the shared
// "processing" queue - it only throttles how many of *this* batch's files
// are in flight against the orchestrator at once.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore builds a Semaphore with the given capacity. Capacity below 1
// is clamped to 1 so a misconfigured batch still makes progress sequentially
// rather than deadlocking on a zero-weight semaphore.
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

// Release frees one slot.
func (s *Semaphore) Release() {
	s.sem.Release(1)
}
