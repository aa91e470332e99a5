package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) Config {
	cfg := DefaultConfig(name)
	cfg.Concurrency = 2
	cfg.MaxJobs = 5
	cfg.RetryInitialDelay = 10 * time.Millisecond
	cfg.RetryMaxDelay = 50 * time.Millisecond
	cfg.RetrySweepInterval = 20 * time.Millisecond
	cfg.HousekeepingInterval = time.Hour
	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestAddJob_RoundTripsThroughGetJob(t *testing.T) {
	q := New(testConfig("rt"))
	defer q.Shutdown(context.Background())

	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		return "done", nil
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, "payload", AddJobOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, created.Status)

	got, ok := q.GetJob(created.ID)
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusCompleted
	})
}

func TestAddJob_NoProcessorRegistered(t *testing.T) {
	q := New(testConfig("noproc"))
	defer q.Shutdown(context.Background())

	_, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	assert.ErrorIs(t, err, domain.ErrNoProcessor)
}

func TestAddJob_QueueFullBoundary(t *testing.T) {
	cfg := testConfig("full")
	cfg.MaxJobs = 2
	cfg.Concurrency = 1
	q := New(cfg)
	defer q.Shutdown(context.Background())

	block := make(chan struct{})
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	_, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	require.NoError(t, err)
	_, err = q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	require.NoError(t, err)

	_, err = q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestConcurrency_NeverExceedsCap(t *testing.T) {
	cfg := testConfig("conc")
	cfg.Concurrency = 3
	cfg.MaxJobs = 20
	q := New(cfg)
	defer q.Shutdown(context.Background())

	var current, maxSeen int32
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			seen := atomic.LoadInt32(&maxSeen)
			if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil, nil
	})

	for i := 0; i < 10; i++ {
		_, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, i, AddJobOptions{})
		require.NoError(t, err)
	}

	waitFor(t, func() bool {
		return len(q.GetCompleted()) == 10
	})
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 3)
}

func TestPriority_HigherPriorityRunsFirst(t *testing.T) {
	cfg := testConfig("prio")
	cfg.Concurrency = 1
	cfg.MaxJobs = 10
	q := New(cfg)
	defer q.Shutdown(context.Background())

	var mu sync.Mutex
	var order []string

	occupy := make(chan struct{})
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		name, _ := job.Payload.(string)
		if name == "occupier" {
			<-occupy
		}
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return nil, nil
	})

	_, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, "occupier", AddJobOptions{Priority: domain.PriorityNormal})
	require.NoError(t, err)
	waitFor(t, func() bool { return q.GetStats().Processing == 1 })

	_, err = q.AddJob(context.Background(), domain.JobTypeFileProcessing, "low", AddJobOptions{Priority: domain.PriorityLow})
	require.NoError(t, err)
	_, err = q.AddJob(context.Background(), domain.JobTypeFileProcessing, "urgent", AddJobOptions{Priority: domain.PriorityUrgent})
	require.NoError(t, err)

	close(occupy)

	waitFor(t, func() bool {
		return len(q.GetCompleted()) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, "occupier", order[0])
	assert.Equal(t, "urgent", order[1])
	assert.Equal(t, "low", order[2])
}

func TestRetry_TransientFailuresEventuallySucceed(t *testing.T) {
	q := New(testConfig("retry-ok"))
	defer q.Shutdown(context.Background())

	var attempts int32
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return "ok", nil
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{MaxAttempts: 5})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusCompleted
	})
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRetry_ExhaustsMaxAttemptsThenFails(t *testing.T) {
	q := New(testConfig("retry-fail"))
	defer q.Shutdown(context.Background())

	var attempts int32
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("temporary network error")
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{MaxAttempts: 3})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusFailed
	})
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	s, ok := q.GetJob(created.ID)
	require.True(t, ok)
	assert.Len(t, s.Errors, 3)
}

func TestRetry_PermanentErrorFailsImmediately(t *testing.T) {
	q := New(testConfig("permanent"))
	defer q.Shutdown(context.Background())

	var attempts int32
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, domain.PermanentErrorf("invalid file format")
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{MaxAttempts: 5})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusFailed
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestTimeout_TriggersRetryThenFails(t *testing.T) {
	q := New(testConfig("timeout"))
	defer q.Shutdown(context.Background())

	var attempts int32
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		atomic.AddInt32(&attempts, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{
		MaxAttempts: 2,
		Metadata:    map[string]any{"timeout": 20 * time.Millisecond},
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusFailed
	})
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))

	s, ok := q.GetJob(created.ID)
	require.True(t, ok)
	require.NotEmpty(t, s.Errors)
	assert.Contains(t, s.Errors[0].Message, "timeout after 20ms")
}

func TestCancelJob_PendingJobCancelledImmediately(t *testing.T) {
	cfg := testConfig("cancel-pending")
	cfg.Concurrency = 1
	q := New(cfg)
	defer q.Shutdown(context.Background())

	block := make(chan struct{})
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	_, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, "occupier", AddJobOptions{})
	require.NoError(t, err)
	waitFor(t, func() bool { return q.GetStats().Processing == 1 })

	pending, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, "waiting", AddJobOptions{})
	require.NoError(t, err)

	err = q.CancelJob(context.Background(), pending.ID)
	require.NoError(t, err)

	s, ok := q.GetJob(pending.ID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCancelled, s.Status)
}

func TestCancelJob_ProcessingJobCannotBeCancelled(t *testing.T) {
	cfg := testConfig("cancel-processing")
	q := New(cfg)
	defer q.Shutdown(context.Background())

	block := make(chan struct{})
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	require.NoError(t, err)
	waitFor(t, func() bool { return q.GetStats().Processing == 1 })

	err = q.CancelJob(context.Background(), created.ID)
	assert.ErrorIs(t, err, domain.ErrJobProcessing)
}

func TestCancelJob_CompletedJobNoLongerActive(t *testing.T) {
	q := New(testConfig("cancel-terminal"))
	defer q.Shutdown(context.Background())

	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		return "ok", nil
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusCompleted
	})

	err = q.CancelJob(context.Background(), created.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestProgress_NeverGoesBackwardsOnCompletion(t *testing.T) {
	q := New(testConfig("progress"))
	defer q.Shutdown(context.Background())

	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		return "done", nil
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusCompleted
	})
	s, _ := q.GetJob(created.ID)
	assert.Equal(t, 100, s.Progress)
}

func TestGetJobs_FiltersByStatusUserAndType(t *testing.T) {
	cfg := testConfig("filter")
	cfg.Concurrency = 1
	q := New(cfg)
	defer q.Shutdown(context.Background())

	block := make(chan struct{})
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		<-block
		return nil, nil
	})
	q.RegisterProcessor(domain.JobTypeFileCleanup, func(ctx context.Context, job *domain.Job) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	_, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{UserID: "alice"})
	require.NoError(t, err)
	_, err = q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{UserID: "bob"})
	require.NoError(t, err)
	_, err = q.AddJob(context.Background(), domain.JobTypeFileCleanup, nil, AddJobOptions{UserID: "alice"})
	require.NoError(t, err)

	assert.Len(t, q.GetJobs(Filter{}), 3)
	assert.Len(t, q.GetJobs(Filter{UserID: "alice"}), 2)
	assert.Len(t, q.GetJobs(Filter{UserID: "alice", Type: domain.JobTypeFileCleanup}), 1)
	assert.Empty(t, q.GetJobs(Filter{UserID: "carol"}))
}

func TestStats_LifetimeCountersAndAverage(t *testing.T) {
	q := New(testConfig("stats"))
	defer q.Shutdown(context.Background())

	var attempts int32
	q.RegisterProcessor(domain.JobTypeFileProcessing, func(ctx context.Context, job *domain.Job) (any, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, errors.New("temporary network error")
		}
		return "ok", nil
	})

	created, err := q.AddJob(context.Background(), domain.JobTypeFileProcessing, nil, AddJobOptions{MaxAttempts: 3})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s, ok := q.GetJob(created.ID)
		return ok && s.Status == domain.JobStatusCompleted
	})

	s := q.GetStats()
	assert.Equal(t, 1, s.TotalJobs)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, 1, s.RetriedJobs)
	assert.Greater(t, s.AverageProcessingTime, time.Duration(0))
	assert.False(t, s.LastProcessedAt.IsZero())
}

func TestRegistry_CreatesOnFirstAccessAndReuses(t *testing.T) {
	reg := NewRegistry(testConfig)
	defer reg.Shutdown(context.Background())

	a := reg.Get("alpha")
	b := reg.Get("alpha")
	assert.Same(t, a, b)

	c := reg.Get("beta")
	assert.NotSame(t, a, c)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, reg.Names())
}
