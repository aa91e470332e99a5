package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// AttemptRecord describes the outcome of one attempt made by RetryExecutor.Execute.
type AttemptRecord struct {
	Attempt      int
	Success      bool
	Duration     time.Duration
	ErrorSummary string
	Classification Classification
}

// Config controls RetryExecutor's backoff schedule.
type Config struct {
	MaxRetries        int           // additional attempts after the first; total attempts = MaxRetries+1
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// Presets mirror the named retry policies used across the file-processing
// pipeline (upload, processing, network fetches, database calls, external APIs).
var (
	FileUploadPreset = Config{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: 60 * time.Second, BackoffMultiplier: 2, Jitter: true}
	FileProcessingPreset = Config{MaxRetries: 3, InitialDelay: 1 * time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2, Jitter: true}
	NetworkPreset = Config{MaxRetries: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffMultiplier: 1.5, Jitter: true}
	DatabasePreset = Config{MaxRetries: 2, InitialDelay: 1 * time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2, Jitter: true}
	ExternalAPIPreset = Config{MaxRetries: 3, InitialDelay: 1500 * time.Millisecond, MaxDelay: 20 * time.Second, BackoffMultiplier: 2, Jitter: true}
)

// DefaultConfig is used by NewExecutor when no Config is supplied.
func DefaultConfig() Config {
	return FileProcessingPreset
}

// Executor wraps an operation in a bounded retry loop with exponential backoff,
// consulting Classify and honoring permanent errors. Unknown classification is
// treated as retryable here so transient conditions outside the known lists
// still get retried; the queue still enforces its own MaxAttempts separately.
type Executor struct {
	cfg Config
}

// NewExecutor constructs an Executor from cfg, filling any zero fields from DefaultConfig.
func NewExecutor(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	return &Executor{cfg: cfg}
}

// ExhaustedError is returned by Execute whenever it gives up: after all
// retries are spent, on a permanent error, or when ctx ends. It wraps the
// final underlying error and carries the full attempt history.
type ExhaustedError struct {
	Err      error
	Attempts []AttemptRecord
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", len(e.Attempts), e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// delayFor computes min(initialDelay*multiplier^attempt, maxDelay), applying
// ±10% jitter (floored at 100ms) when cfg.Jitter is set. attempt is 0-based.
func delayFor(cfg Config, attempt int) time.Duration {
	base := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		base *= cfg.BackoffMultiplier
	}
	d := time.Duration(base)
	if max := cfg.MaxDelay; max > 0 && d > max {
		d = max
	}
	if !cfg.Jitter {
		return d
	}
	noise := (rand.Float64()*2 - 1) * 0.10 * float64(d)
	jittered := time.Duration(float64(d) + noise)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

// fixedBackOff adapts delayFor's schedule to backoff.BackOff so the retry loop
// below can drive its sleeps through the same library the rest of the pack's
// retrying workers use, rather than a bespoke timer.
type fixedBackOff struct {
	cfg     Config
	attempt int
}

func (f *fixedBackOff) NextBackOff() time.Duration {
	d := delayFor(f.cfg, f.attempt)
	f.attempt++
	return d
}

func (f *fixedBackOff) Reset() { f.attempt = 0 }

var _ backoff.BackOff = (*fixedBackOff)(nil)

// Execute runs op, retrying on retryable/unknown errors per the executor's
// schedule, and returns its result or a wrapped ExhaustedError once it gives
// up. A permanent classification (or an error tagged domain.Permanent)
// aborts immediately, still wrapped in ExhaustedError, without consuming the
// remaining attempts.
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var history []AttemptRecord
	attempt := 0
	bo := &fixedBackOff{cfg: e.cfg}

	result, err := backoff.Retry(ctx, func() (T, error) {
		start := time.Now()
		res, opErr := op(ctx)
		dur := time.Since(start)
		attempt++

		if opErr == nil {
			history = append(history, AttemptRecord{Attempt: attempt, Success: true, Duration: dur})
			return res, nil
		}

		class := Classify(opErr)
		history = append(history, AttemptRecord{
			Attempt: attempt, Success: false, Duration: dur,
			ErrorSummary: opErr.Error(), Classification: class,
		})

		if class == Permanent {
			return res, backoff.Permanent(opErr)
		}
		return res, opErr
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(e.cfg.MaxRetries+1)))

	if err == nil {
		return result, nil
	}
	return result, &ExhaustedError{Err: err, Attempts: history}
}
