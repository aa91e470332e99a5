package fileproc

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/retry"
	"github.com/fileforge/fileforge/internal/storage"
)

// fetchTimeout bounds how long a single download attempt may take.
const fetchTimeout = 30 * time.Second

// transferError marks a failure that happened before the file's bytes could
// be interpreted: downloads, size caps, signature checks. The orchestrator
// propagates these as job errors so the queue can retry or fail the job,
// while interpretation failures after a successful transfer fold into a
// failed Result instead.
type transferError struct{ err error }

func (e transferError) Error() string { return e.err.Error() }
func (e transferError) Unwrap() error { return e.err }

func transfer(err error) error {
	if err == nil {
		return nil
	}
	return transferError{err: err}
}

func isTransferError(err error) bool {
	var t transferError
	return errors.As(err, &t)
}

// fetchBuffer downloads key in full, retrying transient failures per the
// network preset so a flaky connection is absorbed inside the processor and
// costs the job nothing at the queue level. It aborts with a permanent "too
// large" error if the declared or observed size exceeds maxBytes; permanent
// failures are not retried.
func fetchBuffer(ctx context.Context, store storage.Store, key string, maxBytes int64) ([]byte, error) {
	exec := retry.NewExecutor(retry.NetworkPreset)
	data, err := retry.Execute(ctx, exec, func(ctx context.Context) ([]byte, error) {
		return downloadBuffer(ctx, store, key, maxBytes)
	})
	if err != nil {
		return nil, transfer(err)
	}
	return data, nil
}

// downloadBuffer is one bounded download attempt.
func downloadBuffer(ctx context.Context, store storage.Store, key string, maxBytes int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	meta, err := store.Stat(ctx, key)
	if err == nil && meta.Size > maxBytes {
		return nil, domain.PermanentErrorf("file too large: %d bytes exceeds limit of %d bytes", meta.Size, maxBytes)
	}

	r, err := store.Download(ctx, key)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	defer r.Close()

	limited := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	if int64(len(data)) > maxBytes {
		return nil, domain.PermanentErrorf("file too large: exceeds limit of %d bytes", maxBytes)
	}
	return data, nil
}

// fetchStream opens a streaming reader over key without buffering it,
// retrying the open per the network preset and leaving size-cap enforcement
// to the caller (which reads incrementally and can track a running total
// against maxBytes as it parses).
func fetchStream(ctx context.Context, store storage.Store, key string) (io.ReadCloser, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	exec := retry.NewExecutor(retry.NetworkPreset)
	r, err := retry.Execute(ctx, exec, func(ctx context.Context) (io.ReadCloser, error) {
		r, err := store.Download(ctx, key)
		if err != nil {
			return nil, classifyFetchError(err)
		}
		return r, nil
	})
	if err != nil {
		cancel()
		return nil, nil, transfer(err)
	}
	return r, cancel, nil
}

// classifyFetchError tags connection-shaped failures retryable and treats
// everything else (missing object, permission denial) as permanent.
func classifyFetchError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return domain.PermanentErrorf("file not found in storage: %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.RetryableErrorf("timed out fetching file: %v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.RetryableErrorf("network error fetching file: %v", err)
	}
	return domain.PermanentErrorf("failed to fetch file: %v", err)
}

// sizeCappedReader wraps r, returning a permanent "too large" error once more
// than maxBytes have been read, the way the CSV processor caps total bytes
// read across an unknown number of streamed rows.
type sizeCappedReader struct {
	r        io.Reader
	maxBytes int64
	read     int64
}

func (s *sizeCappedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)
	if s.read > s.maxBytes {
		return n, transfer(domain.PermanentErrorf("file too large: exceeds limit of %d bytes", s.maxBytes))
	}
	return n, err
}
