package domain

import (
	"errors"
	"fmt"
)

// PermanentError wraps an error a producer knows retrying will never fix.
// Tagging with PermanentError overrides whatever retry.Classify would otherwise
// infer from the wrapped error's code or message.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string { return e.Err.Error() }
func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so classifiers and the queue treat it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

// PermanentErrorf formats a message and tags it permanent.
func PermanentErrorf(format string, args ...any) error {
	return PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err (or something it wraps) is tagged permanent.
func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

// RetryableError wraps an error a producer knows is transient.
// Tagging with RetryableError overrides whatever retry.Classify would otherwise
// infer from the wrapped error's code or message.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so classifiers and the queue treat it as retryable.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// RetryableErrorf formats a message and tags it retryable.
func RetryableErrorf(format string, args ...any) error {
	return RetryableError{Err: fmt.Errorf(format, args...)}
}

// IsRetryable reports whether err (or something it wraps) is tagged retryable.
func IsRetryable(err error) bool {
	var r RetryableError
	return errors.As(err, &r)
}

// AppError is an application-level failure carrying an HTTP status, safe to
// surface to the transport layer without leaking internal detail.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError constructs an AppError with the given HTTP status.
func NewAppError(status int, code, message string, cause error) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Err: cause}
}

// Sentinel errors for the in-memory queue/repository surfaces.
var (
	ErrQueueFull        = errors.New("queue_full")
	ErrNoProcessor      = errors.New("no_processor")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobProcessing    = errors.New("job is currently processing")
	ErrJobAlreadyCancel = errors.New("job already cancelled")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrBatchNotCreated  = errors.New("batch is not in created state")
	ErrBatchTerminal    = errors.New("batch already in a terminal state")
	ErrForbidden        = errors.New("forbidden")
	ErrQuotaExceeded    = errors.New("quota exceeded")
)
