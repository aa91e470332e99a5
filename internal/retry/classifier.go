// Package retry classifies errors as permanent, retryable, or unknown, and wraps
// operations in a bounded retry loop with exponential backoff and jitter. The
// classification decides whether a failure is retried or dead-lettered.
package retry

import (
	"strings"

	"github.com/fileforge/fileforge/internal/domain"
)

// Classification is the outcome of classifying an error.
type Classification int

const (
	Unknown Classification = iota
	Permanent
	Retryable
)

func (c Classification) String() string {
	switch c {
	case Permanent:
		return "permanent"
	case Retryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// StatusError is implemented by errors that carry an HTTP-ish status code.
type StatusError interface {
	StatusCode() int
}

// CodedError is implemented by errors that carry a symbolic code such as
// ECONNRESET or INVALID_FILE.
type CodedError interface {
	Code() string
}

var permanentCodes = map[string]bool{
	"ENOENT": true, "EACCES": true, "EPERM": true,
	"INVALID_FILE": true, "MALFORMED_DATA": true,
	"AUTHENTICATION_ERROR": true, "AUTHORIZATION_ERROR": true,
}

var retryableCodes = map[string]bool{
	"ECONNRESET": true, "ECONNREFUSED": true, "ETIMEDOUT": true,
	"ENOTFOUND": true, "EAI_AGAIN": true, "EPIPE": true,
	"NETWORK_ERROR": true, "TIMEOUT_ERROR": true,
	"SERVICE_UNAVAILABLE": true, "RATE_LIMITED": true, "TEMPORARY_FAILURE": true,
}

var permanentPhrases = []string{
	"invalid", "unauthorized", "forbidden", "not found", "malformed",
	"corrupt", "unsupported", "exceeded quota",
}

var retryablePhrases = []string{
	"timeout", "network", "connection", "unavailable", "rate limit",
	"temporary", "transient", "socket hang up", "econnreset", "econnrefused", "etimedout",
}

// Classify evaluates err in a fixed order: explicit tags first, then
// HTTP status, then coded errors, then message substrings, in that order.
func Classify(err error) Classification {
	if err == nil {
		return Unknown
	}
	if domain.IsPermanent(err) {
		return Permanent
	}
	if domain.IsRetryable(err) {
		return Retryable
	}

	if se, ok := asStatusError(err); ok {
		s := se.StatusCode()
		switch {
		case s == 408 || s == 429:
			return Retryable
		case s >= 500:
			return Retryable
		case s >= 400 && s < 500:
			return Permanent
		}
	}

	if ce, ok := asCodedError(err); ok {
		code := ce.Code()
		if permanentCodes[code] {
			return Permanent
		}
		if retryableCodes[code] {
			return Retryable
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range permanentPhrases {
		if strings.Contains(msg, p) {
			return Permanent
		}
	}
	for _, p := range retryablePhrases {
		if strings.Contains(msg, p) {
			return Retryable
		}
	}

	return Unknown
}

func asStatusError(err error) (StatusError, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if se, ok := err.(StatusError); ok {
			return se, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}

func asCodedError(err error) (CodedError, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ce, ok := err.(CodedError); ok {
			return ce, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}
