// Package storage defines the object-storage collaborator the file-processing
// pipeline uploads to and downloads from, with filesystem, GCS, and S3
// implementations.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Download/Delete/Stat when key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectMetadata describes a stored object without fetching its body.
type ObjectMetadata struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// Store is the storage collaborator typed processors and the orchestrator
// use to persist uploaded files, fetch them back for processing, and hand
// out URLs for download or thumbnail retrieval. Implementations must be
// safe for concurrent use.
type Store interface {
	// Upload writes size bytes from r under key, returning the stored object's metadata.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ObjectMetadata, error)

	// Download opens a reader over the object at key. Callers must Close it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Stat returns metadata for key without fetching its body.
	Stat(ctx context.Context, key string) (ObjectMetadata, error)

	// SignedURL returns a time-limited URL for downloading key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Thumbnailer is an optional capability a Store may implement when its
// backend offers on-the-fly image transformation (e.g. a CDN resize query
// parameter). ImageProcessor prefers this over rendering a thumbnail
// in-process; none of this module's fs/gcs/s3 backends implement it today,
// so image processing always falls back to local rendering, but the hook
// exists for a transformation-capable backend to slot into without
// changing ImageProcessor's call site.
type Thumbnailer interface {
	ThumbnailURL(ctx context.Context, key string, width, height int) (string, error)
}
