// Package gcs is a Google Cloud Storage implementation of storage.Store.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	fstorage "github.com/fileforge/fileforge/internal/storage"
)

// Store is a GCS-backed implementation of storage.Store.
type Store struct {
	client *storage.Client
	bucket string
}

var _ fstorage.Store = (*Store)(nil)

// NewStore creates a GCS store against bucketName. The client is assumed to
// already be authenticated (e.g. via GOOGLE_APPLICATION_CREDENTIALS).
func NewStore(ctx context.Context, bucketName string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Store{client: client, bucket: bucketName}, nil
}

// Upload writes r to key in the configured bucket.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (fstorage.ObjectMetadata, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	written, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return fstorage.ObjectMetadata{}, fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fstorage.ObjectMetadata{}, fmt.Errorf("failed to finalize object: %w", err)
	}

	return fstorage.ObjectMetadata{Key: key, Size: written, ContentType: contentType}, nil
}

// Download opens a reader over the object at key.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fstorage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return r, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Stat returns the object's attributes without fetching its body.
func (s *Store) Stat(ctx context.Context, key string) (fstorage.ObjectMetadata, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fstorage.ObjectMetadata{}, fstorage.ErrNotFound
		}
		return fstorage.ObjectMetadata{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return fstorage.ObjectMetadata{
		Key: key, Size: attrs.Size, ContentType: attrs.ContentType, ETag: attrs.Etag,
	}, nil
}

// SignedURL returns a V4 signed URL valid for ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url: %w", err)
	}
	return url, nil
}
