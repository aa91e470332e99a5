// Package fs is a local-filesystem implementation of storage.Store, used for
// development and tests in place of a cloud object store.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/storage"
)

// Store is a filesystem-based implementation of storage.Store. Objects are
// written under baseDir using their key as a relative path; a sidecar
// "<key>.meta.json" file carries content type and size.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a filesystem store rooted at baseDir, creating it if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

type sidecar struct {
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (s *Store) objectPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *Store) sidecarPath(key string) string {
	return s.objectPath(key) + ".meta.json"
}

// Upload writes r to baseDir/key and records its content type in a sidecar file.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.ObjectMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to create object file: %w", err)
	}
	written, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to write object: %w", err)
	}
	if closeErr != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to close object file: %w", closeErr)
	}

	meta := sidecar{ContentType: contentType, Size: written}
	data, err := json.Marshal(meta)
	if err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to marshal object metadata: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath(key), data, 0644); err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to write object metadata: %w", err)
	}

	return storage.ObjectMetadata{Key: key, Size: written, ContentType: contentType}, nil
}

// Download opens the object at key for reading.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Delete removes the object and its sidecar at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.objectPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	_ = os.Remove(s.sidecarPath(key))
	return nil
}

// Stat reads the sidecar metadata for key.
func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.sidecarPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ObjectMetadata{}, storage.ErrNotFound
		}
		return storage.ObjectMetadata{}, fmt.Errorf("failed to read object metadata: %w", err)
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to unmarshal object metadata: %w", err)
	}
	return storage.ObjectMetadata{Key: key, Size: meta.Size, ContentType: meta.ContentType}, nil
}

// SignedURL returns a file:// URL; local storage has no expiring-link concept,
// so ttl is accepted for interface compatibility and otherwise ignored.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.objectPath(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to stat object: %w", err)
	}
	return "file://" + path, nil
}
