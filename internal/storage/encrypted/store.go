// Package encrypted wraps a storage.Store with transparent AES-256-GCM
// encryption at rest: Upload encrypts before handing bytes to the inner
// store, Download decrypts before handing them back, and every other
// operation passes through unchanged. Callers (the batch coordinator, the
// typed file processors) see plaintext throughout; only the backend ever
// holds ciphertext.
package encrypted

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/cryptutil"
	"github.com/fileforge/fileforge/internal/storage"
)

// Store decorates an inner storage.Store, encrypting object bodies with box.
type Store struct {
	inner storage.Store
	box   *cryptutil.Box

	mu    sync.Mutex
	sizes map[string]int64 // key -> plaintext size, since Stat otherwise reports ciphertext size
}

var _ storage.Store = (*Store)(nil)

// Wrap builds a Store that encrypts everything written through inner with box.
func Wrap(inner storage.Store, box *cryptutil.Box) *Store {
	return &Store{inner: inner, box: box, sizes: make(map[string]int64)}
}

// Upload reads r fully, encrypts it, and writes the ciphertext to the inner
// store. The returned metadata reports the plaintext size so callers (size
// caps, quota accounting) never see the encryption overhead.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.ObjectMetadata, error) {
	plaintext, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to buffer plaintext for encryption: %w", err)
	}

	ciphertext, err := s.box.Encrypt(plaintext)
	if err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to encrypt object: %w", err)
	}

	meta, err := s.inner.Upload(ctx, key, bytes.NewReader(ciphertext), int64(len(ciphertext)), contentType)
	if err != nil {
		return storage.ObjectMetadata{}, err
	}

	s.mu.Lock()
	s.sizes[key] = int64(len(plaintext))
	s.mu.Unlock()

	meta.Size = int64(len(plaintext))
	meta.ContentType = contentType
	return meta, nil
}

// Download opens key on the inner store, reads its ciphertext, and returns a
// reader over the decrypted plaintext.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.inner.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read ciphertext: %w", err)
	}
	plaintext, err := s.box.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt object %q: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

// Delete removes key from the inner store and forgets its tracked plaintext size.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.inner.Delete(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sizes, key)
	s.mu.Unlock()
	return nil
}

// Stat returns the inner store's metadata with Size overridden to the
// tracked plaintext size, if this Store instance uploaded the object.
func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectMetadata, error) {
	meta, err := s.inner.Stat(ctx, key)
	if err != nil {
		return storage.ObjectMetadata{}, err
	}
	s.mu.Lock()
	size, ok := s.sizes[key]
	s.mu.Unlock()
	if ok {
		meta.Size = size
	}
	return meta, nil
}

// SignedURL passes through to the inner store. The resulting URL points at
// ciphertext bytes on the backend; embedders that need a public download
// link for encrypted objects must proxy it through Download rather than
// handing this URL to end users directly.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.inner.SignedURL(ctx, key, ttl)
}
