package fileproc

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/storage"
)

// fakeStore is an in-memory storage.Store for fileproc tests.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

var _ storage.Store = (*fakeStore)(nil)

func (f *fakeStore) put(key string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
}

func (f *fakeStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.ObjectMetadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectMetadata{}, err
	}
	f.put(key, data, contentType)
	return storage.ObjectMetadata{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (f *fakeStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.types, key)
	return nil
}

func (f *fakeStore) Stat(ctx context.Context, key string) (storage.ObjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return storage.ObjectMetadata{}, storage.ErrNotFound
	}
	return storage.ObjectMetadata{Key: key, Size: int64(len(data)), ContentType: f.types[key]}, nil
}

func (f *fakeStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}
