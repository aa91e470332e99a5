package fileproc

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"

	"github.com/fileforge/fileforge/internal/storage"
)

// gzipUpload compresses data and uploads it to key, returning the stored
// object's metadata. No pack example wires a third-party compression
// library, so this uses the standard library's compress/gzip.
func gzipUpload(ctx context.Context, store storage.Store, key string, data []byte) (storage.ObjectMetadata, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to gzip data: %w", err)
	}
	if err := w.Close(); err != nil {
		return storage.ObjectMetadata{}, fmt.Errorf("failed to finalize gzip stream: %w", err)
	}

	return store.Upload(ctx, key, &buf, int64(buf.Len()), "application/gzip")
}
