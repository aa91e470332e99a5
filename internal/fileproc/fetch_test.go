package fileproc

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails its first n Download calls with a connection reset, then
// delegates to the wrapped store.
type flakyStore struct {
	*fakeStore
	failures int32
}

func (s *flakyStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return nil, &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	}
	return s.fakeStore.Download(ctx, key)
}

func TestFetchBuffer_RetriesTransientDownloadFailures(t *testing.T) {
	inner := newFakeStore()
	inner.put("data.csv", []byte("a,b\n1,2\n"), "text/csv")
	store := &flakyStore{fakeStore: inner, failures: 2}

	data, err := fetchBuffer(context.Background(), store, "data.csv", maxCSVBytes)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, int32(-1), atomic.LoadInt32(&store.failures), "download succeeded on the third attempt")
}

func TestFetchBuffer_PermanentFailureIsNotRetried(t *testing.T) {
	store := &flakyStore{fakeStore: newFakeStore()} // no failures armed; object simply missing

	_, err := fetchBuffer(context.Background(), store, "nope.bin", 1024)
	require.Error(t, err)
	assert.True(t, isTransferError(err))
	assert.True(t, domain.IsPermanent(err))
}

func TestFetchStream_RetriesTransientOpenFailures(t *testing.T) {
	inner := newFakeStore()
	inner.put("data.csv", []byte("a,b\n1,2\n"), "text/csv")
	store := &flakyStore{fakeStore: inner, failures: 1}

	r, cancel, err := fetchStream(context.Background(), store, "data.csv")
	require.NoError(t, err)
	defer cancel()
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
