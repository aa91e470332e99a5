package fileproc

import (
	"context"
	"testing"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFProcessor_InvalidSignatureIsPermanent(t *testing.T) {
	store := newFakeStore()
	store.put("not-a.pdf", []byte("this is just plain text, not a pdf"), "application/pdf")

	proc := NewPDFProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "not-a.pdf"})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Contains(t, err.Error(), "valid PDF signature")
}

func TestPDFProcessor_CorruptedPDFIsPermanent(t *testing.T) {
	store := newFakeStore()
	// Valid %PDF signature but no usable structure behind it.
	store.put("corrupt.pdf", []byte("%PDF-1.4\nthis is not a real pdf body"), "application/pdf")

	proc := NewPDFProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "corrupt.pdf"})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestPDFProcessor_DeclaredSizeOverLimitIsPermanent(t *testing.T) {
	store := newFakeStore() // nothing stored: the guard must fire before any download
	proc := NewPDFProcessor(store)

	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "big.pdf", Size: 60 * 1024 * 1024})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Contains(t, err.Error(), "too large to process")
}

func TestPDFProcessor_TooLargeIsPermanent(t *testing.T) {
	store := newFakeStore()
	store.put("big.pdf", make([]byte, maxPDFBytes+1), "application/pdf")

	proc := NewPDFProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "big.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestPDFProcessor_MissingObjectFails(t *testing.T) {
	store := newFakeStore()
	proc := NewPDFProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "nope.pdf"})
	assert.Error(t, err)
}
