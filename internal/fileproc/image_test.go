package fileproc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestImageProcessor_ExtractsDimensionsAndThumbnail(t *testing.T) {
	store := newFakeStore()
	store.put("img.jpg", encodeTestJPEG(t, 400, 200), "image/jpeg")

	proc := NewImageProcessor(store)
	result, err := proc.Process(context.Background(), FileMeta{
		FileID: "f1", StorageKey: "img.jpg", Mimetype: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, 400, result.Width)
	assert.Equal(t, 200, result.Height)
	assert.Equal(t, "jpeg", result.Format)
	assert.Contains(t, result.ThumbnailURL, "data:image/jpeg;base64,")
	assert.True(t, result.ThumbnailGenerated)
}

func TestImageProcessor_SkipsDownloadWhenDimensionsPresupplied(t *testing.T) {
	store := newFakeStore() // no object uploaded: a download would fail
	proc := NewImageProcessor(store)

	result, err := proc.Process(context.Background(), FileMeta{
		FileID: "f1", StorageKey: "missing.jpg", Mimetype: "image/png",
		Width: 50, Height: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Width)
	assert.Equal(t, 60, result.Height)
	assert.Equal(t, "png", result.Format)
	assert.Empty(t, result.ThumbnailURL)
	assert.False(t, result.ThumbnailGenerated)
}

func TestImageProcessor_TooLargeIsPermanent(t *testing.T) {
	store := newFakeStore()
	store.put("big.jpg", make([]byte, maxImageBytes+1), "image/jpeg")

	proc := NewImageProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{
		FileID: "f1", StorageKey: "big.jpg", Mimetype: "image/jpeg",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestImageProcessor_MissingObjectIsPermanent(t *testing.T) {
	store := newFakeStore()
	proc := NewImageProcessor(store)

	_, err := proc.Process(context.Background(), FileMeta{
		FileID: "f1", StorageKey: "nope.jpg", Mimetype: "image/jpeg",
	})
	assert.Error(t, err)
}
