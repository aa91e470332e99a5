package fileproc

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	// Registered for side-effect decoding support alongside the x/image draw path.
	_ "image/gif"
	_ "image/png"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

// maxImageBytes bounds how large an image file this processor will fetch.
const maxImageBytes = 20 * 1024 * 1024

const thumbnailSide = 200

// ImageProcessor decodes image metadata and produces a thumbnail.
type ImageProcessor struct {
	store storage.Store
}

// NewImageProcessor constructs an ImageProcessor backed by store.
func NewImageProcessor(store storage.Store) *ImageProcessor {
	return &ImageProcessor{store: store}
}

// Process reads meta's image, validates its signature, and returns its
// dimensions/format plus a thumbnail URL (see thumbnail). If meta already
// carries Width and Height (set by the uploader), Process skips the download
// entirely and reports a metadata-only result without a thumbnail, taking
// the format from meta's mimetype.
func (p *ImageProcessor) Process(ctx context.Context, meta FileMeta) (ImageResult, error) {
	if meta.Width > 0 && meta.Height > 0 {
		return ImageResult{Width: meta.Width, Height: meta.Height, Format: formatFromMimetype(meta.Mimetype)}, nil
	}

	data, err := fetchBuffer(ctx, p.store, meta.StorageKey, maxImageBytes)
	if err != nil {
		return ImageResult{}, err
	}

	if err := validateImageSignature(data); err != nil {
		// Signature mismatches are warning-only for images: a mislabeled but
		// otherwise decodable image should still process.
		_ = err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageResult{}, domain.PermanentErrorf("failed to decode image: %v", err)
	}
	bounds := img.Bounds()

	thumbURL, generated := p.thumbnail(ctx, meta, img)

	return ImageResult{
		Width:              bounds.Dx(),
		Height:             bounds.Dy(),
		Format:             format,
		ThumbnailURL:       thumbURL,
		ThumbnailGenerated: generated,
	}, nil
}

// thumbnail prefers the store's transformation API (storage.Thumbnailer)
// over rendering locally; a local render only runs when the store doesn't
// implement it or the transformation call fails, since decoded bytes are
// already in hand at that point.
func (p *ImageProcessor) thumbnail(ctx context.Context, meta FileMeta, img image.Image) (string, bool) {
	if t, ok := p.store.(storage.Thumbnailer); ok {
		if url, err := t.ThumbnailURL(ctx, meta.StorageKey, thumbnailSide, thumbnailSide); err == nil && url != "" {
			return url, true
		}
	}

	url, err := renderThumbnail(img)
	if err != nil {
		return "", false
	}
	return url, true
}

// validateImageSignature checks data's magic bytes against its claimed
// mimetype, returning an error the caller treats as advisory only.
func validateImageSignature(data []byte) error {
	detected := mimetype.Detect(data)
	if !detected.Is("image/jpeg") && !detected.Is("image/png") && !detected.Is("image/gif") && !detected.Is("image/webp") {
		return fmt.Errorf("signature does not match a known image type: %s", detected.String())
	}
	return nil
}

// renderThumbnail resizes img to fit thumbnailSide x thumbnailSide and
// returns it as a base64 data URL, since the in-memory pipeline has no CDN
// to push a stored thumbnail to.
func renderThumbnail(img image.Image) (string, error) {
	src := img.Bounds()
	dstW, dstH := thumbnailSide, thumbnailSide
	if src.Dx() > src.Dy() {
		dstH = thumbnailSide * src.Dy() / max(src.Dx(), 1)
	} else {
		dstW = thumbnailSide * src.Dx() / max(src.Dy(), 1)
	}
	if dstW == 0 {
		dstW = 1
	}
	if dstH == 0 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func formatFromMimetype(mt string) string {
	switch mt {
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "unknown"
	}
}
