package fileproc

import (
	"context"
	"os"
	"strings"
	"unicode"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// maxPDFBytes bounds how large a PDF file this processor will fetch.
const maxPDFBytes = 40 * 1024 * 1024

// PDFProcessor extracts page count and text content from PDF files.
type PDFProcessor struct {
	store storage.Store
}

// NewPDFProcessor constructs a PDFProcessor backed by store.
func NewPDFProcessor(store storage.Store) *PDFProcessor {
	return &PDFProcessor{store: store}
}

// Process fetches meta's PDF, validates its declared size and signature, and
// extracts page count plus as much text as the document exposes.
func (p *PDFProcessor) Process(ctx context.Context, meta FileMeta) (PDFResult, error) {
	if meta.Size > maxPDFBytes {
		return PDFResult{}, transfer(domain.PermanentErrorf(
			"pdf too large to process: declared size %d bytes exceeds limit of %d bytes", meta.Size, maxPDFBytes))
	}

	data, err := fetchBuffer(ctx, p.store, meta.StorageKey, maxPDFBytes)
	if err != nil {
		return PDFResult{}, err
	}

	if !mimetype.Detect(data).Is("application/pdf") {
		return PDFResult{}, transfer(domain.PermanentErrorf("file does not have a valid PDF signature"))
	}

	// ledongthuc/pdf reads from a ReaderAt, so the buffer is spilled to a
	// temp file the way the library's own examples do.
	tmp, err := os.CreateTemp("", "fileforge-pdf-*.pdf")
	if err != nil {
		return PDFResult{}, transfer(domain.RetryableErrorf("failed to stage pdf for parsing: %v", err))
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return PDFResult{}, transfer(domain.RetryableErrorf("failed to stage pdf for parsing: %v", err))
	}

	pdfFile, reader, err := pdf.Open(tmp.Name())
	if err != nil {
		return PDFResult{}, domain.PermanentErrorf("corrupted or unreadable pdf: %v", err)
	}
	defer pdfFile.Close()

	numPages := reader.NumPage()

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString(" ")
	}

	extracted := strings.TrimSpace(sb.String())
	wordCount := countWords(extracted)
	hasText := extracted != ""

	return PDFResult{
		Pages:         numPages,
		WordCount:     wordCount,
		HasText:       hasText,
		TextExtracted: hasText,
	}, nil
}

func countWords(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
