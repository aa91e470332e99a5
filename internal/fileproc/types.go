// Package fileproc implements the typed file-processing pipeline: an
// orchestrator that dispatches queued jobs to MIME-specific processors for
// images, PDFs, and CSVs, fetching their bytes from object storage first.
package fileproc

import "time"

// FileMeta describes the file a processing job acts on. It is the payload
// carried by file_processing/file_compression/thumbnail_generation jobs.
type FileMeta struct {
	FileID       string
	UserID       string
	OriginalName string
	Mimetype     string
	Size         int64
	StorageKey   string

	// Optional pre-supplied image dimensions; when present, image processing
	// skips downloading the file just to read its header.
	Width  int
	Height int

	// DisableCompression skips the inline compression step of a
	// file_processing job. Compression is on by default.
	DisableCompression bool
}

// Status is the terminal outcome of one processing attempt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the common envelope every processing job returns. A successful
// file_processing result populates the one of Image, PDF, or CSV matching
// the dispatched type; failed results and compression/thumbnail job results
// populate none of them.
type Result struct {
	FileID          string    `json:"fileId"`
	OriginalName    string    `json:"originalName,omitempty"`
	Mimetype        string    `json:"mimetype,omitempty"`
	StorageKey      string    `json:"storageKey,omitempty"`
	SecureURL       string    `json:"secureUrl,omitempty"`
	Size            int64     `json:"size,omitempty"`
	Status          Status    `json:"status"`
	ProcessingError string    `json:"processingError,omitempty"`
	ProcessedAt     time.Time `json:"processedAt"`

	Image *ImageResult `json:"image,omitempty"`
	PDF   *PDFResult   `json:"pdf,omitempty"`
	CSV   *CSVResult   `json:"csv,omitempty"`

	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	CompressedBytes int64 `json:"compressedBytes,omitempty"`
}

// ImageResult carries the fields an image processing job produces.
type ImageResult struct {
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	Format              string `json:"format"`
	ThumbnailURL        string `json:"thumbnailUrl,omitempty"`
	ThumbnailGenerated  bool   `json:"thumbnailGenerated"`
}

// PDFResult carries the fields a PDF processing job produces.
type PDFResult struct {
	Pages          int  `json:"pages"`
	WordCount      int  `json:"wordCount"`
	HasText        bool `json:"hasText"`
	TextExtracted  bool `json:"textExtracted"`
}

// CSVResult carries the fields a CSV processing job produces. The first few
// rows are counted into SampleRowCount as a preview signal but never
// returned verbatim, since row contents may themselves be sensitive.
type CSVResult struct {
	Columns          []string `json:"columns"`
	ColumnCount      int      `json:"columnCount"`
	RowCount         int      `json:"rowCount"`
	SampleRowCount   int      `json:"sampleRowCount"`
	HasSensitiveData bool     `json:"hasSensitiveData"`
}
