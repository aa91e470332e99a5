package fileproc

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/storage"
)

// maxCSVBytes bounds how much of a CSV file this processor will stream.
const maxCSVBytes = 50 * 1024 * 1024

// sampleRowLimit caps how many parsed rows are counted into SampleRowCount.
const sampleRowLimit = 3

var sensitiveHeaderSubstrings = []string{
	"password", "ssn", "social", "credit", "card", "phone", "email",
}

// CSVProcessor streams a CSV file's header and rows without buffering the
// whole file, counting rows and flagging headers that look sensitive.
type CSVProcessor struct {
	store storage.Store
}

// NewCSVProcessor constructs a CSVProcessor backed by store.
func NewCSVProcessor(store storage.Store) *CSVProcessor {
	return &CSVProcessor{store: store}
}

// Process streams meta's CSV, returning its columns, row count, a count of
// the first few parsed rows (not the rows themselves), and whether any
// header looks like it carries sensitive data.
func (p *CSVProcessor) Process(ctx context.Context, meta FileMeta) (CSVResult, error) {
	r, cancel, err := fetchStream(ctx, p.store, meta.StorageKey)
	if err != nil {
		return CSVResult{}, err
	}
	defer cancel()
	defer r.Close()

	capped := &sizeCappedReader{r: r, maxBytes: maxCSVBytes}
	reader := csv.NewReader(capped)
	reader.FieldsPerRecord = -1 // rows may have ragged column counts; count, don't reject

	header, err := reader.Read()
	if err != nil {
		return CSVResult{}, classifyCSVError(err)
	}

	result := CSVResult{
		Columns:          header,
		ColumnCount:      len(header),
		HasSensitiveData: headerLooksSensitive(header),
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return CSVResult{}, classifyCSVError(err)
		}
		if isEmptyRow(record) {
			continue
		}
		result.RowCount++
		if result.SampleRowCount < sampleRowLimit {
			result.SampleRowCount++
		}
	}

	return result, nil
}

func isEmptyRow(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func headerLooksSensitive(header []string) bool {
	for _, col := range header {
		lower := strings.ToLower(col)
		for _, substr := range sensitiveHeaderSubstrings {
			if strings.Contains(lower, substr) {
				return true
			}
		}
	}
	return false
}

// classifyCSVError tags malformed-CSV parse errors permanent (they fold into
// a failed result) and everything else as a transfer-class stream failure
// that propagates; errors the size-capped reader already tagged pass through
// unchanged.
func classifyCSVError(err error) error {
	if domain.IsPermanent(err) || domain.IsRetryable(err) {
		return err
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return domain.PermanentErrorf("malformed csv: %v", err)
	}
	return transfer(domain.RetryableErrorf("failed to stream csv: %v", err))
}
