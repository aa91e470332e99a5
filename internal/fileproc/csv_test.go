package fileproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVProcessor_ParsesHeaderAndRows(t *testing.T) {
	store := newFakeStore()
	store.put("data.csv", []byte("name,age,city\nalice,30,nyc\nbob,25,sf\n"), "text/csv")

	proc := NewCSVProcessor(store)
	result, err := proc.Process(context.Background(), FileMeta{StorageKey: "data.csv"})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "city"}, result.Columns)
	assert.Equal(t, 3, result.ColumnCount)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, 2, result.SampleRowCount)
	assert.False(t, result.HasSensitiveData)
}

func TestCSVProcessor_FlagsSensitiveHeaders(t *testing.T) {
	store := newFakeStore()
	store.put("data.csv", []byte("full_name,email,password\na,b,c\n"), "text/csv")

	proc := NewCSVProcessor(store)
	result, err := proc.Process(context.Background(), FileMeta{StorageKey: "data.csv"})
	require.NoError(t, err)
	assert.True(t, result.HasSensitiveData)
}

func TestCSVProcessor_SkipsBlankRows(t *testing.T) {
	store := newFakeStore()
	store.put("data.csv", []byte("a,b\n1,2\n,\n3,4\n"), "text/csv")

	proc := NewCSVProcessor(store)
	result, err := proc.Process(context.Background(), FileMeta{StorageKey: "data.csv"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

func TestCSVProcessor_TruncatesSampleRowsAtLimit(t *testing.T) {
	store := newFakeStore()
	store.put("data.csv", []byte("a,b\n1,2\n3,4\n5,6\n7,8\n9,10\n"), "text/csv")

	proc := NewCSVProcessor(store)
	result, err := proc.Process(context.Background(), FileMeta{StorageKey: "data.csv"})
	require.NoError(t, err)
	assert.Equal(t, 5, result.RowCount)
	assert.Equal(t, sampleRowLimit, result.SampleRowCount)
}

func TestCSVProcessor_RaggedRowsAreTolerated(t *testing.T) {
	store := newFakeStore()
	store.put("data.csv", []byte("a,b,c\n1,2\n3,4,5,6\n"), "text/csv")

	proc := NewCSVProcessor(store)
	result, err := proc.Process(context.Background(), FileMeta{StorageKey: "data.csv"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

func TestCSVProcessor_TooLargeIsRejected(t *testing.T) {
	store := newFakeStore()
	store.put("big.csv", make([]byte, maxCSVBytes+1), "text/csv")

	proc := NewCSVProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "big.csv"})
	require.Error(t, err)
}

func TestCSVProcessor_MissingObjectFails(t *testing.T) {
	store := newFakeStore()
	proc := NewCSVProcessor(store)
	_, err := proc.Process(context.Background(), FileMeta{StorageKey: "nope.csv"})
	assert.Error(t, err)
}
