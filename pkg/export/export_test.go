package export

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/coverage-browser/pkg/store"
)

var records = []store.HistoryRecord{
	{Path: "", Revision: "r1", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Coverage: 40},
	{Path: "", Revision: "r2", Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Coverage: 42.5},
	{Path: "dom", Revision: "r2", Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Coverage: 57.14},
}

func TestHistoryRowStructTags(t *testing.T) {
	schema := parquet.SchemaOf(new(HistoryRow))
	for _, col := range []string{"path", "revision", "date", "coverage"} {
		_, ok := schema.Lookup(col)
		assert.True(t, ok, "column %s should exist", col)
	}
}

func TestWriteHistoryParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "history.parquet")
	rows := ConvertHistoryRecords(records)
	require.NoError(t, WriteHistoryParquet(rows, outputPath))

	file, err := os.Open(outputPath)
	require.NoError(t, err)
	defer file.Close()

	reader := parquet.NewGenericReader[HistoryRow](file)
	defer reader.Close()

	got := make([]HistoryRow, reader.NumRows())
	n, err := reader.Read(got)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, len(rows), n)

	for i := range rows {
		assert.Equal(t, rows[i].Path, got[i].Path)
		assert.Equal(t, rows[i].Revision, got[i].Revision)
		assert.WithinDuration(t, rows[i].Date, got[i].Date, time.Nanosecond)
		assert.Equal(t, rows[i].Coverage, got[i].Coverage)
	}
}

func TestWriteHistoryParquet_BadPath(t *testing.T) {
	err := WriteHistoryParquet(nil, filepath.Join(t.TempDir(), "missing", "history.parquet"))
	assert.Error(t, err)
}

func TestBigQueryRows(t *testing.T) {
	rows := BigQueryRows(records)
	require.Len(t, rows, 3)
	assert.Equal(t, "dom", rows[2].Path)
	assert.Equal(t, 57.14, rows[2].Coverage)
	assert.Empty(t, BigQueryRows(nil))
}
