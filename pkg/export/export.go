// Package export writes stored coverage history to Parquet files and
// converts it for BigQuery.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/store"
)

// HistoryRow is one coverage sample in a Parquet file.
type HistoryRow struct {
	// Path is "" for the repository root.
	Path     string    `parquet:"path,snappy"`
	Revision string    `parquet:"revision,snappy"`
	Date     time.Time `parquet:"date,snappy"`
	Coverage float64   `parquet:"coverage,snappy"`
}

// ConvertHistoryRecords maps store records to Parquet rows.
func ConvertHistoryRecords(records []store.HistoryRecord) []HistoryRow {
	rows := make([]HistoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, HistoryRow{Path: r.Path, Revision: r.Revision, Date: r.Date, Coverage: r.Coverage})
	}
	return rows
}

// BigQueryRows maps store records to BigQuery history rows.
func BigQueryRows(records []store.HistoryRecord) []backend.HistoryRow {
	rows := make([]backend.HistoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, backend.HistoryRow{Path: r.Path, Revision: r.Revision, Date: r.Date, Coverage: r.Coverage})
	}
	return rows
}

// WriteHistoryParquet writes rows to outputPath.
func WriteHistoryParquet(rows []HistoryRow, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[HistoryRow](file)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write history rows: %w", err)
	}
	// Close flushes the footer.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}
