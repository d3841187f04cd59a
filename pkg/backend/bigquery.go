package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// HistoryRow is one coverage sample as stored in BigQuery.
type HistoryRow struct {
	Path     string    `bigquery:"path"`
	Revision string    `bigquery:"revision"`
	Date     time.Time `bigquery:"date"`
	Coverage float64   `bigquery:"coverage"`
}

var historySchema = bigquery.Schema{
	{Name: "path", Type: bigquery.StringFieldType, Required: true},
	{Name: "revision", Type: bigquery.StringFieldType, Required: true},
	{Name: "date", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "coverage", Type: bigquery.FloatFieldType, Required: true},
}

// BigQueryHistory serves coverage history from a BigQuery table.
type BigQueryHistory struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

var _ HistorySource = (*BigQueryHistory)(nil)

// NewBigQueryHistory opens a client for project and targets dataset.table.
func NewBigQueryHistory(ctx context.Context, project, dataset, table string) (*BigQueryHistory, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create BigQuery client: %w", err)
	}
	return &BigQueryHistory{client: client, project: project, dataset: dataset, table: table}, nil
}

// Close releases the client.
func (b *BigQueryHistory) Close() error {
	return b.client.Close()
}

// historyQuery selects the samples of one path up to the date of a revision.
// An empty @revision selects the whole series.
func historyQuery(project, dataset, table string) string {
	ref := fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
	return fmt.Sprintf(`
		SELECT path, revision, date, coverage
		FROM %[1]s
		WHERE path = @path
		  AND (@revision = '' OR date <= (SELECT MAX(date) FROM %[1]s WHERE revision = @revision))
		ORDER BY date`, ref)
}

// History returns the samples for path, oldest first, or nil when the table
// has none.
func (b *BigQueryHistory) History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error) {
	if revision == address.Latest {
		revision = ""
	}

	q := b.client.Query(historyQuery(b.project, b.dataset, b.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "path", Value: strings.TrimSuffix(path, "/")},
		{Name: "revision", Value: revision},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query history for %q: %w", path, err)
	}

	var rows []HistoryRow
	for {
		var row HistoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read history for %q: %w", path, err)
		}
		rows = append(rows, row)
	}

	return rowsToPoints(rows), nil
}

func rowsToPoints(rows []HistoryRow) []coverage.HistoryPoint {
	if len(rows) == 0 {
		return nil
	}
	points := make([]coverage.HistoryPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, coverage.HistoryPoint{Date: r.Date.Unix(), Coverage: r.Coverage})
	}
	return points
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Already Exists") ||
		strings.Contains(msg, "alreadyExists") ||
		strings.Contains(msg, "409")
}

// EnsureTable creates the dataset and the history table if they don't exist.
// It reports whether anything was created.
func (b *BigQueryHistory) EnsureTable(ctx context.Context) (bool, error) {
	created := false
	dataset := b.client.Dataset(b.dataset)

	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		if !isAlreadyExists(err) {
			return false, fmt.Errorf("create dataset: %w", err)
		}
	} else {
		created = true
	}

	if err := dataset.Table(b.table).Create(ctx, &bigquery.TableMetadata{
		Schema: historySchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Field: "date",
		},
		Clustering: &bigquery.Clustering{
			Fields: []string{"path", "revision"},
		},
	}); err != nil {
		if !isAlreadyExists(err) {
			return created, fmt.Errorf("create %s table: %w", b.table, err)
		}
	} else {
		created = true
	}

	return created, nil
}

// Push inserts rows in batches and returns how many were accepted.
func (b *BigQueryHistory) Push(ctx context.Context, rows []HistoryRow) (int, error) {
	inserter := b.client.Dataset(b.dataset).Table(b.table).Inserter()

	const batchSize = 500
	pushed := 0
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := make([]*HistoryRow, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &rows[i])
		}
		if err := inserter.Put(ctx, batch); err != nil {
			return pushed, fmt.Errorf("insert batch at offset %d: %w", start, err)
		}
		pushed += len(batch)
	}
	return pushed, nil
}
