package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/coverage"
)

var _ backend.Source = (*Store)(nil)

// Stats counts instrumented and executed lines.
type Stats struct {
	Covered      int
	Instrumented int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Covered += other.Covered
	s.Instrumented += other.Instrumented
}

// Percent is the covered share of instrumented lines, rounded to two decimals.
func (s Stats) Percent() float64 {
	if s.Instrumented == 0 {
		return 0
	}
	return math.Round(float64(s.Covered)*10000/float64(s.Instrumented)) / 100
}

// StatsOf counts the lines of a per-line coverage array.
func StatsOf(codes []int) Stats {
	var s Stats
	for _, c := range codes {
		if c == coverage.NotInstrumented {
			continue
		}
		s.Instrumented++
		if c > 0 {
			s.Covered++
		}
	}
	return s
}

// Latest returns the revision whose push date is newest.
func (s *Store) Latest(ctx context.Context) (string, error) {
	var rev string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM revisions ORDER BY pushed_at DESC, ingested_at DESC LIMIT 1`).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no revisions ingested: %w", backend.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query latest revision: %w", err)
	}
	return rev, nil
}

func (s *Store) resolve(ctx context.Context, revision string) (string, error) {
	if revision == "" || revision == address.Latest {
		return s.Latest(ctx)
	}
	return revision, nil
}

// PathCoverage returns the file node for path, or a directory node
// aggregated from the files below it.
func (s *Store) PathCoverage(ctx context.Context, path, revision string) (*coverage.Node, error) {
	rev, err := s.resolve(ctx, revision)
	if err != nil {
		return nil, err
	}
	path = strings.Trim(path, "/")

	if path != "" {
		var (
			raw                   string
			covered, instrumented int
		)
		err := s.db.QueryRowContext(ctx,
			s.rebind(`SELECT coverage_json, covered, instrumented FROM files WHERE revision = ? AND path = ?`),
			rev, path).Scan(&raw, &covered, &instrumented)
		switch {
		case err == nil:
			var codes []int
			if err := json.Unmarshal([]byte(raw), &codes); err != nil {
				return nil, fmt.Errorf("decode stored coverage for %s@%s: %w", path, rev, err)
			}
			return &coverage.Node{
				Type:            coverage.KindFile,
				Path:            path,
				CoveragePercent: Stats{Covered: covered, Instrumented: instrumented}.Percent(),
				Coverage:        codes,
			}, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("query file %s@%s: %w", path, rev, err)
		}
	}

	files, err := s.filesUnder(ctx, rev, path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%q at %s: %w", path, rev, backend.ErrNotFound)
	}
	return buildDirectory(path, files), nil
}

type fileStat struct {
	path  string
	stats Stats
}

func (s *Store) filesUnder(ctx context.Context, rev, dir string) ([]fileStat, error) {
	query := `SELECT path, covered, instrumented FROM files WHERE revision = ?`
	args := []any{rev}
	if dir != "" {
		query += ` AND path LIKE ?`
		args = append(args, dir+"/%")
	}
	query += ` ORDER BY path`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query files under %q: %w", dir, err)
	}
	defer rows.Close()

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	var files []fileStat
	for rows.Next() {
		var f fileStat
		if err := rows.Scan(&f.path, &f.stats.Covered, &f.stats.Instrumented); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		// LIKE treats '_' as a wildcard.
		if !strings.HasPrefix(f.path, prefix) {
			continue
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// buildDirectory groups files by their first segment below dir. Children
// keep the sorted order of the rows; nested directories carry only a count.
func buildDirectory(dir string, files []fileStat) *coverage.Node {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	type child struct {
		isDir  bool
		stats  Stats
		direct map[string]struct{}
	}
	var (
		order    []string
		children = map[string]*child{}
		total    Stats
	)

	for _, f := range files {
		rest := strings.TrimPrefix(f.path, prefix)
		name, below, nested := strings.Cut(rest, "/")
		c, ok := children[name]
		if !ok {
			c = &child{isDir: nested, direct: map[string]struct{}{}}
			children[name] = c
			order = append(order, name)
		}
		if nested {
			next, _, _ := strings.Cut(below, "/")
			c.direct[next] = struct{}{}
		}
		c.stats.Add(f.stats)
		total.Add(f.stats)
	}

	node := &coverage.Node{
		Type:            coverage.KindDirectory,
		Path:            dir,
		CoveragePercent: total.Percent(),
		Children:        make([]coverage.Node, 0, len(order)),
	}
	for _, name := range order {
		c := children[name]
		n := coverage.Node{
			Type:            coverage.KindFile,
			Path:            prefix + name,
			CoveragePercent: c.stats.Percent(),
		}
		if c.isDir {
			n.Type = coverage.KindDirectory
			n.SetChildCount(len(c.direct))
		}
		node.Children = append(node.Children, n)
	}
	return node
}

// Source returns the text of path from the newest revision that has it.
func (s *Store) Source(ctx context.Context, path string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT f.source FROM files f
		JOIN revisions r ON r.revision = f.revision
		WHERE f.path = ?
		ORDER BY r.pushed_at DESC
		LIMIT 1`), strings.Trim(path, "/")).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("source of %q: %w", path, backend.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query source of %q: %w", path, err)
	}
	return text, nil
}

// History returns the samples recorded for path up to the push date of
// revision, oldest first. It returns nil when there are none.
func (s *Store) History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error) {
	path = strings.Trim(path, "/")

	query := `SELECT date, coverage FROM history WHERE path = ?`
	args := []any{path}
	if revision != "" && revision != address.Latest {
		query += ` AND date <= (SELECT pushed_at FROM revisions WHERE revision = ?)`
		args = append(args, revision)
	}
	query += ` ORDER BY date`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query history for %q: %w", path, err)
	}
	defer rows.Close()

	var points []coverage.HistoryPoint
	for rows.Next() {
		var p coverage.HistoryPoint
		if err := rows.Scan(&p.Date, &p.Coverage); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// HistoryRecord is one stored history sample.
type HistoryRecord struct {
	Path     string
	Revision string
	Date     time.Time
	Coverage float64
}

// HistoryRecords returns the samples for path, oldest first.
func (s *Store) HistoryRecords(ctx context.Context, path string) ([]HistoryRecord, error) {
	return s.historyRecords(ctx,
		`SELECT path, revision, date, coverage FROM history WHERE path = ? ORDER BY date`,
		strings.Trim(path, "/"))
}

// AllHistoryRecords returns every stored sample ordered by path then date.
func (s *Store) AllHistoryRecords(ctx context.Context) ([]HistoryRecord, error) {
	return s.historyRecords(ctx, `SELECT path, revision, date, coverage FROM history ORDER BY path, date`)
}

func (s *Store) historyRecords(ctx context.Context, query string, args ...any) ([]HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query history records: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var (
			r    HistoryRecord
			unix int64
		)
		if err := rows.Scan(&r.Path, &r.Revision, &unix, &r.Coverage); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.Date = time.Unix(unix, 0).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
