package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

// Revision identifies one ingested build of the repository.
type Revision struct {
	ID       string
	PushedAt time.Time
}

// FileRecord is the coverage of one source file at a revision.
type FileRecord struct {
	Path     string
	Coverage []int
	Source   string
}

// IngestSummary reports what a call to Ingest wrote.
type IngestSummary struct {
	Files         int
	HistoryPoints int
	Root          Stats
}

// Ingest upserts the revision and its files, then recomputes one history
// point per directory and file of the revision. Everything happens in a
// single transaction.
func (s *Store) Ingest(ctx context.Context, rev Revision, files []FileRecord) (IngestSummary, error) {
	var summary IngestSummary
	if rev.ID == "" {
		return summary, fmt.Errorf("revision id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.upsertQuery("revisions", []string{"revision", "pushed_at", "ingested_at"}, []string{"revision"}),
		rev.ID, rev.PushedAt.Unix(), time.Now().Unix()); err != nil {
		return summary, fmt.Errorf("upsert revision %s: %w", rev.ID, err)
	}

	fileStmt, err := tx.PrepareContext(ctx, s.upsertQuery("files",
		[]string{"revision", "path", "coverage_json", "source", "covered", "instrumented"},
		[]string{"revision", "path"}))
	if err != nil {
		return summary, fmt.Errorf("prepare file upsert: %w", err)
	}
	defer fileStmt.Close()

	for _, f := range files {
		p := strings.Trim(f.Path, "/")
		codes, err := json.Marshal(f.Coverage)
		if err != nil {
			return summary, fmt.Errorf("encode coverage of %s: %w", p, err)
		}
		st := StatsOf(f.Coverage)
		if _, err := fileStmt.ExecContext(ctx, rev.ID, p, string(codes), f.Source, st.Covered, st.Instrumented); err != nil {
			return summary, fmt.Errorf("upsert file %s: %w", p, err)
		}
		summary.Files++
	}

	totals, err := s.revisionTotals(ctx, tx, rev.ID)
	if err != nil {
		return summary, err
	}

	histStmt, err := tx.PrepareContext(ctx, s.upsertQuery("history",
		[]string{"path", "revision", "date", "coverage"},
		[]string{"path", "revision"}))
	if err != nil {
		return summary, fmt.Errorf("prepare history upsert: %w", err)
	}
	defer histStmt.Close()

	for p, st := range totals {
		if _, err := histStmt.ExecContext(ctx, p, rev.ID, rev.PushedAt.Unix(), st.Percent()); err != nil {
			return summary, fmt.Errorf("upsert history for %q: %w", p, err)
		}
		summary.HistoryPoints++
	}
	summary.Root = totals[""]

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("commit ingest of %s: %w", rev.ID, err)
	}
	return summary, nil
}

// revisionTotals aggregates every file of rev into itself, each of its
// parent directories, and the root ("").
func (s *Store) revisionTotals(ctx context.Context, tx *sql.Tx, rev string) (map[string]Stats, error) {
	rows, err := tx.QueryContext(ctx,
		s.rebind(`SELECT path, covered, instrumented FROM files WHERE revision = ?`), rev)
	if err != nil {
		return nil, fmt.Errorf("query files of %s: %w", rev, err)
	}
	defer rows.Close()

	totals := map[string]Stats{}
	add := func(p string, st Stats) {
		t := totals[p]
		t.Add(st)
		totals[p] = t
	}

	for rows.Next() {
		var (
			p  string
			st Stats
		)
		if err := rows.Scan(&p, &st.Covered, &st.Instrumented); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		add(p, st)
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			add(dir, st)
		}
		add("", st)
	}
	return totals, rows.Err()
}
