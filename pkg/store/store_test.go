package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/coverage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLiteBackend, filepath.Join(t.TempDir(), "coverage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var (
	day1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Ingest(ctx, Revision{ID: "r1", PushedAt: day1}, []FileRecord{
		{Path: "dom/base/node.cpp", Coverage: []int{-1, 0, 0, 0}, Source: "a\nb\nc\nd"},
		{Path: "README.md", Coverage: []int{-1}, Source: "readme"},
	})
	require.NoError(t, err)

	summary, err := s.Ingest(ctx, Revision{ID: "r2", PushedAt: day2}, []FileRecord{
		{Path: "dom/base/node.cpp", Coverage: []int{-1, 3, 0, 1}, Source: "a\nb\nc\nd"},
		{Path: "dom/events/event.cpp", Coverage: []int{2, 2}, Source: "x\ny"},
		{Path: "dom/index.h", Coverage: []int{0, 0}, Source: "h"},
		{Path: "README.md", Coverage: []int{-1}, Source: "readme v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Files)
	// root, dom, dom/base, dom/events, and four files
	assert.Equal(t, 8, summary.HistoryPoints)
	assert.Equal(t, Stats{Covered: 4, Instrumented: 7}, summary.Root)
}

func TestStatsPercent(t *testing.T) {
	tests := []struct {
		name  string
		codes []int
		want  float64
	}{
		{"nothing instrumented", []int{-1, -1}, 0},
		{"empty", nil, 0},
		{"half", []int{-1, 0, 5}, 50},
		{"thirds", []int{1, 0, 0}, 33.33},
		{"all", []int{1, 2}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatsOf(tt.codes).Percent())
		})
	}
}

func TestOpen_UnsupportedBackend(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store backend")
}

func TestUpsertQuery(t *testing.T) {
	cols := []string{"path", "revision", "coverage"}
	keys := []string{"path", "revision"}

	sqlite := &Store{backend: SQLiteBackend}
	assert.Equal(t,
		"INSERT INTO history (path, revision, coverage) VALUES (?, ?, ?) ON CONFLICT(path, revision) DO UPDATE SET coverage = excluded.coverage",
		sqlite.upsertQuery("history", cols, keys))

	pg := &Store{backend: PostgreSQLBackend}
	assert.Equal(t,
		"INSERT INTO history (path, revision, coverage) VALUES ($1, $2, $3) ON CONFLICT(path, revision) DO UPDATE SET coverage = excluded.coverage",
		pg.upsertQuery("history", cols, keys))

	my := &Store{backend: MySQLBackend}
	assert.Equal(t,
		"INSERT INTO history (path, revision, coverage) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE coverage = VALUES(coverage)",
		my.upsertQuery("history", cols, keys))
}

func TestLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	seed(t, s)
	rev, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", rev)
}

func TestPathCoverage_Root(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	root, err := s.PathCoverage(context.Background(), "", "latest")
	require.NoError(t, err)
	assert.True(t, root.IsDirectory())
	assert.Equal(t, "", root.Path)
	assert.Equal(t, 57.14, root.CoveragePercent)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "README.md", root.Children[0].Path)
	assert.True(t, root.Children[0].IsFile())

	dom := root.Children[1]
	assert.Equal(t, "dom", dom.Path)
	assert.True(t, dom.IsDirectory())
	assert.Equal(t, 3, dom.ChildCount(), "base, events, index.h")
}

func TestPathCoverage_Subdirectory(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	dom, err := s.PathCoverage(context.Background(), "dom/", "r2")
	require.NoError(t, err)
	assert.Equal(t, "dom", dom.Path)

	var paths []string
	for _, c := range dom.Children {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"dom/base", "dom/events", "dom/index.h"}, paths)
	assert.Equal(t, 1, dom.Children[0].ChildCount())
	assert.Equal(t, 100.0, dom.Children[1].CoveragePercent)
}

func TestPathCoverage_File(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	file, err := s.PathCoverage(ctx, "dom/base/node.cpp", "r1")
	require.NoError(t, err)
	assert.True(t, file.IsFile())
	assert.Equal(t, []int{-1, 0, 0, 0}, file.Coverage)
	assert.Equal(t, 0.0, file.CoveragePercent)

	file, err = s.PathCoverage(ctx, "dom/base/node.cpp", "latest")
	require.NoError(t, err)
	assert.Equal(t, []int{-1, 3, 0, 1}, file.Coverage)
	assert.InDelta(t, 66.67, file.CoveragePercent, 0.001)

	_, err = s.PathCoverage(ctx, "dom/missing.cpp", "r2")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	_, err = s.PathCoverage(ctx, "dom/events/event.cpp", "r1")
	assert.ErrorIs(t, err, backend.ErrNotFound, "file absent at r1")
}

func TestPathCoverage_LikeWildcardIsLiteral(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Ingest(context.Background(), Revision{ID: "r1", PushedAt: day1}, []FileRecord{
		{Path: "a_b/x.go", Coverage: []int{1}},
		{Path: "acb/y.go", Coverage: []int{1}},
	})
	require.NoError(t, err)

	dir, err := s.PathCoverage(context.Background(), "a_b", "r1")
	require.NoError(t, err)
	require.Len(t, dir.Children, 1)
	assert.Equal(t, "a_b/x.go", dir.Children[0].Path)
}

func TestSource(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	text, err := s.Source(ctx, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "readme v2", text, "newest revision wins")

	_, err = s.Source(ctx, "nope.c")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestHistory(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	points, err := s.History(ctx, "dom/", "latest")
	require.NoError(t, err)
	assert.Equal(t, []coverage.HistoryPoint{
		{Date: day1.Unix(), Coverage: 0},
		{Date: day2.Unix(), Coverage: 57.14},
	}, points)

	points, err = s.History(ctx, "dom", "r1")
	require.NoError(t, err)
	assert.Len(t, points, 1, "samples after r1 are excluded")

	points, err = s.History(ctx, "unknown", "latest")
	require.NoError(t, err)
	assert.Nil(t, points)
}

func TestHistoryRecords(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	records, err := s.HistoryRecords(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].Revision)
	assert.True(t, day2.Equal(records[1].Date))

	all, err := s.AllHistoryRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 13)
}

func TestIngest_ReingestReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev := Revision{ID: "r1", PushedAt: day1}
	_, err := s.Ingest(ctx, rev, []FileRecord{{Path: "a.go", Coverage: []int{0, 0}}})
	require.NoError(t, err)
	_, err = s.Ingest(ctx, rev, []FileRecord{{Path: "a.go", Coverage: []int{1, 1}}})
	require.NoError(t, err)

	points, err := s.History(ctx, "a.go", "r1")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 100.0, points[0].Coverage)

	_, err = s.Ingest(ctx, Revision{}, nil)
	assert.Error(t, err)
}
