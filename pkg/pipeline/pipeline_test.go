package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/coverage"
	"github.com/jupierce/coverage-browser/pkg/view"
)

type renderCounts struct {
	directory, file, history atomic.Int32
}

func (c *renderCounts) renderers() *Renderers {
	def := DefaultRenderers()
	return &Renderers{
		Directory: func(dir, revision string, children []coverage.Node) *view.DirectoryView {
			c.directory.Add(1)
			return def.Directory(dir, revision, children)
		},
		File: func(node *coverage.Node, source string) *view.FileView {
			c.file.Add(1)
			return def.File(node, source)
		},
		History: func(points []coverage.HistoryPoint, path, rootLabel string) *view.Chart {
			c.history.Add(1)
			return def.History(points, path, rootLabel)
		},
	}
}

type fixture struct {
	src    *backend.MockSource
	sink   *RecordingSink
	counts *renderCounts
	nav    *Navigator
}

func newFixture(discardStale bool) *fixture {
	f := &fixture{src: new(backend.MockSource), sink: &RecordingSink{}, counts: &renderCounts{}}
	f.nav = NewNavigator(f.src, f.sink, Options{DiscardStale: discardStale, Renderers: f.counts.renderers()})
	return f
}

var rootNode = &coverage.Node{
	Type:            coverage.KindDirectory,
	Path:            "",
	CoveragePercent: 40,
	Children: []coverage.Node{
		{Type: coverage.KindFile, Path: "README.md", CoveragePercent: 0},
	},
}

func TestNavigate_FileEndToEnd(t *testing.T) {
	f := newFixture(true)
	fileNode := &coverage.Node{Type: coverage.KindFile, Path: "src/foo.cpp", CoveragePercent: 50, Coverage: []int{-1, 0, 5}}
	f.src.On("PathCoverage", mock.Anything, "src/foo.cpp", "latest").Return(fileNode, nil).Once()
	f.src.On("History", mock.Anything, "src/foo.cpp", "latest").Return(nil, nil).Once()
	f.src.On("Source", mock.Anything, "src/foo.cpp").Return("a\n\nb", nil).Once()

	vs, err := f.nav.Navigate(context.Background(), "#:src/foo.cpp")
	require.NoError(t, err)

	require.NotNil(t, vs.File)
	assert.Equal(t, "cpp", vs.File.Language)
	assert.Equal(t, []coverage.LineRecord{
		{Number: 0, Text: "a", Raw: "a", Class: ""},
		{Number: 1, Text: " ", Raw: "", Class: "uncovered"},
		{Number: 2, Text: "b", Raw: "b", Class: "covered"},
	}, vs.File.Lines)
	assert.Nil(t, vs.History, "history is hidden for files")
	assert.Nil(t, vs.Directory)
	assert.False(t, vs.Status.Visible())
	assert.Equal(t, int32(0), f.counts.history.Load())

	statuses := f.sink.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, view.Status{Kind: view.StatusLoading, Text: "Loading coverage data for src/foo.cpp @ latest"}, statuses[0])
	assert.Equal(t, view.Status{}, statuses[1])
	f.src.AssertExpectations(t)
}

func TestNavigate_DirectoryWithHistory(t *testing.T) {
	f := newFixture(true)
	f.src.On("PathCoverage", mock.Anything, "", "r1").Return(rootNode, nil).Once()
	f.src.On("History", mock.Anything, "", "r1").Return([]coverage.HistoryPoint{{Date: 10, Coverage: 40}}, nil).Once()

	vs, err := f.nav.Navigate(context.Background(), "#r1:")
	require.NoError(t, err)

	require.NotNil(t, vs.History)
	assert.Equal(t, "Coverage history for full repository", vs.History.Layout.Title)
	require.NotNil(t, vs.Directory)
	assert.Equal(t, "1 directories/files", vs.Directory.Header)
	assert.Equal(t, "#r1:README.md", vs.Directory.Rows[0].Target)
	assert.Equal(t, []address.Crumb{{Label: "full repository", Target: "#r1:"}}, vs.Crumbs)
	assert.Equal(t, "Loading coverage data for full repository @ r1", f.sink.Statuses()[0].Text)
	assert.Equal(t, int32(1), f.counts.history.Load())
	f.src.AssertNotCalled(t, "Source", mock.Anything, mock.Anything)
}

func TestNavigate_DirectoryWithoutHistory(t *testing.T) {
	f := newFixture(true)
	dom := &coverage.Node{Type: coverage.KindDirectory, Path: "dom", Children: []coverage.Node{}}
	f.src.On("PathCoverage", mock.Anything, "dom", "latest").Return(dom, nil).Once()
	f.src.On("History", mock.Anything, "dom", "latest").Return(nil, nil).Once()

	vs, err := f.nav.Navigate(context.Background(), "#latest:dom")
	require.NoError(t, err)

	assert.Equal(t, view.Status{Kind: view.StatusWarning, Text: "No history data for dom"}, vs.Status)
	assert.Nil(t, vs.History)
	assert.Equal(t, int32(0), f.counts.history.Load(), "history renderer must not run")
	assert.Equal(t, int32(1), f.counts.directory.Load())
	assert.Equal(t, "0 directories/files", vs.Directory.Header)
	assert.Equal(t, 1, f.sink.Count(view.StatusWarning))
}

func TestNavigate_FetchFailure(t *testing.T) {
	tests := []struct {
		name       string
		coverErr   error
		historyErr error
		contains   []string
	}{
		{"coverage fails", errors.New("boom"), nil, []string{"boom"}},
		{"history fails", nil, errors.New("history down"), []string{"history down"}},
		{"both fail", errors.New("boom"), errors.New("history down"), []string{"boom", "history down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(true)
			var node *coverage.Node
			if tt.coverErr == nil {
				node = rootNode
			}
			f.src.On("PathCoverage", mock.Anything, "", "latest").Return(node, tt.coverErr).Once()
			f.src.On("History", mock.Anything, "", "latest").Return(nil, tt.historyErr).Once()

			vs, err := f.nav.Navigate(context.Background(), "")
			require.Error(t, err)

			assert.Equal(t, 1, f.sink.Count(view.StatusError), "exactly one error status")
			assert.Equal(t, view.StatusError, vs.Status.Kind)
			assert.Contains(t, vs.Status.Text, "Failed to load coverage: ")
			for _, s := range tt.contains {
				assert.Contains(t, vs.Status.Text, s)
				assert.Contains(t, err.Error(), s)
			}
			assert.Nil(t, vs.Directory)
			assert.Nil(t, vs.File)
			assert.Nil(t, vs.History)
			assert.Equal(t, int32(0), f.counts.directory.Load()+f.counts.file.Load()+f.counts.history.Load())
		})
	}
}

func TestNavigate_FailureClearsPreviousOutput(t *testing.T) {
	f := newFixture(true)
	f.src.On("PathCoverage", mock.Anything, "", "latest").Return(rootNode, nil).Once()
	f.src.On("History", mock.Anything, "", "latest").Return([]coverage.HistoryPoint{{Date: 1, Coverage: 1}}, nil).Once()
	f.src.On("PathCoverage", mock.Anything, "gone", "latest").Return(nil, backend.ErrNotFound).Once()
	f.src.On("History", mock.Anything, "gone", "latest").Return(nil, nil).Once()

	ctx := context.Background()
	_, err := f.nav.Navigate(ctx, "#latest:")
	require.NoError(t, err)
	require.NotNil(t, f.nav.Current().Directory)

	_, err = f.nav.Navigate(ctx, "#latest:gone")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	cur := f.nav.Current()
	assert.Nil(t, cur.Directory)
	assert.Nil(t, cur.History)
	assert.Equal(t, view.StatusError, cur.Status.Kind)
	assert.Equal(t, "gone", f.nav.State().Path)
}

func TestNavigate_SourceFailure(t *testing.T) {
	f := newFixture(true)
	fileNode := &coverage.Node{Type: coverage.KindFile, Path: "a.c", Coverage: []int{1}}
	f.src.On("PathCoverage", mock.Anything, "a.c", "latest").Return(fileNode, nil).Once()
	f.src.On("History", mock.Anything, "a.c", "latest").Return(nil, nil).Once()
	f.src.On("Source", mock.Anything, "a.c").Return("", errors.New("source unavailable")).Once()

	vs, err := f.nav.Navigate(context.Background(), "#latest:a.c")
	require.Error(t, err)
	assert.Equal(t, 1, f.sink.Count(view.StatusError))
	assert.Equal(t, "Failed to load source: source unavailable", vs.Status.Text)
	assert.Nil(t, vs.File)
	assert.Equal(t, int32(0), f.counts.file.Load())
}

func TestNavigate_InvalidType(t *testing.T) {
	f := newFixture(true)
	odd := &coverage.Node{Type: "symlink", Path: "link"}
	f.src.On("PathCoverage", mock.Anything, "link", "latest").Return(odd, nil).Once()
	f.src.On("History", mock.Anything, "link", "latest").Return(nil, nil).Once()

	vs, err := f.nav.Navigate(context.Background(), "#latest:link")
	assert.ErrorIs(t, err, ErrInvalidType)
	assert.Equal(t, view.Status{Kind: view.StatusError, Text: "Invalid file type: symlink"}, vs.Status)
	assert.Nil(t, vs.Directory)
	assert.Nil(t, vs.File)
	assert.Equal(t, int32(0), f.counts.directory.Load()+f.counts.file.Load()+f.counts.history.Load())
}

func TestLoad_LoadingStatusBeforeFetch(t *testing.T) {
	src := new(backend.MockSource)
	sink := &RecordingSink{}
	loader := NewLoader(src, sink, Options{})

	checkLoading := func(mock.Arguments) {
		assert.Equal(t, 1, sink.Count(view.StatusLoading), "loading must be emitted before fetching")
	}
	src.On("PathCoverage", mock.Anything, "", "latest").Run(checkLoading).Return(rootNode, nil).Once()
	src.On("History", mock.Anything, "", "latest").Run(checkLoading).Return(nil, nil).Once()

	res, err := loader.Load(context.Background(), address.State{})
	require.NoError(t, err)
	assert.Nil(t, res.History)
	assert.Equal(t, "latest", res.State.Revision)
}

func TestLoad_FetchesConcurrently(t *testing.T) {
	src := new(backend.MockSource)
	loader := NewLoader(src, Discard, Options{})

	historyStarted := make(chan struct{})
	src.On("History", mock.Anything, "", "latest").Run(func(mock.Arguments) {
		close(historyStarted)
	}).Return(nil, nil).Once()
	src.On("PathCoverage", mock.Anything, "", "latest").Run(func(mock.Arguments) {
		select {
		case <-historyStarted:
		case <-time.After(5 * time.Second):
			t.Error("history fetch was not issued while coverage was in flight")
		}
	}).Return(rootNode, nil).Once()

	_, err := loader.Load(context.Background(), address.State{})
	require.NoError(t, err)
}

func TestNavigate_StaleResponseIsDiscarded(t *testing.T) {
	for _, discard := range []bool{true, false} {
		f := newFixture(discard)
		started := make(chan struct{})
		release := make(chan struct{})
		slow := &coverage.Node{Type: coverage.KindDirectory, Path: "slow"}
		fast := &coverage.Node{Type: coverage.KindDirectory, Path: "fast"}

		f.src.On("PathCoverage", mock.Anything, "slow", "latest").Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(slow, nil).Once()
		f.src.On("History", mock.Anything, "slow", "latest").Return(nil, nil).Once()
		f.src.On("PathCoverage", mock.Anything, "fast", "latest").Return(fast, nil).Once()
		f.src.On("History", mock.Anything, "fast", "latest").Return(nil, nil).Once()

		done := make(chan error, 1)
		go func() {
			_, err := f.nav.Navigate(context.Background(), "#latest:slow")
			done <- err
		}()
		<-started

		_, err := f.nav.Navigate(context.Background(), "#latest:fast")
		require.NoError(t, err)
		close(release)
		slowErr := <-done

		if discard {
			assert.ErrorIs(t, slowErr, ErrStale)
			assert.Equal(t, "fast", f.nav.Current().Path)
			assert.Equal(t, 1, f.sink.Count(view.StatusWarning), "stale load emits nothing after loading")
		} else {
			assert.NoError(t, slowErr)
			assert.Equal(t, "slow", f.nav.Current().Path, "last writer wins")
		}
	}
}

func TestEvents(t *testing.T) {
	cur := address.State{Revision: "r1", Path: "dom/base"}
	assert.Equal(t, "#r2:dom/base", Apply(cur, RevisionEntered{Value: " r2 "}))
	assert.Equal(t, "#latest:dom/base", Apply(cur, RevisionEntered{Value: ""}))
	assert.Equal(t, "#r1:dom", Apply(cur, PathSelected{Path: "dom"}))
	assert.Equal(t, "#r1:", Apply(cur, PathSelected{}))

	f := newFixture(true)
	assert.Equal(t, "#abc:", f.nav.Handle(RevisionEntered{Value: "abc"}), "zero state before any navigation")
}

func TestLogSinkAndMultiSink(t *testing.T) {
	rec := &RecordingSink{}
	var calls int
	sink := MultiSink{rec, SinkFunc(func(view.Status) { calls++ })}
	sink.Emit(view.Status{Kind: view.StatusLoading, Text: "x"})
	sink.Emit(view.Status{})
	assert.Len(t, rec.Statuses(), 2)
	assert.Equal(t, 2, calls)
}
