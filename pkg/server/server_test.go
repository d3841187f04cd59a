package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/coverage"
	"github.com/jupierce/coverage-browser/pkg/pipeline"
	"github.com/jupierce/coverage-browser/pkg/view"
)

func newTestServer(t *testing.T, src backend.Source) *httptest.Server {
	t.Helper()
	s := New(src, pipeline.Options{RootLabel: "mozilla-central", DiscardStale: true}, view.PageOptions{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func readEvents(t *testing.T, body io.Reader) []renderEvent {
	t.Helper()
	var events []renderEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var ev renderEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestPage(t *testing.T) {
	srv := newTestServer(t, new(backend.MockSource))

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `data-root-label="mozilla-central"`)

	resp, err = http.Get(srv.URL + "/favicon.ico")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRender_Directory(t *testing.T) {
	src := new(backend.MockSource)
	root := &coverage.Node{Type: coverage.KindDirectory, Children: []coverage.Node{
		{Type: coverage.KindFile, Path: "a.c", CoveragePercent: 20},
	}}
	src.On("PathCoverage", mock.Anything, "", "latest").Return(root, nil).Once()
	src.On("History", mock.Anything, "", "latest").Return([]coverage.HistoryPoint{{Date: 2, Coverage: 20}}, nil).Once()
	srv := newTestServer(t, src)

	resp, err := http.Get(srv.URL + "/render?fragment=" + url.QueryEscape("#latest:"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.Len(t, events, 3)
	require.NotNil(t, events[0].Status)
	assert.Equal(t, "Loading coverage data for mozilla-central @ latest", events[0].Status.Text)
	require.NotNil(t, events[1].Status)
	assert.False(t, events[1].Status.Visible())

	p := events[2].Payload
	require.NotNil(t, p)
	require.NotNil(t, p.View.History)
	assert.Equal(t, []int64{2000}, p.View.History.Data[0].X)
	assert.Contains(t, p.Output, `href="#latest:a.c"`)
	assert.Equal(t, "", p.RevisionInput)
}

func TestRender_Failure(t *testing.T) {
	src := new(backend.MockSource)
	src.On("PathCoverage", mock.Anything, "x", "r9").Return(nil, backend.ErrNotFound).Once()
	src.On("History", mock.Anything, "x", "r9").Return(nil, nil).Once()
	srv := newTestServer(t, src)

	resp, err := http.Get(srv.URL + "/render?fragment=" + url.QueryEscape("#r9:x"))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	require.Len(t, events, 3)
	assert.Equal(t, view.StatusError, events[1].Status.Kind)

	p := events[2].Payload
	require.NotNil(t, p)
	assert.Equal(t, view.StatusError, p.View.Status.Kind)
	assert.True(t, strings.HasPrefix(p.View.Status.Text, "Failed to load coverage: "))
	assert.Empty(t, p.Output)
	assert.Equal(t, "r9", p.RevisionInput)
}

func TestEncode(t *testing.T) {
	srv := newTestServer(t, new(backend.MockSource))

	get := func(query string) (int, string) {
		resp, err := http.Get(srv.URL + "/encode?" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("fragment=" + url.QueryEscape("#r1:dom") + "&revision=r2")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "#r2:dom", body)

	_, body = get("fragment=" + url.QueryEscape("#r1:dom") + "&path=dom/base")
	assert.Equal(t, "#r1:dom/base", body)

	_, body = get("revision=")
	assert.Equal(t, "#latest:", body)

	code, _ = get("fragment=x")
	assert.Equal(t, http.StatusBadRequest, code)
}
