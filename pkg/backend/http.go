package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// HTTPSource talks to a remote coverage service and a raw-source host.
//
// The client carries no timeout and no retry policy: a hung request hangs
// until the caller's context is cancelled.
type HTTPSource struct {
	apiURL    string
	sourceURL string
	client    *http.Client
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source for apiURL (coverage, history, latest) and
// sourceURL (raw files). A nil client uses http.DefaultClient.
func NewHTTPSource(apiURL, sourceURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		sourceURL: strings.TrimSuffix(sourceURL, "/"),
		client:    client,
	}
}

// PathCoverage fetches the coverage node for path at revision.
func (s *HTTPSource) PathCoverage(ctx context.Context, path, revision string) (*coverage.Node, error) {
	q := url.Values{"path": {path}}
	if revision != "" && revision != address.Latest {
		q.Set("changeset", revision)
	}

	body, err := s.get(ctx, s.apiURL+"/v2/path?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get coverage for %q: %w", path, err)
	}

	node, err := coverage.DecodeNode(body)
	if err != nil {
		return nil, fmt.Errorf("coverage for %q: %w", path, err)
	}
	return node, nil
}

// History fetches the coverage trend for path. The service expects directory
// paths without a trailing slash. A 404 or an empty body means no history.
func (s *HTTPSource) History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error) {
	q := url.Values{"path": {strings.TrimSuffix(path, "/")}}
	if revision != "" && revision != address.Latest {
		q.Set("changeset", revision)
	}

	body, err := s.get(ctx, s.apiURL+"/v2/history?"+q.Encode())
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history for %q: %w", path, err)
	}

	points, err := coverage.DecodeHistory(body)
	if err != nil {
		return nil, fmt.Errorf("history for %q: %w", path, err)
	}
	return points, nil
}

// Source fetches the raw file contents at the tip of the repository.
func (s *HTTPSource) Source(ctx context.Context, path string) (string, error) {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	body, err := s.get(ctx, s.sourceURL+"/raw-file/tip/"+strings.Join(segments, "/"))
	if err != nil {
		return "", fmt.Errorf("get source for %q: %w", path, err)
	}
	return string(body), nil
}

type latestEntry struct {
	Changeset string `json:"changeset"`
	Date      int64  `json:"date"`
}

// Latest returns the most recent revision with coverage data.
func (s *HTTPSource) Latest(ctx context.Context) (string, error) {
	body, err := s.get(ctx, s.apiURL+"/v2/latest")
	if err != nil {
		return "", fmt.Errorf("get latest revision: %w", err)
	}

	var entries []latestEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("decode latest revision: %w", err)
	}
	if len(entries) == 0 || entries[0].Changeset == "" {
		return "", fmt.Errorf("latest revision: %w", ErrNotFound)
	}
	return entries[0].Changeset, nil
}

func (s *HTTPSource) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
