// Package backend defines the data-access contract the navigation pipeline
// consumes, and the remote implementations of it.
package backend

import (
	"context"
	"errors"

	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// ErrNotFound is returned when a path or revision is unknown to the source.
var ErrNotFound = errors.New("not found")

// Source supplies coverage payloads. A nil history with a nil error means the
// source has no history for the path, which is not a failure.
type Source interface {
	PathCoverage(ctx context.Context, path, revision string) (*coverage.Node, error)
	History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error)
	Source(ctx context.Context, path string) (string, error)
	Latest(ctx context.Context) (string, error)
}

// HistorySource is the subset of Source that serves coverage trends.
type HistorySource interface {
	History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error)
}

type combined struct {
	Source
	history HistorySource
}

// Combine serves history from history and everything else from primary.
func Combine(primary Source, history HistorySource) Source {
	if history == nil {
		return primary
	}
	return &combined{Source: primary, history: history}
}

func (c *combined) History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error) {
	return c.history.History(ctx, path, revision)
}
