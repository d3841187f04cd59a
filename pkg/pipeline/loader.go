package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/coverage"
	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/view"
)

var (
	// ErrStale is returned for a load that a newer load overtook.
	ErrStale = errors.New("superseded by a newer navigation")
	// ErrInvalidType is returned for a coverage node that is neither a
	// directory nor a file.
	ErrInvalidType = errors.New("invalid coverage node type")
)

// StatusError is a failure that has already been reported to the sink.
type StatusError struct {
	Status     view.Status
	Generation uint64
	Err        error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// Result is the data of one successful load.
type Result struct {
	State      address.State
	Coverage   *coverage.Node
	History    []coverage.HistoryPoint // nil when the source has none
	Source     string                  // file text; empty for directories
	Generation uint64
}

// Loader fetches everything a navigation needs from a Source.
type Loader struct {
	source       backend.Source
	sink         Sink
	log          *log.Logger
	rootLabel    string
	discardStale bool
	generation   atomic.Uint64
}

// NewLoader returns a Loader reading from src and reporting to sink.
func NewLoader(src backend.Source, sink Sink, opts Options) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		source:       src,
		sink:         sink,
		log:          opts.Logger,
		rootLabel:    opts.RootLabel,
		discardStale: opts.DiscardStale,
	}
}

func (l *Loader) stale(gen uint64) bool {
	return l.discardStale && l.generation.Load() != gen
}

func (l *Loader) fail(gen uint64, text string, err error) error {
	status := view.Status{Kind: view.StatusError, Text: text}
	l.sink.Emit(status)
	return &StatusError{Status: status, Generation: gen, Err: err}
}

// Load fetches coverage and history for state concurrently, then the source
// text when the node is a file. A loading status is emitted first; any
// failure emits exactly one error status. Nothing is retried.
func (l *Loader) Load(ctx context.Context, state address.State) (*Result, error) {
	gen := l.generation.Add(1)
	state = state.Normalize()
	start := time.Now()

	l.sink.Emit(view.Status{
		Kind: view.StatusLoading,
		Text: fmt.Sprintf("Loading coverage data for %s @ %s", view.DisplayPath(state.Path, l.rootLabel), state.Revision),
	})

	var (
		group      errgroup.Group
		node       *coverage.Node
		history    []coverage.HistoryPoint
		nodeErr    error
		historyErr error
	)
	group.Go(func() error {
		node, nodeErr = l.source.PathCoverage(ctx, state.Path, state.Revision)
		return nodeErr
	})
	group.Go(func() error {
		history, historyErr = l.source.History(ctx, state.Path, state.Revision)
		return historyErr
	})
	_ = group.Wait()

	if l.stale(gen) {
		l.log.Debug("Discarding stale load of %q @ %s", state.Path, state.Revision)
		return nil, ErrStale
	}

	if err := errors.Join(nodeErr, historyErr); err != nil {
		var msgs []string
		for _, e := range []error{nodeErr, historyErr} {
			if e != nil {
				msgs = append(msgs, e.Error())
			}
		}
		return nil, l.fail(gen, "Failed to load coverage: "+strings.Join(msgs, "; "),
			fmt.Errorf("load %q @ %s: %w", state.Path, state.Revision, err))
	}
	if node == nil {
		return nil, l.fail(gen, "Failed to load coverage: empty response",
			fmt.Errorf("load %q @ %s: empty coverage node: %w", state.Path, state.Revision, backend.ErrNotFound))
	}

	res := &Result{State: state, Coverage: node, History: history, Generation: gen}

	if node.IsFile() {
		src, err := l.source.Source(ctx, node.Path)
		if l.stale(gen) {
			return nil, ErrStale
		}
		if err != nil {
			return nil, l.fail(gen, "Failed to load source: "+err.Error(),
				fmt.Errorf("load source of %q: %w", node.Path, err))
		}
		res.Source = src
	}

	l.log.Since(fmt.Sprintf("load %q @ %s", state.Path, state.Revision), start)
	return res, nil
}
