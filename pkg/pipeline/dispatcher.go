package pipeline

import (
	"fmt"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/coverage"
	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/view"
)

// Renderers are the view builders the dispatcher routes to.
type Renderers struct {
	Directory func(dir, revision string, children []coverage.Node) *view.DirectoryView
	File      func(node *coverage.Node, source string) *view.FileView
	History   func(points []coverage.HistoryPoint, path, rootLabel string) *view.Chart
}

// DefaultRenderers returns the renderers from the view package.
func DefaultRenderers() Renderers {
	return Renderers{
		Directory: view.RenderDirectory,
		File:      view.RenderFile,
		History:   view.RenderHistory,
	}
}

// Options configures a Navigator and its parts.
type Options struct {
	RootLabel    string
	DiscardStale bool
	Renderers    *Renderers // nil selects DefaultRenderers
	Logger       *log.Logger
}

// DefaultRootLabel names the repository root when none is configured.
const DefaultRootLabel = "full repository"

func (o Options) withDefaults() Options {
	if o.RootLabel == "" {
		o.RootLabel = DefaultRootLabel
	}
	if o.Renderers == nil {
		r := DefaultRenderers()
		o.Renderers = &r
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	return o
}

// Dispatcher turns a load result into a ViewState.
type Dispatcher struct {
	sink      Sink
	renderers Renderers
	rootLabel string
}

// NewDispatcher returns a Dispatcher reporting to sink.
func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{sink: sink, renderers: *opts.Renderers, rootLabel: opts.RootLabel}
}

// Dispatch routes on the node type. Directories get a history chart, or a
// warning when there is no history; files never show history. Any other
// type reports an error and renders nothing.
func (d *Dispatcher) Dispatch(res *Result) (view.ViewState, error) {
	vs := view.NewViewState(res.State)
	vs.Crumbs = address.Crumbs(res.State, d.rootLabel)
	node := res.Coverage

	switch node.Type {
	case coverage.KindDirectory:
		d.sink.Emit(view.Status{})
		if res.History == nil {
			vs.Status = view.Status{
				Kind: view.StatusWarning,
				Text: "No history data for " + view.DisplayPath(res.State.Path, d.rootLabel),
			}
			d.sink.Emit(vs.Status)
		} else {
			vs.History = d.renderers.History(res.History, res.State.Path, d.rootLabel)
		}
		vs.Directory = d.renderers.Directory(res.State.Path, res.State.Revision, node.Children)

	case coverage.KindFile:
		d.sink.Emit(view.Status{})
		vs.File = d.renderers.File(node, res.Source)

	default:
		vs.Status = view.Status{Kind: view.StatusError, Text: fmt.Sprintf("Invalid file type: %s", node.Type)}
		d.sink.Emit(vs.Status)
		return vs, fmt.Errorf("%w: %q", ErrInvalidType, node.Type)
	}

	return vs, nil
}
