package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/view"
)

// Event is a user input that changes the address.
type Event interface {
	apply(current address.State) string
}

// RevisionEntered is a value typed into the revision box.
type RevisionEntered struct {
	Value string
}

func (e RevisionEntered) apply(current address.State) string {
	return address.Fragment(current, address.WithRevision(strings.TrimSpace(e.Value)))
}

// PathSelected is a click on a directory row or a breadcrumb.
type PathSelected struct {
	Path string
}

func (e PathSelected) apply(current address.State) string {
	return address.Fragment(current, address.WithPath(e.Path))
}

// Apply returns the fragment that ev navigates to from current.
func Apply(current address.State, ev Event) string {
	return ev.apply(current)
}

// Navigator runs navigations and holds the view currently on screen.
type Navigator struct {
	loader     *Loader
	dispatcher *Dispatcher

	mu      sync.Mutex
	state   address.State
	current view.ViewState
	applied uint64
}

// NewNavigator wires a Loader and a Dispatcher around src.
func NewNavigator(src backend.Source, sink Sink, opts Options) *Navigator {
	return &Navigator{
		loader:     NewLoader(src, sink, opts),
		dispatcher: NewDispatcher(sink, opts),
	}
}

// Navigate decodes fragment, loads it and replaces the current view. A
// failed load leaves a view holding only the error status. A stale load
// returns ErrStale and the view is left alone.
func (n *Navigator) Navigate(ctx context.Context, fragment string) (view.ViewState, error) {
	state := address.Decode(fragment).Normalize()

	res, err := n.loader.Load(ctx, state)
	if errors.Is(err, ErrStale) {
		return n.Current(), err
	}

	var (
		vs  view.ViewState
		gen uint64
	)
	if err != nil {
		vs = view.NewViewState(state)
		var se *StatusError
		if errors.As(err, &se) {
			vs.Status = se.Status
			gen = se.Generation
		}
	} else {
		vs, err = n.dispatcher.Dispatch(res)
		gen = res.Generation
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.loader.discardStale && gen < n.applied {
		return n.current, ErrStale
	}
	n.applied = gen
	n.state = state
	n.current = vs
	return vs, err
}

// Handle returns the fragment an input event leads to from the current
// address. Writing it back is what triggers the next navigation.
func (n *Navigator) Handle(ev Event) string {
	return Apply(n.State(), ev)
}

// Current returns the view on screen.
func (n *Navigator) Current() view.ViewState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// State returns the address of the view on screen.
func (n *Navigator) State() address.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}
