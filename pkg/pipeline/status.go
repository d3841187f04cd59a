// Package pipeline runs a navigation: it loads coverage for an address,
// dispatches it to the matching renderer, and reports progress through a
// status sink.
package pipeline

import (
	"sync"

	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/view"
)

// Sink receives status changes as they happen.
type Sink interface {
	Emit(status view.Status)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(status view.Status)

// Emit calls f.
func (f SinkFunc) Emit(status view.Status) { f(status) }

// Discard drops every status.
var Discard Sink = SinkFunc(func(view.Status) {})

// MultiSink forwards to each sink in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(status view.Status) {
	for _, s := range m {
		s.Emit(status)
	}
}

// LogSink writes statuses to a logger. Cleared statuses are skipped.
type LogSink struct {
	Log *log.Logger
}

// Emit implements Sink.
func (s LogSink) Emit(status view.Status) {
	switch status.Kind {
	case view.StatusLoading:
		s.Log.Progress("%s", status.Text)
	case view.StatusWarning:
		s.Log.Warning("%s", status.Text)
	case view.StatusError:
		s.Log.Error("%s", status.Text)
	}
}

// RecordingSink keeps every status it receives, for tests.
type RecordingSink struct {
	mu       sync.Mutex
	statuses []view.Status
}

var _ Sink = &RecordingSink{} // Compile-time check

// Emit implements Sink.
func (r *RecordingSink) Emit(status view.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

// Statuses returns a copy of what was recorded.
func (r *RecordingSink) Statuses() []view.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]view.Status(nil), r.statuses...)
}

// Count returns how many statuses of kind were recorded.
func (r *RecordingSink) Count(kind view.StatusKind) int {
	n := 0
	for _, s := range r.Statuses() {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
