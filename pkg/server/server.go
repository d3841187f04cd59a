// Package server serves the browser shell and the JSON render endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/pipeline"
	"github.com/jupierce/coverage-browser/pkg/view"
)

// Server answers page, render and encode requests. It keeps no state
// between requests; the browser shell discards stale responses itself.
type Server struct {
	source backend.Source
	opts   pipeline.Options
	page   view.PageOptions
	log    *log.Logger
}

// New returns a Server reading coverage from src.
func New(src backend.Source, opts pipeline.Options, page view.PageOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if page.RootLabel == "" {
		page.RootLabel = opts.RootLabel
	}
	return &Server{source: src, opts: opts, page: page, log: logger}
}

// Handler routes the server's endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePage)
	mux.HandleFunc("/render", s.handleRender)
	mux.HandleFunc("/encode", s.handleEncode)
	return mux
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.WritePage(w, s.page); err != nil {
		s.log.Error("Failed to write page: %v", err)
	}
}

// renderEvent is one line of the /render stream.
type renderEvent struct {
	Status  *view.Status  `json:"status,omitempty"`
	Payload *view.Payload `json:"payload,omitempty"`
}

// streamSink writes each status as its own line and flushes it, so the
// loading message shows before any fetch completes.
type streamSink struct {
	mu  sync.Mutex
	w   http.ResponseWriter
	enc *json.Encoder
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	return &streamSink{w: w, enc: json.NewEncoder(w)}
}

func (s *streamSink) write(ev renderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *streamSink) Emit(status view.Status) {
	_ = s.write(renderEvent{Status: &status})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	fragment := r.URL.Query().Get("fragment")
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")

	stream := newStreamSink(w)
	trace := pipeline.SinkFunc(func(st view.Status) {
		if st.Visible() {
			s.log.Debug("%s %q: %s", st.Kind, fragment, st.Text)
		}
	})
	nav := pipeline.NewNavigator(s.source, pipeline.MultiSink{stream, trace}, s.opts)

	vs, err := nav.Navigate(r.Context(), fragment)
	if err != nil {
		s.log.Debug("Navigation to %q failed: %v", fragment, err)
	}

	payload, err := view.NewPayload(vs)
	if err != nil {
		s.log.Error("Failed to render %q: %v", fragment, err)
		payload = view.Payload{View: view.ViewState{Status: view.Status{Kind: view.StatusError, Text: err.Error()}}}
	}
	if err := stream.write(renderEvent{Payload: &payload}); err != nil {
		s.log.Debug("Client went away before payload for %q: %v", fragment, err)
	}
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := address.Decode(q.Get("fragment"))

	var ev pipeline.Event
	switch {
	case q.Has("revision"):
		ev = pipeline.RevisionEntered{Value: q.Get("revision")}
	case q.Has("path"):
		ev = pipeline.PathSelected{Path: q.Get("path")}
	default:
		http.Error(w, "one of revision or path is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(pipeline.Apply(current, ev)))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Success("Serving coverage browser on http://%s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
