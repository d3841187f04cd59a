// Package view turns loaded coverage into display records and writes them
// out as JSON payloads, HTML and terminal tables.
package view

import (
	"github.com/jupierce/coverage-browser/pkg/address"
)

// StatusKind selects how the message region is shown.
type StatusKind string

const (
	StatusNone    StatusKind = ""
	StatusLoading StatusKind = "loading"
	StatusWarning StatusKind = "warning"
	StatusError   StatusKind = "error"
)

// Status is the content of the message region. The zero value hides it.
type Status struct {
	Kind StatusKind `json:"kind,omitempty"`
	Text string     `json:"text,omitempty"`
}

// Visible reports whether the message region is shown.
func (s Status) Visible() bool { return s.Kind != StatusNone }

// ViewState is everything on screen after one navigation. It is replaced
// wholesale on every navigation.
type ViewState struct {
	Revision  string          `json:"revision"`
	Path      string          `json:"path"`
	Status    Status          `json:"status"`
	Directory *DirectoryView  `json:"directory,omitempty"`
	File      *FileView       `json:"file,omitempty"`
	History   *Chart          `json:"history,omitempty"` // nil hides the chart
	Crumbs    []address.Crumb `json:"crumbs,omitempty"`
}

// NewViewState starts an empty view for s.
func NewViewState(s address.State) ViewState {
	s = s.Normalize()
	return ViewState{Revision: s.Revision, Path: s.Path}
}

// RevisionInput is the value shown in the revision box; empty for latest.
func (v ViewState) RevisionInput() string {
	if v.Revision == address.Latest {
		return ""
	}
	return v.Revision
}

// DisplayPath is path, or the root label for the repository root.
func DisplayPath(path, rootLabel string) string {
	if path == "" {
		return rootLabel
	}
	return path
}
