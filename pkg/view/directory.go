package view

import (
	"fmt"
	"strings"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// DirectoryRow is one child of a directory listing.
type DirectoryRow struct {
	Name            string  `json:"name"`
	Target          string  `json:"target"`
	ChildCount      *int    `json:"childCount,omitempty"` // nil for files
	CoveragePercent float64 `json:"coveragePercent"`
}

// IsDirectory reports whether the row links to a directory.
func (r DirectoryRow) IsDirectory() bool { return r.ChildCount != nil }

// DirectoryView is a rendered directory listing.
type DirectoryView struct {
	Path   string         `json:"path"`
	Header string         `json:"header"`
	Rows   []DirectoryRow `json:"rows"`
}

// RenderDirectory builds one row per child in the order given. Names are
// relative to dir, and targets keep the revision (latest when empty).
func RenderDirectory(dir, revision string, children []coverage.Node) *DirectoryView {
	state := address.State{Revision: revision, Path: dir}
	prefix := ""
	if dir != "" {
		prefix = strings.TrimSuffix(dir, "/") + "/"
	}

	rows := make([]DirectoryRow, 0, len(children))
	for i := range children {
		child := &children[i]
		row := DirectoryRow{
			Name:            child.Path,
			Target:          address.Fragment(state, address.WithPath(child.Path)),
			CoveragePercent: child.CoveragePercent,
		}
		if prefix != "" {
			row.Name = strings.TrimPrefix(child.Path, prefix)
		}
		if child.IsDirectory() {
			n := child.ChildCount()
			row.ChildCount = &n
		}
		rows = append(rows, row)
	}

	return &DirectoryView{
		Path:   dir,
		Header: fmt.Sprintf("%d directories/files", len(children)),
		Rows:   rows,
	}
}
