// Package coverage holds the coverage payload model shared by the data
// sources, the navigation pipeline and the renderers.
package coverage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the CoverageNode union.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
)

// Per-line coverage codes as supplied by the data source.
const (
	NotInstrumented = -1
	NeverExecuted   = 0
)

// Node is either a directory (aggregate percentage plus children) or a file
// (aggregate percentage plus one coverage code per source line). Any other
// Type value is carried through untouched and rejected by the dispatcher.
type Node struct {
	Type            Kind
	Path            string
	CoveragePercent float64

	// Children is set for directories, in the order the source returned them.
	Children []Node

	// Coverage is set for files: one entry per source line.
	Coverage []int

	// childCount is the number of children when the source only reported a
	// count (nested entries of a directory listing).
	childCount int
}

// IsDirectory reports whether n is the directory variant.
func (n *Node) IsDirectory() bool { return n.Type == KindDirectory }

// IsFile reports whether n is the file variant.
func (n *Node) IsFile() bool { return n.Type == KindFile }

// ChildCount returns the number of entries below a directory node.
func (n *Node) ChildCount() int {
	if n.Children != nil {
		return len(n.Children)
	}
	return n.childCount
}

// SetChildCount records a child count without materialising the children.
func (n *Node) SetChildCount(count int) {
	n.childCount = count
}

type wireNode struct {
	Type            Kind            `json:"type"`
	Path            string          `json:"path"`
	CoveragePercent float64         `json:"coveragePercent"`
	Children        json.RawMessage `json:"children,omitempty"`
	Coverage        []int           `json:"coverage,omitempty"`
}

// UnmarshalJSON accepts "children" either as an array of nodes or as a plain
// count, which is how nested entries are reported by the coverage service.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*n = Node{
		Type:            w.Type,
		Path:            w.Path,
		CoveragePercent: w.CoveragePercent,
		Coverage:        w.Coverage,
	}

	if len(w.Children) == 0 || string(w.Children) == "null" {
		return nil
	}

	switch w.Children[0] {
	case '[':
		children := []Node{}
		if err := json.Unmarshal(w.Children, &children); err != nil {
			return fmt.Errorf("decode children of %q: %w", w.Path, err)
		}
		n.Children = children
	default:
		var count int
		if err := json.Unmarshal(w.Children, &count); err != nil {
			return fmt.Errorf("decode child count of %q: %w", w.Path, err)
		}
		n.childCount = count
	}
	return nil
}

// MarshalJSON writes children as an array when present, as a count otherwise.
func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{
		Type:            n.Type,
		Path:            n.Path,
		CoveragePercent: n.CoveragePercent,
		Coverage:        n.Coverage,
	}

	if n.Type == KindDirectory {
		var (
			raw []byte
			err error
		)
		if n.Children != nil {
			raw, err = json.Marshal(n.Children)
		} else {
			raw, err = json.Marshal(n.childCount)
		}
		if err != nil {
			return nil, err
		}
		w.Children = raw
	}

	return json.Marshal(w)
}

// HistoryPoint is one sample of the coverage trend for a path.
type HistoryPoint struct {
	Date     int64   `json:"date"` // unix seconds
	Coverage float64 `json:"coverage"`
}

// Time returns the sample date.
func (p HistoryPoint) Time() time.Time {
	return time.Unix(p.Date, 0).UTC()
}

// Class is the display class of a source line.
type Class string

const (
	ClassCovered         Class = "covered"
	ClassUncovered       Class = "uncovered"
	ClassNotInstrumented Class = ""
)

// ClassFor maps a per-line coverage code to its display class.
func ClassFor(code int) Class {
	switch {
	case code > 0:
		return ClassCovered
	case code == NeverExecuted:
		return ClassUncovered
	default:
		return ClassNotInstrumented
	}
}

// LineRecord is one annotated source line, derived on every render.
type LineRecord struct {
	Number int    // 0-based
	Text   string // displayed text; a single space for an empty line
	Raw    string // original text handed to the highlighter
	Class  Class
}
