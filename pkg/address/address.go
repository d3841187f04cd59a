// Package address parses and writes the navigation state carried in the URL
// fragment of the coverage browser: "#<revision>:<path>".
package address

import "strings"

// Latest is the revision sentinel meaning "most recent available revision".
// An empty revision always implies it.
const Latest = "latest"

// State is the navigation state. Both fields are plain strings, so a decoded
// state never has missing fields; empty means "latest" and "root" respectively.
type State struct {
	Revision string
	Path     string
}

// Normalize returns the state with the implied defaults made explicit.
func (s State) Normalize() State {
	if s.Revision == "" {
		s.Revision = Latest
	}
	return s
}

// IsRoot reports whether the state points at the repository root.
func (s State) IsRoot() bool {
	return s.Path == ""
}

// Decode reads a fragment such as "#abc123:dom/base". The leading '#' is
// optional. A fragment with no ':' decodes to the zero State.
//
// Only the first ':' separates revision from path, so a path containing ':'
// cannot be told apart from the boundary past that point; later colons are
// kept in the path verbatim.
func Decode(fragment string) State {
	fragment = strings.TrimPrefix(fragment, "#")
	rev, path, ok := strings.Cut(fragment, ":")
	if !ok {
		return State{}
	}
	return State{Revision: rev, Path: path}
}

// Override replaces one field of the current state when encoding.
type Override func(*State)

// WithRevision overrides the revision.
func WithRevision(rev string) Override {
	return func(s *State) { s.Revision = rev }
}

// WithPath overrides the path.
func WithPath(path string) Override {
	return func(s *State) { s.Path = path }
}

// Encode merges the overrides over current and returns the canonical
// "revision:path" form. A revision that is still empty becomes Latest.
func Encode(current State, overrides ...Override) string {
	next := current
	for _, o := range overrides {
		o(&next)
	}
	next = next.Normalize()
	return next.Revision + ":" + next.Path
}

// Fragment is Encode with the leading '#', ready to be used as a link target.
func Fragment(current State, overrides ...Override) string {
	return "#" + Encode(current, overrides...)
}
