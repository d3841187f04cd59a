package address

import "strings"

// Crumb is one entry of the navigation bar shown above both views.
type Crumb struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Crumbs splits the state's path into cumulative navigation targets, starting
// with the repository root labelled rootLabel. Every target keeps the state's
// revision.
func Crumbs(s State, rootLabel string) []Crumb {
	crumbs := []Crumb{{Label: rootLabel, Target: Fragment(s, WithPath(""))}}

	path := strings.Trim(s.Path, "/")
	if path == "" {
		return crumbs
	}

	parts := strings.Split(path, "/")
	for i, part := range parts {
		crumbs = append(crumbs, Crumb{
			Label:  part,
			Target: Fragment(s, WithPath(strings.Join(parts[:i+1], "/"))),
		})
	}
	return crumbs
}
