package view

import (
	"path"
	"strings"

	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// FileView is a rendered source file with per-line coverage classes.
type FileView struct {
	Path     string                `json:"path"`
	Language string                `json:"language,omitempty"`
	Lines    []coverage.LineRecord `json:"lines"`
	// Misaligned is set when the source has more lines than coverage codes.
	Misaligned bool `json:"misaligned,omitempty"`
}

var languages = map[string]string{
	"cpp":  "cpp",
	"h":    "cpp",
	"c":    "c",
	"js":   "javascript",
	"jsm":  "javascript",
	"css":  "css",
	"py":   "python",
	"java": "java",
}

// Language returns the highlighting language for a file name, or "".
func Language(filePath string) string {
	ext := strings.TrimPrefix(path.Ext(filePath), ".")
	return languages[ext]
}

// RenderFile zips the source lines with the node's coverage codes.
func RenderFile(node *coverage.Node, source string) *FileView {
	raw := strings.Split(source, "\n")
	fv := &FileView{
		Path:     node.Path,
		Language: Language(node.Path),
		Lines:    make([]coverage.LineRecord, 0, len(raw)),
	}

	for i, line := range raw {
		rec := coverage.LineRecord{Number: i, Text: line, Raw: line}
		if line == "" {
			rec.Text = " "
		}
		if i < len(node.Coverage) {
			rec.Class = coverage.ClassFor(node.Coverage[i])
		} else {
			fv.Misaligned = true
		}
		fv.Lines = append(fv.Lines, rec)
	}
	return fv
}
