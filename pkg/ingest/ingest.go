// Package ingest turns Go cover profiles into per-line coverage records and
// writes them to the coverage store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/tools/cover"

	"github.com/jupierce/coverage-browser/pkg/coverage"
	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/store"
)

// Writer receives ingested revisions.
type Writer interface {
	Ingest(ctx context.Context, rev store.Revision, files []store.FileRecord) (store.IngestSummary, error)
}

// Options describes one profile to ingest.
type Options struct {
	ProfilePath string
	RepoDir     string
	// ModulePath is trimmed from profile file names. Read from
	// RepoDir/go.mod when empty.
	ModulePath string
	Revision   string
	PushedAt   time.Time
}

// Ingester loads cover profiles into a store.
type Ingester struct {
	writer Writer
	log    *log.Logger
}

// New returns an Ingester writing to w.
func New(w Writer, logger *log.Logger) *Ingester {
	if logger == nil {
		logger = log.Discard()
	}
	return &Ingester{writer: w, log: logger}
}

// Run parses the profile and writes one revision.
func (i *Ingester) Run(ctx context.Context, opts Options) (store.IngestSummary, error) {
	start := time.Now()
	if opts.Revision == "" {
		return store.IngestSummary{}, fmt.Errorf("revision is required")
	}

	profiles, err := cover.ParseProfiles(opts.ProfilePath)
	if err != nil {
		return store.IngestSummary{}, fmt.Errorf("parse profiles from %s: %w", opts.ProfilePath, err)
	}

	module := opts.ModulePath
	if module == "" && opts.RepoDir != "" {
		module = ModulePath(opts.RepoDir)
	}
	i.log.Debug("Parsed %d profiles from %s (module %q)", len(profiles), opts.ProfilePath, module)

	files := Files(profiles, opts.RepoDir, module)
	if len(files) == 0 {
		return store.IngestSummary{}, fmt.Errorf("no files with coverage in %s", opts.ProfilePath)
	}

	pushedAt := opts.PushedAt
	if pushedAt.IsZero() {
		pushedAt = time.Now()
	}

	summary, err := i.writer.Ingest(ctx, store.Revision{ID: opts.Revision, PushedAt: pushedAt}, files)
	if err != nil {
		return summary, fmt.Errorf("store revision %s: %w", opts.Revision, err)
	}

	i.log.Success("Ingested %s: %d files, %d history points, %.2f%% covered",
		opts.Revision, summary.Files, summary.HistoryPoints, summary.Root.Percent())
	i.log.Since("ingest", start)
	return summary, nil
}

// Files converts profiles into file records. Source text is read from
// repoDir when present; files that cannot be read keep an empty source.
func Files(profiles []*cover.Profile, repoDir, module string) []store.FileRecord {
	var files []store.FileRecord
	for _, profile := range profiles {
		relPath := RelativePath(profile.FileName, module)

		var (
			source string
			lines  []string
		)
		if repoDir != "" {
			if data, err := os.ReadFile(filepath.Join(repoDir, filepath.FromSlash(relPath))); err == nil {
				source = string(data)
				lines = strings.Split(source, "\n")
			}
		}

		codes := LineCodes(profile, len(lines))
		if len(codes) == 0 {
			continue
		}
		files = append(files, store.FileRecord{Path: relPath, Coverage: codes, Source: source})
	}

	sort.Slice(files, func(a, b int) bool { return files[a].Path < files[b].Path })
	return files
}

// LineCodes returns one code per source line, indexed from zero: -1 when no
// block covers the line, otherwise the highest count of the blocks spanning
// it. When totalLines is zero the length comes from the last block.
func LineCodes(profile *cover.Profile, totalLines int) []int {
	if totalLines == 0 {
		for _, block := range profile.Blocks {
			if block.EndLine > totalLines {
				totalLines = block.EndLine
			}
		}
	}
	if totalLines == 0 {
		return nil
	}

	codes := make([]int, totalLines)
	for i := range codes {
		codes[i] = coverage.NotInstrumented
	}
	for _, block := range profile.Blocks {
		for line := block.StartLine; line <= block.EndLine && line <= totalLines; line++ {
			if line < 1 {
				continue
			}
			if block.Count > codes[line-1] {
				codes[line-1] = block.Count
			}
		}
	}
	return codes
}

// RelativePath strips the module path from a profile file name.
func RelativePath(fileName, module string) string {
	if module != "" && strings.HasPrefix(fileName, module+"/") {
		return strings.TrimPrefix(fileName, module+"/")
	}
	return strings.TrimPrefix(fileName, "/")
}

// ModulePath reads the module name from a repository's go.mod file.
func ModulePath(repoDir string) string {
	data, err := os.ReadFile(filepath.Join(repoDir, "go.mod"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module "))
		}
	}
	return ""
}
