package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-browser/pkg/ingest"
)

// Ingest command flags
var (
	ingestProfile  string
	ingestRepo     string
	ingestModule   string
	ingestRevision string
	ingestPushedAt string
	ingestWatch    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a Go cover profile into the coverage store",
	Long: `Parse a Go cover profile (go test -coverprofile) and store it as one
revision: per-line coverage and source for every file, plus a history
point for every file, directory and the repository root.

Ingesting a revision again replaces its previous data.`,
	Example: `  # Ingest the current checkout
  coverage-browser ingest --profile cover.out --repo . --revision $(git rev-parse HEAD)

  # Re-ingest whenever the profile is rewritten
  coverage-browser ingest --profile cover.out --repo . --revision dev --watch`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProfile, "profile", "", "Cover profile to ingest (required)")
	ingestCmd.Flags().StringVar(&ingestRepo, "repo", ".", "Repository checkout that source files are read from")
	ingestCmd.Flags().StringVar(&ingestModule, "module", "", "Module path trimmed from profile file names (default read from go.mod)")
	ingestCmd.Flags().StringVar(&ingestRevision, "revision", "", "Revision identifier (required)")
	ingestCmd.Flags().StringVar(&ingestPushedAt, "pushed-at", "", "Push time as RFC3339 (default now)")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep running and re-ingest when the profile changes")
	_ = ingestCmd.MarkFlagRequired("profile")
	_ = ingestCmd.MarkFlagRequired("revision")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var pushedAt time.Time
	if ingestPushedAt != "" {
		t, err := time.Parse(time.RFC3339, ingestPushedAt)
		if err != nil {
			return fmt.Errorf("invalid --pushed-at: %w", err)
		}
		pushedAt = t
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := ingest.Options{
		ProfilePath: ingestProfile,
		RepoDir:     ingestRepo,
		ModulePath:  ingestModule,
		Revision:    ingestRevision,
		PushedAt:    pushedAt,
	}
	ing := ingest.New(s, logger)
	if ingestWatch {
		return ing.Watch(ctx, opts)
	}
	_, err = ing.Run(ctx, opts)
	return err
}
