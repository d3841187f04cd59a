package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jupierce/coverage-browser/pkg/backend"
	"github.com/jupierce/coverage-browser/pkg/config"
	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/pipeline"
	"github.com/jupierce/coverage-browser/pkg/store"
)

var (
	// cfg is the validated configuration, filled before any subcommand runs.
	cfg = &config.Config{}

	logger = log.Discard()

	rootCmd = &cobra.Command{
		Use:   "coverage-browser",
		Short: "Browse per-revision code coverage by directory, file and history",
		Long: `coverage-browser serves a navigable view of code coverage for a
repository. Coverage comes from a coverage HTTP API or from a local store
filled by the ingest command. Every view is addressed by a revision and a
path, written as #revision:path.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Close()
		},
	}
)

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default .coverage-browser.yaml in . or $HOME)")
	flags.String("backend", string(config.StoreSource), "Coverage source: store or http")
	flags.String("api-url", "", "Base URL of the coverage HTTP API (backend=http)")
	flags.String("source-url", "", "Base URL for raw source files (defaults to --api-url)")
	flags.String("store-backend", string(store.SQLiteBackend), "Store database: sqlite, postgresql, or mysql")
	flags.String("store-dsn", "", "Store connection string (SQLite file path defaults to "+store.DefaultSQLitePath+")")
	flags.String("history-backend", "", "History source override: empty or bigquery")
	flags.String("bq-project", "", "GCP project ID for BigQuery history")
	flags.String("bq-dataset", "", "BigQuery dataset for history")
	flags.String("bq-table", config.DefaultBQTable, "BigQuery table for history")
	flags.String("root-label", config.DefaultRootLabel, "Label shown for the repository root")
	flags.Bool("discard-stale", true, "Drop responses of navigations superseded by a newer one")
	flags.String("log-level", "info", "Log level: error, info, debug, or trace")
	flags.String("log-dir", "", "Also write logs to a rotating file in this directory")
	flags.Int("log-max-size", 10, "Log file size in MB before rotation")
	flags.Int("log-max-backups", 3, "Rotated log files to keep")
	flags.Int("log-max-age", 28, "Days to keep rotated log files")
	flags.Bool("log-compress", false, "Gzip rotated log files")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(bigqueryCmd)
}

// setup merges defaults, config file, environment and flags, then builds
// the logger.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := log.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger = l
	return nil
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		RootLabel:    cfg.RootLabel,
		DiscardStale: cfg.DiscardStale,
		Logger:       logger,
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(ctx, cfg.StoreBackend, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Debug("Opened %s store", s.Backend())
	return s, nil
}

func openBigQuery(ctx context.Context) (*backend.BigQueryHistory, error) {
	if err := cfg.BigQuery.Validate(); err != nil {
		return nil, err
	}
	bq, err := backend.NewBigQueryHistory(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	return bq, nil
}

// openSource builds the configured coverage source. The returned func
// releases whatever it opened.
func openSource(ctx context.Context) (backend.Source, func(), error) {
	var (
		src     backend.Source
		closers []func() error
	)

	switch cfg.Backend {
	case config.HTTPSource:
		src = backend.NewHTTPSource(cfg.APIURL, cfg.SourceURL, http.DefaultClient)
		logger.Debug("Reading coverage from %s", cfg.APIURL)
	default:
		s, err := openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		src = s
		closers = append(closers, s.Close)
	}

	if cfg.HistoryBackend == config.HistoryBigQuery {
		bq, err := openBigQuery(ctx)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, err
		}
		src = backend.Combine(src, bq)
		closers = append(closers, bq.Close)
		logger.Debug("Reading history from BigQuery %s.%s.%s", cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warning("Close failed: %v", err)
			}
		}
	}
	return src, cleanup, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
