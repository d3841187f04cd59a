package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-browser/pkg/export"
	"github.com/jupierce/coverage-browser/pkg/store"
)

var (
	historyOutput string
	historyPath   string
	historyAll    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Coverage history operations",
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored coverage history to a Parquet file",
	Example: `  # History of the repository root
  coverage-browser history export --output root.parquet

  # History of one directory
  coverage-browser history export --path dom/base --output dom-base.parquet

  # Every path
  coverage-browser history export --all --output history.parquet`,
	RunE: runHistoryExport,
}

func init() {
	historyExportCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Parquet file to write (required)")
	historyExportCmd.Flags().StringVar(&historyPath, "path", "", "Path to export history for (default the repository root)")
	historyExportCmd.Flags().BoolVar(&historyAll, "all", false, "Export history for every path")
	_ = historyExportCmd.MarkFlagRequired("output")

	historyCmd.AddCommand(historyExportCmd)
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var records []store.HistoryRecord
	if historyAll {
		records, err = s.AllHistoryRecords(ctx)
	} else {
		records, err = s.HistoryRecords(ctx, historyPath)
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if err := export.WriteHistoryParquet(export.ConvertHistoryRecords(records), historyOutput); err != nil {
		return err
	}
	logger.Success("Wrote %d history rows to %s", len(records), historyOutput)
	logger.Since("history export", start)
	return nil
}
