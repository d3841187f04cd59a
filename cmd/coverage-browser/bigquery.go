package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-browser/pkg/export"
)

var bigqueryCmd = &cobra.Command{
	Use:   "bigquery",
	Short: "BigQuery history operations",
	Long: `Manage the BigQuery table that serves coverage history when
--history-backend is bigquery. The table is addressed by --bq-project,
--bq-dataset and --bq-table.`,
}

var bigqueryEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the history dataset and table if they don't exist",
	RunE:  runBigQueryEnsure,
}

var bigqueryPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy every stored history point into BigQuery",
	Example: `  coverage-browser bigquery push --bq-project my-project --bq-dataset coverage`,
	RunE: runBigQueryPush,
}

func init() {
	bigqueryCmd.AddCommand(bigqueryEnsureCmd)
	bigqueryCmd.AddCommand(bigqueryPushCmd)
}

func runBigQueryEnsure(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bq, err := openBigQuery(ctx)
	if err != nil {
		return err
	}
	defer bq.Close()

	created, err := bq.EnsureTable(ctx)
	if err != nil {
		return err
	}
	if created {
		logger.Success("Created table %s.%s.%s", cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	} else {
		logger.Info("Table %s.%s.%s already exists", cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	}
	return nil
}

func runBigQueryPush(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.AllHistoryRecords(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(records) == 0 {
		logger.Warning("No history in the store, nothing to push")
		return nil
	}

	bq, err := openBigQuery(ctx)
	if err != nil {
		return err
	}
	defer bq.Close()

	if _, err := bq.EnsureTable(ctx); err != nil {
		return err
	}
	n, err := bq.Push(ctx, export.BigQueryRows(records))
	if err != nil {
		return fmt.Errorf("push history after %d rows: %w", n, err)
	}
	logger.Success("Pushed %d history rows to BigQuery", n)
	logger.Since("bigquery push", start)
	return nil
}
