package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jupierce/coverage-browser/pkg/config"
	"github.com/jupierce/coverage-browser/pkg/server"
	"github.com/jupierce/coverage-browser/pkg/view"
)

var serveTitle string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the coverage browser over HTTP",
	Long: `Serve the browser shell at / and the views it navigates to. The page
reads its address from the URL fragment (#revision:path) and streams each
view from /render, so the loading status appears before the data does.`,
	Example: `  # Serve the local store
  coverage-browser serve

  # Serve a remote coverage API with history from BigQuery
  coverage-browser serve --backend http --api-url https://coverage.example.com \
    --history-backend bigquery --bq-project my-proj --bq-dataset coverage`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", config.DefaultListen, "Address to listen on")
	serveCmd.Flags().StringVar(&serveTitle, "title", "", "Page title")
	if err := viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, cleanup, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(src, pipelineOptions(), view.PageOptions{Title: serveTitle, RootLabel: cfg.RootLabel})
	return srv.ListenAndServe(ctx, cfg.Listen)
}
