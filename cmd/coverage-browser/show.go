package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-browser/pkg/pipeline"
	"github.com/jupierce/coverage-browser/pkg/view"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [#revision:path]",
	Short: "Print one coverage view to the terminal",
	Long: `Load the view addressed by the fragment and print it. Directories
print their history and children, files print their source with a
covered (+) or uncovered (-) marker per line. Without an argument the
repository root at the latest revision is shown.`,
	Example: `  coverage-browser show
  coverage-browser show '#latest:dom/base'
  coverage-browser show '#a1b2c3:dom/base/Node.cpp' --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the view as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	fragment := ""
	if len(args) == 1 {
		fragment = args[0]
	}

	src, cleanup, err := openSource(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	nav := pipeline.NewNavigator(src, pipeline.LogSink{Log: logger}, pipelineOptions())
	vs, navErr := nav.Navigate(cmd.Context(), fragment)
	if errors.Is(navErr, pipeline.ErrStale) {
		return navErr
	}

	if showJSON {
		err = view.WriteJSON(os.Stdout, vs)
	} else {
		err = view.WriteTerminal(os.Stdout, vs)
	}
	if err != nil {
		return err
	}
	return navErr
}
