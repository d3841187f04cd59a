package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-browser/pkg/address"
	"github.com/jupierce/coverage-browser/pkg/pipeline"
	"github.com/jupierce/coverage-browser/pkg/view"
)

var errQuit = errors.New("quit")

var browseCmd = &cobra.Command{
	Use:   "browse [#revision:path]",
	Short: "Navigate coverage interactively in the terminal",
	Long: `Start at the given fragment and read navigation commands from stdin:

  <n> or <name>   open the nth row or the row with that name
  ..              go to the parent directory
  /               go to the repository root
  @<revision>     switch revision, keeping the path (@ alone means latest)
  #rev:path       go to a fragment
  q               quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
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
	return browse(cmd.Context(), nav, fragment, os.Stdin, os.Stdout)
}

func browse(ctx context.Context, nav *pipeline.Navigator, fragment string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		vs, err := nav.Navigate(ctx, fragment)
		if err != nil {
			logger.Debug("Navigation to %q: %v", fragment, err)
		}
		if err := view.WriteTerminal(out, vs); err != nil {
			return err
		}

		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			next, err := resolveInput(scanner.Text(), nav.State(), nav.Current())
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if next == "" {
				continue
			}
			fragment = next
			break
		}
	}
}

// resolveInput maps one command line to the fragment it navigates to.
// An empty fragment with no error means nothing to do.
func resolveInput(line string, state address.State, vs view.ViewState) (string, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", nil
	case line == "q" || line == "quit":
		return "", errQuit
	case line == "/":
		return pipeline.Apply(state, pipeline.PathSelected{Path: ""}), nil
	case line == "..":
		parent := path.Dir(strings.Trim(state.Path, "/"))
		if parent == "." {
			parent = ""
		}
		return pipeline.Apply(state, pipeline.PathSelected{Path: parent}), nil
	case strings.HasPrefix(line, "@"):
		return pipeline.Apply(state, pipeline.RevisionEntered{Value: line[1:]}), nil
	case strings.HasPrefix(line, "#"):
		return line, nil
	}

	if vs.Directory == nil {
		return "", fmt.Errorf("%q: not in a directory listing", line)
	}
	rows := vs.Directory.Rows
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(rows) {
			return "", fmt.Errorf("no row %d (1-%d)", n, len(rows))
		}
		return rows[n-1].Target, nil
	}
	for _, row := range rows {
		if row.Name == line {
			return row.Target, nil
		}
	}
	return "", fmt.Errorf("no entry named %q", line)
}
