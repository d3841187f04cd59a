package view

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/jupierce/coverage-browser/pkg/coverage"
)

var (
	coveredColor   = color.New(color.FgGreen)
	uncoveredColor = color.New(color.FgRed)
	dimColor       = color.New(color.FgHiBlack)
	warningColor   = color.New(color.FgYellow, color.Bold)
	errorColor     = color.New(color.FgRed, color.Bold)
	loadingColor   = color.New(color.FgCyan)

	pctColors = map[string]*color.Color{
		"excellent": color.New(color.FgGreen, color.Bold),
		"good":      color.New(color.FgGreen),
		"moderate":  color.New(color.FgYellow),
		"poor":      color.New(color.FgHiRed),
		"critical":  color.New(color.FgRed, color.Bold),
	}
)

// WriteTerminal prints v as text: status, breadcrumbs, then the directory
// table or the annotated file, and the history table when shown.
func WriteTerminal(w io.Writer, v ViewState) error {
	if v.Status.Visible() {
		if _, err := fmt.Fprintln(w, statusColor(v.Status.Kind).Sprint(v.Status.Text)); err != nil {
			return err
		}
	}

	if len(v.Crumbs) > 0 {
		labels := make([]string, 0, len(v.Crumbs))
		for _, c := range v.Crumbs {
			labels = append(labels, c.Label)
		}
		if _, err := fmt.Fprintf(w, "%s @ %s\n", strings.Join(labels, " / "), v.Revision); err != nil {
			return err
		}
	}

	if v.History != nil {
		if err := writeHistoryTable(w, v.History); err != nil {
			return err
		}
	}

	switch {
	case v.Directory != nil:
		return writeDirectoryTable(w, v.Directory)
	case v.File != nil:
		return writeFile(w, v.File)
	}
	return nil
}

func statusColor(kind StatusKind) *color.Color {
	switch kind {
	case StatusError:
		return errorColor
	case StatusWarning:
		return warningColor
	default:
		return loadingColor
	}
}

func writeDirectoryTable(w io.Writer, d *DirectoryView) error {
	if _, err := fmt.Fprintln(w, d.Header); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "File name", "Children", "Coverage"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for i, r := range d.Rows {
		name := r.Name
		children := ""
		if r.IsDirectory() {
			name += "/"
			children = strconv.Itoa(*r.ChildCount)
		}
		pct := pctColors[colorClass(r.CoveragePercent)].Sprintf("%.2f %%", r.CoveragePercent)
		data = append(data, []string{strconv.Itoa(i + 1), name, children, pct})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeHistoryTable(w io.Writer, c *Chart) error {
	if _, err := fmt.Fprintln(w, c.Layout.Title); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Date", "Coverage"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, trace := range c.Data {
		for i := range trace.X {
			date := time.UnixMilli(trace.X[i]).UTC().Format("2006-01-02 15:04")
			data = append(data, []string{date, fmt.Sprintf("%.2f %%", trace.Y[i])})
		}
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeFile(w io.Writer, f *FileView) error {
	header := f.Path
	if f.Language != "" {
		header += " (" + f.Language + ")"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if f.Misaligned {
		if _, err := fmt.Fprintln(w, warningColor.Sprint("Source and coverage data have different line counts.")); err != nil {
			return err
		}
	}

	width := len(strconv.Itoa(len(f.Lines)))
	for _, line := range f.Lines {
		c := dimColor
		marker := " "
		switch line.Class {
		case coverage.ClassCovered:
			c, marker = coveredColor, "+"
		case coverage.ClassUncovered:
			c, marker = uncoveredColor, "-"
		}
		if _, err := fmt.Fprintf(w, "%*d %s %s\n", width, line.Number, marker, c.Sprint(line.Raw)); err != nil {
			return err
		}
	}
	return nil
}
