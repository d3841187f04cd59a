package view

import (
	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// Trace is one chart series.
type Trace struct {
	X    []int64   `json:"x"` // unix milliseconds
	Y    []float64 `json:"y"`
	Type string    `json:"type"`
	Mode string    `json:"mode"`
	Name string    `json:"name"`
}

// Layout holds chart-level options.
type Layout struct {
	Title string `json:"title"`
}

// Chart is a line chart specification handed to the charting library.
type Chart struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// RenderHistory builds the coverage trend chart for path.
func RenderHistory(points []coverage.HistoryPoint, path, rootLabel string) *Chart {
	trace := Trace{
		X:    make([]int64, 0, len(points)),
		Y:    make([]float64, 0, len(points)),
		Type: "scatter",
		Mode: "lines+markers",
		Name: "Coverage %",
	}
	for _, p := range points {
		trace.X = append(trace.X, p.Date*1000)
		trace.Y = append(trace.Y, p.Coverage)
	}

	return &Chart{
		Data:   []Trace{trace},
		Layout: Layout{Title: "Coverage history for " + DisplayPath(path, rootLabel)},
	}
}
