// Package report renders feature importances of a trained bundle as a text
// table or a horizontal bar chart.
package report

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Default chart size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

var barColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}

// top returns the first n importances, or all of them when n <= 0.
func top(imps []fare.FeatureImportance, n int) []fare.FeatureImportance {
	if n <= 0 || n > len(imps) {
		return imps
	}
	return imps[:n]
}

// WriteImportanceTable writes the n most important features, one per line.
// imps is expected in ranked order, as stored in Metadata.
func WriteImportanceTable(w io.Writer, imps []fare.FeatureImportance, n int) error {
	rows := top(imps, n)
	width := len("feature")
	for _, fi := range rows {
		width = max(width, len(fi.Feature))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-*s  %s\n", width, "feature", "importance")
	for _, fi := range rows {
		fmt.Fprintf(&sb, "%-*s  %.4f\n", width, fi.Feature, fi.Importance)
	}
	_, err := io.WriteString(w, sb.String())
	return errors.Wrap(err, "write importance table")
}

// ImportanceChart builds a horizontal bar chart with the most important
// feature at the top.
func ImportanceChart(imps []fare.FeatureImportance, title string) (*plot.Plot, error) {
	if len(imps) == 0 {
		return nil, errors.NewValueError("ImportanceChart", "no feature importances to plot")
	}

	n := len(imps)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, fi := range imps {
		values[n-1-i] = fi.Importance
		names[n-1-i] = fi.Feature
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "importance"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return nil, errors.Wrap(err, "build bar chart")
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)
	return p, nil
}

// SaveImportanceChart renders the chart to path. The format follows the
// extension (.png, .svg, .pdf, ...).
func SaveImportanceChart(path string, imps []fare.FeatureImportance, title string) error {
	p, err := ImportanceChart(imps, title)
	if err != nil {
		return err
	}
	if filepath.Ext(path) == "" {
		return errors.NewValidationError("path", "missing image extension", path)
	}
	return errors.Wrapf(p.Save(DefaultWidth, DefaultHeight, path), "save chart %s", path)
}
