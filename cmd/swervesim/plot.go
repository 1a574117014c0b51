package main

import (
	"fmt"
	"image/color"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/swerve/spatialmath"
)

// trajectories are the paths traced by the true, dead-reckoned, and estimated poses.
type trajectories struct {
	truth    plotter.XYs
	odometry plotter.XYs
	estimate plotter.XYs
}

func (tr *trajectories) add(truth, odometry, estimate spatialmath.Pose2d) {
	tr.truth = append(tr.truth, plotter.XY{X: truth.X(), Y: truth.Y()})
	tr.odometry = append(tr.odometry, plotter.XY{X: odometry.X(), Y: odometry.Y()})
	tr.estimate = append(tr.estimate, plotter.XY{X: estimate.X(), Y: estimate.Y()})
}

// save draws the three paths on one field plot. The image format follows the extension of
// path (png, svg, pdf, ...).
func (tr *trajectories) save(path string) error {
	if len(tr.truth) == 0 {
		return errors.New("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "swerve pose tracking"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	for _, series := range []struct {
		name   string
		xys    plotter.XYs
		color  color.Color
		dashed bool
	}{
		{"truth", tr.truth, color.Black, false},
		{"odometry", tr.odometry, color.RGBA{R: 200, A: 255}, true},
		{"estimate", tr.estimate, color.RGBA{B: 200, A: 255}, false},
	} {
		line, err := plotter.NewLine(series.xys)
		if err != nil {
			return errors.Wrapf(err, "cannot plot %s", series.name)
		}
		line.LineStyle.Color = series.color
		line.LineStyle.Width = vg.Points(1)
		if series.dashed {
			line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	p.Legend.Top = true

	return errors.Wrapf(p.Save(6*vg.Inch, 6*vg.Inch, path), "cannot save plot to %q", path)
}

// table renders the tracking error summary.
func (r *report) table() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Error (m)", "Estimate", "Odometry"})
	for _, row := range []struct {
		name     string
		estimate float64
		odometry float64
	}{
		{"mean", r.Estimate.Mean, r.Odometry.Mean},
		{"p95", r.Estimate.P95, r.Odometry.P95},
		{"max", r.Estimate.Max, r.Odometry.Max},
	} {
		t.AppendRow(table.Row{row.name, fmt.Sprintf("%.4f", row.estimate), fmt.Sprintf("%.4f", row.odometry)})
	}
	t.AppendFooter(table.Row{"cycles", r.Cycles, ""})
	return t.Render()
}
