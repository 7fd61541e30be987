package report

import (
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// plot size in inches
const plotSize = 5 * vg.Inch

// NamedCurve is one model's curve in a comparison plot.
type NamedCurve struct {
	Name   string
	Points []metrics.CurvePoint
}

func curveXYs(points []metrics.CurvePoint) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i] = plotter.XY{X: p.X, Y: p.Y}
	}
	return xys
}

func unitPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())
	return p
}

func addCurves(p *plot.Plot, curves []NamedCurve) error {
	for i, c := range curves {
		l, err := plotter.NewLine(curveXYs(c.Points))
		if err != nil {
			return errors.Wrapf(err, "%s curve", c.Name)
		}
		l.LineStyle.Width = vg.Points(2)
		l.LineStyle.Color = plotutil.Color(i)
		p.Add(l)
		p.Legend.Add(c.Name, l)
	}
	return nil
}

// PlotROC draws test-set ROC curves with the chance diagonal.
func PlotROC(path string, curves []NamedCurve) error {
	p := unitPlot("ROC curve (test set)", "False positive rate", "True positive rate")
	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	diag.LineStyle.Color = color.Gray{Y: 160}
	diag.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diag)
	if err := addCurves(p, curves); err != nil {
		return err
	}
	return errors.Wrapf(p.Save(plotSize, plotSize, path), "save %s", path)
}

// PlotPR draws test-set precision-recall curves.
func PlotPR(path string, curves []NamedCurve) error {
	p := unitPlot("Precision-recall curve (test set)", "Recall", "Precision")
	p.Legend.Left = true
	if err := addCurves(p, curves); err != nil {
		return err
	}
	return errors.Wrapf(p.Save(plotSize, plotSize, path), "save %s", path)
}

// PlotPenalty draws the resampled selection metric against the penalty of a
// logistic grid on a log axis. Unavailable entries are skipped.
func PlotPenalty(path string, rep *tuning.MetricReport) error {
	var xys plotter.XYs
	for _, row := range rep.Rows {
		lambda, ok := row.Candidate.Params.Get(tuning.ParamPenalty)
		mean := row.Metric(rep.Metric).Mean
		if !ok || !row.Available || !(lambda > 0) || math.IsNaN(mean) {
			continue
		}
		xys = append(xys, plotter.XY{X: lambda, Y: mean})
	}
	if len(xys) == 0 {
		return errors.NewValueError("report.PlotPenalty", "no available penalty entries to plot")
	}
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })

	p := plot.New()
	p.Title.Text = rep.Model + ": " + rep.Metric + " by penalty"
	p.X.Label.Text = "penalty"
	p.Y.Label.Text = rep.Metric
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	l, s, err := plotter.NewLinePoints(xys)
	if err != nil {
		return err
	}
	l.LineStyle.Width = vg.Points(1.5)
	s.Shape = draw.CircleGlyph{}
	s.Radius = vg.Points(3)
	p.Add(l, s)
	return errors.Wrapf(p.Save(plotSize*1.4, plotSize, path), "save %s", path)
}
