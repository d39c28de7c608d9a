// Package report renders processing and evaluation output: per-channel
// moment curve plots as PNG, and an HTML training-loss chart. File names
// encode the channel and which representative step is shown.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/stride-data/gaitmoment/internal/assemble"
	"github.com/stride-data/gaitmoment/internal/estimate"
)

// stepCurves pairs one step's true and predicted curve for one channel.
type stepCurves struct {
	sample *assemble.StepSample
	truth  []float64
	pred   []float64
	rmse   float64
}

// WriteCurvePlots predicts every labeled sample and writes, per output
// channel, PNG plots of the best, median, and worst step by RMSE plus a
// mean and standard-deviation band across all steps.
func WriteCurvePlots(outputDir string, m *estimate.Model, samples []*assemble.StepSample, channels []string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	for ch, name := range channels {
		curves, err := collectCurves(m, samples, ch)
		if err != nil {
			return err
		}
		sort.Slice(curves, func(i, j int) bool { return curves[i].rmse < curves[j].rmse })

		picks := []struct {
			tag string
			c   stepCurves
		}{
			{"best", curves[0]},
			{"median", curves[len(curves)/2]},
			{"worst", curves[len(curves)-1]},
		}
		for _, pick := range picks {
			file := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", fileSafe(name), pick.tag))
			title := fmt.Sprintf("%s %s step (%s/%d, rmse %.4f)",
				name, pick.tag, pick.c.sample.SessionID, pick.c.sample.StepID, pick.c.rmse)
			if err := plotStep(file, title, pick.c); err != nil {
				return err
			}
		}

		file := filepath.Join(outputDir, fmt.Sprintf("%s_band.png", fileSafe(name)))
		if err := plotBand(file, name, curves); err != nil {
			return err
		}
	}
	return nil
}

func collectCurves(m *estimate.Model, samples []*assemble.StepSample, channel int) ([]stepCurves, error) {
	curves := make([]stepCurves, 0, len(samples))
	for _, s := range samples {
		if !s.HasLabels() {
			continue
		}
		pred, err := m.PredictSample(s)
		if err != nil {
			return nil, fmt.Errorf("predict %s/%d: %w", s.SessionID, s.StepID, err)
		}
		c := stepCurves{sample: s}
		var sse float64
		for t := range pred {
			y, p := s.Labels[t][channel], pred[t][channel]
			c.truth = append(c.truth, y)
			c.pred = append(c.pred, p)
			sse += (p - y) * (p - y)
		}
		c.rmse = math.Sqrt(sse / float64(len(pred)))
		curves = append(curves, c)
	}
	if len(curves) == 0 {
		return nil, fmt.Errorf("no labeled samples to plot")
	}
	return curves, nil
}

func plotStep(file, title string, c stepCurves) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "gait cycle (%)"
	p.Y.Label.Text = "moment (normalised)"

	truthPts := make(plotter.XYs, len(c.truth))
	predPts := make(plotter.XYs, len(c.pred))
	scale := 100.0 / float64(len(c.truth)-1)
	for i := range c.truth {
		x := float64(i) * scale
		truthPts[i] = plotter.XY{X: x, Y: c.truth[i]}
		predPts[i] = plotter.XY{X: x, Y: c.pred[i]}
	}

	truthLine, err := plotter.NewLine(truthPts)
	if err != nil {
		return fmt.Errorf("failed to build truth line: %w", err)
	}
	truthLine.Width = vg.Points(1)
	predLine, err := plotter.NewLine(predPts)
	if err != nil {
		return fmt.Errorf("failed to build prediction line: %w", err)
	}
	predLine.Width = vg.Points(1)
	predLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(truthLine, predLine)
	p.Legend.Add("measured", truthLine)
	p.Legend.Add("estimated", predLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// plotBand draws the across-step mean curve with one standard deviation
// above and below, for truth and prediction.
func plotBand(file, name string, curves []stepCurves) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s mean over %d steps (dashed: estimated)", name, len(curves))
	p.X.Label.Text = "gait cycle (%)"
	p.Y.Label.Text = "moment (normalised)"

	L := len(curves[0].truth)
	scale := 100.0 / float64(L-1)
	lines := []struct {
		mean, sd plotter.XYs
		dashed   bool
		label    string
	}{
		{make(plotter.XYs, L), make(plotter.XYs, L), false, "measured mean"},
		{make(plotter.XYs, L), make(plotter.XYs, L), true, "estimated mean"},
	}

	column := make([]float64, len(curves))
	for t := 0; t < L; t++ {
		x := float64(t) * scale
		for li := range lines {
			for ci, c := range curves {
				if li == 0 {
					column[ci] = c.truth[t]
				} else {
					column[ci] = c.pred[t]
				}
			}
			mean, sd := stat.MeanStdDev(column, nil)
			if len(curves) < 2 {
				sd = 0
			}
			lines[li].mean[t] = plotter.XY{X: x, Y: mean}
			lines[li].sd[t] = plotter.XY{X: x, Y: sd}
		}
	}

	for _, l := range lines {
		meanLine, err := plotter.NewLine(l.mean)
		if err != nil {
			return fmt.Errorf("failed to build mean line: %w", err)
		}
		meanLine.Width = vg.Points(1.5)
		upper := make(plotter.XYs, L)
		lower := make(plotter.XYs, L)
		for t := range l.mean {
			upper[t] = plotter.XY{X: l.mean[t].X, Y: l.mean[t].Y + l.sd[t].Y}
			lower[t] = plotter.XY{X: l.mean[t].X, Y: l.mean[t].Y - l.sd[t].Y}
		}
		upperLine, err := plotter.NewLine(upper)
		if err != nil {
			return fmt.Errorf("failed to build band line: %w", err)
		}
		lowerLine, err := plotter.NewLine(lower)
		if err != nil {
			return fmt.Errorf("failed to build band line: %w", err)
		}
		for _, bl := range []*plotter.Line{upperLine, lowerLine} {
			bl.Width = vg.Points(0.5)
		}
		if l.dashed {
			for _, ln := range []*plotter.Line{meanLine, upperLine, lowerLine} {
				ln.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			}
		}
		p.Add(meanLine, upperLine, lowerLine)
		p.Legend.Add(l.label, meanLine)
	}

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}

// WriteLossChart renders the per-epoch training losses as an HTML line
// chart.
func WriteLossChart(file string, losses []float64) error {
	if len(losses) == 0 {
		return fmt.Errorf("no losses to chart")
	}

	x := make([]string, len(losses))
	y := make([]opts.LineData, len(losses))
	for i, l := range losses {
		x[i] = fmt.Sprintf("%d", i+1)
		y[i] = opts.LineData{Value: l}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training Loss", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Training Loss", Subtitle: fmt.Sprintf("%d epochs, final %.6f", len(losses), losses[len(losses)-1])}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mse"}),
	)
	line.SetXAxis(x).AddSeries("loss", y)

	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", file, err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("failed to render loss chart: %w", err)
	}
	return nil
}

func fileSafe(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}
