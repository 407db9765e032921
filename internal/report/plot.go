package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteFrameTimePlot writes a PNG line chart of per-view render time in
// milliseconds to w.
func WriteFrameTimePlot(w io.Writer, title string, times []time.Duration) error {
	if len(times) == 0 {
		return fmt.Errorf("no frame times to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "View"
	p.Y.Label.Text = "Render time (ms)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(times))
	for i, d := range times {
		pts[i] = plotter.XY{X: float64(i), Y: float64(d) / float64(time.Millisecond)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

// WriteFrameTimeChart renders an interactive HTML line chart of per-view
// render time to w.
func WriteFrameTimeChart(w io.Writer, title string, times []time.Duration) error {
	stats := Summarise(times)

	xs := make([]int, len(times))
	ys := make([]opts.LineData, len(times))
	for i, d := range times {
		xs[i] = i
		ys[i] = opts.LineData{Value: float64(d) / float64(time.Millisecond)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: stats.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "view", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(xs).AddSeries("render time", ys)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
