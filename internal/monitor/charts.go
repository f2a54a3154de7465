package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/marker.tracker/internal/tracking"
)

// ErrNoTrajectory is returned when there is nothing to draw.
var ErrNoTrajectory = errors.New("no trajectory records")

var axisColors = [3]color.RGBA{
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

var axisNames = [3]string{"x", "y", "z"}

// relativeSeconds returns each record's time since the first one.
func relativeSeconds(records []tracking.DetectionRecord) []float64 {
	out := make([]float64, len(records))
	if len(records) == 0 {
		return out
	}
	t0 := records[0].Timestamp
	for i, r := range records {
		out[i] = r.Timestamp - t0
	}
	return out
}

// TrajectoryChart builds an interactive line chart of the translation
// components over time.
func TrajectoryChart(records []tracking.DetectionRecord) *charts.Line {
	ts := relativeSeconds(records)
	xs := make([]string, len(records))
	var series [3][]opts.LineData
	for i, r := range records {
		xs[i] = fmt.Sprintf("%.2f", ts[i])
		for a := range series {
			series[a] = append(series[a], opts.LineData{Value: r.Translation[a]})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Marker trajectory", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Filtered trajectory", Subtitle: fmt.Sprintf("records=%d", len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "position (m)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.SetXAxis(xs)
	for a := range series {
		line.AddSeries(axisNames[a], series[a], charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

// TrajectoryPlot draws the translation components over time as a static
// plot.
func TrajectoryPlot(records []tracking.DetectionRecord) (*plot.Plot, error) {
	if len(records) == 0 {
		return nil, ErrNoTrajectory
	}
	ts := relativeSeconds(records)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Marker trajectory (%d records)", len(records))
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "position (m)"
	p.Add(plotter.NewGrid())

	for a := 0; a < 3; a++ {
		pts := make(plotter.XYs, len(records))
		for i, r := range records {
			pts[i] = plotter.XY{X: ts[i], Y: r.Translation[a]}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s series: %w", axisNames[a], err)
		}
		l.Color = axisColors[a]
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(axisNames[a], l)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WriteTrajectoryPNG renders TrajectoryPlot as a PNG to w.
func WriteTrajectoryPNG(w io.Writer, records []tracking.DetectionRecord) error {
	p, err := TrajectoryPlot(records)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
