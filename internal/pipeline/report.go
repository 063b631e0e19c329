package pipeline

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// histogramBins is the bin count of the density histogram.
const histogramBins = 50

// WriteHTMLReport renders the per-stage counts and durations of r as a
// standalone go-echarts page.
func WriteHTMLReport(w io.Writer, r *Report, title string) error {
	if len(r.Stages) == 0 {
		return fmt.Errorf("%w: report has no stages", geom.ErrInvalidParameter)
	}

	names := make([]string, len(r.Stages))
	points := make([]opts.BarData, len(r.Stages))
	vertices := make([]opts.BarData, len(r.Stages))
	triangles := make([]opts.BarData, len(r.Stages))
	durations := make([]opts.BarData, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = string(s.Stage)
		points[i] = opts.BarData{Value: s.OutputPoints}
		vertices[i] = opts.BarData{Value: s.OutputVertices}
		triangles[i] = opts.BarData{Value: s.OutputTriangles}
		durations[i] = opts.BarData{Value: float64(s.Duration.Microseconds()) / 1000}
	}

	counts := charts.NewBar()
	counts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d stages in %s", len(r.Stages), r.Duration.Round(timeRounding(r.Duration)))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count after stage"}),
	)
	counts.SetXAxis(names).
		AddSeries("points", points).
		AddSeries("vertices", vertices).
		AddSeries("triangles", triangles,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	timing := charts.NewBar()
	timing.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Stage duration (ms)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	timing.SetXAxis(names).AddSeries("duration", durations)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(counts, timing)
	return page.Render(w)
}

// WriteDensityHistogram renders a PNG histogram of vertex densities with
// a vertical marker at threshold. An infinite threshold draws no marker.
func WriteDensityHistogram(w io.Writer, densities []float64, threshold float64) error {
	if len(densities) == 0 {
		return fmt.Errorf("%w: no densities to plot", geom.ErrInvalidParameter)
	}

	hist, err := plotter.NewHist(plotter.Values(densities), histogramBins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}

	mean, std := stat.MeanStdDev(densities, nil)
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Vertex density (n=%d, mean=%.3g, sd=%.3g)", len(densities), mean, std)
	p.X.Label.Text = "Density"
	p.Y.Label.Text = "Vertices"
	p.Add(hist)

	if !math.IsInf(threshold, 0) && !math.IsNaN(threshold) {
		top := 0.0
		for _, b := range hist.Bins {
			top = math.Max(top, b.Weight)
		}
		marker, err := plotter.NewLine(plotter.XYs{{X: threshold, Y: 0}, {X: threshold, Y: top}})
		if err != nil {
			return fmt.Errorf("failed to build threshold marker: %w", err)
		}
		marker.Color = color.RGBA{R: 200, A: 255}
		marker.Width = vg.Points(1.5)
		marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("trim threshold %.3g", threshold), marker)
	}

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render histogram: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write histogram: %w", err)
	}
	return nil
}
