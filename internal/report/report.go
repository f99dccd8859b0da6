// Package report renders a planning run as a standalone HTML page with
// ECharts visualisations: segment areas, launch positions and the run
// diagnostics.
package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/pipeline"
)

// Write renders the run report for res to w.
func Write(w io.Writer, projectName string, res *pipeline.Result) error {
	page := components.NewPage()
	page.SetPageTitle(projectName + " - search segment report")
	page.AddCharts(
		areaChart(projectName, res),
		launchChart(projectName, res),
		countersChart(res),
	)
	if err := page.Render(w); err != nil {
		return fault.New(fault.Internal, "render report: %v", err)
	}
	return nil
}

// WriteFile renders the run report to an HTML file.
func WriteFile(path, projectName string, res *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fault.New(fault.Resource, "create report %s: %v", path, err)
	}
	defer f.Close()
	if err := Write(f, projectName, res); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fault.New(fault.Resource, "write report %s: %v", path, err)
	}
	return nil
}

// areaChart shows acres per segment in assignment order.
func areaChart(projectName string, res *pipeline.Result) *charts.Bar {
	x := make([]string, 0, len(res.Segments))
	y := make([]opts.BarData, 0, len(res.Segments))
	for _, seg := range res.Segments {
		x = append(x, fmt.Sprintf("Segment %d", seg.Sequence))
		y = append(y, opts.BarData{Value: math.Round(seg.AreaAcres*100) / 100})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    projectName,
			Subtitle: fmt.Sprintf("%d segments, %.1f%% coverage", len(res.Segments), res.CoverageFraction*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "acres"}),
	)
	bar.SetXAxis(x).
		AddSeries("area", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// launchChart plots launch positions coloured by ground elevation.
func launchChart(projectName string, res *pipeline.Result) *charts.Scatter {
	pts := make([]opts.ScatterData, 0, len(res.Segments))
	minElev, maxElev := math.Inf(1), math.Inf(-1)
	for _, seg := range res.Segments {
		if seg.GroundElevM < minElev {
			minElev = seg.GroundElevM
		}
		if seg.GroundElevM > maxElev {
			maxElev = seg.GroundElevM
		}
		pts = append(pts, opts.ScatterData{
			Value: []interface{}{seg.LaunchLon, seg.LaunchLat, seg.GroundElevM},
		})
	}
	if len(res.Segments) == 0 || minElev == maxElev {
		minElev, maxElev = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Launch positions",
			Subtitle: fmt.Sprintf("EPSG:%d, %.0f m cells", res.EPSG, res.CellSizeM),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "lon", Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "lat", Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minElev),
			Max:        float32(maxElev),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("launches", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	return scatter
}

// countersChart shows the run diagnostics side by side.
func countersChart(res *pipeline.Result) *charts.Bar {
	c := res.Counters
	x := []string{
		"Candidates generated", "Candidates retained", "Candidates selected",
		"Cells total", "Cells visible", "Cells covered",
	}
	y := []opts.BarData{
		{Value: c.CandidatesGenerated},
		{Value: c.CandidatesRetained},
		{Value: c.CandidatesSelected},
		{Value: c.CellsTotal},
		{Value: c.CellsVisible},
		{Value: c.CellsCovered},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Run diagnostics"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30, Show: opts.Bool(true)}}),
	)
	bar.SetXAxis(x).
		AddSeries("count", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
