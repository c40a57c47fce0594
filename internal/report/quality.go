// Package report renders review artefacts for a selection session: an HTML
// quality report and PNG plots of one page of a grid.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/quality"
)

const (
	selectedColor   = "#3b82f6"
	deselectedColor = "#9ca3af"
)

// QualityInput is everything the HTML report shows.
type QualityInput struct {
	FileName     string
	Descriptions []string
	Samples      mat.Matrix
	// Selected may be nil, in which case every channel is drawn as selected.
	Selected []bool
	Report   quality.Report
	// AssetsHost overrides where the page loads echarts from.
	AssetsHost string
}

// ChannelVariances returns the population variance of every column.
func ChannelVariances(samples mat.Matrix) []float64 {
	if samples == nil {
		return nil
	}
	r, c := samples.Dims()
	out := make([]float64, c)
	col := make([]float64, r)
	for ch := 0; ch < c; ch++ {
		mat.Col(col, ch, samples)
		out[ch] = stat.PopVariance(col, nil)
	}
	return out
}

// WriteQualityReport renders the report as a standalone HTML page.
func WriteQualityReport(w io.Writer, in QualityInput) error {
	if in.Samples == nil {
		return fmt.Errorf("quality report needs samples")
	}
	_, c := in.Samples.Dims()
	if c != len(in.Descriptions) {
		return fmt.Errorf("%d sample columns for %d channel descriptions", c, len(in.Descriptions))
	}
	if in.Selected != nil && len(in.Selected) != c {
		return fmt.Errorf("%d selection flags for %d channels", len(in.Selected), c)
	}

	page := components.NewPage()
	page.SetPageTitle("Channel quality: " + in.FileName)
	if in.AssetsHost != "" {
		page.SetAssetsHost(in.AssetsHost)
	}
	page.AddCharts(
		varianceChart(in),
		labelChart(in),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render quality report: %w", err)
	}
	return nil
}

func channelAxis(n int) []string {
	x := make([]string, n)
	for i := range x {
		x[i] = strconv.Itoa(i + 1)
	}
	return x
}

func varianceChart(in QualityInput) *charts.Bar {
	variances := ChannelVariances(in.Samples)
	data := make([]opts.BarData, len(variances))
	for ch, v := range variances {
		color := selectedColor
		if in.Selected != nil && !in.Selected[ch] {
			color = deselectedColor
		}
		data[ch] = opts.BarData{
			Name:      in.Descriptions[ch],
			Value:     v,
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: in.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Channel variance", Subtitle: fmt.Sprintf("%s channels=%d", in.FileName, len(variances))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Channel", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Variance"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	bar.SetXAxis(channelAxis(len(variances))).AddSeries("variance", data)
	return bar
}

// labelChart stacks one series per built-in label, 1 where the channel
// carries it.
func labelChart(in QualityInput) *charts.Bar {
	n := len(in.Descriptions)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: in.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Suggested labels", Subtitle: fmt.Sprintf("flagged channels=%d", len(in.Report.Channels()))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Channel", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(channelAxis(n))
	for _, l := range labels.All() {
		data := make([]opts.BarData, n)
		flagged := false
		for ch := 0; ch < n; ch++ {
			v := 0
			if in.Report.Has(ch, l) {
				v = 1
				flagged = true
			}
			data[ch] = opts.BarData{Value: v}
		}
		if !flagged {
			continue
		}
		bar.AddSeries(l.DisplayName(), data,
			charts.WithBarChartOpts(opts.BarChart{Stack: "labels"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: labels.Presentation[l].Color}),
		)
	}
	return bar
}
