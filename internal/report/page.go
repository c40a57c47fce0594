package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/hdsemg/hdsemg-select/internal/layout"
)

// defaultMaxPoints caps the points drawn per trace.
const defaultMaxPoints = 4000

// PageInput describes one page of a grid to plot.
type PageInput struct {
	Samples           mat.Matrix
	SamplingFrequency float64
	Mapping           *layout.Mapping
	Page              int
	// Selected greys out deselected channels when set.
	Selected  []bool
	MaxPoints int
	Width     vg.Length
	Height    vg.Length
}

// PagePlot builds the plot for one page: each channel is normalised to its
// own peak and drawn on its own row, in page order from top to bottom.
func PagePlot(in PageInput) (*plot.Plot, error) {
	if in.Samples == nil {
		return nil, fmt.Errorf("page plot needs samples")
	}
	if in.Mapping == nil {
		return nil, fmt.Errorf("page plot needs a grid mapping")
	}
	if !(in.SamplingFrequency > 0) {
		return nil, fmt.Errorf("sampling frequency must be > 0, got %v", in.SamplingFrequency)
	}
	channels, err := in.Mapping.Page(in.Page)
	if err != nil {
		return nil, err
	}
	n, c := in.Samples.Dims()
	maxPoints := in.MaxPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	stride := max(1, (n+maxPoints-1)/maxPoints)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Grid %s, %s, page %d/%d",
		in.Mapping.GridKey, in.Mapping.LayoutMode, in.Page+1, in.Mapping.TotalPages())
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Channel"

	ticks := make([]plot.Tick, 0, len(channels))
	col := make([]float64, n)
	for slot, ch := range channels {
		if ch < 0 || ch >= c {
			return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, c)
		}
		offset := float64(len(channels) - 1 - slot)
		ticks = append(ticks, plot.Tick{Value: offset, Label: fmt.Sprintf("%d", ch+1)})

		mat.Col(col, ch, in.Samples)
		scale := 0.0
		if n > 0 {
			scale = math.Max(math.Abs(floats.Max(col)), math.Abs(floats.Min(col)))
		}
		if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
			scale = 1
		}

		pts := make(plotter.XYs, 0, n/stride+1)
		for i := 0; i < n; i += stride {
			pts = append(pts, plotter.XY{
				X: float64(i) / in.SamplingFrequency,
				Y: offset + 0.45*col[i]/scale,
			})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		line.Width = vg.Points(0.5)
		line.Color = plotutil.Color(slot)
		if in.Selected != nil && ch < len(in.Selected) && !in.Selected[ch] {
			line.Color = color.Gray{Y: 0xb0}
			line.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		}
		p.Add(line)
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Min = -1
	p.Y.Max = float64(len(channels))
	return p, nil
}

// WritePagePNG renders one page as a PNG image.
func WritePagePNG(w io.Writer, in PageInput) error {
	p, err := PagePlot(in)
	if err != nil {
		return err
	}
	width, height := in.Width, in.Height
	if width <= 0 {
		width = 14 * vg.Inch
	}
	if height <= 0 {
		height = 10 * vg.Inch
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render page plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write page plot: %w", err)
	}
	return nil
}
