// Package plot renders per-qubit calibration figures to PNG. Each figure
// is a grid of sub-plots, one cell per qubit, in the order the traces are
// given.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const cellSize = 4 * vg.Inch

var (
	rawColor   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	fitColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	cloudColor = []color.RGBA{
		{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}, // ground
		{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}, // excited
		{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}, // second excited
	}
)

// Trace is one qubit's cell in a grid figure: a raw series and an
// optional fitted model to overlay.
type Trace struct {
	Qubit string
	X     []float64
	Y     []float64
	Fit   func(x float64) float64
}

// Clouds is one qubit's cell in a blob figure: up to three labelled I/Q
// point clouds.
type Clouds struct {
	Qubit  string
	Labels []string
	I      [][]float64
	Q      [][]float64
}

// SaveGrid writes a grid figure of raw traces with fit overlays.
func SaveGrid(path, xLabel, yLabel string, traces []Trace) error {
	if len(traces) == 0 {
		return fmt.Errorf("plot: no traces to draw")
	}

	plots := make([]*plot.Plot, len(traces))
	for i, tr := range traces {
		p := plot.New()
		p.Title.Text = tr.Qubit
		p.X.Label.Text = xLabel
		p.Y.Label.Text = yLabel

		pts := make(plotter.XYs, len(tr.X))
		for k := range tr.X {
			pts[k].X, pts[k].Y = tr.X[k], tr.Y[k]
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("plot: building scatter for %s: %w", tr.Qubit, err)
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.GlyphStyle.Color = rawColor
		p.Add(scatter)

		if tr.Fit != nil {
			fn := plotter.NewFunction(tr.Fit)
			fn.Color = fitColor
			fn.Width = vg.Points(1)
			p.Add(fn)
		}
		plots[i] = p
	}
	return writePNG(path, plots)
}

// SaveBlobGrid writes a grid figure of I/Q point clouds, one cell per
// qubit, one color per prepared state.
func SaveBlobGrid(path string, clouds []Clouds) error {
	if len(clouds) == 0 {
		return fmt.Errorf("plot: no clouds to draw")
	}

	plots := make([]*plot.Plot, len(clouds))
	for i, c := range clouds {
		p := plot.New()
		p.Title.Text = c.Qubit
		p.X.Label.Text = "I [V]"
		p.Y.Label.Text = "Q [V]"

		for s := range c.I {
			pts := make(plotter.XYs, len(c.I[s]))
			for k := range c.I[s] {
				pts[k].X, pts[k].Y = c.I[s][k], c.Q[s][k]
			}
			scatter, err := plotter.NewScatter(pts)
			if err != nil {
				return fmt.Errorf("plot: building cloud for %s: %w", c.Qubit, err)
			}
			scatter.GlyphStyle.Shape = draw.CircleGlyph{}
			scatter.GlyphStyle.Radius = vg.Points(1)
			scatter.GlyphStyle.Color = cloudColor[s%len(cloudColor)]
			p.Add(scatter)
			if s < len(c.Labels) {
				p.Legend.Add(c.Labels[s], scatter)
			}
		}
		plots[i] = p
	}
	return writePNG(path, plots)
}

// gridShape picks a near-square layout for n cells.
func gridShape(n int) (rows, cols int) {
	cols = 1
	for cols*cols < n {
		cols++
	}
	rows = (n + cols - 1) / cols
	return rows, cols
}

// writePNG lays the plots out on one canvas and writes it to path,
// creating the parent directory if needed.
func writePNG(path string, plots []*plot.Plot) error {
	rows, cols := gridShape(len(plots))

	grid := make([][]*plot.Plot, rows)
	for r := range grid {
		grid[r] = make([]*plot.Plot, cols)
		for c := range grid[r] {
			if i := r*cols + c; i < len(plots) {
				grid[r][c] = plots[i]
			}
		}
	}

	img := vgimg.New(vg.Length(cols)*cellSize, vg.Length(rows)*cellSize)
	canvases := plot.Align(grid, draw.Tiles{Rows: rows, Cols: cols}, draw.New(img))
	for r := range grid {
		for c := range grid[r] {
			if grid[r][c] != nil {
				grid[r][c].Draw(canvases[r][c])
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("plot: creating output directory: %w", err)
	}
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("plot: creating %s: %w", path, err)
	}
	defer w.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("plot: writing %s: %w", path, err)
	}
	return nil
}
