package icongrid

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var _ plotter.GridXYZ = (*Table)(nil)

// RenderHeatMap writes a heat-map image of a single-level table to path.
// The output format follows the file extension (.png, .pdf, .svg).
func RenderHeatMap(t *Table, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "longitude (°E)"
	p.Y.Label.Text = "latitude (°N)"

	hm := plotter.NewHeatMap(t, palette.Heat(12, 255))
	p.Add(hm)

	return p.Save(10*vg.Inch, 7*vg.Inch, path)
}
