package icongrid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TableWriter persists a labeled 2-D table. Implementations bridge Grid3D
// level slices to external tabular formats; the library ships a CSV writer.
type TableWriter interface {
	WriteTable(t *Table) error
}

// Table is a single-level (latitude × longitude) slice with coordinate
// labels. Row labels are latitudes south→north, column labels longitudes
// west→east, both computed fresh from the grid Spec.
//
// Dims, Z, X and Y implement gonum's plotter.GridXYZ, so a Table feeds a
// heat map directly.
type Table struct {
	lats []float64
	lons []float64
	m    *mat.Dense // LatCount × LonCount
}

// LevelTable projects one level of the grid into a labeled Table.
func (g *Grid3D) LevelTable(level int) (*Table, error) {
	s := g.spec
	if level < 0 || level >= s.LevelCount {
		return nil, fmt.Errorf("level %d outside [0, %d)", level, s.LevelCount)
	}
	start := flatIndex(LevelMajor, s, level, 0, 0)
	data := make([]float64, s.LevelPoints())
	copy(data, g.vals[start:start+s.LevelPoints()])
	return &Table{
		lats: s.Lats(),
		lons: s.Lons(),
		m:    mat.NewDense(s.LatCount, s.LonCount, data),
	}, nil
}

// RowLabels returns the latitude labels.
func (t *Table) RowLabels() []float64 { return t.lats }

// ColLabels returns the longitude labels.
func (t *Table) ColLabels() []float64 { return t.lons }

// Value returns the sample at (row, col).
func (t *Table) Value(row, col int) float64 { return t.m.At(row, col) }

// Dims returns (columns, rows).
func (t *Table) Dims() (c, r int) { return len(t.lons), len(t.lats) }

// Z returns the sample at column c, row r.
func (t *Table) Z(c, r int) float64 { return t.m.At(r, c) }

// X returns the longitude of column c.
func (t *Table) X(c int) float64 { return t.lons[c] }

// Y returns the latitude of row r.
func (t *Table) Y(r int) float64 { return t.lats[r] }
