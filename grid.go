// Package icongrid reshapes DWD ICON-D2 regular lat/lon model output into
// addressable (level, latitude, longitude) arrays and slices geographic
// sub-regions by coordinate instead of raw grid index.
package icongrid

import "math"

// Coord is a geographic point in degrees north / degrees east.
// It need not align with a grid point.
type Coord struct {
	Lat float64
	Lon float64
}

// Spec describes a regular latitude/longitude grid with LevelCount vertical
// model levels. The origin (LatStart, LonStart) is the south-west grid
// corner and both steps are positive: rows scan south→north, columns
// west→east, matching ICON-D2 regular-lat-lon products (scan mode 0x40).
//
// A Spec is a plain value; it is threaded explicitly through every call and
// never cached on the arrays it describes.
type Spec struct {
	LevelCount int
	LatCount   int
	LonCount   int

	LatStart float64 // latitude of grid row 0, degrees north
	LatStep  float64 // degrees per row, > 0
	LonStart float64 // longitude of grid column 0, degrees east
	LonStep  float64 // degrees per column, > 0
}

// Validate reports an InvalidGridSpecError for any zero or negative
// dimension or step. An empty grid has no valid reshaping.
func (s Spec) Validate() error {
	switch {
	case s.LevelCount <= 0:
		return &InvalidGridSpecError{Field: "LevelCount", Value: float64(s.LevelCount)}
	case s.LatCount <= 0:
		return &InvalidGridSpecError{Field: "LatCount", Value: float64(s.LatCount)}
	case s.LonCount <= 0:
		return &InvalidGridSpecError{Field: "LonCount", Value: float64(s.LonCount)}
	case s.LatStep <= 0:
		return &InvalidGridSpecError{Field: "LatStep", Value: s.LatStep}
	case s.LonStep <= 0:
		return &InvalidGridSpecError{Field: "LonStep", Value: s.LonStep}
	}
	return nil
}

// Points returns the total sample count LevelCount × LatCount × LonCount.
func (s Spec) Points() int {
	return s.LevelCount * s.LatCount * s.LonCount
}

// LevelPoints returns the sample count of a single level.
func (s Spec) LevelPoints() int {
	return s.LatCount * s.LonCount
}

// LatIndex maps a latitude to the nearest grid row.
//
// Rounding policy: nearest index, halves away from zero (math.Round). A
// coordinate exactly between two rows therefore snaps to the northern one.
// Fails with OutOfBoundsError when the rounded index falls outside
// [0, LatCount); the index is never clamped.
func (s Spec) LatIndex(lat float64) (int, error) {
	i := int(math.Round((lat - s.LatStart) / s.LatStep))
	if i < 0 || i >= s.LatCount {
		return 0, &OutOfBoundsError{Axis: "latitude", Value: lat, Index: i, Count: s.LatCount}
	}
	return i, nil
}

// LonIndex maps a longitude to the nearest grid column. Same rounding and
// bounds contract as LatIndex.
func (s Spec) LonIndex(lon float64) (int, error) {
	j := int(math.Round((lon - s.LonStart) / s.LonStep))
	if j < 0 || j >= s.LonCount {
		return 0, &OutOfBoundsError{Axis: "longitude", Value: lon, Index: j, Count: s.LonCount}
	}
	return j, nil
}

// Index resolves a coordinate to (row, column) grid indices.
func (s Spec) Index(c Coord) (latIdx, lonIdx int, err error) {
	latIdx, err = s.LatIndex(c.Lat)
	if err != nil {
		return 0, 0, err
	}
	lonIdx, err = s.LonIndex(c.Lon)
	if err != nil {
		return 0, 0, err
	}
	return latIdx, lonIdx, nil
}

// LatAt returns the exact latitude of grid row i. No rounding is involved;
// LatAt is the inverse of LatIndex on exact grid points.
func (s Spec) LatAt(i int) float64 {
	return s.LatStart + float64(i)*s.LatStep
}

// LonAt returns the exact longitude of grid column j.
func (s Spec) LonAt(j int) float64 {
	return s.LonStart + float64(j)*s.LonStep
}

// Lats returns the latitude labels of all grid rows, south to north.
func (s Spec) Lats() []float64 {
	out := make([]float64, s.LatCount)
	for i := range out {
		out[i] = s.LatAt(i)
	}
	return out
}

// Lons returns the longitude labels of all grid columns, west to east.
func (s Spec) Lons() []float64 {
	out := make([]float64, s.LonCount)
	for j := range out {
		out[j] = s.LonAt(j)
	}
	return out
}
