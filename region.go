package icongrid

// Bounds is an inclusive rectangular region request, given as the
// south-west and north-east corner coordinates.
type Bounds struct {
	SW Coord
	NE Coord
}

// Region slices the grid points whose coordinates fall within the inclusive
// SW/NE rectangle, across all levels. The result is a new Grid3D whose Spec
// describes the sub-grid, so coordinate labels of the slice come from the
// same inverse mapping as the full grid.
//
// Corners that resolve outside the grid fail with OutOfBoundsError. Corners
// that resolve to the same or inverted indices fail with EmptyRegionError;
// mis-ordered bounds are a caller bug and are never silently swapped.
func (g *Grid3D) Region(b Bounds) (*Grid3D, error) {
	s := g.spec
	swLat, swLon, err := s.Index(b.SW)
	if err != nil {
		return nil, err
	}
	neLat, neLon, err := s.Index(b.NE)
	if err != nil {
		return nil, err
	}
	if neLat <= swLat || neLon <= swLon {
		return nil, &EmptyRegionError{SW: b.SW, NE: b.NE}
	}

	sub := Spec{
		LevelCount: s.LevelCount,
		LatCount:   neLat - swLat + 1,
		LonCount:   neLon - swLon + 1,
		LatStart:   s.LatAt(swLat),
		LatStep:    s.LatStep,
		LonStart:   s.LonAt(swLon),
		LonStep:    s.LonStep,
	}

	vals := make([]float64, 0, sub.Points())
	for h := 0; h < s.LevelCount; h++ {
		for i := swLat; i <= neLat; i++ {
			rowStart := flatIndex(LevelMajor, s, h, i, swLon)
			vals = append(vals, g.vals[rowStart:rowStart+sub.LonCount]...)
		}
	}
	return &Grid3D{spec: sub, vals: vals}, nil
}
