package icongrid

import "fmt"

// RecordOrder names the flat ordering a decoder emits samples in. The
// ordering is part of the decoder's wire contract: a transposition here
// corrupts every downstream value without any error, so the order is an
// explicit parameter of Reshape rather than a hidden constant.
type RecordOrder int

const (
	// LevelMajor is the ICON-D2 GRIB emission order: all samples of one
	// level are contiguous, rows scan south→north, longitude fastest.
	// flat = (level*LatCount + row)*LonCount + col.
	LevelMajor RecordOrder = iota

	// PointMajor keeps all levels of one grid point contiguous.
	// flat = (row*LonCount + col)*LevelCount + level.
	PointMajor
)

func (o RecordOrder) String() string {
	switch o {
	case LevelMajor:
		return "level-major"
	case PointMajor:
		return "point-major"
	default:
		return fmt.Sprintf("RecordOrder(%d)", int(o))
	}
}

// flatIndex is the closed-form position of (level, row, col) in a flat
// sequence with the given order. Pure arithmetic, no bounds checks: the
// bijection over valid indices is pinned by tests.
func flatIndex(o RecordOrder, s Spec, level, row, col int) int {
	if o == PointMajor {
		return (row*s.LonCount+col)*s.LevelCount + level
	}
	return (level*s.LatCount+row)*s.LonCount + col
}

// Grid3D is a dense (level, latitude, longitude) array. It is read-only
// after construction; concurrent reads are safe.
type Grid3D struct {
	spec Spec
	vals []float64 // canonical level-major storage
}

// Reshape converts a flat decoder-ordered sequence into a Grid3D.
//
// A sequence shorter than spec.Points() fails with TruncatedInputError,
// which is retryable (likely a partial fetch). A longer one fails with
// ShapeMismatchError: the grid descriptor does not match the decoder.
// The input slice is copied; the caller keeps ownership of vals.
func Reshape(vals []float64, spec Spec, order RecordOrder) (*Grid3D, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if order != LevelMajor && order != PointMajor {
		return nil, fmt.Errorf("unknown record order %d", int(order))
	}
	want := spec.Points()
	switch {
	case len(vals) < want:
		return nil, &TruncatedInputError{Want: want, Got: len(vals)}
	case len(vals) > want:
		return nil, &ShapeMismatchError{Want: want, Got: len(vals)}
	}

	stored := make([]float64, want)
	if order == LevelMajor {
		copy(stored, vals)
	} else {
		for h := 0; h < spec.LevelCount; h++ {
			for i := 0; i < spec.LatCount; i++ {
				for j := 0; j < spec.LonCount; j++ {
					stored[flatIndex(LevelMajor, spec, h, i, j)] = vals[flatIndex(order, spec, h, i, j)]
				}
			}
		}
	}
	return &Grid3D{spec: spec, vals: stored}, nil
}

// Spec returns the grid descriptor.
func (g *Grid3D) Spec() Spec { return g.spec }

// At returns the sample at (level, row, col). Indices must be within the
// Spec counts; like raw slice indexing, an invalid index panics.
func (g *Grid3D) At(level, row, col int) float64 {
	return g.vals[flatIndex(LevelMajor, g.spec, level, row, col)]
}

// Lookup returns the nearest-neighbour sample at a coordinate on one level.
// Fails with OutOfBoundsError when the coordinate falls outside the grid.
func (g *Grid3D) Lookup(level int, c Coord) (float64, error) {
	if level < 0 || level >= g.spec.LevelCount {
		return 0, fmt.Errorf("level %d outside [0, %d)", level, g.spec.LevelCount)
	}
	i, j, err := g.spec.Index(c)
	if err != nil {
		return 0, err
	}
	return g.At(level, i, j), nil
}

// Flatten returns a copy of the samples in the given record order.
// Reshape followed by Flatten with the same order reproduces the original
// sequence exactly.
func (g *Grid3D) Flatten(order RecordOrder) []float64 {
	out := make([]float64, len(g.vals))
	if order == LevelMajor {
		copy(out, g.vals)
		return out
	}
	for h := 0; h < g.spec.LevelCount; h++ {
		for i := 0; i < g.spec.LatCount; i++ {
			for j := 0; j < g.spec.LonCount; j++ {
				out[flatIndex(order, g.spec, h, i, j)] = g.vals[flatIndex(LevelMajor, g.spec, h, i, j)]
			}
		}
	}
	return out
}
