package icongrid

import "fmt"

// InvalidGridSpecError reports a Spec with a zero or negative dimension or
// step. This is a caller configuration bug, not a data problem.
type InvalidGridSpecError struct {
	Field string
	Value float64
}

func (e *InvalidGridSpecError) Error() string {
	return fmt.Sprintf("grid spec: %s = %g, must be > 0", e.Field, e.Value)
}

// TruncatedInputError reports a flat sequence shorter than the grid
// requires. Typically a partial download or a short GRIB message; the
// caller may retry the upstream fetch.
type TruncatedInputError struct {
	Want int
	Got  int
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("truncated input: got %d of %d samples", e.Got, e.Want)
}

// ShapeMismatchError reports a flat sequence longer than the grid requires.
// Unlike a truncation this is structural, the grid descriptor does not
// describe the decoder's output, and retrying will not help.
type ShapeMismatchError struct {
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %d samples for a %d-point grid", e.Got, e.Want)
}

// OutOfBoundsError reports a coordinate that resolves outside the grid on
// one axis. Recoverable: the caller can choose different bounds. The value
// is never clamped to the grid edge.
type OutOfBoundsError struct {
	Axis  string  // "latitude" or "longitude"
	Value float64 // the offending coordinate, degrees
	Index int     // the index it resolved to
	Count int     // valid indices are [0, Count)
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("%s %g resolves to index %d, outside [0, %d)", e.Axis, e.Value, e.Index, e.Count)
}

// EmptyRegionError reports region bounds whose corners resolve to the same
// or inverted grid indices. Inverted corners are rejected, not swapped:
// silent correction would hide caller bugs behind plausible-looking data.
type EmptyRegionError struct {
	SW Coord
	NE Coord
}

func (e *EmptyRegionError) Error() string {
	return fmt.Sprintf("empty region: SW (%g, %g) does not resolve strictly south-west of NE (%g, %g)",
		e.SW.Lat, e.SW.Lon, e.NE.Lat, e.NE.Lon)
}
