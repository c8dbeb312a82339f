package icongrid

import (
	"encoding/binary"
	"io"
	"math"
)

// WriteLevelsBin dumps every level of g as raw float64 little-endian,
// column-major within each level (all latitudes of one longitude column,
// then the next column), levels in ascending order. Column-major is what
// MATLAB's reshape expects, so the file loads without a transpose.
func WriteLevelsBin(w io.Writer, g *Grid3D) error {
	s := g.Spec()
	buf := make([]byte, s.LevelPoints()*8)
	for h := 0; h < s.LevelCount; h++ {
		off := 0
		for j := 0; j < s.LonCount; j++ {
			for i := 0; i < s.LatCount; i++ {
				binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(g.At(h, i, j)))
				off += 8
			}
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
