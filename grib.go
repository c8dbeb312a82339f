package icongrid

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Input sanity limits, all well above real ICON-D2 values (the regular
// lat/lon domain is 1215×746). They bound allocations so a crafted message
// cannot exhaust memory.
const (
	maxGridDim  = 10000
	maxPoints   = 1 << 26 // 67M samples ≈ 512 MB of float64
	maxBitWidth = 64      // wider fields are nonsensical for a uint64 accumulator
)

// LatLonGrid holds the GDT 3.0 (regular latitude/longitude) parameters of
// one GRIB2 message. Ni counts points along a parallel (longitude), Nj
// along a meridian (latitude), following GRIB nomenclature.
type LatLonGrid struct {
	Ni, Nj   int
	La1, Lo1 float64 // first grid point, signed degrees
	La2, Lo2 float64 // last grid point, signed degrees
	Di, Dj   float64 // increments, degrees
	ScanMode byte
}

// Message is one decoded ICON-D2 GRIB2 message: a regular lat/lon grid and
// its float64 samples, row-major with longitude fastest
// (vals[row*Ni + col]), rows scanning south→north (scan mode 0x40).
type Message struct {
	Grid LatLonGrid
	Vals []float64
}

// Spec returns the single-level grid Spec the message describes. Lo1 is
// normalised to signed degrees; the full ICON-D2 domain crosses the 0°
// meridian (Lo1 = 356.06°E), and a Spec requires a monotonic axis.
func (m *Message) Spec() Spec {
	return Spec{
		LevelCount: 1,
		LatCount:   m.Grid.Nj,
		LonCount:   m.Grid.Ni,
		LatStart:   m.Grid.La1,
		LatStep:    m.Grid.Dj,
		LonStart:   NormLon(m.Grid.Lo1),
		LonStep:    m.Grid.Di,
	}
}

// NormLon converts a GRIB2 0-360 longitude to -180..+180.
func NormLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}

// DecodeMessage decodes a raw GRIB2 message (all sections) into a Message.
// Supported: GDT 3.0 regular lat/lon grids, DRS Template 5.0 (grid-point
// simple packing) and Section 6 bitmaps. Anything else is rejected rather
// than guessed. Malformed input returns an error, never panics.
func DecodeMessage(raw []byte) (*Message, error) {
	if err := checkIndicator(raw); err != nil {
		return nil, err
	}

	off := 16 // Section 0 is fixed 16 bytes

	var grid *LatLonGrid
	var packing *simplePacking
	var sec7 []byte
	var bitmapData []byte // non-nil when Section 6 flag=0

	for off < len(raw) {
		// "7777" end marker
		if off+4 <= len(raw) && raw[off] == '7' && raw[off+1] == '7' && raw[off+2] == '7' && raw[off+3] == '7' {
			break
		}
		sNum, sec, next, err := sectionAt(raw, off)
		if err != nil {
			return nil, err
		}

		switch sNum {
		case 1, 2, 4:
			// Identification, local use and product definition are not
			// needed for the reshape/slice contract.
		case 3:
			g, err := parseSection3LatLon(sec)
			if err != nil {
				return nil, fmt.Errorf("section 3: %w", err)
			}
			grid = &g
		case 5:
			p, err := parseSimplePacking(sec)
			if err != nil {
				return nil, fmt.Errorf("section 5: %w", err)
			}
			packing = &p
		case 6:
			if len(sec) < 6 {
				return nil, fmt.Errorf("section 6 too short")
			}
			switch sec[5] {
			case 255:
				// No bitmap: every grid point has data.
			case 0:
				bitmapData = sec[6:]
			default:
				return nil, fmt.Errorf("bitmap section: unsupported indicator %d", sec[5])
			}
		case 7:
			sec7 = sec
		}
		off = next
	}

	if grid == nil {
		return nil, fmt.Errorf("no section 3 found in message")
	}
	if packing == nil {
		return nil, fmt.Errorf("no section 5 found in message")
	}
	if sec7 == nil {
		return nil, fmt.Errorf("no section 7 found in message")
	}

	vals, err := unpackSimple(sec7, *packing)
	if err != nil {
		return nil, fmt.Errorf("unpack DRS 5.0: %w", err)
	}

	total64 := int64(grid.Ni) * int64(grid.Nj)
	if bitmapData != nil {
		vals, err = applyBitmap(vals, bitmapData, int(total64))
		if err != nil {
			return nil, fmt.Errorf("applying bitmap: %w", err)
		}
	}

	// A short message is a truncation (retryable upstream); a long one
	// means the grid definition does not describe the payload.
	switch {
	case int64(len(vals)) < total64:
		return nil, &TruncatedInputError{Want: int(total64), Got: len(vals)}
	case int64(len(vals)) > total64:
		return nil, &ShapeMismatchError{Want: int(total64), Got: len(vals)}
	}

	return &Message{Grid: *grid, Vals: vals}, nil
}

// checkIndicator verifies the 16-byte Section 0 indicator.
func checkIndicator(b []byte) error {
	if len(b) < 16 {
		return fmt.Errorf("section 0: need 16 bytes, got %d", len(b))
	}
	if string(b[0:4]) != "GRIB" {
		return fmt.Errorf("section 0: missing GRIB magic: %q", b[0:4])
	}
	if b[7] != 2 {
		return fmt.Errorf("section 0: GRIB edition %d, only 2 supported", b[7])
	}
	return nil
}

// sectionAt frames the section starting at byte offset off.
// Returns (sectionNum, sectionData, nextOffset).
func sectionAt(buf []byte, off int) (byte, []byte, int, error) {
	if off+5 > len(buf) {
		return 0, nil, 0, fmt.Errorf("section header at %d: out of bounds (buf=%d)", off, len(buf))
	}
	sLen := binary.BigEndian.Uint32(buf[off : off+4])
	sNum := buf[off+4]
	// uint64 arithmetic so a huge declared length cannot overflow int.
	end64 := uint64(off) + uint64(sLen)
	if sLen < 5 || end64 > uint64(len(buf)) {
		return 0, nil, 0, fmt.Errorf("section %d at %d: length %d overflows buffer %d",
			sNum, off, sLen, len(buf))
	}
	end := int(end64)
	return sNum, buf[off:end], end, nil
}

// parseSection3LatLon decodes Section 3 with GDT 3.0 (regular lat/lon).
// Template offsets (g = start of GDT data, i.e. section3[14:]):
//
//	g+0        shape of earth
//	g+1..15    radius/major/minor axis parameters
//	g+16..19   Ni (points along a parallel)
//	g+20..23   Nj (points along a meridian)
//	g+24..31   basic angle / subdivisions
//	g+32..35   La1 (µdeg)
//	g+36..39   Lo1 (µdeg, 0-360)
//	g+40       resolution/component flags
//	g+41..44   La2 (µdeg)
//	g+45..48   Lo2 (µdeg, 0-360)
//	g+49..52   Di (µdeg)
//	g+53..56   Dj (µdeg)
//	g+57       scanning mode
func parseSection3LatLon(sec []byte) (LatLonGrid, error) {
	// sec[0:4]=length, sec[4]=3, sec[5]=source, sec[6:10]=Npts,
	// sec[10]=listLen, sec[11]=listInterp, sec[12:14]=GDT number.
	if len(sec) < 14+58 {
		return LatLonGrid{}, fmt.Errorf("too short (%d bytes)", len(sec))
	}
	gdt := binary.BigEndian.Uint16(sec[12:14])
	if gdt != 0 {
		return LatLonGrid{}, fmt.Errorf("unsupported grid definition template 3.%d (only 3.0 regular lat/lon)", gdt)
	}
	g := sec[14:]

	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(g[off : off+4]) }

	ni := int(u32(16))
	nj := int(u32(20))
	if ni <= 0 || ni > maxGridDim || nj <= 0 || nj > maxGridDim {
		return LatLonGrid{}, fmt.Errorf("invalid grid dimensions %dx%d (max %d)", ni, nj, maxGridDim)
	}

	la1 := float64(int32(u32(32))) / 1e6
	lo1 := float64(u32(36)) / 1e6
	la2 := float64(int32(u32(41))) / 1e6
	lo2 := float64(u32(45)) / 1e6
	di := float64(u32(49)) / 1e6
	dj := float64(u32(53)) / 1e6
	scanMode := g[57]

	if di <= 0 || dj <= 0 {
		return LatLonGrid{}, fmt.Errorf("non-positive increments Di=%g Dj=%g", di, dj)
	}
	// Grid operations assume +i (west→east), +j (south→north), longitude
	// fastest. Wrong scan mode means transposed or mirrored values, so
	// reject anything else instead of silently returning wrong data.
	if scanMode != 0x40 {
		return LatLonGrid{}, fmt.Errorf("unsupported scan mode 0x%02X (only 0x40 supported)", scanMode)
	}

	return LatLonGrid{
		Ni:       ni,
		Nj:       nj,
		La1:      la1,
		Lo1:      lo1,
		La2:      la2,
		Lo2:      lo2,
		Di:       di,
		Dj:       dj,
		ScanMode: scanMode,
	}, nil
}

// simplePacking holds DRS Template 5.0 (grid-point simple packing)
// parameters.
type simplePacking struct {
	ref      float64 // reference value R
	binScale int     // binary scale factor E
	decScale int     // decimal scale factor D
	nbits    int     // bits per packed value
	numVals  int     // declared value count
}

// parseSimplePacking decodes Section 5 with DRS Template 5.0.
func parseSimplePacking(sec []byte) (simplePacking, error) {
	// sec[0:4]=len, sec[4]=5, sec[5:9]=N, sec[9:11]=template, sec[11:]=template data
	if len(sec) < 11+10 {
		return simplePacking{}, fmt.Errorf("DRS 5.0: too short (%d bytes)", len(sec))
	}
	tmpl := binary.BigEndian.Uint16(sec[9:11])
	if tmpl != 0 {
		return simplePacking{}, fmt.Errorf("unsupported DRS template 5.%d (only 5.0 grid-point simple packing)", tmpl)
	}

	n := binary.BigEndian.Uint32(sec[5:9])
	if n > maxPoints {
		return simplePacking{}, fmt.Errorf("N=%d exceeds maximum %d", n, maxPoints)
	}

	t := sec[11:]
	ref := float64(math.Float32frombits(binary.BigEndian.Uint32(t[0:4])))
	binScale := decodeScaleFactor(binary.BigEndian.Uint16(t[4:6]))
	decScale := decodeScaleFactor(binary.BigEndian.Uint16(t[6:8]))
	nbits := int(t[8])
	if nbits > maxBitWidth {
		return simplePacking{}, fmt.Errorf("Nbits=%d exceeds %d", nbits, maxBitWidth)
	}

	return simplePacking{
		ref:      ref,
		binScale: binScale,
		decScale: decScale,
		nbits:    nbits,
		numVals:  int(n),
	}, nil
}

// decodeScaleFactor decodes a GRIB2 sign-magnitude 2-byte scale factor:
// MSB is the sign, remaining 15 bits the magnitude.
func decodeScaleFactor(raw uint16) int {
	magnitude := int(raw & 0x7FFF)
	if raw&0x8000 != 0 {
		return -magnitude
	}
	return magnitude
}

// unpackSimple decodes a DRS 5.0 Section 7: numVals consecutive
// nbits-wide unsigned integers packed MSB-first.
// Unpacking formula: Y = (R + X × 2^E) / 10^D.
func unpackSimple(sec7 []byte, p simplePacking) ([]float64, error) {
	if len(sec7) < 5 {
		return nil, fmt.Errorf("section 7 too short")
	}
	data := sec7[5:] // skip 4-byte length + 1-byte section number

	scaleE := math.Ldexp(1.0, p.binScale)
	scaleD := math.Pow(10, float64(p.decScale))

	result := make([]float64, p.numVals)

	if p.nbits == 0 {
		// Constant field: every value is R / 10^D.
		v := p.ref / scaleD
		for i := range result {
			result[i] = v
		}
		return result, nil
	}

	br := bitReader{buf: data}
	for i := range result {
		x, err := br.read(p.nbits)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		result[i] = (p.ref + scaleE*float64(x)) / scaleD
	}
	return result, nil
}

// applyBitmap expands packed values (one per set bitmap bit) to the full
// totalPoints grid, filling NaN where the bitmap bit is 0. GRIB2 bitmaps
// are MSB-first: bit 7 of byte 0 is grid point 0.
func applyBitmap(vals []float64, bitmap []byte, totalPoints int) ([]float64, error) {
	if totalPoints < 0 || totalPoints > maxPoints {
		return nil, fmt.Errorf("bitmap: %d grid points out of range", totalPoints)
	}
	set := 0
	for i := 0; i < totalPoints; i++ {
		if bitmapBit(bitmap, i) {
			set++
		}
	}
	if set != len(vals) {
		return nil, fmt.Errorf("bitmap: %d set bits but %d packed values", set, len(vals))
	}

	result := make([]float64, totalPoints)
	vi := 0
	for i := 0; i < totalPoints; i++ {
		if bitmapBit(bitmap, i) {
			result[i] = vals[vi]
			vi++
		} else {
			result[i] = math.NaN()
		}
	}
	return result, nil
}

func bitmapBit(bitmap []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bitmap) {
		return false
	}
	return (bitmap[byteIdx]>>uint(7-(i%8)))&1 == 1
}

// bitReader reads unsigned integers of arbitrary bit width from a byte
// slice, MSB-first within each byte. It never panics on short input.
type bitReader struct {
	buf []byte
	pos int // bit position
}

// read reads n bits (0 ≤ n ≤ 64) as a uint64.
func (r *bitReader) read(n int) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	end := r.pos + n
	if end > len(r.buf)*8 {
		return 0, fmt.Errorf("bit read of %d at %d overflows buffer (%d bytes)", n, r.pos, len(r.buf))
	}
	// Fast path: byte-aligned reads of exact byte widths.
	if r.pos%8 == 0 {
		off := r.pos / 8
		switch n {
		case 8:
			r.pos = end
			return uint64(r.buf[off]), nil
		case 16:
			r.pos = end
			return uint64(binary.BigEndian.Uint16(r.buf[off:])), nil
		case 32:
			r.pos = end
			return uint64(binary.BigEndian.Uint32(r.buf[off:])), nil
		case 64:
			r.pos = end
			return binary.BigEndian.Uint64(r.buf[off:]), nil
		}
	}
	var v uint64
	for i := 0; i < n; i++ {
		byteIdx := (r.pos + i) / 8
		bitIdx := 7 - ((r.pos + i) % 8)
		v = (v << 1) | uint64((r.buf[byteIdx]>>bitIdx)&1)
	}
	r.pos = end
	return v, nil
}
