package icongrid

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVWriter writes a Table as semicolon-separated values: longitude labels
// as the header row, latitude labels as the first column. This is the
// layout the downstream MATLAB tooling imports.
type CSVWriter struct {
	W     io.Writer
	Comma rune // field separator; 0 means ';'
}

// WriteTable implements TableWriter.
func (w *CSVWriter) WriteTable(t *Table) error {
	cw := csv.NewWriter(w.W)
	cw.Comma = ';'
	if w.Comma != 0 {
		cw.Comma = w.Comma
	}

	lons := t.ColLabels()
	lats := t.RowLabels()

	record := make([]string, len(lons)+1)
	record[0] = ""
	for j, lon := range lons {
		record[j+1] = formatCoord(lon)
	}
	if err := cw.Write(record); err != nil {
		return err
	}

	for i, lat := range lats {
		record[0] = formatCoord(lat)
		for j := range lons {
			record[j+1] = strconv.FormatFloat(t.Value(i, j), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatCoord prints a coordinate label without trailing zeros (47.5, not
// 47.500000).
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
