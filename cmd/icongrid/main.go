// Command icongrid downloads DWD ICON-D2 regular-lat-lon model-level wind
// fields, reshapes them into (level, lat, lon) grids, slices a geographic
// region and writes labeled CSV, raw binary and heat-map files.
//
// Usage:
//
//	icongrid -out DIR [flags]
//
// Examples:
//
//	icongrid -out ./data
//	icongrid -out ./data -hour-to 2 -level-from 38 -level-to 66
//	icongrid -out ./data -region "47.0,5.0:54.98,14.98" -png
//	icongrid -out ./data -fields u,v -latest -manifest ./data/runs.db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fluglab/icongrid"
	_ "modernc.org/sqlite"
)

func main() {
	outDir := flag.String("out", "", "output directory (required, not created above the run subdirectory)")
	fieldList := flag.String("fields", strings.Join(icongrid.Fields, ","), "comma-separated fields to fetch")
	hourFrom := flag.Int("hour-from", 0, "first forecast hour, inclusive")
	hourTo := flag.Int("hour-to", 0, "last forecast hour, inclusive (max 48)")
	levelFrom := flag.Int("level-from", 38, "first model level, inclusive")
	levelTo := flag.Int("level-to", 66, "model level upper bound, exclusive (max 66)")
	latest := flag.Bool("latest", false, "use the current run cycle instead of the previous one")
	runStr := flag.String("run", "", "model run time UTC, e.g. 2026-08-23T09:00:00Z (default: auto)")
	regionStr := flag.String("region", "", `region bounds "swLat,swLon:neLat,neLon" (default: whole grid)`)
	writeCSV := flag.Bool("csv", true, "write one CSV per level")
	writeBin := flag.Bool("bin", false, "write one raw float64 binary per (field, hour)")
	writePNG := flag.Bool("png", false, "write one heat-map PNG per level")
	manifestPath := flag.String("manifest", "", "SQLite manifest of processed files (default: disabled)")
	flag.Usage = usage
	flag.Parse()

	if *outDir == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		usage()
		os.Exit(2)
	}
	if *hourFrom < 0 {
		fatalf("forecast hours must be positive: %d", *hourFrom)
	}
	if *hourTo < *hourFrom {
		fatalf("forecast hour range must be in order: %d..%d", *hourFrom, *hourTo)
	}
	if *hourTo > 48 {
		fatalf("forecast hour range exceeds 48: %d", *hourTo)
	}

	var run time.Time
	if *runStr != "" {
		t, err := time.Parse(time.RFC3339, *runStr)
		if err != nil {
			fatalf("invalid -run %q: use RFC3339, e.g. 2026-08-23T09:00:00Z", *runStr)
		}
		run = t.UTC().Truncate(time.Hour)
	} else {
		run = icongrid.LatestRun(time.Now(), *latest)
	}

	var region *icongrid.Bounds
	if *regionStr != "" {
		b, err := parseRegion(*regionStr)
		if err != nil {
			fatalf("invalid -region %q: %v", *regionStr, err)
		}
		region = &b
	}

	var manifest *icongrid.Manifest
	if *manifestPath != "" {
		m, err := icongrid.OpenManifest(*manifestPath)
		if err != nil {
			fatalf("opening manifest: %v", err)
		}
		defer m.Close()
		manifest = m
	}

	job := batchJob{
		client:   icongrid.NewDWDClient(),
		outDir:   *outDir,
		run:      run,
		levels:   icongrid.LevelRange{From: *levelFrom, To: *levelTo},
		region:   region,
		manifest: manifest,
		writeCSV: *writeCSV,
		writeBin: *writeBin,
		writePNG: *writePNG,
	}

	ctx := context.Background()
	failed := 0
	for _, field := range strings.Split(*fieldList, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		for hour := *hourFrom; hour <= *hourTo; hour++ {
			if err := job.process(ctx, field, hour); err != nil {
				fmt.Fprintf(os.Stderr, "error: %s hour %d: %v\n", field, hour, err)
				failed++
			}
		}
	}
	if failed > 0 {
		fatalf("%d (field, hour) stacks failed", failed)
	}
}

// batchJob carries everything one download-extract-write pass needs.
type batchJob struct {
	client   *icongrid.DWDClient
	outDir   string
	run      time.Time
	levels   icongrid.LevelRange
	region   *icongrid.Bounds
	manifest *icongrid.Manifest
	writeCSV bool
	writeBin bool
	writePNG bool
}

// process fetches one (field, forecast hour) level stack and writes the
// requested outputs.
func (job *batchJob) process(ctx context.Context, field string, hour int) error {
	runTS := job.run.Format("2006010215")

	tctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	grid, err := job.client.FetchStack(tctx, job.run, hour, job.levels, field)
	if err != nil {
		job.record(field, hour, 0, icongrid.StatusFailed)
		return err
	}
	fmt.Fprintf(os.Stderr, "%s hour %03d: fetched levels [%d, %d)\n", field, hour, job.levels.From, job.levels.To)

	if job.region != nil {
		grid, err = grid.Region(*job.region)
		if err != nil {
			return fmt.Errorf("slicing region: %w", err)
		}
	}

	dir := filepath.Join(job.outDir, runTS, field)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	base := fmt.Sprintf("icon-d2_germany_regular-lat-lon_model-level_%s_%03d", runTS, hour)

	spec := grid.Spec()
	for h := 0; h < spec.LevelCount; h++ {
		level := job.levels.From + h
		table, err := grid.LevelTable(h)
		if err != nil {
			return err
		}
		if job.writeCSV {
			name := filepath.Join(dir, fmt.Sprintf("%s_%d_%s.csv", base, level, field))
			if err := writeTableCSV(name, table); err != nil {
				return err
			}
		}
		if job.writePNG {
			name := filepath.Join(dir, fmt.Sprintf("%s_%d_%s.png", base, level, field))
			title := fmt.Sprintf("%s level %d, %s +%dh", field, level, runTS, hour)
			if err := icongrid.RenderHeatMap(table, title, name); err != nil {
				return fmt.Errorf("rendering %s: %w", name, err)
			}
		}
	}

	if job.writeBin {
		name := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", base, field))
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		if err := icongrid.WriteLevelsBin(f, grid); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	job.record(field, hour, spec.LevelPoints(), icongrid.StatusOK)
	return nil
}

// record writes one manifest entry per level of the stack, if a manifest is
// configured. Manifest failures are reported but do not fail the batch.
func (job *batchJob) record(field string, hour, points int, status string) {
	if job.manifest == nil {
		return
	}
	runTS := job.run.Format("2006010215")
	for level := job.levels.From; level < job.levels.To; level++ {
		err := job.manifest.Record(icongrid.ManifestEntry{
			Run:          runTS,
			Field:        field,
			ForecastHour: hour,
			Level:        level,
			URL:          job.client.FileURL(job.run, hour, level, field),
			Points:       points,
			Status:       status,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: manifest: %v\n", err)
			return
		}
	}
}

func writeTableCSV(path string, t *icongrid.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := &icongrid.CSVWriter{W: f}
	if err := w.WriteTable(t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// parseRegion parses "swLat,swLon:neLat,neLon".
func parseRegion(s string) (icongrid.Bounds, error) {
	corners := strings.Split(s, ":")
	if len(corners) != 2 {
		return icongrid.Bounds{}, fmt.Errorf("want two corners separated by ':'")
	}
	sw, err := parseCoord(corners[0])
	if err != nil {
		return icongrid.Bounds{}, err
	}
	ne, err := parseCoord(corners[1])
	if err != nil {
		return icongrid.Bounds{}, err
	}
	return icongrid.Bounds{SW: sw, NE: ne}, nil
}

func parseCoord(s string) (icongrid.Coord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return icongrid.Coord{}, fmt.Errorf("corner %q: want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return icongrid.Coord{}, fmt.Errorf("corner %q: %v", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return icongrid.Coord{}, fmt.Errorf("corner %q: %v", s, err)
	}
	return icongrid.Coord{Lat: lat, Lon: lon}, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `icongrid: download ICON-D2 model levels and extract geographic regions

Usage:
  icongrid -out DIR [flags]

Flags:`)
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, `
Examples:
  icongrid -out ./data
  icongrid -out ./data -hour-to 2 -level-from 38 -level-to 66
  icongrid -out ./data -region "47.0,5.0:54.98,14.98" -png
  icongrid -out ./data -fields u,v -latest -manifest ./data/runs.db`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
