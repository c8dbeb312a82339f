package icongrid

import (
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Response body size cap. A single bz2-compressed ICON-D2 level file is
// ~1 MB, ~7 MB decompressed; the cap prevents OOM if a misbehaving server
// sends a huge body.
const maxBodyBytes = 64 << 20 // 64 MB

const (
	defaultDWDBaseURL = "https://opendata.dwd.de/weather/nwp/icon-d2/grib"
	modelProduct      = "regular-lat-lon_model-level"
)

// Fields are the ICON-D2 wind components published per model level.
var Fields = []string{"u", "v", "w"}

// LevelRange selects model levels [From, To), 1-based, matching the DWD
// file naming. ICON-D2 publishes 65 full levels, so the widest valid range
// is [1, 66).
type LevelRange struct {
	From int
	To   int
}

// Count returns the number of levels in the range.
func (r LevelRange) Count() int { return r.To - r.From }

func (r LevelRange) validate() error {
	switch {
	case r.From < 1:
		return fmt.Errorf("level range: From %d, lowest model level is 1", r.From)
	case r.To <= r.From:
		return fmt.Errorf("level range: [%d, %d) is empty or inverted", r.From, r.To)
	case r.To > 66:
		return fmt.Errorf("level range: To %d, only 65 full levels available", r.To)
	}
	return nil
}

// DWDClient fetches ICON-D2 regular-lat-lon model-level files from the DWD
// open-data server.
type DWDClient struct {
	HTTPClient  *http.Client
	BaseURL     string // default: "https://opendata.dwd.de/weather/nwp/icon-d2/grib"
	Concurrency int    // parallel level fetches in FetchStack, default 6
}

// NewDWDClient returns a client with sensible defaults.
func NewDWDClient() *DWDClient {
	return &DWDClient{
		HTTPClient:  &http.Client{Timeout: 120 * time.Second},
		BaseURL:     defaultDWDBaseURL,
		Concurrency: 6,
	}
}

// LatestRun returns the most recent ICON-D2 run time to request. Runs start
// every 3 hours; the newest cycle may not be fully uploaded yet, so by
// default the previous one is returned. latest opts in to the current cycle.
func LatestRun(now time.Time, latest bool) time.Time {
	run := now.UTC().Truncate(3 * time.Hour)
	if !latest {
		run = run.Add(-3 * time.Hour)
	}
	return run
}

// FileURL returns the URL of one (run, forecast hour, level, field) file.
// Layout: <base>/<HH>/<field>/icon-d2_germany_<product>_<YYYYMMDDHH>_<FFF>_<level>_<field>.grib2.bz2
func (c *DWDClient) FileURL(run time.Time, fxx, level int, field string) string {
	run = run.UTC()
	name := fmt.Sprintf("icon-d2_germany_%s_%s_%03d_%d_%s.grib2.bz2",
		modelProduct, run.Format("2006010215"), fxx, level, field)
	return fmt.Sprintf("%s/%02d/%s/%s", c.BaseURL, run.Hour(), field, name)
}

// FetchLevel fetches and decodes a single (run, forecast hour, level,
// field) message. ctx is propagated so callers can cancel in-flight
// requests.
func (c *DWDClient) FetchLevel(ctx context.Context, run time.Time, fxx, level int, field string) (*Message, error) {
	url := c.FileURL(run, fxx, level, field)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	raw, err := decompress(body)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", url, err)
	}
	return DecodeMessage(raw)
}

// decompress unwraps a bz2 body, identified by the BZh magic. Plain GRIB2
// bodies pass through unchanged (mirrors may serve uncompressed files).
func decompress(body []byte) ([]byte, error) {
	if len(body) < 3 || body[0] != 'B' || body[1] != 'Z' || body[2] != 'h' {
		return body, nil
	}
	return io.ReadAll(io.LimitReader(bzip2.NewReader(bytes.NewReader(body)), maxBodyBytes))
}

// FetchStack fetches a contiguous range of model levels for one
// (run, forecast hour, field) and assembles them into a Grid3D, level
// levels.From at index 0. Levels are fetched with bounded concurrency.
//
// Every message must describe the same lat/lon grid; a disagreement is a
// product mismatch and fails the whole stack. A short message surfaces as
// TruncatedInputError from the decoder, so callers can retry the fetch.
func (c *DWDClient) FetchStack(ctx context.Context, run time.Time, fxx int, levels LevelRange, field string) (*Grid3D, error) {
	if err := levels.validate(); err != nil {
		return nil, err
	}

	n := levels.Count()
	msgs := make([]*Message, n)
	errs := make([]error, n)

	limit := c.Concurrency
	if limit <= 0 {
		limit = 6
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			msgs[k], errs[k] = c.FetchLevel(ctx, run, fxx, levels.From+k, field)
		}(k)
	}
	wg.Wait()

	for k, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", levels.From+k, err)
		}
	}

	first := msgs[0].Grid
	for k, m := range msgs[1:] {
		if m.Grid != first {
			return nil, fmt.Errorf("level %d grid (%dx%d from %.2f,%.2f) differs from level %d (%dx%d from %.2f,%.2f)",
				levels.From+k+1, m.Grid.Ni, m.Grid.Nj, m.Grid.La1, m.Grid.Lo1,
				levels.From, first.Ni, first.Nj, first.La1, first.Lo1)
		}
	}

	spec := msgs[0].Spec()
	spec.LevelCount = n
	flat := make([]float64, 0, spec.Points())
	for _, m := range msgs {
		flat = append(flat, m.Vals...)
	}
	return Reshape(flat, spec, LevelMajor)
}
