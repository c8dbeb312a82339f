package icongrid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFileURL(t *testing.T) {
	c := NewDWDClient()
	run := time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC)
	want := "https://opendata.dwd.de/weather/nwp/icon-d2/grib/06/u/" +
		"icon-d2_germany_regular-lat-lon_model-level_2022110306_007_12_u.grib2.bz2"
	if got := c.FileURL(run, 7, 12, "u"); got != want {
		t.Errorf("FileURL = %q, want %q", got, want)
	}
}

func TestLatestRun(t *testing.T) {
	now := time.Date(2022, 11, 3, 7, 30, 0, 0, time.UTC)
	tests := []struct {
		latest bool
		want   time.Time
	}{
		{false, time.Date(2022, 11, 3, 3, 0, 0, 0, time.UTC)},
		{true, time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		if got := LatestRun(now, tc.latest); !got.Equal(tc.want) {
			t.Errorf("LatestRun(%v, %v) = %v, want %v", now, tc.latest, got, tc.want)
		}
	}

	// A run boundary counts as the current cycle.
	onCycle := time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC)
	if got := LatestRun(onCycle, true); !got.Equal(onCycle) {
		t.Errorf("LatestRun(on-cycle, latest) = %v, want %v", got, onCycle)
	}
}

func TestLevelRangeValidate(t *testing.T) {
	valid := []LevelRange{{1, 66}, {38, 66}, {1, 2}}
	for _, r := range valid {
		if err := r.validate(); err != nil {
			t.Errorf("validate(%+v) = %v, want nil", r, err)
		}
	}
	invalid := []LevelRange{{0, 66}, {38, 38}, {38, 37}, {1, 67}}
	for _, r := range invalid {
		if err := r.validate(); err == nil {
			t.Errorf("validate(%+v) accepted", r)
		}
	}
	if got := (LevelRange{From: 38, To: 66}).Count(); got != 28 {
		t.Errorf("Count() = %d, want 28", got)
	}
}

// levelFromPath extracts the model level from a DWD file name
// (…_<YYYYMMDDHH>_<FFF>_<level>_<field>.grib2.bz2).
func levelFromPath(p string) (int, error) {
	parts := strings.Split(path.Base(p), "_")
	if len(parts) < 8 {
		return 0, fmt.Errorf("unexpected file name %q", p)
	}
	return strconv.Atoi(parts[6])
}

// levelServer serves a constant-field message per level, carrying the level
// number as the value so stack ordering is observable.
func levelServer(t *testing.T, paths map[string]bool) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path] = true
		mu.Unlock()
		level, err := levelFromPath(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		gs := defaultGrib()
		gs.nbits = 0
		gs.packed = nil
		gs.ref = float32(level)
		w.Write(gs.build())
	}))
}

func TestFetchStack(t *testing.T) {
	paths := map[string]bool{}
	srv := levelServer(t, paths)
	defer srv.Close()

	c := NewDWDClient()
	c.BaseURL = srv.URL
	c.Concurrency = 2

	run := time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC)
	g, err := c.FetchStack(context.Background(), run, 7, LevelRange{From: 1, To: 4}, "u")
	if err != nil {
		t.Fatalf("FetchStack: %v", err)
	}

	s := g.Spec()
	if s.LevelCount != 3 || s.LatCount != 2 || s.LonCount != 3 {
		t.Fatalf("stack shape (%d, %d, %d), want (3, 2, 3)", s.LevelCount, s.LatCount, s.LonCount)
	}
	if math.Abs(s.LatStart-47.0) > 1e-9 || math.Abs(s.LonStart-(-3.94)) > 1e-9 {
		t.Errorf("stack origin (%g, %g), want (47, -3.94)", s.LatStart, s.LonStart)
	}

	// Level k of the range lands at grid index k-From, regardless of which
	// goroutine fetched it first.
	for h := 0; h < s.LevelCount; h++ {
		if got := g.At(h, 1, 2); got != float64(h+1) {
			t.Errorf("At(%d, 1, 2) = %g, want %d", h, got, h+1)
		}
	}

	if len(paths) != 3 {
		t.Errorf("%d files requested, want 3", len(paths))
	}
	want := "/06/u/icon-d2_germany_regular-lat-lon_model-level_2022110306_007_2_u.grib2.bz2"
	if !paths[want] {
		t.Errorf("expected request %q, got %v", want, paths)
	}
}

func TestFetchStackInvalidRange(t *testing.T) {
	c := NewDWDClient()
	if _, err := c.FetchStack(context.Background(), time.Now(), 0, LevelRange{From: 0, To: 5}, "u"); err == nil {
		t.Fatal("invalid level range accepted")
	}
}

func TestFetchStackGridMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level, err := levelFromPath(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		gs := defaultGrib()
		gs.nbits = 0
		gs.packed = nil
		if level == 2 {
			gs.ni, gs.nj = 2, 3 // transposed grid on one level
		}
		w.Write(gs.build())
	}))
	defer srv.Close()

	c := NewDWDClient()
	c.BaseURL = srv.URL

	_, err := c.FetchStack(context.Background(), time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC), 0, LevelRange{From: 1, To: 3}, "u")
	if err == nil || !strings.Contains(err.Error(), "differs") {
		t.Fatalf("err = %v, want grid mismatch", err)
	}
}

func TestFetchStackHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewDWDClient()
	c.BaseURL = srv.URL

	_, err := c.FetchStack(context.Background(), time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC), 0, LevelRange{From: 1, To: 2}, "u")
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Fatalf("err = %v, want HTTP 404", err)
	}
}

func TestFetchStackTruncatedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gs := defaultGrib()
		gs.numVals = 5 // one value short of the 2×3 grid
		gs.packed = packUint16(10, 20, 30, 40, 50)
		w.Write(gs.build())
	}))
	defer srv.Close()

	c := NewDWDClient()
	c.BaseURL = srv.URL

	_, err := c.FetchStack(context.Background(), time.Date(2022, 11, 3, 6, 0, 0, 0, time.UTC), 0, LevelRange{From: 1, To: 2}, "u")
	var trunc *TruncatedInputError
	if !errors.As(err, &trunc) {
		t.Fatalf("err = %v, want TruncatedInputError", err)
	}
}

func TestFetchLevelCanceled(t *testing.T) {
	srv := levelServer(t, map[string]bool{})
	defer srv.Close()

	c := NewDWDClient()
	c.BaseURL = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchLevel(ctx, time.Now().UTC(), 0, 1, "u"); err == nil {
		t.Fatal("canceled context accepted")
	}
}

func TestDecompressPassThrough(t *testing.T) {
	raw := defaultGrib().build()
	out, err := decompress(raw)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out) != string(raw) {
		t.Error("uncompressed body altered")
	}
}
