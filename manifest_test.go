package icongrid_test

import (
	"path/filepath"
	"testing"

	"github.com/fluglab/icongrid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestManifest(t *testing.T) *icongrid.Manifest {
	t.Helper()
	m, err := icongrid.OpenManifest(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManifestRecordAndList(t *testing.T) {
	m := openTestManifest(t)

	entries := []icongrid.ManifestEntry{
		{Run: "2022110306", Field: "v", ForecastHour: 0, Level: 39, URL: "http://x/v39", Points: 906390, Status: icongrid.StatusOK},
		{Run: "2022110306", Field: "u", ForecastHour: 1, Level: 38, URL: "http://x/u38", Points: 906390, Status: icongrid.StatusOK},
		{Run: "2022110306", Field: "u", ForecastHour: 0, Level: 38, URL: "http://x/u38", Points: 0, Status: icongrid.StatusFailed},
		{Run: "2022110300", Field: "u", ForecastHour: 0, Level: 38, URL: "http://x/old", Points: 906390, Status: icongrid.StatusOK},
	}
	for _, e := range entries {
		require.NoError(t, m.Record(e))
	}

	got, err := m.List("2022110306")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ordered by field, forecast hour, level; the other run is excluded.
	assert.Equal(t, entries[2], got[0])
	assert.Equal(t, entries[1], got[1])
	assert.Equal(t, entries[0], got[2])
}

func TestManifestUpsert(t *testing.T) {
	m := openTestManifest(t)

	e := icongrid.ManifestEntry{
		Run: "2022110306", Field: "u", ForecastHour: 0, Level: 38,
		URL: "http://x/u38", Points: 0, Status: icongrid.StatusFailed,
	}
	require.NoError(t, m.Record(e))

	// A retry of the same file replaces the failed record.
	e.Points = 906390
	e.Status = icongrid.StatusOK
	require.NoError(t, m.Record(e))

	got, err := m.List("2022110306")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, icongrid.StatusOK, got[0].Status)
	assert.Equal(t, 906390, got[0].Points)
}

func TestManifestEmptyRun(t *testing.T) {
	m := openTestManifest(t)
	got, err := m.List("2022110306")
	require.NoError(t, err)
	assert.Empty(t, got)
}
