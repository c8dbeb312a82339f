package icongrid_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluglab/icongrid"
)

func TestRenderHeatMap(t *testing.T) {
	g := tableGrid(t)
	table, err := g.LevelTable(0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "level.png")
	require.NoError(t, icongrid.RenderHeatMap(table, "u level 38", path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
