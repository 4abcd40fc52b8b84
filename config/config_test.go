package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/region"
)

func TestDefaultStrategyIsWatershed(t *testing.T) {
	s, err := Default().Strategy()
	require.NoError(t, err)
	assert.Equal(t, region.Watershed, s)
}

func TestStrategyUnknownErrors(t *testing.T) {
	b := Default()
	b.PartitionStrategy = "nonsense"
	_, err := b.Strategy()
	assert.Error(t, err)
}

func TestLoadFillsUnsetFieldsFromDefault(t *testing.T) {
	b, err := Load(strings.NewReader(`cellSize: 0.5`))
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), b.CellSize)
	assert.Equal(t, Default().WalkableHeight, b.WalkableHeight)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	want := Default()
	want.TileSize = 64

	var buf bytes.Buffer
	require.NoError(t, want.Write(&buf))

	got, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
