package region

import (
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// flatFloorCompact rasterizes a 10x10 flat floor, matching spec scenario 1,
// and returns a compact heightfield with a distance field ready for
// partitioning.
func flatFloorCompact(t *testing.T) *voxel.CompactHeightfield {
	t.Helper()
	verts := []float32{
		-5, 0, -5,
		5, 0, -5,
		5, 0, 5,
		-5, 0, 5,
	}
	tris := []int32{0, 2, 1, 0, 3, 2}
	areas := make([]uint8, 2)
	voxel.MarkWalkableTriangles(45, verts, tris, areas)

	cellSize, cellHeight := float32(0.2), float32(0.2)
	hf, err := voxel.New(51, 51, d3.Vec3{-5, -1, -5}, d3.Vec3{5, 1, 5}, cellSize, cellHeight)
	require.NoError(t, err)

	ctx := buildlog.Disabled()
	voxel.RasterizeTriangles(ctx, hf, verts, tris, areas, 1)
	voxel.FilterLowHangingWalkableObstacles(ctx, hf, 1)
	voxel.FilterLedgeSpans(ctx, hf, 2, 1)
	voxel.FilterWalkableLowHeightSpans(ctx, hf, 2)

	chf := voxel.BuildCompact(ctx, 2, 1, hf)
	voxel.ErodeWalkableArea(ctx, 3, chf)
	voxel.BuildDistanceField(ctx, chf)
	return chf
}

func TestBuildWatershedRegionsAssignsPositiveIDs(t *testing.T) {
	chf := flatFloorCompact(t)
	ctx := buildlog.Disabled()
	require.NoError(t, Build(ctx, Watershed, chf, 0, 8, 20))

	var sawWalkable bool
	for _, s := range chf.Spans {
		if s.Area == voxel.NullArea {
			continue
		}
		sawWalkable = true
		assert.Greater(t, int(s.Region), 0, "every walkable span must get a positive region id")
	}
	assert.True(t, sawWalkable, "test fixture must have walkable spans")
}

func TestBuildMonotoneRegionsAssignsPositiveIDs(t *testing.T) {
	chf := flatFloorCompact(t)
	ctx := buildlog.Disabled()
	require.NoError(t, Build(ctx, Monotone, chf, 0, 8, 20))

	for _, s := range chf.Spans {
		if s.Area == voxel.NullArea {
			continue
		}
		assert.Greater(t, int(s.Region), 0)
	}
}

func TestBuildLayerRegionsAssignsPositiveIDs(t *testing.T) {
	chf := flatFloorCompact(t)
	ctx := buildlog.Disabled()
	require.NoError(t, Build(ctx, Layers, chf, 0, 8, 20))

	for _, s := range chf.Spans {
		if s.Area == voxel.NullArea {
			continue
		}
		assert.Greater(t, int(s.Region), 0)
	}
}

func TestBuildUnknownStrategyErrors(t *testing.T) {
	chf := flatFloorCompact(t)
	ctx := buildlog.Disabled()
	err := Build(ctx, Strategy(99), chf, 0, 8, 20)
	assert.Error(t, err)
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "watershed", Watershed.String())
	assert.Equal(t, "monotone", Monotone.String())
	assert.Equal(t, "layers", Layers.String())
}
