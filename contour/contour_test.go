package contour

import (
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/region"
	"github.com/wayfarer-nav/navmesh/voxel"
)

func flatFloorRegions(t *testing.T) *voxel.CompactHeightfield {
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

	hf, err := voxel.New(51, 51, d3.Vec3{-5, -1, -5}, d3.Vec3{5, 1, 5}, 0.2, 0.2)
	require.NoError(t, err)

	ctx := buildlog.Disabled()
	voxel.RasterizeTriangles(ctx, hf, verts, tris, areas, 1)
	voxel.FilterLowHangingWalkableObstacles(ctx, hf, 1)
	voxel.FilterLedgeSpans(ctx, hf, 2, 1)
	voxel.FilterWalkableLowHeightSpans(ctx, hf, 2)

	chf := voxel.BuildCompact(ctx, 2, 1, hf)
	voxel.ErodeWalkableArea(ctx, 3, chf)
	voxel.BuildDistanceField(ctx, chf)
	require.NoError(t, region.Build(ctx, region.Watershed, chf, 0, 8, 20))
	return chf
}

func TestBuildProducesClosedRings(t *testing.T) {
	chf := flatFloorRegions(t)
	ctx := buildlog.Disabled()
	cset := Build(ctx, chf, 1.3, 0, TessWallEdges)

	require.NotEmpty(t, cset.Contours, "a flat walkable floor must produce at least one contour")
	for _, c := range cset.Contours {
		assert.GreaterOrEqual(t, len(c.Verts), 3, "a simplified contour is a closed ring of at least 3 vertices")
	}
}

func TestSimplifiedVertsComeFromRawRing(t *testing.T) {
	chf := flatFloorRegions(t)
	ctx := buildlog.Disabled()
	cset := Build(ctx, chf, 1.3, 0, TessWallEdges)

	for _, c := range cset.Contours {
		for _, v := range c.Verts {
			var found bool
			for _, rv := range c.RawVerts {
				if rv.X == v.X && rv.Y == v.Y && rv.Z == v.Z {
					found = true
					break
				}
			}
			assert.True(t, found, "every kept vertex must lie on the raw ring")
		}
	}
}
