package polymesh

import (
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/contour"
	"github.com/wayfarer-nav/navmesh/region"
	"github.com/wayfarer-nav/navmesh/voxel"
)

func flatFloorContours(t *testing.T) *contour.Set {
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
	return contour.Build(ctx, chf, 1.3, 0, contour.TessWallEdges)
}

func TestBuildProducesConvexPolys(t *testing.T) {
	cset := flatFloorContours(t)
	ctx := buildlog.Disabled()
	mesh, err := Build(ctx, cset, 6)
	require.NoError(t, err)
	require.Greater(t, mesh.NPolys, int32(0), "a flat floor must yield at least one polygon")

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.poly(i)
		n := countPolyVerts(p, mesh.Nvp)
		assert.GreaterOrEqual(t, n, int32(3))
		assert.LessOrEqual(t, n, mesh.Nvp)
	}
}

func TestBuildInternalEdgesAreMutual(t *testing.T) {
	cset := flatFloorContours(t)
	ctx := buildlog.Disabled()
	mesh, err := Build(ctx, cset, 6)
	require.NoError(t, err)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.poly(i)
		n := countPolyVerts(p, mesh.Nvp)
		for j := int32(0); j < n; j++ {
			nei := p[mesh.Nvp+j]
			if nei == nullIdx {
				continue // no neighbour recorded for this edge (contour/tile boundary)
			}
			// nei is a same-tile polygon index: it must record us back.
			other := mesh.poly(int32(nei))
			otherN := countPolyVerts(other, mesh.Nvp)
			var foundBack bool
			for k := int32(0); k < otherN; k++ {
				if other[mesh.Nvp+k] == uint16(i) {
					foundBack = true
					break
				}
			}
			assert.True(t, foundBack, "internal edges must be mutual between the two polygons sharing them")
		}
	}
}
