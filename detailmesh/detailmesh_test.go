package detailmesh

import (
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/contour"
	"github.com/wayfarer-nav/navmesh/polymesh"
	"github.com/wayfarer-nav/navmesh/region"
	"github.com/wayfarer-nav/navmesh/voxel"
)

func flatFloorPolyMesh(t *testing.T) (*polymesh.Mesh, *voxel.CompactHeightfield) {
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
	cset := contour.Build(ctx, chf, 1.3, 0, contour.TessWallEdges)

	pmesh, err := polymesh.Build(ctx, cset, 6)
	require.NoError(t, err)
	return pmesh, chf
}

func TestBuildSamplesEveryPolygon(t *testing.T) {
	pmesh, chf := flatFloorPolyMesh(t)
	ctx := buildlog.Disabled()
	dmesh, err := Build(ctx, pmesh, chf, 6, 1)
	require.NoError(t, err)
	assert.Equal(t, pmesh.NPolys, dmesh.NMeshes)
	assert.Greater(t, dmesh.NTris, int32(0))
}

func TestBuildZeroSampleDistFallsBackToFan(t *testing.T) {
	pmesh, chf := flatFloorPolyMesh(t)
	ctx := buildlog.Disabled()
	dmesh, err := Build(ctx, pmesh, chf, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, pmesh.NPolys, dmesh.NMeshes)

	for i := int32(0); i < dmesh.NMeshes; i++ {
		vertCount := dmesh.Meshes[i*4+1]
		triCount := dmesh.Meshes[i*4+3]
		assert.Equal(t, vertCount-2, triCount, "sampleDist==0 must degenerate to a plain fan")
	}
}

func TestBuildRespectsCaps(t *testing.T) {
	pmesh, chf := flatFloorPolyMesh(t)
	ctx := buildlog.Disabled()
	dmesh, err := Build(ctx, pmesh, chf, 6, 1)
	require.NoError(t, err)

	for i := int32(0); i < dmesh.NMeshes; i++ {
		assert.LessOrEqual(t, dmesh.Meshes[i*4+1], int32(maxVerts))
		assert.LessOrEqual(t, dmesh.Meshes[i*4+3], int32(maxTris))
	}
}
