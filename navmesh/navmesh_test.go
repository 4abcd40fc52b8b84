package navmesh

import (
	"bytes"
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/contour"
	"github.com/wayfarer-nav/navmesh/detailmesh"
	"github.com/wayfarer-nav/navmesh/polymesh"
	"github.com/wayfarer-nav/navmesh/region"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// flatFloorTile builds a single packed tile covering a 10x10 flat floor,
// the canonical fixture shared (in spirit) by every package's tests.
func flatFloorTile(t *testing.T) (*Header, []Poly, []float32, []PolyDetail, []float32, []uint8, []BvNode) {
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
	dmesh, err := detailmesh.Build(ctx, pmesh, chf, 6, 1)
	require.NoError(t, err)

	header, polys, pverts, dmeshes, dverts, dtris, bv, err := PackTile(pmesh, dmesh, TileBuildParams{
		TileX: 0, TileY: 0, Layer: 0,
		WalkableHeight: 0.4, WalkableRadius: 0.3, WalkableClimb: 0.2,
		BvQuantFactor: 1 / 0.2,
	})
	require.NoError(t, err)
	return header, polys, pverts, dmeshes, dverts, dtris, bv
}

// twoIslandTile builds a single tile containing two flat floor patches
// separated by an unwalkable gap, with con bridging them so the only
// route from one island to the other is through the off-mesh poly.
func twoIslandTile(t *testing.T, con OffMeshConnection) (*Header, []Poly, []float32, []PolyDetail, []float32, []uint8, []BvNode) {
	t.Helper()
	verts := []float32{
		-5, 0, -5,
		-1, 0, -5,
		-1, 0, 5,
		-5, 0, 5,

		1, 0, -5,
		5, 0, -5,
		5, 0, 5,
		1, 0, 5,
	}
	tris := []int32{
		0, 2, 1, 0, 3, 2,
		4, 6, 5, 4, 7, 6,
	}
	areas := make([]uint8, 4)
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
	dmesh, err := detailmesh.Build(ctx, pmesh, chf, 6, 1)
	require.NoError(t, err)

	header, polys, pverts, dmeshes, dverts, dtris, bv, err := PackTile(pmesh, dmesh, TileBuildParams{
		TileX: 0, TileY: 0, Layer: 0,
		WalkableHeight: 0.4, WalkableRadius: 0.3, WalkableClimb: 0.2,
		BvQuantFactor: 1 / 0.2,
		OffMeshCons:   []OffMeshConnection{con},
	})
	require.NoError(t, err)
	return header, polys, pverts, dmeshes, dverts, dtris, bv
}

func newTestMesh(t *testing.T) *NavMesh {
	t.Helper()
	nm, err := New(Params{
		Orig:       d3.Vec3{-5, -1, -5},
		TileWidth:  10,
		TileHeight: 10,
		MaxTiles:   4,
		MaxPolys:   256,
	})
	require.NoError(t, err)
	return nm
}

func TestPackTileProducesWalkablePolys(t *testing.T) {
	header, polys, verts, _, _, _, _ := flatFloorTile(t)
	require.Greater(t, header.PolyCount, int32(0))
	assert.Equal(t, int32(len(polys)), header.PolyCount)
	assert.NotEmpty(t, verts)
	for i := range polys {
		assert.Equal(t, PolyTypeGround, polys[i].Type())
		assert.GreaterOrEqual(t, int(polys[i].VertCount), 3)
	}
}

func TestAddTileReturnsValidBaseRef(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)

	base, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)
	assert.True(t, nm.IsValidPolyRef(base))

	tile, poly, ok := nm.TileAndPolyByRef(base)
	require.True(t, ok)
	assert.Equal(t, int32(0), tile.Header.X)
	assert.Equal(t, PolyTypeGround, poly.Type())
}

func TestPolyRefEncodeDecodeRoundTrip(t *testing.T) {
	nm := newTestMesh(t)
	ref := nm.encodePolyID(7, 2, 5)
	salt, tileIdx, polyIdx := nm.decodePolyID(ref)
	assert.Equal(t, uint32(7), salt)
	assert.Equal(t, int32(2), tileIdx)
	assert.Equal(t, uint16(5), polyIdx)
}

func TestInternalLinksAreMutual(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	tile := nm.TileAt(0, 0, 0)
	require.NotNil(t, tile)

	for pi := range tile.Polys {
		poly := &tile.Polys[pi]
		for li := poly.FirstLink; li != nullLink; li = tile.Links[li].Next {
			link := tile.Links[li]
			nTile, nPoly, ok := nm.TileAndPolyByRef(link.Ref)
			if !ok || nTile != tile {
				continue // external link, checked separately
			}
			var foundBack bool
			for bli := nPoly.FirstLink; bli != nullLink; bli = tile.Links[bli].Next {
				if tile.Links[bli].Ref == nm.encodePolyID(tile.Salt, tile.index, uint16(pi)) {
					foundBack = true
					break
				}
			}
			assert.True(t, foundBack, "internal link must be reciprocated")
		}
	}
}

func TestRemoveTileInvalidatesOldRefs(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	base, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)
	require.True(t, nm.IsValidPolyRef(base))

	require.NoError(t, nm.RemoveTile(0, 0, 0))
	assert.False(t, nm.IsValidPolyRef(base), "a ref into a removed tile must be rejected")

	// Re-adding the same grid slot must not resurrect the old ref.
	header2, polys2, verts2, dmeshes2, dverts2, dtris2, bv2 := flatFloorTile(t)
	newBase, err := nm.AddTile(header2, polys2, verts2, dmeshes2, dverts2, dtris2, bv2, nil)
	require.NoError(t, err)
	assert.False(t, nm.IsValidPolyRef(base))
	assert.True(t, nm.IsValidPolyRef(newBase))
	assert.NotEqual(t, base, newBase)
}

// TestOffMeshConnectionStartToEndIsTraversable reproduces the scenario
// where a one-way (non-bidirectional) off-mesh connection must still be
// enterable from its start side: the ground polygon at the start
// endpoint needs a back-link into the off-mesh poly even though the
// connection itself is START_TO_END.
func TestOffMeshConnectionStartToEndIsTraversable(t *testing.T) {
	nm := newTestMesh(t)
	con := OffMeshConnection{
		Pos: [6]float32{-1, 0, 0, 1, 0, 0},
		Rad: 1.5,
	}
	header, polys, verts, dmeshes, dverts, dtris, bv := twoIslandTile(t, con)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, []OffMeshConnection{con})
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	startRef, startPt, err := q.FindNearestPoly(d3.Vec3{-3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	endRef, endPt, err := q.FindNearestPoly(d3.Vec3{3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	require.NotEqual(t, startRef, endRef)

	polyPath, err := q.FindNodePath(startRef, endRef, startPt, endPt, filter)
	require.NoError(t, err)
	assert.Equal(t, endRef, polyPath[len(polyPath)-1], "a START_TO_END off-mesh connection must be enterable from its start side")

	tile := nm.TileAt(0, 0, 0)
	require.NotNil(t, tile)
	offMeshRef := nm.encodePolyID(tile.Salt, tile.index, uint16(tile.Header.OffMeshBase))
	assert.Contains(t, polyPath, offMeshRef, "path must actually cross the off-mesh poly, not some other route")
}

// TestOffMeshConnectionOneWayBlocksReverseTraversal checks that a
// START_TO_END connection still can't be entered from its finish side,
// so the start-side fix above didn't just make every link bidirectional.
func TestOffMeshConnectionOneWayBlocksReverseTraversal(t *testing.T) {
	nm := newTestMesh(t)
	con := OffMeshConnection{
		Pos: [6]float32{-1, 0, 0, 1, 0, 0},
		Rad: 1.5,
	}
	header, polys, verts, dmeshes, dverts, dtris, bv := twoIslandTile(t, con)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, []OffMeshConnection{con})
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	startRef, startPt, err := q.FindNearestPoly(d3.Vec3{3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	endRef, endPt, err := q.FindNearestPoly(d3.Vec3{-3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)

	polyPath, err := q.FindNodePath(startRef, endRef, startPt, endPt, filter)
	require.NoError(t, err)
	assert.NotEqual(t, endRef, polyPath[len(polyPath)-1], "a one-way connection must not be traversable from its finish side")
}

// TestOffMeshConnectionBidirTraversesBothWays checks the bidirectional
// case works in both directions.
func TestOffMeshConnectionBidirTraversesBothWays(t *testing.T) {
	nm := newTestMesh(t)
	con := OffMeshConnection{
		Pos:   [6]float32{-1, 0, 0, 1, 0, 0},
		Rad:   1.5,
		Flags: OffMeshConBidir,
	}
	header, polys, verts, dmeshes, dverts, dtris, bv := twoIslandTile(t, con)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, []OffMeshConnection{con})
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	aRef, aPt, err := q.FindNearestPoly(d3.Vec3{-3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	bRef, bPt, err := q.FindNearestPoly(d3.Vec3{3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)

	forward, err := q.FindNodePath(aRef, bRef, aPt, bPt, filter)
	require.NoError(t, err)
	assert.Equal(t, bRef, forward[len(forward)-1])

	backward, err := q.FindNodePath(bRef, aRef, bPt, aPt, filter)
	require.NoError(t, err)
	assert.Equal(t, aRef, backward[len(backward)-1])
}

func TestQueryFindNearestPolyAndPath(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	ref, pt, err := q.FindNearestPoly(d3.Vec3{-4, 0, -4}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	assert.True(t, nm.IsValidPolyRef(ref))
	assert.InDelta(t, 0, pt[1], 0.5)

	path, err := q.FindPath(d3.Vec3{-4, 0, -4}, d3.Vec3{4, 0, 4}, filter)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(path), 2)
	assert.Equal(t, StraightPathStart, path[0].Flags&StraightPathStart)
	assert.Equal(t, StraightPathEnd, path[len(path)-1].Flags&StraightPathEnd)
}

func TestQueryPolygonsOverlapsAABB(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)

	hits := q.QueryPolygons(d3.Vec3{-6, -1, -6}, d3.Vec3{6, 1, 6})
	assert.NotEmpty(t, hits)
	for _, ref := range hits {
		assert.True(t, nm.IsValidPolyRef(ref))
	}
}

func TestRaycastToOpenSpaceDoesNotHit(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	startRef, startPt, err := q.FindNearestPoly(d3.Vec3{-4, 0, -4}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)

	hit, _, _, path, err := q.Raycast(startRef, startPt, d3.Vec3{4, 0, 4}, filter)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEmpty(t, path)
}

func TestMoveAlongSurfaceStopsAtMeshBoundary(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	startRef, startPt, err := q.FindNearestPoly(d3.Vec3{0, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)

	// Aim far outside the mesh; the result must stay clamped within bounds.
	end, visited, err := q.MoveAlongSurface(startRef, startPt, d3.Vec3{100, 0, 0}, filter)
	require.NoError(t, err)
	assert.NotEmpty(t, visited)
	assert.LessOrEqual(t, end[0], float32(5.01))
}

func TestFindRandomPointIsOnMesh(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	q, err := NewQuery(nm, 512)
	require.NoError(t, err)
	filter := NewDefaultQueryFilter()

	// Deterministic sequence, not time-seeded, so the test is reproducible.
	seq := []float32{0.25, 0.5, 0.75, 0.1, 0.9}
	i := 0
	rnd := func() float32 {
		v := seq[i%len(seq)]
		i++
		return v
	}

	ref, pt, err := q.FindRandomPoint(filter, rnd)
	require.NoError(t, err)
	assert.True(t, nm.IsValidPolyRef(ref))
	assert.GreaterOrEqual(t, pt[0], float32(-5.01))
	assert.LessOrEqual(t, pt[0], float32(5.01))
}

func TestSerializeJSONRoundTrip(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	base, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, nm.WriteJSON(&buf))

	loaded, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.True(t, loaded.IsValidPolyRef(base))
	assert.Equal(t, nm.Params(), loaded.Params())
}

func TestSerializeYAMLRoundTrip(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	base, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, nm.WriteYAML(&buf))

	loaded, err := ReadYAML(&buf)
	require.NoError(t, err)
	assert.True(t, loaded.IsValidPolyRef(base))
}

func TestAdjacencyGraphHasOneVertexPerPoly(t *testing.T) {
	nm := newTestMesh(t)
	header, polys, verts, dmeshes, dverts, dtris, bv := flatFloorTile(t)
	_, err := nm.AddTile(header, polys, verts, dmeshes, dverts, dtris, bv, nil)
	require.NoError(t, err)

	g, err := nm.AdjacencyGraph()
	require.NoError(t, err)
	assert.Equal(t, len(polys), g.VertexCount())
}
