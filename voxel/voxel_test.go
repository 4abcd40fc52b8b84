package voxel

import (
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
)

func flatQuad() ([]float32, []int32) {
	verts := []float32{
		-5, 0, -5,
		5, 0, -5,
		5, 0, 5,
		-5, 0, 5,
	}
	tris := []int32{0, 2, 1, 0, 3, 2}
	return verts, tris
}

func TestMarkWalkableTrianglesFlatFloor(t *testing.T) {
	verts, tris := flatQuad()
	areas := make([]uint8, len(tris)/3)
	MarkWalkableTriangles(45, verts, tris, areas)
	for _, a := range areas {
		assert.Equal(t, WalkableArea, a, "a flat floor triangle is always walkable")
	}
}

func TestMarkWalkableTrianglesSteepWall(t *testing.T) {
	// vertical wall: normal is horizontal, well below any slope threshold.
	verts := []float32{
		0, 0, 0,
		0, 1, 0,
		1, 1, 0,
	}
	tris := []int32{0, 1, 2}
	areas := make([]uint8, 1)
	MarkWalkableTriangles(45, verts, tris, areas)
	assert.Equal(t, NullArea, areas[0])
}

func buildFlatCompact(t *testing.T) (*Heightfield, *CompactHeightfield) {
	t.Helper()
	verts, tris := flatQuad()
	areas := make([]uint8, len(tris)/3)
	MarkWalkableTriangles(45, verts, tris, areas)

	cellSize, cellHeight := float32(0.2), float32(0.2)
	bmin := d3.Vec3{-5, -1, -5}
	bmax := d3.Vec3{5, 1, 5}
	w := int32(51)
	h := int32(51)

	hf, err := New(w, h, bmin, bmax, cellSize, cellHeight)
	require.NoError(t, err)

	ctx := buildlog.Disabled()
	RasterizeTriangles(ctx, hf, verts, tris, areas, 1)
	FilterLowHangingWalkableObstacles(ctx, hf, 1)
	FilterLedgeSpans(ctx, hf, 2, 1)
	FilterWalkableLowHeightSpans(ctx, hf, 2)

	chf := BuildCompact(ctx, 2, 1, hf)
	return hf, chf
}

func TestRasterizationProducesSpans(t *testing.T) {
	hf, _ := buildFlatCompact(t)
	var spanCount int
	for _, col := range hf.Columns {
		spanCount += len(col)
	}
	assert.Greater(t, spanCount, 0, "a flat floor must rasterize to at least one span per column under it")
}

func TestRasterizationSpansSortedAndDisjoint(t *testing.T) {
	hf, _ := buildFlatCompact(t)
	for _, col := range hf.Columns {
		for i := 1; i < len(col); i++ {
			assert.LessOrEqual(t, col[i-1].Max, col[i].Min, "spans in a column must be sorted and non-overlapping")
		}
	}
}

func TestBuildCompactConSymmetric(t *testing.T) {
	_, chf := buildFlatCompact(t)
	for z := int32(0); z < chf.Height; z++ {
		for x := int32(0); x < chf.Width; x++ {
			c := chf.Cells[x+z*chf.Width]
			for i := uint32(0); i < uint32(c.Count); i++ {
				s := &chf.Spans[c.Index+i]
				for dir := int32(0); dir < 4; dir++ {
					con := GetCon(s, dir)
					if con == NotConnected {
						continue
					}
					nx, nz := x+DirOffsetX(dir), z+DirOffsetZ(dir)
					nc := chf.Cells[nx+nz*chf.Width]
					require.Less(t, int(con), int(nc.Count))
					// the neighbour must connect back to us.
					back := oppositeDir(dir)
					ns := &chf.Spans[nc.Index+uint32(con)]
					assert.NotEqual(t, NotConnected, GetCon(ns, back), "Con must be symmetric across neighbouring cells")
				}
			}
		}
	}
}

func TestErodeWalkableAreaRespectsRadius(t *testing.T) {
	_, chf := buildFlatCompact(t)
	ctx := buildlog.Disabled()
	ErodeWalkableArea(ctx, 3, chf)

	var erodedAny bool
	for _, a := range chf.Areas {
		if a == NullArea {
			erodedAny = true
			break
		}
	}
	assert.True(t, erodedAny, "eroding a flat floor's border by a nonzero radius removes the rim")
}

func TestBuildDistanceFieldNonNegative(t *testing.T) {
	_, chf := buildFlatCompact(t)
	ctx := buildlog.Disabled()
	BuildDistanceField(ctx, chf)
	assert.GreaterOrEqual(t, int(chf.MaxDistance), 0)
}

func TestMedianFilterWalkableAreaPreservesUniformArea(t *testing.T) {
	_, chf := buildFlatCompact(t)
	ctx := buildlog.Disabled()
	MedianFilterWalkableArea(ctx, chf)
	for _, a := range chf.Areas {
		if a != NullArea {
			assert.Equal(t, WalkableArea, a, "median filter over a uniform area must not change it")
		}
	}
}
