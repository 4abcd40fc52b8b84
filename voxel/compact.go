package voxel

import (
	"sort"

	"github.com/arl/assertgo"
	"github.com/arl/gogeo/f32/d3"
	"github.com/wayfarer-nav/navmesh/buildlog"
)

// NotConnected marks a CompactSpan direction with no walkable neighbour.
const NotConnected uint8 = 0x3f

// CompactCell indexes into CompactHeightfield.Spans for one grid column.
type CompactCell struct {
	Index uint32
	Count uint8
}

// CompactSpan is one span of unobstructed, walkable space: floor voxel Y,
// clearance H up to the next obstruction, its Region and Area, and the
// 4-direction neighbour connectivity Con: one entry per direction in
// DirOffsetX/DirOffsetZ order (W/N/E/S), holding the neighbour's index
// within its cell, or NotConnected.
type CompactSpan struct {
	Y, H   uint16
	Region uint16
	Area   uint8
	Con    [4]uint8
}

// CompactHeightfield is the cache-coherent, neighbour-linked grid built
// by collapsing every walkable span of each heightfield column to its
// top surface. Con[d] is
// symmetric: if span A connects to B in direction d, B connects back to
// A in the opposite direction.
type CompactHeightfield struct {
	Width, Height  int32
	SpanCount      int32
	WalkableHeight int32
	WalkableClimb  int32
	BorderSize     int32
	MaxDistance    uint16
	MaxRegions     uint16
	BMin, BMax     d3.Vec3
	CellSize       float32
	CellHeight     float32
	Cells          []CompactCell
	Spans          []CompactSpan
	Dist           []uint16
	Areas          []uint8
}

var dirOffsetXArr = [4]int32{-1, 0, 1, 0}
var dirOffsetZArr = [4]int32{0, 1, 0, -1}

func oppositeDir(dir int32) int32 { return (dir + 2) & 3 }

// BuildCompact collapses every walkable span of every column of hf to
// its top surface in a CompactHeightfield, then computes the 4-direction neighbour
// connectivity: a neighbour counts when its floor is within
// walkableClimb voxels and the clearance between the floors is at least
// walkableHeight voxels.
func BuildCompact(ctx *buildlog.Context, walkableHeight, walkableClimb int32, hf *Heightfield) *CompactHeightfield {
	t := ctx.Start(buildlog.StageCompact)
	defer ctx.Stop(buildlog.StageCompact, t)

	w, h := hf.Width, hf.Height
	chf := &CompactHeightfield{
		Width: w, Height: h,
		WalkableHeight: walkableHeight, WalkableClimb: walkableClimb,
		BMin: d3.NewVec3From(hf.BMin), BMax: d3.NewVec3From(hf.BMax),
		CellSize: hf.CellSize, CellHeight: hf.CellHeight,
		Cells: make([]CompactCell, w*h),
	}
	chf.BMax[1] += float32(walkableHeight) * hf.CellHeight

	spanCount := int32(0)
	for _, col := range hf.Columns {
		for _, s := range col {
			if s.Area != NullArea {
				spanCount++
			}
		}
	}
	chf.SpanCount = spanCount
	chf.Spans = make([]CompactSpan, spanCount)
	chf.Areas = make([]uint8, spanCount)

	idx := uint32(0)
	for i, col := range hf.Columns {
		cnt := uint8(0)
		chf.Cells[i].Index = idx
		for si, s := range col {
			if s.Area == NullArea {
				continue
			}
			assert.True(idx < uint32(spanCount), "compact span index %d out of range (spanCount=%d)", idx, spanCount)
			top := int32(maxHeight)
			if si+1 < len(col) {
				top = int32(col[si+1].Min)
			}
			clearance := top - int32(s.Max)
			if clearance < 0 {
				clearance = 0
			}
			if clearance > 0xffff {
				clearance = 0xffff
			}
			chf.Spans[idx] = CompactSpan{Y: s.Max, H: uint16(clearance), Area: s.Area}
			chf.Areas[idx] = s.Area
			idx++
			cnt++
		}
		chf.Cells[i].Count = cnt
	}

	// Neighbour connectivity.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				s := &chf.Spans[i]
				for dir := int32(0); dir < 4; dir++ {
					s.Con[dir] = NotConnected
					nx, nz := x+dirOffsetXArr[dir], z+dirOffsetZArr[dir]
					if nx < 0 || nz < 0 || nx >= w || nz >= h {
						continue
					}
					nc := chf.Cells[nx+nz*w]
					for k := nc.Index; k < nc.Index+uint32(nc.Count); k++ {
						ns := &chf.Spans[k]
						bot := maxI32(int32(s.Y), int32(ns.Y))
						top := minI32(int32(s.Y)+int32(s.H), int32(ns.Y)+int32(ns.H))
						if (top-bot) >= walkableHeight && absI32(int32(ns.Y)-int32(s.Y)) <= walkableClimb {
							lidx := k - nc.Index
							if lidx < uint32(NotConnected) {
								s.Con[dir] = uint8(lidx)
							}
							break
						}
					}
				}
			}
		}
	}
	return chf
}

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// GetCon returns the neighbour relative span index in direction dir, or
// NotConnected.
func GetCon(s *CompactSpan, dir int32) uint8 { return s.Con[dir] }

// DirOffsetX/DirOffsetZ expose the cardinal direction table used
// throughout region/contour building (0=W,1=N,2=E,3=S when +Z is north).
func DirOffsetX(dir int32) int32 { return dirOffsetXArr[dir&3] }
func DirOffsetZ(dir int32) int32 { return dirOffsetZArr[dir&3] }

// ErodeWalkableArea runs a two-pass Chebyshev distance transform and
// marks as non-walkable every span whose 2D distance to the nearest
// non-walkable or unconnected neighbour is less than radius voxels.
func ErodeWalkableArea(ctx *buildlog.Context, radius int32, chf *CompactHeightfield) {
	t := ctx.Start(buildlog.StageErode)
	defer ctx.Stop(buildlog.StageErode, t)

	dist := boundaryDistance(chf)
	thr := uint8(clampU8(radius * 2))
	for i := int32(0); i < chf.SpanCount; i++ {
		if dist[i] < thr {
			chf.Areas[i] = NullArea
			chf.Spans[i].Area = NullArea
		}
	}
}

// AreaThreshold is one {area, radius} entry for multi-agent-radius
// erosion: spans at distance < radius from a boundary get reassigned to
// area, letting a single build serve several agent sizes.
type AreaThreshold struct {
	Area   uint8
	Radius int32
}

// ErodeAndMarkWalkableAreas runs a single boundary-distance transform,
// demotes spans closer than smallRadius to non-walkable, then applies
// each threshold (ascending radius) to paint wider bands with
// progressively larger-agent area ids.
func ErodeAndMarkWalkableAreas(ctx *buildlog.Context, smallRadius int32, thresholds []AreaThreshold, chf *CompactHeightfield) {
	t := ctx.Start(buildlog.StageErode)
	defer ctx.Stop(buildlog.StageErode, t)

	sorted := append([]AreaThreshold(nil), thresholds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Radius < sorted[j].Radius })

	dist := boundaryDistance(chf)
	for i := int32(0); i < chf.SpanCount; i++ {
		if dist[i] < uint8(clampU8(smallRadius*2)) {
			chf.Areas[i] = NullArea
			chf.Spans[i].Area = NullArea
			continue
		}
		for _, th := range sorted {
			if dist[i] < uint8(clampU8(th.Radius*2)) {
				chf.Areas[i] = th.Area
				chf.Spans[i].Area = th.Area
			}
		}
	}
}

func clampU8(v int32) int32 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return v
}

// boundaryDistance computes, per span, a 2-pass Chebyshev approximation
// of the distance (in half-voxel units, like Recast's) to the nearest
// non-walkable span or grid edge.
func boundaryDistance(chf *CompactHeightfield) []uint8 {
	w, h := chf.Width, chf.Height
	dist := make([]uint8, chf.SpanCount)
	for i := range dist {
		dist[i] = 0xff
	}

	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				if chf.Areas[i] == NullArea {
					dist[i] = 0
					continue
				}
				s := &chf.Spans[i]
				nc := 0
				for dir := int32(0); dir < 4; dir++ {
					if GetCon(s, dir) == NotConnected {
						continue
					}
					nx, nz := x+DirOffsetX(dir), z+DirOffsetZ(dir)
					nidx := int32(chf.Cells[nx+nz*w].Index) + int32(GetCon(s, dir))
					if chf.Areas[nidx] != NullArea {
						nc++
					}
				}
				if nc != 4 {
					dist[i] = 0
				}
			}
		}
	}

	pass := func(xs, zs func(int32) int32, n int32, decA, decB int32, dirA, dirB int32) {
		_ = xs
		_ = zs
		_ = n
	}
	_ = pass

	// Pass 1: sweep top-left to bottom-right over (W,SW)/(S,SE) equivalents.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				s := &chf.Spans[i]
				if GetCon(s, 0) != NotConnected {
					ax, az := x+DirOffsetX(0), z+DirOffsetZ(0)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 0))
					updateDist(dist, int32(i), ai, 2)
					as := &chf.Spans[ai]
					if GetCon(as, 3) != NotConnected {
						aax, aaz := ax+DirOffsetX(3), az+DirOffsetZ(3)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 3))
						updateDist(dist, int32(i), aai, 3)
					}
				}
				if GetCon(s, 3) != NotConnected {
					ax, az := x+DirOffsetX(3), z+DirOffsetZ(3)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 3))
					updateDist(dist, int32(i), ai, 2)
					as := &chf.Spans[ai]
					if GetCon(as, 2) != NotConnected {
						aax, aaz := ax+DirOffsetX(2), az+DirOffsetZ(2)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 2))
						updateDist(dist, int32(i), aai, 3)
					}
				}
			}
		}
	}
	// Pass 2: sweep bottom-right to top-left.
	for z := h - 1; z >= 0; z-- {
		for x := w - 1; x >= 0; x-- {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				s := &chf.Spans[i]
				if GetCon(s, 2) != NotConnected {
					ax, az := x+DirOffsetX(2), z+DirOffsetZ(2)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 2))
					updateDist(dist, int32(i), ai, 2)
					as := &chf.Spans[ai]
					if GetCon(as, 1) != NotConnected {
						aax, aaz := ax+DirOffsetX(1), az+DirOffsetZ(1)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 1))
						updateDist(dist, int32(i), aai, 3)
					}
				}
				if GetCon(s, 1) != NotConnected {
					ax, az := x+DirOffsetX(1), z+DirOffsetZ(1)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 1))
					updateDist(dist, int32(i), ai, 2)
					as := &chf.Spans[ai]
					if GetCon(as, 0) != NotConnected {
						aax, aaz := ax+DirOffsetX(0), az+DirOffsetZ(0)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 0))
						updateDist(dist, int32(i), aai, 3)
					}
				}
			}
		}
	}
	return dist
}

func updateDist(dist []uint8, i, ai, inc int32) {
	nd := int32(dist[ai]) + inc
	if nd > 255 {
		nd = 255
	}
	if uint8(nd) < dist[i] {
		dist[i] = uint8(nd)
	}
}

// BuildDistanceField computes a finer, 16-bit approximate Euclidean
// distance field using axial/diagonal kernel weights (14,10), used by
// watershed partitioning to find basins. It runs the same two-pass
// sweep as boundaryDistance but over uint16 with the (14,10) weights
// instead of the coarser (2,3) used for erosion, then box-blurs the
// result once to smooth quantization artifacts.
func BuildDistanceField(ctx *buildlog.Context, chf *CompactHeightfield) {
	t := ctx.Start(buildlog.StageDistanceField)
	defer ctx.Stop(buildlog.StageDistanceField, t)

	w, h := chf.Width, chf.Height
	dist := make([]uint16, chf.SpanCount)
	for i := range dist {
		dist[i] = 0xffff
	}
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				if chf.Areas[i] == NullArea {
					dist[i] = 0
				}
			}
		}
	}
	const (
		axialWeight    = 14
		diagonalWeight = 10
	)
	upd16 := func(i, ai int32, inc uint16) {
		nd := dist[ai] + inc
		if nd < dist[i] {
			dist[i] = nd
		}
	}
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				s := &chf.Spans[i]
				if GetCon(s, 0) != NotConnected {
					ax, az := x+DirOffsetX(0), z+DirOffsetZ(0)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 0))
					upd16(int32(i), ai, axialWeight)
					as := &chf.Spans[ai]
					if GetCon(as, 3) != NotConnected {
						aax, aaz := ax+DirOffsetX(3), az+DirOffsetZ(3)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 3))
						upd16(int32(i), aai, diagonalWeight)
					}
				}
				if GetCon(s, 3) != NotConnected {
					ax, az := x+DirOffsetX(3), z+DirOffsetZ(3)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 3))
					upd16(int32(i), ai, axialWeight)
					as := &chf.Spans[ai]
					if GetCon(as, 2) != NotConnected {
						aax, aaz := ax+DirOffsetX(2), az+DirOffsetZ(2)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 2))
						upd16(int32(i), aai, diagonalWeight)
					}
				}
			}
		}
	}
	for z := h - 1; z >= 0; z-- {
		for x := w - 1; x >= 0; x-- {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				s := &chf.Spans[i]
				if GetCon(s, 2) != NotConnected {
					ax, az := x+DirOffsetX(2), z+DirOffsetZ(2)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 2))
					upd16(int32(i), ai, axialWeight)
					as := &chf.Spans[ai]
					if GetCon(as, 1) != NotConnected {
						aax, aaz := ax+DirOffsetX(1), az+DirOffsetZ(1)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 1))
						upd16(int32(i), aai, diagonalWeight)
					}
				}
				if GetCon(s, 1) != NotConnected {
					ax, az := x+DirOffsetX(1), z+DirOffsetZ(1)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, 1))
					upd16(int32(i), ai, axialWeight)
					as := &chf.Spans[ai]
					if GetCon(as, 0) != NotConnected {
						aax, aaz := ax+DirOffsetX(0), az+DirOffsetZ(0)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, 0))
						upd16(int32(i), aai, diagonalWeight)
					}
				}
			}
		}
	}

	maxDist := uint16(0)
	for _, d := range dist {
		if d > maxDist {
			maxDist = d
		}
	}
	chf.Dist = boxBlur(chf, dist, 1)
	chf.MaxDistance = maxDist
}

// boxBlur smooths the distance field by averaging each span with its
// connected neighbours (thr restricts blurring near edges).
func boxBlur(chf *CompactHeightfield, src []uint16, thr int32) []uint16 {
	w, h := chf.Width, chf.Height
	thr *= 2
	dst := make([]uint16, len(src))
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				cd := src[i]
				if cd <= uint16(thr) {
					dst[i] = cd
					continue
				}
				d := int32(cd)
				s := &chf.Spans[i]
				for dir := int32(0); dir < 4; dir++ {
					if GetCon(s, dir) == NotConnected {
						d += int32(cd) * 2
						continue
					}
					ax, az := x+DirOffsetX(dir), z+DirOffsetZ(dir)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, dir))
					d += int32(src[ai])

					as := &chf.Spans[ai]
					dir2 := (dir + 1) & 3
					if GetCon(as, dir2) != NotConnected {
						aax, aaz := ax+DirOffsetX(dir2), az+DirOffsetZ(dir2)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, dir2))
						d += int32(src[aai])
					} else {
						d += int32(cd)
					}
				}
				dst[i] = uint16((d + 5) / 9)
			}
		}
	}
	return dst
}

// MedianFilterWalkableArea smooths noisy area marking with a 3x3 median
// filter over area ids on walkable spans.
func MedianFilterWalkableArea(ctx *buildlog.Context, chf *CompactHeightfield) {
	t := ctx.Start(buildlog.StageMedianFilter)
	defer ctx.Stop(buildlog.StageMedianFilter, t)

	w, h := chf.Width, chf.Height
	areas := make([]uint8, chf.SpanCount)
	copy(areas, chf.Areas)

	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				if chf.Areas[i] == NullArea {
					areas[i] = NullArea
					continue
				}
				var nei [9]uint8
				for j := 0; j < 9; j++ {
					nei[j] = chf.Areas[i]
				}
				s := &chf.Spans[i]
				for dir := int32(0); dir < 4; dir++ {
					if GetCon(s, dir) == NotConnected {
						continue
					}
					ax, az := x+DirOffsetX(dir), z+DirOffsetZ(dir)
					ai := int32(chf.Cells[ax+az*w].Index) + int32(GetCon(s, dir))
					if chf.Areas[ai] != NullArea {
						nei[dir*2+0] = chf.Areas[ai]
					}
					as := &chf.Spans[ai]
					dir2 := (dir + 1) & 3
					if GetCon(as, dir2) != NotConnected {
						aax, aaz := ax+DirOffsetX(dir2), az+DirOffsetZ(dir2)
						aai := int32(chf.Cells[aax+aaz*w].Index) + int32(GetCon(as, dir2))
						if chf.Areas[aai] != NullArea {
							nei[dir*2+1] = chf.Areas[aai]
						}
					}
				}
				sort.Slice(nei[:], func(a, b int) bool { return nei[a] < nei[b] })
				areas[i] = nei[4]
			}
		}
	}
	copy(chf.Areas, areas)
	for i := range chf.Spans {
		chf.Spans[i].Area = chf.Areas[i]
	}
}
