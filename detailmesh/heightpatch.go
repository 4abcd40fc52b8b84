package detailmesh

import (
	"fmt"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/polymesh"
	"github.com/wayfarer-nav/navmesh/voxel"
)

const unsetHeight uint16 = 0xffff

// heightPatch is a rectangular window of the compact heightfield's Y
// values, covering one polygon's bounding box, used to sample height
// without re-walking the whole grid per query.
type heightPatch struct {
	data                      []uint16
	xmin, ymin, width, height int32
}

var bsOffset = [9 * 2]int32{0, 0, -1, -1, 0, -1, 1, -1, 1, 0, 1, 1, 0, 1, -1, 1, -1, 0}

// seedArrayWithPolyCenter walks the compact heightfield from a span near
// one of the polygon's vertices toward the polygon's 2D centroid, laying
// down a DFS trail so getHeightData can flood-fill from a point that is
// actually inside the polygon even when contour simplification left the
// polygon slightly non-convex.
func seedArrayWithPolyCenter(ctx *buildlog.Context, chf *voxel.CompactHeightfield, poly []uint16, npoly int32, verts []uint16, bs int32, hp *heightPatch) []int32 {
	var startCellX, startCellY, startSpanIndex int32
	startSpanIndex = -1
	dmin := int32(unsetHeight)

	for j := int32(0); j < npoly && dmin > 0; j++ {
		for k := int32(0); k < 9 && dmin > 0; k++ {
			ax := int32(verts[poly[j]*3+0]) + bsOffset[k*2+0]
			ay := int32(verts[poly[j]*3+1])
			az := int32(verts[poly[j]*3+2]) + bsOffset[k*2+1]
			if ax < hp.xmin || ax >= hp.xmin+hp.width || az < hp.ymin || az >= hp.ymin+hp.height {
				continue
			}
			c := chf.Cells[(ax+bs)+(az+bs)*chf.Width]
			for i, ni := int32(c.Index), int32(c.Index)+int32(c.Count); i < ni && dmin > 0; i++ {
				d := absI32(ay - int32(chf.Spans[i].Y))
				if d < dmin {
					startCellX, startCellY, startSpanIndex, dmin = ax, az, i, d
				}
			}
		}
	}
	if startSpanIndex == -1 {
		panic(fmt.Sprintf("detailmesh: no span found near polygon (bug in caller): dmin=%d", dmin))
	}

	var pcx, pcy int32
	for j := int32(0); j < npoly; j++ {
		pcx += int32(verts[poly[j]*3+0])
		pcy += int32(verts[poly[j]*3+2])
	}
	pcx /= npoly
	pcy /= npoly

	array := []int32{startCellX, startCellY, startSpanIndex}
	dirs := [4]int32{0, 1, 2, 3}
	for i := range hp.data {
		hp.data[i] = 0
	}

	var cx, cy, ci int32 = -1, -1, -1
	for {
		if len(array) < 3 {
			ctx.Warnf("center_unreachable", "detailmesh: walk toward polygon center failed to reach center")
			break
		}
		ci, array = array[len(array)-1], array[:len(array)-1]
		cy, array = array[len(array)-1], array[:len(array)-1]
		cx, array = array[len(array)-1], array[:len(array)-1]

		if cx == pcx && cy == pcy {
			break
		}

		var directDir, off int32
		if cx == pcx {
			if pcy > cy {
				off = 1
			} else {
				off = -1
			}
			directDir = dirForOffset(0, off)
		} else {
			if pcx > cx {
				off = 1
			} else {
				off = -1
			}
			directDir = dirForOffset(off, 0)
		}
		dirs[directDir], dirs[3] = dirs[3], dirs[directDir]

		s := &chf.Spans[ci]
		for i := int32(0); i < 4; i++ {
			dir := dirs[i]
			if voxel.GetCon(s, dir) == voxel.NotConnected {
				continue
			}
			newX := cx + voxel.DirOffsetX(dir)
			newY := cy + voxel.DirOffsetZ(dir)
			hpx := newX - hp.xmin
			hpy := newY - hp.ymin
			if hpx < 0 || hpx >= hp.width || hpy < 0 || hpy >= hp.height {
				continue
			}
			if hp.data[hpx+hpy*hp.width] != 0 {
				continue
			}
			hp.data[hpx+hpy*hp.width] = 1
			array = append(array, newX, newY, int32(chf.Cells[(newX+bs)+(newY+bs)*chf.Width].Index)+int32(voxel.GetCon(s, dir)))
		}
		dirs[directDir], dirs[3] = dirs[3], dirs[directDir]
	}

	seed := []int32{cx + bs, cy + bs, ci}
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}
	hp.data[cx-hp.xmin+(cy-hp.ymin)*hp.width] = chf.Spans[ci].Y
	return seed
}

// dirForOffset maps a unit (dx,dz) step to the matching cardinal
// direction index used by voxel.DirOffsetX/DirOffsetZ (the inverse of
// that pair of lookup tables).
func dirForOffset(dx, dz int32) int32 {
	var dirs = [9]int32{-1, 3, -1, 0, -1, 2, -1, 1, -1}
	return dirs[(dz+1)*3+(dx+1)]
}

func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// getHeightData fills hp with the compact heightfield's Y values over the
// polygon's footprint. It seeds the flood fill at every span belonging to
// region (the polygon's own source region), which avoids contamination
// from an overlapping neighbour polygon sharing the same X/Z columns; if
// the polygon straddles more than one region (region ==
// polymesh.MultipleRegions) or has no matching spans, it falls back to
// seeding from the polygon's walked center instead.
func getHeightData(ctx *buildlog.Context, chf *voxel.CompactHeightfield, poly []uint16, npoly int32, verts []uint16, bs int32, hp *heightPatch, region int32) {
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}

	empty := true
	var queue []int32

	if region != int32(polymesh.MultipleRegions) {
		for hy := int32(0); hy < hp.height; hy++ {
			y := hp.ymin + hy + bs
			for hx := int32(0); hx < hp.width; hx++ {
				x := hp.xmin + hx + bs
				c := chf.Cells[x+y*chf.Width]
				for i, ni := int32(c.Index), int32(c.Index)+int32(c.Count); i < ni; i++ {
					s := &chf.Spans[i]
					if int32(s.Region) != region {
						continue
					}
					hp.data[hx+hy*hp.width] = s.Y
					empty = false

					var border bool
					for dir := int32(0); dir < 4; dir++ {
						if voxel.GetCon(s, dir) == voxel.NotConnected {
							continue
						}
						ax := x + voxel.DirOffsetX(dir)
						ay := y + voxel.DirOffsetZ(dir)
						ai := int32(chf.Cells[ax+ay*chf.Width].Index) + int32(voxel.GetCon(s, dir))
						if int32(chf.Spans[ai].Region) != region {
							border = true
							break
						}
					}
					if border {
						queue = append(queue, x, y, i)
					}
					break
				}
			}
		}
	}

	if empty {
		queue = seedArrayWithPolyCenter(ctx, chf, poly, npoly, verts, bs, hp)
	}

	const retractSize = 256
	head := 0
	for head*3 < len(queue) {
		cx, cy, ci := queue[head*3+0], queue[head*3+1], queue[head*3+2]
		head++
		if head >= retractSize {
			head = 0
			if len(queue) > retractSize*3 {
				copy(queue, queue[retractSize*3:])
			}
			queue = queue[:len(queue)-retractSize*3]
		}

		s := &chf.Spans[ci]
		for dir := int32(0); dir < 4; dir++ {
			if voxel.GetCon(s, dir) == voxel.NotConnected {
				continue
			}
			ax := cx + voxel.DirOffsetX(dir)
			ay := cy + voxel.DirOffsetZ(dir)
			hx := ax - hp.xmin - bs
			hy := ay - hp.ymin - bs
			if hx < 0 || hx >= hp.width || hy < 0 || hy >= hp.height {
				continue
			}
			if hp.data[hx+hy*hp.width] != unsetHeight {
				continue
			}
			ai := int32(chf.Cells[ax+ay*chf.Width].Index) + int32(voxel.GetCon(s, dir))
			hp.data[hx+hy*hp.width] = chf.Spans[ai].Y
			queue = append(queue, ax, ay, ai)
		}
	}
}

// getHeight samples hp at (fx,fz), spiraling outward up to radius cells
// when the direct cell has no data (can happen at the edge of a height
// patch the polygon barely touches).
func getHeight(fx, fy, fz, cs, ics, ch float32, radius int32, hp *heightPatch) uint16 {
	ix := int32(floor32(fx*ics + 0.01))
	iz := int32(floor32(fz*ics + 0.01))
	ix = clampI32(ix-hp.xmin, 0, hp.width-1)
	iz = clampI32(iz-hp.ymin, 0, hp.height-1)
	h := hp.data[ix+iz*hp.width]
	if h != unsetHeight {
		return h
	}

	x, z := int32(1), int32(0)
	dx, dz := int32(1), int32(0)
	maxSize := radius*2 + 1
	maxIter := maxSize*maxSize - 1

	nextRingIterStart := int32(8)
	nextRingIters := int32(16)

	dmin := float32(1e30)
	for i := int32(0); i < maxIter; i++ {
		nx, nz := ix+x, iz+z
		if nx >= 0 && nz >= 0 && nx < hp.width && nz < hp.height {
			nh := hp.data[nx+nz*hp.width]
			if nh != unsetHeight {
				d := absF32(float32(nh)*ch - fy)
				if d < dmin {
					h, dmin = nh, d
				}
			}
		}

		if i+1 == nextRingIterStart {
			if h != unsetHeight {
				break
			}
			nextRingIterStart += nextRingIters
			nextRingIters += 8
		}

		if (x == z) || (x < 0 && x == -z) || (x > 0 && x == 1-z) {
			dx, dz = -dz, dx
		}
		x += dx
		z += dz
	}
	return h
}

func floor32(v float32) float32 {
	i := int32(v)
	if v < 0 && float32(i) != v {
		i--
	}
	return float32(i)
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
