// Package region partitions a compact heightfield's walkable spans into
// non-overlapping regions whose boundaries become the input to contour
// tracing. Three strategies are offered: watershed (best quality, most
// expensive), monotone (fast, produces more elongated regions) and
// layers (monotone-like but keeps vertically stacked floors in separate
// regions, for multi-storey tiles).
package region

import (
	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// borderReg flags a region id as belonging to the non-navigable tile
// border painted in from BuildWatershedRegions/BuildMonotoneRegions.
const borderReg uint16 = 0x8000

const nullNeighbour uint16 = 0xffff

// region accumulates everything known about one partition while regions
// are being merged and filtered: its span count, its area type, the
// ordered list of neighbour ids walked around its contour, and the
// floor ids of any regions directly underneath it (for layer stacks).
type region struct {
	id               uint16
	areaType         uint8
	spanCount        int32
	visited          bool
	overlap          bool
	connections      []int32
	floors           []int32
	yMin, yMax       uint16
}

func newRegion(id int) *region {
	return &region{id: uint16(id), yMin: 0xffff, yMax: 0}
}

func (r *region) removeAdjacentDuplicates() {
	for i := 0; i < len(r.connections) && len(r.connections) > 1; {
		ni := (i + 1) % len(r.connections)
		if r.connections[i] == r.connections[ni] {
			r.connections = append(r.connections[:i], r.connections[i+1:]...)
		} else {
			i++
		}
	}
}

func (r *region) replaceNeighbour(oldID, newID uint16) {
	changed := false
	for i := range r.connections {
		if r.connections[i] == int32(oldID) {
			r.connections[i] = int32(newID)
			changed = true
		}
	}
	for i := range r.floors {
		if r.floors[i] == int32(oldID) {
			r.floors[i] = int32(newID)
		}
	}
	if changed {
		r.removeAdjacentDuplicates()
	}
}

func (r *region) canMergeWith(other *region) bool {
	if r.areaType != other.areaType {
		return false
	}
	n := 0
	for _, c := range r.connections {
		if c == int32(other.id) {
			n++
		}
	}
	if n > 1 {
		return false
	}
	for _, f := range r.floors {
		if f == int32(other.id) {
			return false
		}
	}
	return true
}

func (r *region) addFloor(id int32) {
	for _, f := range r.floors {
		if f == id {
			return
		}
	}
	r.floors = append(r.floors, id)
}

func (r *region) isConnectedToBorder() bool {
	for _, c := range r.connections {
		if c == 0 {
			return true
		}
	}
	return false
}

func mergeRegions(dst, src *region) bool {
	dstCon := append([]int32(nil), dst.connections...)
	srcCon := src.connections

	insDst := -1
	for i, c := range dstCon {
		if c == int32(src.id) {
			insDst = i
			break
		}
	}
	if insDst == -1 {
		return false
	}
	insSrc := -1
	for i, c := range srcCon {
		if c == int32(dst.id) {
			insSrc = i
			break
		}
	}
	if insSrc == -1 {
		return false
	}

	merged := make([]int32, 0, len(dstCon)+len(srcCon))
	n := int32(len(dstCon))
	for i := int32(0); i < n-1; i++ {
		merged = append(merged, dstCon[(int32(insDst)+1+i)%n])
	}
	n = int32(len(srcCon))
	for i := int32(0); i < n-1; i++ {
		merged = append(merged, srcCon[(int32(insSrc)+1+i)%n])
	}
	dst.connections = merged
	dst.removeAdjacentDuplicates()

	for _, f := range src.floors {
		dst.addFloor(f)
	}
	dst.spanCount += src.spanCount
	src.spanCount = 0
	src.connections = nil
	return true
}

func isSolidEdge(chf *voxel.CompactHeightfield, srcReg []uint16, x, y, i, dir int32) bool {
	s := &chf.Spans[i]
	var r uint16
	if voxel.GetCon(s, dir) != voxel.NotConnected {
		ax, ay := x+voxel.DirOffsetX(dir), y+voxel.DirOffsetZ(dir)
		ai := int32(chf.Cells[ax+ay*chf.Width].Index) + int32(voxel.GetCon(s, dir))
		r = srcReg[ai]
	}
	return r != srcReg[i]
}

// walkContour walks clockwise around one region's boundary starting at
// span i moving in direction dir, recording every distinct neighbour
// region id crossed. Result is deduplicated of adjacent repeats.
func walkContour(x, y, i, dir int32, chf *voxel.CompactHeightfield, srcReg []uint16) []int32 {
	startDir, starti := dir, i
	var cont []int32

	ss := &chf.Spans[i]
	var curReg uint16
	if voxel.GetCon(ss, dir) != voxel.NotConnected {
		ax, ay := x+voxel.DirOffsetX(dir), y+voxel.DirOffsetZ(dir)
		ai := int32(chf.Cells[ax+ay*chf.Width].Index) + int32(voxel.GetCon(ss, dir))
		curReg = srcReg[ai]
	}
	cont = append(cont, int32(curReg))

	for iter := 0; iter < 40000; iter++ {
		s := &chf.Spans[i]
		if isSolidEdge(chf, srcReg, x, y, i, dir) {
			var r uint16
			if voxel.GetCon(s, dir) != voxel.NotConnected {
				ax, ay := x+voxel.DirOffsetX(dir), y+voxel.DirOffsetZ(dir)
				ai := int32(chf.Cells[ax+ay*chf.Width].Index) + int32(voxel.GetCon(s, dir))
				r = srcReg[ai]
			}
			if r != curReg {
				curReg = r
				cont = append(cont, int32(curReg))
			}
			dir = (dir + 1) & 3
		} else {
			nx, ny := x+voxel.DirOffsetX(dir), y+voxel.DirOffsetZ(dir)
			ni := int32(-1)
			if voxel.GetCon(s, dir) != voxel.NotConnected {
				ni = int32(chf.Cells[nx+ny*chf.Width].Index) + int32(voxel.GetCon(s, dir))
			}
			if ni == -1 {
				return cont
			}
			x, y, i = nx, ny, ni
			dir = (dir + 3) & 3
		}
		if starti == i && startDir == dir {
			break
		}
	}

	for j := 0; j < len(cont); {
		nj := (j + 1) % len(cont)
		if nj != j && cont[j] == cont[nj] {
			cont = append(cont[:j], cont[j+1:]...)
		} else {
			j++
		}
	}
	return cont
}

func paintRectRegion(minx, maxx, miny, maxy int32, id uint16, chf *voxel.CompactHeightfield, srcReg []uint16) {
	w := chf.Width
	for y := miny; y < maxy; y++ {
		for x := minx; x < maxx; x++ {
			c := chf.Cells[x+y*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				if chf.Areas[i] != voxel.NullArea {
					srcReg[i] = id
				}
			}
		}
	}
}

// paintBorder paints the four non-navigable border strips and returns
// the next free region id.
func paintBorder(borderSize int32, chf *voxel.CompactHeightfield, srcReg []uint16, nextID uint16) uint16 {
	if borderSize <= 0 {
		return nextID
	}
	w, h := chf.Width, chf.Height
	bw, bh := minI32(w, borderSize), minI32(h, borderSize)
	paintRectRegion(0, bw, 0, h, nextID|borderReg, chf, srcReg)
	nextID++
	paintRectRegion(w-bw, w, 0, h, nextID|borderReg, chf, srcReg)
	nextID++
	paintRectRegion(0, w, 0, bh, nextID|borderReg, chf, srcReg)
	nextID++
	paintRectRegion(0, w, h-bh, h, nextID|borderReg, chf, srcReg)
	nextID++
	chf.BorderSize = borderSize
	return nextID
}

// mergeAndFilterRegions walks every region's contour to find its
// neighbours, drops connected components smaller than minRegionArea
// (unless they touch the tile border, whose true extent can't be
// known), merges regions smaller than mergeRegionArea into their
// smallest eligible neighbour, then compresses region ids to a dense
// [1..N] range. Returns the ids found to overlap their own floor (can
// happen with layer partitioning) and the new max region id.
func mergeAndFilterRegions(minRegionArea, mergeRegionArea int32, chf *voxel.CompactHeightfield, srcReg []uint16, maxRegionID uint16) (newMax uint16, overlaps []uint16) {
	w, h := chf.Width, chf.Height
	nreg := maxRegionID + 1
	regions := make([]*region, nreg)
	for i := range regions {
		regions[i] = newRegion(i)
	}

	for y := int32(0); y < h; y++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+y*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				r := srcReg[i]
				if r == 0 || r >= nreg {
					continue
				}
				reg := regions[r]
				reg.spanCount++

				for j := int32(c.Index); j < int32(c.Index)+int32(c.Count); j++ {
					if i == j {
						continue
					}
					floorID := srcReg[j]
					if floorID == 0 || floorID >= nreg {
						continue
					}
					if floorID == r {
						reg.overlap = true
					}
					reg.addFloor(int32(floorID))
				}

				if len(reg.connections) > 0 {
					continue
				}
				reg.areaType = chf.Areas[i]

				ndir := int32(-1)
				for dir := int32(0); dir < 4; dir++ {
					if isSolidEdge(chf, srcReg, x, y, i, dir) {
						ndir = dir
						break
					}
				}
				if ndir != -1 {
					reg.connections = walkContour(x, y, i, ndir, chf, srcReg)
				}
			}
		}
	}

	// Drop small regions not connected to a border.
	var stack []uint16
	for i := uint16(0); i < nreg; i++ {
		reg := regions[i]
		if reg.id == 0 || (reg.id&borderReg) != 0 || reg.spanCount == 0 || reg.visited {
			continue
		}
		connectsToBorder := false
		spanCount := int32(0)
		var trace []uint16
		stack = stack[:0]
		reg.visited = true
		stack = append(stack, i)

		for len(stack) > 0 {
			ri := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			creg := regions[ri]
			spanCount += creg.spanCount
			trace = append(trace, ri)

			for _, conn := range creg.connections {
				if conn&int32(borderReg) != 0 {
					connectsToBorder = true
					continue
				}
				nei := regions[conn]
				if nei.visited || nei.id == 0 || (nei.id&borderReg) != 0 {
					continue
				}
				nei.visited = true
				stack = append(stack, nei.id)
			}
		}

		if spanCount < minRegionArea && !connectsToBorder {
			for _, id := range trace {
				regions[id].spanCount = 0
				regions[id].id = 0
			}
		}
	}

	// Merge small regions with their smallest eligible neighbour.
	for {
		mergeCount := 0
		for i := uint16(0); i < nreg; i++ {
			reg := regions[i]
			if reg.id == 0 || (reg.id&borderReg) != 0 || reg.overlap || reg.spanCount == 0 {
				continue
			}
			if reg.spanCount > mergeRegionArea && reg.isConnectedToBorder() {
				continue
			}
			smallest := int32(1 << 30)
			mergeID := reg.id
			for _, conn := range reg.connections {
				if conn&int32(borderReg) != 0 {
					continue
				}
				mreg := regions[conn]
				if mreg.id == 0 || (mreg.id&borderReg) != 0 || mreg.overlap {
					continue
				}
				if mreg.spanCount < smallest && reg.canMergeWith(mreg) && mreg.canMergeWith(reg) {
					smallest = mreg.spanCount
					mergeID = mreg.id
				}
			}
			if mergeID != reg.id {
				oldID := reg.id
				target := regions[mergeID]
				if mergeRegions(target, reg) {
					for j := uint16(0); j < nreg; j++ {
						if regions[j].id == 0 || (regions[j].id&borderReg) != 0 {
							continue
						}
						if regions[j].id == oldID {
							regions[j].id = mergeID
						}
						regions[j].replaceNeighbour(oldID, mergeID)
					}
					mergeCount++
				}
			}
		}
		if mergeCount == 0 {
			break
		}
	}

	// Compress ids.
	remap := make([]bool, nreg)
	for i := uint16(0); i < nreg; i++ {
		remap[i] = regions[i].id != 0 && regions[i].id&borderReg == 0
	}
	var gen uint16
	for i := uint16(0); i < nreg; i++ {
		if !remap[i] {
			continue
		}
		oldID := regions[i].id
		gen++
		newID := gen
		for j := i; j < nreg; j++ {
			if regions[j].id == oldID {
				regions[j].id = newID
				remap[j] = false
			}
		}
	}
	newMax = gen

	for i := range srcReg {
		if srcReg[i]&borderReg == 0 {
			srcReg[i] = regions[srcReg[i]].id
		}
	}
	for i := uint16(0); i < nreg; i++ {
		if regions[i].overlap {
			overlaps = append(overlaps, regions[i].id)
		}
	}
	return newMax, overlaps
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
