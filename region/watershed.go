package region

import (
	"github.com/arl/assertgo"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// expandIters controls how far an in-progress watershed basin is
// allowed to flood into still-unclaimed cells between level drops; a
// fixed value here trades some basin-shape precision for not having to
// expose yet another tunable in the config.
const expandIters = 8

// BuildWatershedRegions partitions chf using a watershed transform over
// its boundary distance field (see voxel.BuildDistanceField, which must
// have been run first): basins grow outward from local distance maxima,
// one water level at a time, until they meet, giving natural-looking,
// roughly convex regions that hug terrain features. It is the most
// expensive of the three partition strategies but produces the fewest
// post-hoc stitching artifacts in the resulting contours.
func BuildWatershedRegions(ctx *buildlog.Context, chf *voxel.CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int32) {
	t := ctx.Start(buildlog.StageWatershed)
	defer ctx.Stop(buildlog.StageWatershed, t)

	n := chf.SpanCount
	srcReg := make([]uint16, n)
	srcDist := make([]uint16, n)
	dstReg := make([]uint16, n)
	dstDist := make([]uint16, n)

	regionID := paintBorder(borderSize, chf, srcReg, 1)

	const logLevelsPerStack = 1
	const nbStacks = 1 << 3
	lvlStacks := make([][]int32, nbStacks)
	for i := range lvlStacks {
		lvlStacks[i] = nil
	}
	var stack []int32

	level := (chf.MaxDistance + 1) &^ 1
	sID := -1
	for level > 0 {
		if level >= 2 {
			level -= 2
		} else {
			level = 0
		}
		sID = (sID + 1) & (nbStacks - 1)

		if sID == 0 {
			sortCellsByLevel(level, chf, srcReg, nbStacks, lvlStacks, logLevelsPerStack)
		} else {
			appendStack(lvlStacks[sID-1], &lvlStacks[sID], srcReg)
		}

		if swapped := expandRegions(expandIters, level, chf, srcReg, srcDist, dstReg, dstDist, lvlStacks[sID], false); swapped {
			srcReg, dstReg = dstReg, srcReg
			srcDist, dstDist = dstDist, srcDist
		}

		for j := 0; j < len(lvlStacks[sID]); j += 3 {
			x, y, i := lvlStacks[sID][j], lvlStacks[sID][j+1], lvlStacks[sID][j+2]
			if i >= 0 && srcReg[i] == 0 {
				if floodRegion(x, y, i, level, regionID, chf, srcReg, srcDist) {
					if regionID == 0xffff {
						ctx.Errorf("region_id_overflow", "watershed region id overflow")
						return
					}
					regionID++
				}
			}
		}
	}

	// Final expansion pass catches anything the level sweep missed.
	if swapped := expandRegions(expandIters*8, 0, chf, srcReg, srcDist, dstReg, dstDist, nil, true); swapped {
		srcReg, dstReg = dstReg, srcReg
		srcDist, dstDist = dstDist, srcDist
	}
	_ = dstReg
	_ = dstDist

	chf.MaxRegions = regionID
	newMax, overlaps := mergeAndFilterRegions(minRegionArea, mergeRegionArea, chf, srcReg, chf.MaxRegions)
	chf.MaxRegions = newMax
	if len(overlaps) > 0 {
		ctx.Warnf("overlapping_regions", "watershed produced %d overlapping regions", len(overlaps))
	}

	for i := int32(0); i < n; i++ {
		chf.Spans[i].Region = srcReg[i]
	}
}

func sortCellsByLevel(startLevel uint16, chf *voxel.CompactHeightfield, srcReg []uint16, nbStacks int, stacks [][]int32, logLevelsPerStack uint16) {
	w, h := chf.Width, chf.Height
	startLevel >>= logLevelsPerStack
	for j := range stacks {
		stacks[j] = stacks[j][:0]
	}
	for y := int32(0); y < h; y++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+y*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				if chf.Areas[i] == voxel.NullArea || srcReg[i] != 0 {
					continue
				}
				lvl := chf.Dist[i] >> logLevelsPerStack
				var sID int32
				if int32(startLevel) < int32(lvl) {
					continue
				}
				sID = int32(startLevel) - int32(lvl)
				if sID >= int32(nbStacks) {
					continue
				}
				stacks[sID] = append(stacks[sID], x, y, i)
			}
		}
	}
}

func appendStack(src []int32, dst *[]int32, srcReg []uint16) {
	*dst = (*dst)[:0]
	for j := 0; j < len(src); j += 3 {
		i := src[j+2]
		if i < 0 || srcReg[i] != 0 {
			continue
		}
		*dst = append(*dst, src[j], src[j+1], i)
	}
}

func floodRegion(x, y, i int32, level uint16, r uint16, chf *voxel.CompactHeightfield, srcReg, srcDist []uint16) bool {
	assert.True(r != 0 && r&borderReg == 0, "floodRegion seeded with invalid region id %d", r)
	w := chf.Width
	area := chf.Areas[i]

	var lev uint16
	if level >= 2 {
		lev = level - 2
	}

	stack := []int32{x, y, i}
	srcReg[i] = r
	srcDist[i] = 0
	count := int32(0)

	for len(stack) > 0 {
		ci := stack[len(stack)-1]
		cy := stack[len(stack)-2]
		cx := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		cs := &chf.Spans[ci]

		var ar uint16
		for dir := int32(0); dir < 4; dir++ {
			if voxel.GetCon(cs, dir) == voxel.NotConnected {
				continue
			}
			ax, ay := cx+voxel.DirOffsetX(dir), cy+voxel.DirOffsetZ(dir)
			ai := int32(chf.Cells[ax+ay*w].Index) + int32(voxel.GetCon(cs, dir))
			if chf.Areas[ai] != area {
				continue
			}
			nr := srcReg[ai]
			if nr&borderReg != 0 {
				continue
			}
			if nr != 0 && nr != r {
				ar = nr
				break
			}
			as := &chf.Spans[ai]
			dir2 := (dir + 1) & 3
			if voxel.GetCon(as, dir2) != voxel.NotConnected {
				ax2, ay2 := ax+voxel.DirOffsetX(dir2), ay+voxel.DirOffsetZ(dir2)
				ai2 := int32(chf.Cells[ax2+ay2*w].Index) + int32(voxel.GetCon(as, dir2))
				if chf.Areas[ai2] != area {
					continue
				}
				nr2 := srcReg[ai2]
				if nr2 != 0 && nr2 != r {
					ar = nr2
					break
				}
			}
		}
		if ar != 0 {
			srcReg[ci] = 0
			continue
		}
		count++

		for dir := int32(0); dir < 4; dir++ {
			if voxel.GetCon(cs, dir) == voxel.NotConnected {
				continue
			}
			ax, ay := cx+voxel.DirOffsetX(dir), cy+voxel.DirOffsetZ(dir)
			ai := int32(chf.Cells[ax+ay*w].Index) + int32(voxel.GetCon(cs, dir))
			if chf.Areas[ai] != area {
				continue
			}
			if chf.Dist[ai] >= lev && srcReg[ai] == 0 {
				srcReg[ai] = r
				srcDist[ai] = 0
				stack = append(stack, ax, ay, ai)
			}
		}
	}
	return count > 0
}

func expandRegions(maxIter int, level uint16, chf *voxel.CompactHeightfield, srcReg, srcDist, dstReg, dstDist []uint16, seedStack []int32, fillStack bool) bool {
	w, h := chf.Width, chf.Height
	var stack []int32

	if fillStack {
		for y := int32(0); y < h; y++ {
			for x := int32(0); x < w; x++ {
				c := chf.Cells[x+y*w]
				for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
					if chf.Dist[i] >= level && srcReg[i] == 0 && chf.Areas[i] != voxel.NullArea {
						stack = append(stack, x, y, i)
					}
				}
			}
		}
	} else {
		stack = append(stack, seedStack...)
		for j := 0; j < len(stack); j += 3 {
			if srcReg[stack[j+2]] != 0 {
				stack[j+2] = -1
			}
		}
	}

	swapped := false
	iter := 0
	for len(stack) > 0 {
		failed := 0
		copy(dstReg, srcReg)
		copy(dstDist, srcDist)

		for j := 0; j < len(stack); j += 3 {
			x, y, i := stack[j], stack[j+1], stack[j+2]
			if i < 0 {
				failed++
				continue
			}
			r := srcReg[i]
			d2 := int32(0xffff)
			area := chf.Areas[i]
			s := &chf.Spans[i]
			for dir := int32(0); dir < 4; dir++ {
				if voxel.GetCon(s, dir) == voxel.NotConnected {
					continue
				}
				ax, ay := x+voxel.DirOffsetX(dir), y+voxel.DirOffsetZ(dir)
				ai := int32(chf.Cells[ax+ay*w].Index) + int32(voxel.GetCon(s, dir))
				if chf.Areas[ai] != area {
					continue
				}
				if srcReg[ai] > 0 && srcReg[ai]&borderReg == 0 {
					if int32(srcDist[ai])+2 < d2 {
						r = srcReg[ai]
						d2 = int32(srcDist[ai]) + 2
					}
				}
			}
			if r != 0 {
				stack[j+2] = -1
				dstReg[i] = r
				dstDist[i] = uint16(d2)
			} else {
				failed++
			}
		}

		srcReg, dstReg = dstReg, srcReg
		srcDist, dstDist = dstDist, srcDist
		swapped = !swapped

		if failed*3 == len(stack) {
			break
		}
		if level > 0 {
			iter++
			if iter >= maxIter {
				break
			}
		}
	}
	return swapped
}
