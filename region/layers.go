package region

import (
	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// BuildLayerRegions partitions chf like BuildMonotoneRegions but never
// lets two spans merge into the same region unless they are directly
// link-connected: monotone's row sweep carries a previd forward across
// an entire scanline, which for a single-storey tile is harmless but
// for a multi-storey tile can walk a region across unrelated floors
// that happen to share (x,z) extents a few rows apart. Flooding strictly
// along CompactSpan links keeps each stacked floor in its own region,
// which is what a tile with bridges, balconies or stacked rooms needs.
func BuildLayerRegions(ctx *buildlog.Context, chf *voxel.CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int32) {
	t := ctx.Start(buildlog.StageLayers)
	defer ctx.Stop(buildlog.StageLayers, t)

	w, h := chf.Width, chf.Height
	srcReg := make([]uint16, chf.SpanCount)
	nextID := paintBorder(borderSize, chf, srcReg, 1)

	var stack []int32
	for z := borderSize; z < h-borderSize; z++ {
		for x := borderSize; x < w-borderSize; x++ {
			c := chf.Cells[x+z*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				if chf.Areas[i] == voxel.NullArea || srcReg[i] != 0 {
					continue
				}

				id := nextID
				nextID++
				if nextID == 0xffff {
					ctx.Errorf("region_id_overflow", "layer region id overflow")
					return
				}

				area := chf.Areas[i]
				srcReg[i] = id
				stack = stack[:0]
				stack = append(stack, x, z, i)

				for len(stack) > 0 {
					ci := stack[len(stack)-1]
					cz := stack[len(stack)-2]
					cx := stack[len(stack)-3]
					stack = stack[:len(stack)-3]
					cs := &chf.Spans[ci]

					for dir := int32(0); dir < 4; dir++ {
						if voxel.GetCon(cs, dir) == voxel.NotConnected {
							continue
						}
						ax, az := cx+voxel.DirOffsetX(dir), cz+voxel.DirOffsetZ(dir)
						ai := int32(chf.Cells[ax+az*w].Index) + int32(voxel.GetCon(cs, dir))
						if chf.Areas[ai] != area || srcReg[ai] != 0 {
							continue
						}
						srcReg[ai] = id
						stack = append(stack, ax, az, ai)
					}
				}
			}
		}
	}

	chf.MaxRegions = nextID
	newMax, overlaps := mergeAndFilterRegions(minRegionArea, mergeRegionArea, chf, srcReg, chf.MaxRegions)
	chf.MaxRegions = newMax
	if len(overlaps) > 0 {
		ctx.Warnf("overlapping_regions", "layer partitioning produced %d overlapping regions (unexpected)", len(overlaps))
	}

	for i := int32(0); i < chf.SpanCount; i++ {
		chf.Spans[i].Region = srcReg[i]
	}
}
