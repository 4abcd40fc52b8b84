package region

import (
	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// sweepRow tracks one in-progress region on the current scanline while
// BuildMonotoneRegions sweeps rows top to bottom.
type sweepRow struct {
	id, count, nei uint16
}

// BuildMonotoneRegions partitions chf by sweeping rows and merging
// same-area spans with their unique same-region neighbour from the row
// above, producing monotone (non-overlapping, vertically-striped)
// regions. Much cheaper than watershed and good enough when terrain is
// simple; tends to produce more elongated, less natural region shapes.
func BuildMonotoneRegions(ctx *buildlog.Context, chf *voxel.CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int32) {
	t := ctx.Start(buildlog.StageMonotone)
	defer ctx.Stop(buildlog.StageMonotone, t)

	w, h := chf.Width, chf.Height
	srcReg := make([]uint16, chf.SpanCount)
	id := paintBorder(borderSize, chf, srcReg, 1)

	nsweeps := maxI32(w, h)
	sweeps := make([]sweepRow, nsweeps+1)

	for y := borderSize; y < h-borderSize; y++ {
		prev := make([]int32, id+1)
		rid := uint16(1)

		for x := borderSize; x < w-borderSize; x++ {
			c := chf.Cells[x+y*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				if chf.Areas[i] == voxel.NullArea {
					continue
				}

				var previd uint16
				if voxel.GetCon(&chf.Spans[i], 0) != voxel.NotConnected {
					ax, ay := x+voxel.DirOffsetX(0), y+voxel.DirOffsetZ(0)
					ai := int32(chf.Cells[ax+ay*w].Index) + int32(voxel.GetCon(&chf.Spans[i], 0))
					if srcReg[ai]&borderReg == 0 && chf.Areas[i] == chf.Areas[ai] {
						previd = srcReg[ai]
					}
				}
				if previd == 0 {
					previd = rid
					rid++
					sweeps[previd] = sweepRow{id: previd}
				}

				if voxel.GetCon(&chf.Spans[i], 3) != voxel.NotConnected {
					ax, ay := x+voxel.DirOffsetX(3), y+voxel.DirOffsetZ(3)
					ai := int32(chf.Cells[ax+ay*w].Index) + int32(voxel.GetCon(&chf.Spans[i], 3))
					if srcReg[ai] != 0 && srcReg[ai]&borderReg == 0 && chf.Areas[i] == chf.Areas[ai] {
						nr := srcReg[ai]
						if sweeps[previd].nei == 0 || sweeps[previd].nei == nr {
							sweeps[previd].nei = nr
							sweeps[previd].count++
							prev[nr]++
						} else {
							sweeps[previd].nei = nullNeighbour
						}
					}
				}
				srcReg[i] = previd
			}
		}

		for i := uint16(1); i < rid; i++ {
			if sweeps[i].nei != nullNeighbour && sweeps[i].nei != 0 && prev[sweeps[i].nei] == int32(sweeps[i].count) {
				sweeps[i].id = sweeps[i].nei
			} else {
				sweeps[i].id = id
				id++
			}
		}

		for x := borderSize; x < w-borderSize; x++ {
			c := chf.Cells[x+y*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				if srcReg[i] > 0 && srcReg[i] < rid {
					srcReg[i] = sweeps[srcReg[i]].id
				}
			}
		}
	}

	chf.MaxRegions = id
	newMax, overlaps := mergeAndFilterRegions(minRegionArea, mergeRegionArea, chf, srcReg, chf.MaxRegions)
	chf.MaxRegions = newMax
	if len(overlaps) > 0 {
		ctx.Warnf("overlapping_regions", "monotone partitioning produced %d overlapping regions (unexpected)", len(overlaps))
	}

	for i := int32(0); i < chf.SpanCount; i++ {
		chf.Spans[i].Region = srcReg[i]
	}
}
