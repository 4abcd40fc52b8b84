package region

import (
	"fmt"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// Strategy selects which region-partitioning algorithm Build runs.
type Strategy int

const (
	Watershed Strategy = iota
	Monotone
	Layers
)

func (s Strategy) String() string {
	switch s {
	case Watershed:
		return "watershed"
	case Monotone:
		return "monotone"
	case Layers:
		return "layers"
	default:
		return "unknown"
	}
}

// Build dispatches to the configured partition strategy. borderSize is
// the width, in voxels, of the non-navigable strip painted around the
// compact heightfield's edge (0 for a solo mesh, >0 for a tile that
// needs to leave room for neighbour stitching). minRegionArea drops
// isolated regions smaller than this span count; mergeRegionArea merges
// survivors smaller than this into their best neighbour.
func Build(ctx *buildlog.Context, strategy Strategy, chf *voxel.CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int32) error {
	t := ctx.Start(buildlog.StageRegions)
	defer ctx.Stop(buildlog.StageRegions, t)

	switch strategy {
	case Watershed:
		BuildWatershedRegions(ctx, chf, borderSize, minRegionArea, mergeRegionArea)
	case Monotone:
		BuildMonotoneRegions(ctx, chf, borderSize, minRegionArea, mergeRegionArea)
	case Layers:
		BuildLayerRegions(ctx, chf, borderSize, minRegionArea, mergeRegionArea)
	default:
		return fmt.Errorf("region: unknown partition strategy %v", strategy)
	}
	if ctx.HasErrors() {
		return fmt.Errorf("region: %s partitioning reported errors", strategy)
	}
	return nil
}
