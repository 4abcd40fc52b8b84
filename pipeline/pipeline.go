// Package pipeline runs the full build (voxelize, filter, partition
// into regions, trace contours, tessellate a polygon mesh, sample a
// detail mesh, package into runtime tiles) end to end over one
// geomio.Mesh, either as a single tile covering the whole input or as
// a grid of tiles when cfg.TileSize > 0.
package pipeline

import (
	"fmt"

	"github.com/arl/gogeo/f32/d3"
	"github.com/arl/math32"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/config"
	"github.com/wayfarer-nav/navmesh/contour"
	"github.com/wayfarer-nav/navmesh/detailmesh"
	"github.com/wayfarer-nav/navmesh/internal/geomio"
	"github.com/wayfarer-nav/navmesh/navmesh"
	"github.com/wayfarer-nav/navmesh/polymesh"
	"github.com/wayfarer-nav/navmesh/region"
	"github.com/wayfarer-nav/navmesh/voxel"
)

// Result is everything a build produced for one tile: the runtime tile
// data, plus the intermediate polymesh (kept around for diagnostics and
// for tests asserting on mesh shape, not just the packed tile).
type Result struct {
	TileX, TileY int32
	Header       *navmesh.Header
	Polys        []navmesh.Poly
	Verts        []float32
	DetailMeshes []navmesh.PolyDetail
	DetailVerts  []float32
	DetailTris   []uint8
	BvTree       []navmesh.BvNode
	PolyMesh     *polymesh.Mesh
	DetailMesh   *detailmesh.Mesh
}

// BuildTile runs the pipeline over one AABB of geom (a single tile's
// worth of geometry, already clipped by the caller for multi-tile
// builds), returning packaged tile data ready for navmesh.AddTile.
func BuildTile(ctx *buildlog.Context, geom *geomio.Mesh, cfg config.Build, bmin, bmax [3]float32, tileX, tileY int32) (*Result, error) {
	width := int32(math32.Ceil((bmax[0] - bmin[0]) / cfg.CellSize))
	height := int32(math32.Ceil((bmax[2] - bmin[2]) / cfg.CellSize))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pipeline: degenerate tile bounds %v..%v", bmin, bmax)
	}

	hf, err := voxel.New(width, height, d3.Vec3(bmin[:]), d3.Vec3(bmax[:]), cfg.CellSize, cfg.CellHeight)
	if err != nil {
		return nil, fmt.Errorf("pipeline: allocating heightfield: %w", err)
	}

	areas := geom.Areas
	if len(areas) == 0 {
		areas = make([]uint8, geom.NumTriangles())
		voxel.MarkWalkableTriangles(cfg.WalkableSlopeDeg, geom.Verts, geom.Tris, areas)
	}
	voxel.RasterizeTriangles(ctx, hf, geom.Verts, geom.Tris, areas, cfg.WalkableClimb)

	voxel.FilterLowHangingWalkableObstacles(ctx, hf, cfg.WalkableClimb)
	voxel.FilterLedgeSpans(ctx, hf, cfg.WalkableHeight, cfg.WalkableClimb)
	voxel.FilterWalkableLowHeightSpans(ctx, hf, cfg.WalkableHeight)

	chf := voxel.BuildCompact(ctx, cfg.WalkableHeight, cfg.WalkableClimb, hf)
	chf.BorderSize = cfg.BorderSize

	voxel.ErodeWalkableArea(ctx, cfg.WalkableRadius, chf)
	voxel.MedianFilterWalkableArea(ctx, chf)
	voxel.BuildDistanceField(ctx, chf)

	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	if err := region.Build(ctx, strategy, chf, cfg.BorderSize, cfg.MinRegionArea, cfg.MergeRegionArea); err != nil {
		return nil, fmt.Errorf("pipeline: partitioning regions: %w", err)
	}

	cset := contour.Build(ctx, chf, cfg.MaxSimplificationError, cfg.MaxEdgeLen, contour.TessWallEdges)

	pmesh, err := polymesh.Build(ctx, cset, cfg.MaxVertsPerPoly)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building polygon mesh: %w", err)
	}

	dmesh, err := detailmesh.Build(ctx, pmesh, chf, cfg.DetailSampleDist, cfg.DetailSampleMaxError)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building detail mesh: %w", err)
	}

	header, polys, verts, detailMeshes, detailVerts, detailTris, bvtree, err := navmesh.PackTile(pmesh, dmesh, navmesh.TileBuildParams{
		TileX: tileX, TileY: tileY,
		WalkableHeight: float32(cfg.WalkableHeight) * cfg.CellHeight,
		WalkableRadius: float32(cfg.WalkableRadius) * cfg.CellSize,
		WalkableClimb:  float32(cfg.WalkableClimb) * cfg.CellHeight,
		BvQuantFactor:  1 / cfg.CellSize,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: packing tile: %w", err)
	}

	return &Result{
		TileX: tileX, TileY: tileY,
		Header: header, Polys: polys, Verts: verts,
		DetailMeshes: detailMeshes, DetailVerts: detailVerts, DetailTris: detailTris,
		BvTree: bvtree, PolyMesh: pmesh, DetailMesh: dmesh,
	}, nil
}

// Build runs the whole pipeline over geom, producing a ready-to-query
// NavMesh: a single tile when cfg.TileSize <= 0, otherwise a grid of
// tiles covering geom's bounds.
func Build(ctx *buildlog.Context, geom *geomio.Mesh, cfg config.Build) (*navmesh.NavMesh, []*Result, error) {
	bmin, bmax := geom.Bounds()

	if cfg.TileSize <= 0 {
		res, err := BuildTile(ctx, geom, cfg, bmin, bmax, 0, 0)
		if err != nil {
			return nil, nil, err
		}
		nm, err := assembleSingleTile(cfg, bmin, bmax, res)
		if err != nil {
			return nil, nil, err
		}
		return nm, []*Result{res}, nil
	}

	tileWorldSize := float32(cfg.TileSize) * cfg.CellSize
	nx := int32(math32.Ceil((bmax[0] - bmin[0]) / tileWorldSize))
	nz := int32(math32.Ceil((bmax[2] - bmin[2]) / tileWorldSize))
	if nx < 1 {
		nx = 1
	}
	if nz < 1 {
		nz = 1
	}

	nm, err := navmesh.New(navmesh.Params{
		Orig:       d3.Vec3(bmin[:]),
		TileWidth:  tileWorldSize,
		TileHeight: tileWorldSize,
		MaxTiles:   nx * nz,
		MaxPolys:   1 << 16,
	})
	if err != nil {
		return nil, nil, err
	}

	var results []*Result
	for ty := int32(0); ty < nz; ty++ {
		for tx := int32(0); tx < nx; tx++ {
			tbmin := [3]float32{bmin[0] + float32(tx)*tileWorldSize, bmin[1], bmin[2] + float32(ty)*tileWorldSize}
			tbmax := [3]float32{tbmin[0] + tileWorldSize, bmax[1], tbmin[2] + tileWorldSize}
			res, err := BuildTile(ctx, geom, cfg, tbmin, tbmax, tx, ty)
			if err != nil {
				ctx.WarnTile(tx, ty, "tile_build_failed", "%v", err)
				continue
			}
			if res.Header.PolyCount == 0 {
				continue
			}
			if _, err := nm.AddTile(res.Header, res.Polys, res.Verts, res.DetailMeshes, res.DetailVerts, res.DetailTris, res.BvTree, nil); err != nil {
				ctx.WarnTile(tx, ty, "tile_add_failed", "%v", err)
				continue
			}
			results = append(results, res)
		}
	}
	return nm, results, nil
}

func assembleSingleTile(cfg config.Build, bmin, bmax [3]float32, res *Result) (*navmesh.NavMesh, error) {
	nm, err := navmesh.New(navmesh.Params{
		Orig:       d3.Vec3(bmin[:]),
		TileWidth:  bmax[0] - bmin[0] + 1,
		TileHeight: bmax[2] - bmin[2] + 1,
		MaxTiles:   1,
		MaxPolys:   1 << 16,
	})
	if err != nil {
		return nil, err
	}
	if res.Header.PolyCount > 0 {
		if _, err := nm.AddTile(res.Header, res.Polys, res.Verts, res.DetailMeshes, res.DetailVerts, res.DetailTris, res.BvTree, nil); err != nil {
			return nil, err
		}
	}
	return nm, nil
}
