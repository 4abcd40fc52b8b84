package pipeline

import (
	"testing"

	"github.com/arl/gogeo/f32/d3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/config"
	"github.com/wayfarer-nav/navmesh/internal/geomio"
	"github.com/wayfarer-nav/navmesh/navmesh"
)

func flatFloorGeom() *geomio.Mesh {
	return &geomio.Mesh{
		Verts: []float32{
			-5, 0, -5,
			5, 0, -5,
			5, 0, 5,
			-5, 0, 5,
		},
		Tris: []int32{0, 2, 1, 0, 3, 2},
	}
}

func fineCfg() config.Build {
	cfg := config.Default()
	cfg.CellSize = 0.2
	cfg.CellHeight = 0.2
	cfg.WalkableHeight = 2
	cfg.WalkableClimb = 1
	cfg.WalkableRadius = 1
	cfg.MinRegionArea = 8
	cfg.MergeRegionArea = 20
	cfg.MaxSimplificationError = 1.3
	cfg.MaxEdgeLen = 0
	cfg.MaxVertsPerPoly = 6
	cfg.DetailSampleDist = 6
	cfg.DetailSampleMaxError = 1
	return cfg
}

// TestBuildFlatFloorYieldsShortestPath exercises the single most basic
// scenario: a flat open floor builds into one tile with a connected
// walkable surface, and a straight path between two corners comes back
// as exactly a start and end waypoint (nothing in between to turn at).
func TestBuildFlatFloorYieldsShortestPath(t *testing.T) {
	ctx := buildlog.Disabled()
	geom := flatFloorGeom()
	cfg := fineCfg()

	nm, results, err := Build(ctx, geom, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Greater(t, results[0].Header.PolyCount, int32(0))

	q, err := navmesh.NewQuery(nm, 512)
	require.NoError(t, err)
	filter := navmesh.NewDefaultQueryFilter()

	path, err := q.FindPath(d3.Vec3{-4, 0, -4}, d3.Vec3{4, 0, 4}, filter)
	require.NoError(t, err)
	assert.Len(t, path, 2, "a single convex polygon yields exactly start and end waypoints")
}

// twoIslandsGeom builds two flat floor patches separated by an
// unwalkable gap wide enough that no polygon can bridge them.
func twoIslandsGeom() *geomio.Mesh {
	return &geomio.Mesh{
		Verts: []float32{
			-5, 0, -5,
			-1, 0, -5,
			-1, 0, 5,
			-5, 0, 5,

			1, 0, -5,
			5, 0, -5,
			5, 0, 5,
			1, 0, 5,
		},
		Tris: []int32{
			0, 2, 1, 0, 3, 2,
			4, 6, 5, 4, 7, 6,
		},
	}
}

// TestBuildDisconnectedIslandsYieldsNoPath reproduces the disconnected
// region scenario: two floors with a gap between them build into two
// separate regions/polygons, and a search between a point on each
// island never reaches the other, returning a best-effort path that
// stops short of the requested end polygon.
func TestBuildDisconnectedIslandsYieldsNoPath(t *testing.T) {
	ctx := buildlog.Disabled()
	geom := twoIslandsGeom()
	cfg := fineCfg()

	nm, results, err := Build(ctx, geom, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)

	q, err := navmesh.NewQuery(nm, 512)
	require.NoError(t, err)
	filter := navmesh.NewDefaultQueryFilter()

	startRef, startPt, err := q.FindNearestPoly(d3.Vec3{-3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	endRef, endPt, err := q.FindNearestPoly(d3.Vec3{3, 0, 0}, d3.Vec3{1, 1, 1}, filter)
	require.NoError(t, err)
	require.NotEqual(t, startRef, endRef)

	polys, err := q.FindNodePath(startRef, endRef, startPt, endPt, filter)
	require.NoError(t, err)
	assert.NotEqual(t, endRef, polys[len(polys)-1], "the two islands must not be connected by the search")
}

func TestBuildTiledGridProducesMultipleTiles(t *testing.T) {
	ctx := buildlog.Disabled()
	geom := flatFloorGeom()
	cfg := fineCfg()
	cfg.TileSize = 16 // voxels, at cellSize 0.2 => 3.2 world units per tile

	nm, results, err := Build(ctx, geom, cfg)
	require.NoError(t, err)
	assert.Greater(t, len(results), 1, "a 10x10 floor tiled at 3.2 units per tile must split into multiple tiles")
	assert.Greater(t, nm.TileCount(), int32(1))

	// A path between two opposite corners must actually cross tile
	// boundaries: portal links have to be wired in both directions
	// regardless of which tile was added first.
	q, err := navmesh.NewQuery(nm, 2048)
	require.NoError(t, err)
	filter := navmesh.NewDefaultQueryFilter()

	path, err := q.FindPath(d3.Vec3{-4.5, 0, -4.5}, d3.Vec3{4.5, 0, 4.5}, filter)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(path), 2)
	last := path[len(path)-1]
	assert.NotZero(t, last.Flags&navmesh.StraightPathEnd, "path must actually reach the far corner, not stall at a tile boundary")
}
