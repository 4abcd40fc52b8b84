// Package navmesh is the runtime half of the pipeline: it packages the
// per-tile outputs of polymesh/detailmesh into query-ready tiles, links
// adjacent tiles together through shared portal edges, and answers the
// runtime questions (nearest polygon, shortest path, straight path,
// raycast, random point) that a mesh built by the other packages exists
// to serve.
package navmesh

import (
	"fmt"

	"github.com/arl/gogeo/f32/d3"
)

// VertsPerPolygon is the maximum number of vertices a navigation polygon
// may have; it matches the Nvp cap polymesh.Build was given.
const VertsPerPolygon = 6

// MaxAreas is the number of distinct area ids a QueryFilter can cost.
const MaxAreas = 64

// nullLink marks the end of a polygon's per-edge link list.
const nullLink uint32 = 0xffffffff

// Polygon types.
const (
	PolyTypeGround uint8 = iota
	PolyTypeOffMeshConnection
)

// off-mesh connection direction flag.
const OffMeshConBidir uint8 = 1

// PolyRef uniquely identifies a polygon (or off-mesh connection) across
// the whole mesh: it packs a per-tile salt (invalidated on RemoveTile),
// a tile index and a polygon-within-tile index into one integer so it
// can be compared, hashed and stored cheaply.
type PolyRef uint64

// Params configures a NavMesh's tile grid at construction: every tile
// that will ever be added must fit the same origin, tile size and the
// same salt/tile/poly bit budget.
type Params struct {
	Orig       d3.Vec3 // world-space origin of tile (0,0)
	TileWidth  float32 // tile size along X
	TileHeight float32 // tile size along Z
	MaxTiles   int32   // bit budget: ceil(log2(MaxTiles)) bits of the ref
	MaxPolys   int32   // bit budget: ceil(log2(MaxPolys)) bits of the ref
}

// Link is one directed edge of the portal graph: either an internal
// edge between two polygons of the same tile, or an external edge
// crossing into a neighbour tile, restricted to the overlapping
// interval of the shared border ([Bmin,Bmax], 0..255 scale across the
// edge) so a query can refuse to cross through a sliver of the portal
// that isn't actually shared.
type Link struct {
	Ref  PolyRef // neighbour polygon reference
	Next uint32  // index of next link in the same polygon's list, or nullLink
	Edge uint8   // edge index on the *owning* polygon that this link exits through
	Side uint8   // if a boundary link, defines on which side the link is
	Bmin uint8   // if a boundary link, defines the minimum sub-edge area
	Bmax uint8   // if a boundary link, defines the maximum sub-edge area
}

// Poly defines a single polygon within a Tile.
type Poly struct {
	FirstLink   uint32                  // index of first link, or nullLink
	Verts       [VertsPerPolygon]uint16 // vertex indices into the tile's Verts
	Neis        [VertsPerPolygon]uint16 // per-edge neighbour poly index (self-tile) or 0x8000|side (external) or 0 (border)
	Flags       uint16                  // user flags, tested by QueryFilter
	VertCount   uint8
	AreaAndType uint8 // low 6 bits: area id. high 2 bits: PolyType*
}

// SetArea sets the polygon's user-defined area id (0..63).
func (p *Poly) SetArea(a uint8) { p.AreaAndType = (p.AreaAndType & 0xc0) | (a & 0x3f) }

// Area returns the polygon's user-defined area id.
func (p *Poly) Area() uint8 { return p.AreaAndType & 0x3f }

// SetType sets the polygon type (PolyTypeGround or PolyTypeOffMeshConnection).
func (p *Poly) SetType(t uint8) { p.AreaAndType = (p.AreaAndType & 0x3f) | (t << 6) }

// Type returns the polygon type.
func (p *Poly) Type() uint8 { return p.AreaAndType >> 6 }

// PolyDetail points a ground polygon at its extra detail vertices and
// triangles (as built by detailmesh): the polygon's own VertCount
// vertices form the first VertCount vertices of every detail triangle
// fan; VertCount beyond that indexes into the tile's DetailVerts.
type PolyDetail struct {
	VertBase  uint32
	TriBase   uint32
	VertCount uint8
	TriCount  uint8
}

// BvNode is one node of a tile's bounding-volume tree, in quantized
// tile-local coordinates. A positive I marks an interior node (skip
// count to the node after this subtree); I<0 marks a leaf referencing
// polygon -I-1.
type BvNode struct {
	Bmin, Bmax [3]uint16
	I          int32
}

// OffMeshConnection links two points that are not connected by the
// walkable surface (a jump, ladder, or teleport) as an extra polygon of
// VertCount==2.
type OffMeshConnection struct {
	Pos    [6]float32 // start (0:3) and end (3:6) positions
	Rad    float32    // radius at the end points
	Poly   uint16      // assigned poly index once attached to a tile
	Flags  uint8       // OffMeshConBidir or 0
	Side   uint8       // traversal direction restriction: auto-detected side
	UserID uint32
}

// Header carries everything needed to reconstruct a Tile's derived
// fields (salts, tile coordinates, counts) after Verts/Polys/etc. are
// (re)populated, e.g. after deserialization.
type Header struct {
	X, Y, Layer     int32
	UserID          uint32
	PolyCount       int32
	VertCount       int32
	MaxLinkCount    int32
	DetailMeshCount int32
	DetailVertCount int32
	DetailTriCount  int32
	BvNodeCount     int32
	OffMeshConCount int32
	OffMeshBase     int32
	WalkableHeight  float32
	WalkableRadius  float32
	WalkableClimb   float32
	Bmin, Bmax      d3.Vec3
	BvQuantFactor   float32
}

// Tile is one piece of the navigation mesh: a tessellated ground
// surface plus whatever off-mesh connections were attached to it.
type Tile struct {
	Salt uint32 // bumped every time this slot is reused; invalidates old PolyRefs

	Header       *Header
	Polys        []Poly
	Verts        []float32
	Links        []Link
	DetailMeshes []PolyDetail
	DetailVerts  []float32
	DetailTris   []uint8 // (vertA,vertB,vertC,edgeFlags)*DetailTriCount
	BvTree       []BvNode
	OffMeshCons  []OffMeshConnection

	index         int32 // slot index within NavMesh.tiles, fixed at New()
	linksFreeList uint32
}

// NavMesh is a grid of tiles addressable by (x,y,layer), queryable
// through a NewQuery-created Query.
type NavMesh struct {
	params Params

	tileWidth, tileHeight float32
	tileLUT               map[[3]int32]int32 // (x,y,layer) -> tiles index
	tiles                 []Tile

	saltBits, tileBits, polyBits uint
}

// New allocates an empty NavMesh with the given tile grid parameters.
func New(params Params) (*NavMesh, error) {
	if params.MaxTiles <= 0 || params.MaxPolys <= 0 {
		return nil, fmt.Errorf("navmesh: MaxTiles and MaxPolys must be positive")
	}
	nm := &NavMesh{
		params:     params,
		tileWidth:  params.TileWidth,
		tileHeight: params.TileHeight,
		tileLUT:    make(map[[3]int32]int32),
		tiles:      make([]Tile, params.MaxTiles),
	}
	nm.tileBits = ilog2(nextPow2(uint32(params.MaxTiles)))
	nm.polyBits = ilog2(nextPow2(uint32(params.MaxPolys)))
	// Salt gets whatever bits remain, capped so refs still fit in 31 bits
	// usable from a signed host representation; clamp to at least 10.
	remaining := 31 - nm.tileBits - nm.polyBits
	if remaining < 10 {
		remaining = 10
	}
	nm.saltBits = remaining
	for i := range nm.tiles {
		nm.tiles[i].Salt = 1
		nm.tiles[i].linksFreeList = nullLink
		nm.tiles[i].index = int32(i)
	}
	return nm, nil
}

// Params returns the parameters the mesh was constructed with.
func (nm *NavMesh) Params() Params { return nm.params }

func nextPow2(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

func ilog2(v uint32) uint {
	var r uint
	for v > 1 {
		v >>= 1
		r++
	}
	return r
}

// TileAt returns the tile at the given grid coordinates, or nil.
func (nm *NavMesh) TileAt(x, y, layer int32) *Tile {
	idx, ok := nm.tileLUT[[3]int32{x, y, layer}]
	if !ok {
		return nil
	}
	return &nm.tiles[idx]
}

// TileCount returns the number of tile slots, used or not, allocated by
// the mesh (i.e. params.MaxTiles).
func (nm *NavMesh) TileCount() int32 { return int32(len(nm.tiles)) }

// TileByIndex returns the tile at the given slot, which may be unused
// (Header == nil).
func (nm *NavMesh) TileByIndex(i int32) *Tile { return &nm.tiles[i] }

func (nm *NavMesh) tileIndex(t *Tile) int32 { return t.index }
