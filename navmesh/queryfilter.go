package navmesh

import "github.com/arl/gogeo/f32/d3"

// QueryFilter controls which polygons a query may enter and how
// expensive crossing one is, letting callers bias or forbid certain
// area types (water, roads, lava) without changing the mesh itself.
type QueryFilter interface {
	// PassFilter reports whether poly may be visited.
	PassFilter(ref PolyRef, tile *Tile, poly *Poly) bool

	// Cost returns the cost of moving in a straight line from pa to pb,
	// a segment fully contained in curPoly.
	Cost(pa, pb d3.Vec3,
		prevRef PolyRef, prevTile *Tile, prevPoly *Poly,
		curRef PolyRef, curTile *Tile, curPoly *Poly,
		nextRef PolyRef, nextTile *Tile, nextPoly *Poly) float32
}

// DefaultQueryFilter includes every polygon flag and costs every area
// at 1.0, i.e. cost is proportional to Euclidean distance travelled.
type DefaultQueryFilter struct {
	areaCost     [MaxAreas]float32
	includeFlags uint16
	excludeFlags uint16
}

// NewDefaultQueryFilter returns a filter that accepts every flagged
// polygon (a polygon with Flags==0 is never visitable) and weighs every
// area equally.
func NewDefaultQueryFilter() *DefaultQueryFilter {
	f := &DefaultQueryFilter{includeFlags: 0xffff}
	for i := range f.areaCost {
		f.areaCost[i] = 1
	}
	return f
}

// SetAreaCost sets the traversal cost multiplier for area id i.
func (f *DefaultQueryFilter) SetAreaCost(i int32, cost float32) { f.areaCost[i] = cost }

// AreaCost returns the traversal cost multiplier for area id i.
func (f *DefaultQueryFilter) AreaCost(i int32) float32 { return f.areaCost[i] }

// SetIncludeFlags sets the flag set a polygon must intersect to be visitable.
func (f *DefaultQueryFilter) SetIncludeFlags(flags uint16) { f.includeFlags = flags }

// SetExcludeFlags sets the flag set that makes a polygon unvisitable.
func (f *DefaultQueryFilter) SetExcludeFlags(flags uint16) { f.excludeFlags = flags }

// PassFilter implements QueryFilter.
func (f *DefaultQueryFilter) PassFilter(ref PolyRef, tile *Tile, poly *Poly) bool {
	return (poly.Flags&f.includeFlags) != 0 && (poly.Flags&f.excludeFlags) == 0
}

// Cost implements QueryFilter.
func (f *DefaultQueryFilter) Cost(pa, pb d3.Vec3,
	prevRef PolyRef, prevTile *Tile, prevPoly *Poly,
	curRef PolyRef, curTile *Tile, curPoly *Poly,
	nextRef PolyRef, nextTile *Tile, nextPoly *Poly) float32 {
	return pa.Dist(pb) * f.areaCost[curPoly.Area()]
}
