package navmesh

import (
	"fmt"

	"github.com/arl/gogeo/f32/d3"
	"github.com/arl/math32"
)

// Rand01 is a caller-supplied source of uniform [0,1) samples; nothing
// here seeds or owns an RNG, so tests and callers can make the sampling
// deterministic by passing a seeded source.
type Rand01 func() float32

// FindRandomPoint picks a uniformly-random point on the whole mesh,
// weighted by polygon area so a single tiny sliver polygon isn't as
// likely to be picked as a large open polygon.
func (q *Query) FindRandomPoint(filter QueryFilter, rnd Rand01) (PolyRef, d3.Vec3, error) {
	type candidate struct {
		ref  PolyRef
		tile *Tile
		poly *Poly
		area float32
	}
	var cands []candidate
	var total float32

	for i := range q.nm.tiles {
		t := &q.nm.tiles[i]
		if t.Header == nil {
			continue
		}
		for pi := range t.Polys {
			poly := &t.Polys[pi]
			if poly.Type() == PolyTypeOffMeshConnection {
				continue
			}
			ref := q.nm.encodePolyID(t.Salt, t.index, uint16(pi))
			if filter != nil && !filter.PassFilter(ref, t, poly) {
				continue
			}
			area := polyArea2D(t, poly)
			total += area
			cands = append(cands, candidate{ref, t, poly, area})
		}
	}
	if len(cands) == 0 {
		return 0, nil, fmt.Errorf("navmesh: no polygon passes filter")
	}

	target := rnd() * total
	var acc float32
	chosen := cands[len(cands)-1]
	for _, c := range cands {
		acc += c.area
		if target <= acc {
			chosen = c
			break
		}
	}

	pt := randomPointInPoly(chosen.tile, chosen.poly, rnd)
	return chosen.ref, pt, nil
}

// FindRandomPointAroundCircle picks a uniformly-random point reachable
// from startRef within maxRadius, walking the polygon graph outward
// (reservoir-sampling the frontier by area) rather than sampling the
// whole mesh and rejecting points outside the circle.
func (q *Query) FindRandomPointAroundCircle(startRef PolyRef, centerPos d3.Vec3, maxRadius float32, filter QueryFilter, rnd Rand01) (PolyRef, d3.Vec3, error) {
	if !q.nm.IsValidPolyRef(startRef) {
		return 0, nil, fmt.Errorf("navmesh: invalid start ref")
	}

	visited := map[PolyRef]bool{startRef: true}
	stack := []PolyRef{startRef}

	var areaSum float32
	var bestRef PolyRef
	var bestTile *Tile
	var bestPoly *Poly
	radiusSqr := maxRadius * maxRadius

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		tile, poly, ok := q.nm.TileAndPolyByRef(ref)
		if !ok || (filter != nil && !filter.PassFilter(ref, tile, poly)) {
			continue
		}

		area := polyArea2D(tile, poly)
		areaSum += area
		if rnd()*areaSum <= area {
			bestRef, bestTile, bestPoly = ref, tile, poly
		}

		for li := poly.FirstLink; li != nullLink; li = tile.Links[li].Next {
			link := &tile.Links[li]
			if visited[link.Ref] {
				continue
			}
			nTile, nPoly, ok := q.nm.TileAndPolyByRef(link.Ref)
			if !ok {
				continue
			}
			closest, _ := closestPointOnPoly(nTile, nPoly, centerPos)
			if closest.Dist2DSqr(centerPos) > radiusSqr {
				continue
			}
			visited[link.Ref] = true
			stack = append(stack, link.Ref)
		}
	}

	if bestRef == 0 {
		return 0, nil, fmt.Errorf("navmesh: no reachable polygon within radius")
	}
	pt := randomPointInPoly(bestTile, bestPoly, rnd)
	return bestRef, pt, nil
}

func polyArea2D(tile *Tile, poly *Poly) float32 {
	if poly.VertCount < 3 {
		return 0
	}
	var area float32
	v0 := poly.Verts[0]
	for i := 1; i < int(poly.VertCount)-1; i++ {
		v1, v2 := poly.Verts[i], poly.Verts[i+1]
		a := d3.Vec3(tile.Verts[v0*3 : v0*3+3])
		b := d3.Vec3(tile.Verts[v1*3 : v1*3+3])
		c := d3.Vec3(tile.Verts[v2*3 : v2*3+3])
		area += triArea2D(a, b, c)
	}
	if area < 0 {
		area = -area
	}
	return area * 0.5
}

// randomPointInPoly samples uniformly inside poly by fan-triangulating
// from vertex 0, picking a triangle weighted by its area, then sampling
// a uniform point in that triangle via the standard sqrt-based mapping.
func randomPointInPoly(tile *Tile, poly *Poly, rnd Rand01) d3.Vec3 {
	if poly.VertCount < 3 {
		v := poly.Verts[0]
		return d3.Vec3(tile.Verts[v*3 : v*3+3])
	}
	nt := int(poly.VertCount) - 2
	areas := make([]float32, nt)
	var total float32
	v0 := poly.Verts[0]
	a := d3.Vec3(tile.Verts[v0*3 : v0*3+3])
	for i := 0; i < nt; i++ {
		v1, v2 := poly.Verts[i+1], poly.Verts[i+2]
		b := d3.Vec3(tile.Verts[v1*3 : v1*3+3])
		c := d3.Vec3(tile.Verts[v2*3 : v2*3+3])
		ar := triArea2D(a, b, c)
		if ar < 0 {
			ar = -ar
		}
		areas[i] = ar
		total += ar
	}

	target := rnd() * total
	var acc float32
	chosen := nt - 1
	for i, ar := range areas {
		acc += ar
		if target <= acc {
			chosen = i
			break
		}
	}

	v1, v2 := poly.Verts[chosen+1], poly.Verts[chosen+2]
	b := d3.Vec3(tile.Verts[v1*3 : v1*3+3])
	c := d3.Vec3(tile.Verts[v2*3 : v2*3+3])

	s, t := rnd(), rnd()
	sq := math32.Sqrt(s)
	u := 1 - sq
	v := t * sq
	w := 1 - u - v
	return d3.Vec3{
		u*a[0] + v*b[0] + w*c[0],
		u*a[1] + v*b[1] + w*c[1],
		u*a[2] + v*b[2] + w*c[2],
	}
}
