package navmesh

import (
	"fmt"

	"github.com/arl/gogeo/f32/d3"
	"github.com/arl/math32"
	"github.com/dhconnelly/rtreego"
)

// Query answers runtime questions against a fixed NavMesh: nearest
// polygon, shortest path, straight-line path, raycast, and random
// point sampling. It owns its own search scratch state so multiple
// Querys can run concurrently over the same read-only NavMesh.
type Query struct {
	nm       *NavMesh
	nodePool *nodePool
	openList *nodeQueue
	index    *rtreego.Rtree // all ground polygons, for QueryPolygons
}

// rtreePoly is the rtreego.Spatial wrapper around a polygon reference,
// used to answer QueryPolygons without a linear scan of every tile.
type rtreePoly struct {
	ref    PolyRef
	bounds *rtreego.Rect
}

func (r *rtreePoly) Bounds() *rtreego.Rect { return r.bounds }

// NewQuery builds a Query over nm, indexing every currently-present
// tile's polygons into an R-tree for QueryPolygons. Tiles added to nm
// after NewQuery returns are not visible to this Query; build a new
// one after mutating the mesh.
func NewQuery(nm *NavMesh, maxSearchNodes int32) (*Query, error) {
	if maxSearchNodes <= 0 {
		maxSearchNodes = 2048
	}
	q := &Query{
		nm:       nm,
		nodePool: newNodePool(maxSearchNodes, nextPow2(uint32(maxSearchNodes/4+1))),
		openList: newNodeQueue(maxSearchNodes),
		index:    rtreego.NewTree(3, 25, 50),
	}
	for i := range nm.tiles {
		t := &nm.tiles[i]
		if t.Header == nil {
			continue
		}
		for pi := range t.Polys {
			poly := &t.Polys[pi]
			bmin, bmax, ok := polyBounds(t, poly)
			if !ok {
				continue
			}
			rect, err := rtreego.NewRect(rtreego.Point{float64(bmin[0]), float64(bmin[1]), float64(bmin[2])},
				[]float64{float64(bmax[0] - bmin[0]), float64(bmax[1] - bmin[1]), float64(bmax[2] - bmin[2])})
			if err != nil {
				continue // degenerate (zero-extent) box; skip indexing, still queryable by ref
			}
			ref := nm.encodePolyID(t.Salt, t.index, uint16(pi))
			q.index.Insert(&rtreePoly{ref: ref, bounds: rect})
		}
	}
	return q, nil
}

func polyBounds(t *Tile, poly *Poly) (bmin, bmax [3]float32, ok bool) {
	if poly.VertCount == 0 {
		return
	}
	bmin = [3]float32{t.Verts[poly.Verts[0]*3+0], t.Verts[poly.Verts[0]*3+1], t.Verts[poly.Verts[0]*3+2]}
	bmax = bmin
	for j := uint8(1); j < poly.VertCount; j++ {
		v := poly.Verts[j]
		for a := 0; a < 3; a++ {
			c := t.Verts[int(v)*3+a]
			if c < bmin[a] {
				bmin[a] = c
			}
			if c > bmax[a] {
				bmax[a] = c
			}
		}
	}
	const pad = 1e-3
	for a := 0; a < 3; a++ {
		bmax[a] += pad
	}
	return bmin, bmax, true
}

// QueryPolygons returns every polygon reference whose bounds overlap
// the given AABB.
func (q *Query) QueryPolygons(bmin, bmax d3.Vec3) []PolyRef {
	rect, err := rtreego.NewRect(
		rtreego.Point{float64(bmin[0]), float64(bmin[1]), float64(bmin[2])},
		[]float64{float64(bmax[0] - bmin[0]), float64(bmax[1] - bmin[1]), float64(bmax[2] - bmin[2])})
	if err != nil {
		return nil
	}
	hits := q.index.SearchIntersect(rect)
	out := make([]PolyRef, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*rtreePoly).ref)
	}
	return out
}

// FindNearestPoly returns the polygon ref closest to center (within
// halfExtents of it) and the closest point on that polygon's surface.
func (q *Query) FindNearestPoly(center d3.Vec3, halfExtents d3.Vec3, filter QueryFilter) (PolyRef, d3.Vec3, error) {
	bmin := d3.Vec3{center[0] - halfExtents[0], center[1] - halfExtents[1], center[2] - halfExtents[2]}
	bmax := d3.Vec3{center[0] + halfExtents[0], center[1] + halfExtents[1], center[2] + halfExtents[2]}

	best := PolyRef(0)
	var bestPt d3.Vec3
	bestDist := math32.MaxFloat32
	for _, ref := range q.QueryPolygons(bmin, bmax) {
		tile, poly, ok := q.nm.TileAndPolyByRef(ref)
		if !ok || (filter != nil && !filter.PassFilter(ref, tile, poly)) {
			continue
		}
		pt, _ := q.closestPointOnPoly(tile, poly, center)
		d := pt.DistSqr(center)
		if d < bestDist {
			bestDist, best, bestPt = d, ref, pt
		}
	}
	if best == 0 {
		return 0, nil, fmt.Errorf("navmesh: no polygon found near %v", center)
	}
	return best, bestPt, nil
}

func (nm *NavMesh) findNearestPolyInTile(t *Tile, center []float32, halfExtents [3]float32) (PolyRef, d3.Vec3, bool) {
	best := PolyRef(0)
	var bestPt d3.Vec3
	bestDist := math32.MaxFloat32
	c := d3.Vec3(center)
	for i := range t.Polys {
		poly := &t.Polys[i]
		if poly.Type() == PolyTypeOffMeshConnection {
			continue
		}
		pt, ok := closestPointOnPoly(t, poly, c)
		if !ok {
			continue
		}
		d := pt.DistSqr(c)
		if d < bestDist {
			bestDist = d
			best = nm.encodePolyID(t.Salt, t.index, uint16(i))
			bestPt = pt
		}
	}
	if best == 0 {
		return 0, nil, false
	}
	return best, bestPt, true
}

// closestPointOnPoly projects pt onto poly's detail-mesh surface if it
// falls inside the polygon's 2D footprint, height-interpolated from the
// detail triangles; otherwise it returns the closest point on the
// polygon's boundary edges.
func (q *Query) closestPointOnPoly(tile *Tile, poly *Poly, pt d3.Vec3) (d3.Vec3, bool) {
	return closestPointOnPoly(tile, poly, pt)
}

func closestPointOnPoly(tile *Tile, poly *Poly, pt d3.Vec3) (d3.Vec3, bool) {
	nv := int32(poly.VertCount)
	verts := make([]float32, nv*3)
	for i := int32(0); i < nv; i++ {
		v := poly.Verts[i]
		copy(verts[i*3:i*3+3], tile.Verts[v*3:v*3+3])
	}

	inside := pointInPoly2D(pt, verts, nv)
	if !inside {
		closest := closestPointOnPolyBoundary(pt, verts, nv)
		closest[1] = getPolyHeightApprox(tile, poly, closest)
		return closest, false
	}
	h := getPolyHeightApprox(tile, poly, pt)
	return d3.Vec3{pt[0], h, pt[2]}, true
}

func pointInPoly2D(pt d3.Vec3, verts []float32, nv int32) bool {
	c := false
	j := nv - 1
	for i := int32(0); i < nv; i++ {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if ((vi[2] > pt[2]) != (vj[2] > pt[2])) &&
			(pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0]) {
			c = !c
		}
		j = i
	}
	return c
}

func closestPointOnPolyBoundary(pt d3.Vec3, verts []float32, nv int32) d3.Vec3 {
	dmin := math32.MaxFloat32
	var best d3.Vec3
	j := nv - 1
	for i := int32(0); i < nv; i++ {
		vi := verts[i*3 : i*3+3]
		vj := verts[j*3 : j*3+3]
		cp, d := closestPtSeg2D(pt, vj, vi)
		if d < dmin {
			dmin, best = d, cp
		}
		j = i
	}
	return best
}

func closestPtSeg2D(pt d3.Vec3, p, q []float32) (d3.Vec3, float32) {
	pqx, pqz := q[0]-p[0], q[2]-p[2]
	dx, dz := pt[0]-p[0], pt[2]-p[2]
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cz := p[0]+t*pqx, p[2]+t*pqz
	ddx, ddz := pt[0]-cx, pt[2]-cz
	return d3.Vec3{cx, 0, cz}, ddx*ddx + ddz*ddz
}

// getPolyHeightApprox interpolates the polygon's detail mesh height at
// (pt.X,pt.Z), falling back to the average of the polygon's own
// vertices if pt falls outside every detail triangle (can happen right
// at a boundary due to float rounding).
func getPolyHeightApprox(tile *Tile, poly *Poly, pt d3.Vec3) float32 {
	polyIdx := -1
	for i := range tile.Polys {
		if &tile.Polys[i] == poly {
			polyIdx = i
			break
		}
	}
	if polyIdx >= 0 && polyIdx < len(tile.DetailMeshes) {
		dm := &tile.DetailMeshes[polyIdx]
		for i := uint8(0); i < dm.TriCount; i++ {
			t := tile.DetailTris[(int(dm.TriBase)+int(i))*4:]
			va := detailVertex(tile, poly, dm, t[0])
			vb := detailVertex(tile, poly, dm, t[1])
			vc := detailVertex(tile, poly, dm, t[2])
			if h, ok := triHeight(pt, va, vb, vc); ok {
				return h
			}
		}
	}
	var sum float32
	for j := uint8(0); j < poly.VertCount; j++ {
		sum += tile.Verts[poly.Verts[j]*3+1]
	}
	if poly.VertCount == 0 {
		return pt[1]
	}
	return sum / float32(poly.VertCount)
}

func detailVertex(tile *Tile, poly *Poly, dm *PolyDetail, idx uint8) d3.Vec3 {
	if int(idx) < int(poly.VertCount) {
		v := poly.Verts[idx]
		return d3.Vec3(tile.Verts[v*3 : v*3+3])
	}
	base := int(dm.VertBase) + int(idx) - int(poly.VertCount)
	return d3.Vec3(tile.DetailVerts[base*3 : base*3+3])
}

func triHeight(p, a, b, c d3.Vec3) (float32, bool) {
	v0x, v0z := c[0]-a[0], c[2]-a[2]
	v1x, v1z := b[0]-a[0], b[2]-a[2]
	v2x, v2z := p[0]-a[0], p[2]-a[2]
	dot00 := v0x*v0x + v0z*v0z
	dot01 := v0x*v1x + v0z*v1z
	dot02 := v0x*v2x + v0z*v2z
	dot11 := v1x*v1x + v1z*v1z
	dot12 := v1x*v2x + v1z*v2z
	denom := dot00*dot11 - dot01*dot01
	if math32.Abs(denom) < 1e-12 {
		return 0, false
	}
	inv := 1 / denom
	u := (dot11*dot02 - dot01*dot12) * inv
	v := (dot00*dot12 - dot01*dot02) * inv
	const eps = 1e-4
	if u >= -eps && v >= -eps && u+v <= 1+eps {
		return a[1] + (c[1]-a[1])*u + (b[1]-a[1])*v, true
	}
	return 0, false
}
