package navmesh

import (
	"fmt"

	"github.com/arl/gogeo/f32/d3"
	"github.com/arl/math32"
)

// maxPathPolys bounds how many polygons FindPath will return, guarding
// against runaway searches on a malformed or adversarial mesh.
const maxPathPolys = 2048

// FindNodePath runs an A* search over the polygon adjacency graph from
// startRef to endRef, returning the chain of polygon references
// visited (inclusive of both ends).
func (q *Query) FindNodePath(startRef, endRef PolyRef, startPos, endPos d3.Vec3, filter QueryFilter) ([]PolyRef, error) {
	if !q.nm.IsValidPolyRef(startRef) || !q.nm.IsValidPolyRef(endRef) {
		return nil, fmt.Errorf("navmesh: invalid start or end poly ref")
	}
	if startRef == endRef {
		return []PolyRef{startRef}, nil
	}

	q.nodePool.clear()
	q.openList.clear()

	startNode := q.nodePool.node(startRef)
	startNode.pos = startPos
	startNode.cost = 0
	startNode.total = startPos.Dist(endPos)
	startNode.flags = nodeOpen
	q.openList.push(startNode)

	var lastBestNode = startNode
	lastBestDist := startNode.total

	for !q.openList.empty() {
		best := q.openList.pop()
		best.flags &^= nodeOpen
		best.flags |= nodeClosed

		if best.ref == endRef {
			lastBestNode = best
			break
		}

		tile, poly, ok := q.nm.TileAndPolyByRef(best.ref)
		if !ok {
			continue
		}

		for li := poly.FirstLink; li != nullLink; li = tile.Links[li].Next {
			link := &tile.Links[li]
			neighbourRef := link.Ref
			if neighbourRef == 0 {
				continue
			}
			nTile, nPoly, ok := q.nm.TileAndPolyByRef(neighbourRef)
			if !ok || (filter != nil && !filter.PassFilter(neighbourRef, nTile, nPoly)) {
				continue
			}

			neighbourNode := q.nodePool.node(neighbourRef)
			if neighbourNode == nil {
				continue
			}
			if neighbourNode.flags == 0 {
				neighbourNode.pos = midPortalPoint(tile, poly, link)
			}

			var cost float32
			if filter != nil {
				cost = filter.Cost(best.pos, neighbourNode.pos, 0, nil, nil, best.ref, tile, poly, neighbourRef, nTile, nPoly)
			} else {
				cost = best.pos.Dist(neighbourNode.pos)
			}
			total := best.cost + cost

			if neighbourNode.flags&(nodeOpen|nodeClosed) != 0 && total >= neighbourNode.cost {
				continue
			}
			neighbourNode.parent = best
			neighbourNode.cost = total
			h := neighbourNode.pos.Dist(endPos)
			neighbourNode.total = total + h
			neighbourNode.flags &^= nodeClosed

			if h < lastBestDist {
				lastBestDist = h
				lastBestNode = neighbourNode
			}

			if neighbourNode.flags&nodeOpen != 0 {
				q.openList.modify(neighbourNode)
			} else {
				neighbourNode.flags |= nodeOpen
				q.openList.push(neighbourNode)
			}
		}
	}

	path := make([]PolyRef, 0, 64)
	for n := lastBestNode; n != nil; n = n.parent {
		path = append(path, n.ref)
		if len(path) > maxPathPolys {
			return nil, fmt.Errorf("navmesh: path exceeds %d polygons", maxPathPolys)
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func midPortalPoint(tile *Tile, poly *Poly, link *Link) d3.Vec3 {
	va := poly.Verts[link.Edge]
	vb := poly.Verts[(int(link.Edge)+1)%int(poly.VertCount)]
	a := d3.Vec3(tile.Verts[va*3 : va*3+3])
	b := d3.Vec3(tile.Verts[vb*3 : vb*3+3])
	return a.Lerp(b, 0.5)
}

// StraightPathFlag marks why a point is present in a straight path.
type StraightPathFlag uint8

const (
	StraightPathStart StraightPathFlag = 1 << iota
	StraightPathEnd
	StraightPathOffMeshConnection
)

// StraightPathPoint is one vertex of a taut path across a polygon corridor.
type StraightPathPoint struct {
	Pos   d3.Vec3
	Flags StraightPathFlag
	Ref   PolyRef
}

// FindStraightPath pulls a taut path through the polygon corridor
// returned by FindNodePath (the "simple stupid funnel" algorithm):
// instead of zig-zagging through polygon centers it hugs the inside of
// the corridor, only turning at the corners the corridor's portals
// actually force.
func (q *Query) FindStraightPath(startPos, endPos d3.Vec3, path []PolyRef) ([]StraightPathPoint, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("navmesh: empty polygon path")
	}

	closestStart, _ := q.closestPointOnPolyRef(path[0], startPos)
	closestEnd, _ := q.closestPointOnPolyRef(path[len(path)-1], endPos)

	out := []StraightPathPoint{{Pos: closestStart, Flags: StraightPathStart, Ref: path[0]}}
	if len(path) == 1 {
		out = append(out, StraightPathPoint{Pos: closestEnd, Flags: StraightPathEnd, Ref: path[0]})
		return out, nil
	}

	portalApex := closestStart
	portalLeft := closestStart
	portalRight := closestStart
	apexIndex, leftIndex, rightIndex := 0, 0, 0

	for i := 1; i < len(path); i++ {
		var left, right d3.Vec3
		var err error
		if i == len(path)-1 {
			left, right = closestEnd, closestEnd
		} else {
			left, right, err = q.portalPoints(path[i-1], path[i])
			if err != nil {
				continue
			}
		}

		if triArea2D(portalApex, portalRight, right) <= 0 {
			if portalApex.Approx(portalRight) || triArea2D(portalApex, portalLeft, right) > 0 {
				portalRight = right
				rightIndex = i
			} else {
				out = append(out, StraightPathPoint{Pos: portalLeft, Ref: path[leftIndex]})
				portalApex = portalLeft
				apexIndex = leftIndex
				portalLeft, portalRight = portalApex, portalApex
				leftIndex, rightIndex = apexIndex, apexIndex
				i = apexIndex
				continue
			}
		}

		if triArea2D(portalApex, portalLeft, left) >= 0 {
			if portalApex.Approx(portalLeft) || triArea2D(portalApex, portalRight, left) < 0 {
				portalLeft = left
				leftIndex = i
			} else {
				out = append(out, StraightPathPoint{Pos: portalRight, Ref: path[rightIndex]})
				portalApex = portalRight
				apexIndex = rightIndex
				portalLeft, portalRight = portalApex, portalApex
				leftIndex, rightIndex = apexIndex, apexIndex
				i = apexIndex
				continue
			}
		}
	}

	out = append(out, StraightPathPoint{Pos: closestEnd, Flags: StraightPathEnd, Ref: path[len(path)-1]})
	return out, nil
}

func (q *Query) closestPointOnPolyRef(ref PolyRef, pt d3.Vec3) (d3.Vec3, bool) {
	tile, poly, ok := q.nm.TileAndPolyByRef(ref)
	if !ok {
		return pt, false
	}
	return closestPointOnPoly(tile, poly, pt)
}

// portalPoints returns the shared edge endpoints between two adjacent
// polygons, in a fixed left/right order (the edge as wound in `from`).
func (q *Query) portalPoints(from, to PolyRef) (left, right d3.Vec3, err error) {
	tile, poly, ok := q.nm.TileAndPolyByRef(from)
	if !ok {
		return left, right, fmt.Errorf("navmesh: invalid ref in corridor")
	}
	for li := poly.FirstLink; li != nullLink; li = tile.Links[li].Next {
		link := &tile.Links[li]
		if link.Ref != to {
			continue
		}
		va := poly.Verts[link.Edge]
		vb := poly.Verts[(int(link.Edge)+1)%int(poly.VertCount)]
		right = d3.Vec3(tile.Verts[va*3 : va*3+3])
		left = d3.Vec3(tile.Verts[vb*3 : vb*3+3])
		return left, right, nil
	}
	return left, right, fmt.Errorf("navmesh: %v and %v are not adjacent", from, to)
}

func triArea2D(a, b, c d3.Vec3) float32 {
	abx, abz := b[0]-a[0], b[2]-a[2]
	acx, acz := c[0]-a[0], c[2]-a[2]
	return acx*abz - abx*acz
}

// FindPath composes FindNodePath and FindStraightPath into a single
// world-space route, the convenience entry point most callers want.
func (q *Query) FindPath(startPos, endPos d3.Vec3, filter QueryFilter) ([]StraightPathPoint, error) {
	startRef, startPt, err := q.FindNearestPoly(startPos, d3.Vec3{2, 4, 2}, filter)
	if err != nil {
		return nil, fmt.Errorf("navmesh: start point unreachable: %w", err)
	}
	endRef, endPt, err := q.FindNearestPoly(endPos, d3.Vec3{2, 4, 2}, filter)
	if err != nil {
		return nil, fmt.Errorf("navmesh: end point unreachable: %w", err)
	}
	polys, err := q.FindNodePath(startRef, endRef, startPt, endPt, filter)
	if err != nil {
		return nil, err
	}
	return q.FindStraightPath(startPt, endPt, polys)
}

// Raycast walks the polygon corridor in a straight line from startRef
// toward endPos, stopping at the first polygon boundary the filter
// refuses to cross. hit reports whether a wall was hit before endPos;
// when it did, t is the fraction of the segment travelled and hitNormal
// is the normal of the edge hit.
func (q *Query) Raycast(startRef PolyRef, startPos, endPos d3.Vec3, filter QueryFilter) (hit bool, t float32, hitNormal d3.Vec3, path []PolyRef, err error) {
	if !q.nm.IsValidPolyRef(startRef) {
		return false, 0, nil, nil, fmt.Errorf("navmesh: invalid start ref")
	}
	curRef := startRef
	curPos := startPos
	t = 0
	for iter := 0; iter < maxPathPolys; iter++ {
		tile, poly, ok := q.nm.TileAndPolyByRef(curRef)
		if !ok {
			break
		}
		path = append(path, curRef)

		nv := int32(poly.VertCount)
		verts := make([]float32, nv*3)
		for i := int32(0); i < nv; i++ {
			v := poly.Verts[i]
			copy(verts[i*3:i*3+3], tile.Verts[v*3:v*3+3])
		}

		tmin, tmax, segMin, _, res := intersectSegmentPoly2D(curPos, endPos, verts, nv)
		if !res {
			// The segment does not cross this polygon's footprint: stop
			// here and report a hit at the fraction travelled so far.
			return true, t, hitNormal, path, nil
		}
		if tmax > 1 {
			tmax = 1
		}

		if segMin == -1 {
			// endPos is inside this polygon's footprint; no wall hit.
			return false, 1, hitNormal, path, nil
		}

		va := verts[segMin*3 : segMin*3+3]
		vbIdx := (segMin + 1) % nv
		vb := verts[vbIdx*3 : vbIdx*3+3]
		var nextRef PolyRef
		for li := poly.FirstLink; li != nullLink; li = tile.Links[li].Next {
			link := &tile.Links[li]
			if int32(link.Edge) == segMin {
				nTile, nPoly, ok := q.nm.TileAndPolyByRef(link.Ref)
				if ok && (filter == nil || filter.PassFilter(link.Ref, nTile, nPoly)) {
					nextRef = link.Ref
				}
				break
			}
		}

		if nextRef == 0 {
			hitNormal = d3.Vec3{vb[2] - va[2], 0, -(vb[0] - va[0])}
			hitNormal.Normalize()
			return true, tmax, hitNormal, path, nil
		}

		t = tmax
		curRef = nextRef
	}
	return false, t, hitNormal, path, nil
}

func intersectSegmentPoly2D(p0, p1 d3.Vec3, verts []float32, nv int32) (tmin, tmax float32, segMin, segMax int32, res bool) {
	const eps = 1e-7
	tmin, tmax = 0, 1
	segMin, segMax = -1, -1
	dirx, dirz := p1[0]-p0[0], p1[2]-p0[2]

	j := nv - 1
	for i := int32(0); i < nv; i++ {
		edgex := verts[i*3+0] - verts[j*3+0]
		edgez := verts[i*3+2] - verts[j*3+2]
		diffx := p0[0] - verts[j*3+0]
		diffz := p0[2] - verts[j*3+2]
		n := edgex*diffz - edgez*diffx
		d := dirx*edgez - dirz*edgex
		if math32.Abs(d) < eps {
			if n < 0 {
				return 0, 0, -1, -1, false
			}
			j = i
			continue
		}
		t := n / d
		if d < 0 {
			if t > tmin {
				tmin = t
				segMin = j
				if tmin > tmax {
					return 0, 0, -1, -1, false
				}
			}
		} else {
			if t < tmax {
				tmax = t
				segMax = j
				if tmax < tmin {
					return 0, 0, -1, -1, false
				}
			}
		}
		j = i
	}
	return tmin, tmax, segMin, segMax, true
}

// MoveAlongSurface slides a point from startPos toward endPos while
// staying on the mesh surface, crossing polygon boundaries as needed,
// and returns where it ended up along with the sequence of polygons
// crossed. Unlike Raycast it never reports a "hit"; it clamps to the
// nearest navigable point when the target is outside the mesh.
func (q *Query) MoveAlongSurface(startRef PolyRef, startPos, endPos d3.Vec3, filter QueryFilter) (d3.Vec3, []PolyRef, error) {
	if !q.nm.IsValidPolyRef(startRef) {
		return nil, nil, fmt.Errorf("navmesh: invalid start ref")
	}

	visited := []PolyRef{startRef}
	bestPos := startPos
	bestDist := startPos.Dist2DSqr(endPos)
	curRef := startRef

	for iter := 0; iter < 64; iter++ {
		tile, poly, ok := q.nm.TileAndPolyByRef(curRef)
		if !ok {
			break
		}
		nv := int32(poly.VertCount)
		verts := make([]float32, nv*3)
		for i := int32(0); i < nv; i++ {
			v := poly.Verts[i]
			copy(verts[i*3:i*3+3], tile.Verts[v*3:v*3+3])
		}

		if pointInPoly2D(endPos, verts, nv) {
			h := getPolyHeightApprox(tile, poly, endPos)
			return d3.Vec3{endPos[0], h, endPos[2]}, visited, nil
		}

		// Find the edge closest to the direction of travel and step
		// across it if the filter allows, otherwise clamp to that edge.
		var bestEdge int32 = -1
		var bestEdgeDist float32 = math32.MaxFloat32
		var bestCP d3.Vec3
		j := nv - 1
		for i := int32(0); i < nv; i++ {
			cp, d := closestPtSeg2D(endPos, verts[j*3:j*3+3], verts[i*3:i*3+3])
			if d < bestEdgeDist {
				bestEdgeDist, bestEdge, bestCP = d, j, cp
			}
			j = i
		}

		var nextRef PolyRef
		for li := poly.FirstLink; li != nullLink; li = tile.Links[li].Next {
			link := &tile.Links[li]
			if int32(link.Edge) == bestEdge {
				nTile, nPoly, ok := q.nm.TileAndPolyByRef(link.Ref)
				if ok && (filter == nil || filter.PassFilter(link.Ref, nTile, nPoly)) {
					nextRef = link.Ref
				}
				break
			}
		}

		h := getPolyHeightApprox(tile, poly, bestCP)
		cand := d3.Vec3{bestCP[0], h, bestCP[2]}
		if d := cand.Dist2DSqr(endPos); d < bestDist {
			bestDist, bestPos = d, cand
		}

		if nextRef == 0 || nextRef == curRef {
			break
		}
		curRef = nextRef
		visited = append(visited, curRef)
	}

	return bestPos, visited, nil
}
