package detailmesh

import "github.com/wayfarer-nav/navmesh/buildlog"

const evUndef int32 = -1
const evHull int32 = -2

func findEdge(edges []int32, nedges, s, t int32) int32 {
	for i := int32(0); i < nedges; i++ {
		e := edges[i*4:]
		if (e[0] == s && e[1] == t) || (e[0] == t && e[1] == s) {
			return i
		}
	}
	return evUndef
}

func addEdge(ctx *buildlog.Context, edges []int32, nedges *int32, maxEdges, s, t, l, r int32) int32 {
	if *nedges >= maxEdges {
		ctx.Errorf("too_many_edges", "delaunay hull: too many edges (%d/%d)", *nedges, maxEdges)
		return evUndef
	}
	if e := findEdge(edges, *nedges, s, t); e != evUndef {
		return evUndef
	}
	edge := edges[*nedges*4:]
	edge[0], edge[1], edge[2], edge[3] = s, t, l, r
	*nedges++
	return *nedges
}

func updateLeftFace(e []int32, s, t, f int32) {
	if e[0] == s && e[1] == t && e[2] == evUndef {
		e[2] = f
	} else if e[1] == s && e[0] == t && e[3] == evUndef {
		e[3] = f
	}
}

func overlapSegSeg2d(a, b, c, d []float32) bool {
	a1 := vcross2(a, b, d)
	a2 := vcross2(a, b, c)
	if a1*a2 < 0 {
		a3 := vcross2(c, d, a)
		a4 := a3 + a2 - a1
		if a3*a4 < 0 {
			return true
		}
	}
	return false
}

func overlapEdges(pts []float32, edges []int32, nedges, s1, t1 int32) bool {
	for i := int32(0); i < nedges; i++ {
		s0, t0 := edges[i*4+0], edges[i*4+1]
		if s0 == s1 || s0 == t1 || t0 == s1 || t0 == t1 {
			continue
		}
		if overlapSegSeg2d(pts[s0*3:], pts[t0*3:], pts[s1*3:], pts[t1*3:]) {
			return true
		}
	}
	return false
}

// completeFacet closes edges[e] with the best remaining point on its left
// side, choosing the point whose circumcircle with s,t is smallest
// (standard incremental Delaunay triangulation).
func completeFacet(ctx *buildlog.Context, pts []float32, npts int32, edges []int32, nedges *int32, maxEdges int32, nfaces *int32, e int32) {
	const eps float32 = 1e-5
	edge := edges[e*4:]

	var s, t int32
	switch {
	case edge[2] == evUndef:
		s, t = edge[0], edge[1]
	case edge[3] == evUndef:
		s, t = edge[1], edge[0]
	default:
		return
	}

	pt := npts
	var c [3]float32
	r := float32(-1)
	for u := int32(0); u < npts; u++ {
		if u == s || u == t {
			continue
		}
		if vcross2(pts[s*3:], pts[t*3:], pts[u*3:]) > eps {
			if r < 0 {
				pt = u
				r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c[:])
				continue
			}
			d := vdist2(c[:], pts[u*3:])
			const tol = 0.001
			if d > r*(1+tol) {
				continue
			} else if d < r*(1-tol) {
				pt = u
				r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c[:])
			} else {
				if overlapEdges(pts, edges, *nedges, s, u) {
					continue
				}
				if overlapEdges(pts, edges, *nedges, t, u) {
					continue
				}
				pt = u
				r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c[:])
			}
		}
	}

	if pt < npts {
		updateLeftFace(edges[e*4:], s, t, *nfaces)

		if e := findEdge(edges, *nedges, pt, s); e == evUndef {
			addEdge(ctx, edges, nedges, maxEdges, pt, s, *nfaces, evUndef)
		} else {
			updateLeftFace(edges[e*4:], pt, s, *nfaces)
		}
		if e := findEdge(edges, *nedges, t, pt); e == evUndef {
			addEdge(ctx, edges, nedges, maxEdges, t, pt, *nfaces, evUndef)
		} else {
			updateLeftFace(edges[e*4:], t, pt, *nfaces)
		}
		*nfaces++
	} else {
		updateLeftFace(edges[e*4:], s, t, evHull)
	}
}

// delaunayHull triangulates pts (npts of them, with the boundary loop
// given by hull) by seeding the hull edges then closing every open edge
// with completeFacet until the triangulation is complete.
func delaunayHull(ctx *buildlog.Context, npts int32, pts []float32, hull []int32, nhull int32) (tris []int32) {
	var nfaces, nedges int32
	maxEdges := npts * 10
	edges := make([]int32, maxEdges*4)

	for i, j := int32(0), nhull-1; i < nhull; j, i = i, i+1 {
		addEdge(ctx, edges, &nedges, maxEdges, hull[j], hull[i], evHull, evUndef)
	}

	for cur := int32(0); cur < nedges; cur++ {
		if edges[cur*4+2] == evUndef {
			completeFacet(ctx, pts, npts, edges, &nedges, maxEdges, &nfaces, cur)
		}
		if edges[cur*4+3] == evUndef {
			completeFacet(ctx, pts, npts, edges, &nedges, maxEdges, &nfaces, cur)
		}
	}

	tris = make([]int32, nfaces*4)
	for i := range tris {
		tris[i] = -1
	}
	for i := int32(0); i < nedges; i++ {
		e := edges[i*4:]
		if e[3] >= 0 {
			t := tris[e[3]*4:]
			switch {
			case t[0] == -1:
				t[0], t[1] = e[0], e[1]
			case t[0] == e[1]:
				t[2] = e[0]
			case t[1] == e[0]:
				t[2] = e[1]
			}
		}
		if e[2] >= 0 {
			t := tris[e[2]*4:]
			switch {
			case t[0] == -1:
				t[0], t[1] = e[1], e[0]
			case t[0] == e[0]:
				t[2] = e[1]
			case t[1] == e[1]:
				t[2] = e[0]
			}
		}
	}

	// Drop any face that never found all three vertices (can happen on
	// degenerate input); shrink the slice rather than leave holes.
	out := tris[:0]
	for i := 0; i < len(tris)/4; i++ {
		t := tris[i*4 : i*4+4]
		if t[0] == -1 || t[1] == -1 || t[2] == -1 {
			ctx.Warnf("dangling_face", "delaunay hull: dropping incomplete face %d", i)
			continue
		}
		out = append(out, t...)
	}
	return out
}

// triangulateHull fans a convex-ish hull out from its shortest-perimeter
// ear, then grows left or right by whichever choice keeps the new
// triangle's perimeter shorter. Used instead of delaunayHull when there
// are no interior points to triangulate around, since it produces better
// shaped triangles for long thin polygons.
func triangulateHull(verts []float32, hull []int32, nhull int32) []int32 {
	start, left, right := int32(0), int32(1), nhull-1

	dmin := float32(1e30)
	for i := int32(0); i < nhull; i++ {
		pi := prev32(i, nhull)
		ni := next32(i, nhull)
		pv := verts[hull[pi]*3:]
		cv := verts[hull[i]*3:]
		nv := verts[hull[ni]*3:]
		d := vdist2(pv, cv) + vdist2(cv, nv) + vdist2(nv, pv)
		if d < dmin {
			start, left, right = i, ni, pi
			dmin = d
		}
	}

	tris := []int32{hull[start], hull[left], hull[right], 0}
	for next32(left, nhull) != right {
		nleft := next32(left, nhull)
		nright := prev32(right, nhull)

		cvleft := verts[hull[left]*3:]
		nvleft := verts[hull[nleft]*3:]
		cvright := verts[hull[right]*3:]
		nvright := verts[hull[nright]*3:]
		dleft := vdist2(cvleft, nvleft) + vdist2(nvleft, cvright)
		dright := vdist2(cvright, nvright) + vdist2(cvleft, nvright)

		if dleft < dright {
			tris = append(tris, hull[left], hull[nleft], hull[right], 0)
			left = nleft
		} else {
			tris = append(tris, hull[left], hull[nright], hull[right], 0)
			right = nright
		}
	}
	return tris
}
