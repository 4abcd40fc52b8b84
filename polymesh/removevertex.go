package polymesh

import (
	"fmt"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/contour"
)

// canRemoveVertex refuses to remove rem if doing so would leave too few
// boundary edges to form a polygon, or if the vertex is shared by two
// polygons that aren't otherwise adjacent (removing it would tear the
// mesh open rather than just shrink it).
func canRemoveVertex(mesh *Mesh, rem uint16) bool {
	nvp := mesh.Nvp
	var numRemovedVerts, numTouchedVerts, numRemainingEdges int32

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.poly(i)
		nv := countPolyVerts(p, nvp)
		var removed, verts int32
		for j := int32(0); j < nv; j++ {
			if p[j] == rem {
				numTouchedVerts++
				removed++
			}
			verts++
		}
		if removed != 0 {
			numRemovedVerts += removed
			numRemainingEdges += verts - (removed + 1)
		}
	}
	if numRemainingEdges <= 2 {
		return false
	}

	maxEdges := numTouchedVerts * 2
	type edge struct{ a, b, count int32 }
	edges := make([]edge, 0, maxEdges)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.poly(i)
		nv := countPolyVerts(p, nvp)
		for j, k := int32(0), nv-1; j < nv; k, j = j, j+1 {
			if p[j] == rem || p[k] == rem {
				a, b := p[j], p[k]
				if b == rem {
					a, b = b, a
				}
				found := false
				for m := range edges {
					if edges[m].b == int32(b) {
						edges[m].count++
						found = true
					}
				}
				if !found {
					edges = append(edges, edge{a: int32(a), b: int32(b), count: 1})
				}
			}
		}
	}

	var numOpen int32
	for _, e := range edges {
		if e.count < 2 {
			numOpen++
		}
	}
	return numOpen <= 2
}

// removeVertex deletes rem from the mesh, retriangulates the hole its
// surrounding polygons leave behind, and re-merges the hole's triangles
// back into convex polygons under the same maxTris budget.
func removeVertex(ctx *buildlog.Context, mesh *Mesh, rem uint16, maxTris int32) error {
	nvp := mesh.Nvp

	type edge struct {
		a, b   int32
		reg    uint16
		area   uint8
	}
	var edges []edge

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.poly(i)
		nv := countPolyVerts(p, nvp)
		hasRem := false
		for j := int32(0); j < nv; j++ {
			if p[j] == rem {
				hasRem = true
			}
		}
		if !hasRem {
			continue
		}
		for j, k := int32(0), nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				edges = append(edges, edge{a: int32(p[k]), b: int32(p[j]), reg: mesh.Regions[i], area: mesh.Areas[i]})
			}
		}

		last := mesh.poly(mesh.NPolys - 1)
		if i != mesh.NPolys-1 {
			copy(p[:nvp*2], last[:nvp*2])
			mesh.Regions[i] = mesh.Regions[mesh.NPolys-1]
			mesh.Areas[i] = mesh.Areas[mesh.NPolys-1]
		}
		mesh.NPolys--
		i--
	}

	// Remove vertex, shift everything after it down by one slot.
	for i := int32(rem); i < mesh.NVerts-1; i++ {
		mesh.Verts[i*3+0] = mesh.Verts[(i+1)*3+0]
		mesh.Verts[i*3+1] = mesh.Verts[(i+1)*3+1]
		mesh.Verts[i*3+2] = mesh.Verts[(i+1)*3+2]
	}
	mesh.NVerts--

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.poly(i)
		nv := countPolyVerts(p, nvp)
		for j := int32(0); j < nv; j++ {
			if p[j] > rem {
				p[j]--
			}
		}
	}
	for i := range edges {
		if edges[i].a > int32(rem) {
			edges[i].a--
		}
		if edges[i].b > int32(rem) {
			edges[i].b--
		}
	}

	if len(edges) == 0 {
		return nil
	}

	// Stitch the loose edges left around the hole into an ordered loop.
	var hole []int32
	var hreg []uint16
	var harea []uint8
	hole = append(hole, edges[0].a)
	hreg = append(hreg, edges[0].reg)
	harea = append(harea, edges[0].area)
	edges = edges[1:]

	for len(edges) > 0 {
		matched := false
		for i := 0; i < len(edges); i++ {
			e := edges[i]
			if hole[0] == e.b {
				hole = append([]int32{e.a}, hole...)
				hreg = append([]uint16{e.reg}, hreg...)
				harea = append([]uint8{e.area}, harea...)
				matched = true
			} else if hole[len(hole)-1] == e.a {
				hole = append(hole, e.b)
				hreg = append(hreg, e.reg)
				harea = append(harea, e.area)
				matched = true
			} else {
				continue
			}
			edges = append(edges[:i], edges[i+1:]...)
			i--
		}
		if !matched {
			break
		}
	}

	nhole := int32(len(hole))
	tverts := make([]contour.Vertex, nhole)
	indices := make([]int32, nhole)
	for i, pi := range hole {
		tverts[i] = contour.Vertex{
			X: int32(mesh.Verts[pi*3+0]),
			Y: int32(mesh.Verts[pi*3+1]),
			Z: int32(mesh.Verts[pi*3+2]),
		}
		indices[i] = int32(i)
	}
	tris := make([]int32, nhole*3)
	ntris := triangulate(tverts, indices, tris)
	if ntris < 0 {
		ntris = -ntris
		ctx.Warnf("bad_triangulation", "removeVertex: triangulation produced degenerate output")
	}

	polys := make([]uint16, (ntris+1)*nvp)
	pregs := make([]uint16, ntris)
	pareas := make([]uint8, ntris)
	tmpPoly := polys[ntris*nvp:]
	for i := range polys[:ntris*nvp] {
		polys[i] = nullIdx
	}

	var npolys int32
	for j := int32(0); j < ntris; j++ {
		a, b, c := tris[j*3], tris[j*3+1], tris[j*3+2]
		if a != b && a != c && b != c {
			polys[npolys*nvp+0] = uint16(hole[a])
			polys[npolys*nvp+1] = uint16(hole[b])
			polys[npolys*nvp+2] = uint16(hole[c])
			if hreg[a] != hreg[b] || hreg[b] != hreg[c] {
				pregs[npolys] = multipleRegions
			} else {
				pregs[npolys] = hreg[a]
			}
			pareas[npolys] = harea[a]
			npolys++
		}
	}
	if npolys == 0 {
		return nil
	}

	if nvp > 3 {
		for {
			bestVal := int32(0)
			bestA, bestB, bestEa, bestEb := int32(0), int32(0), int32(0), int32(0)
			for j := int32(0); j < npolys-1; j++ {
				pj := polys[j*nvp:]
				for k := j + 1; k < npolys; k++ {
					pk := polys[k*nvp:]
					v, ea, eb := getPolyMergeValue(pj, pk, mesh.Verts, nvp)
					if v > bestVal {
						bestVal, bestA, bestB, bestEa, bestEb = v, j, k, ea, eb
					}
				}
			}
			if bestVal == 0 {
				break
			}
			pa := polys[bestA*nvp:]
			pb := polys[bestB*nvp:]
			mergePolyVerts(pa, pb, bestEa, bestEb, nvp, tmpPoly)
			if pregs[bestA] != pregs[bestB] {
				pregs[bestA] = multipleRegions
			}
			last := polys[(npolys-1)*nvp:]
			copy(pb[:nvp], last[:nvp])
			pregs[bestB] = pregs[npolys-1]
			pareas[bestB] = pareas[npolys-1]
			npolys--
		}
	}

	for i := int32(0); i < npolys; i++ {
		if mesh.NPolys >= maxTris {
			break
		}
		p := mesh.poly(mesh.NPolys)
		for idx := int32(0); idx < nvp; idx++ {
			p[idx] = nullIdx
		}
		copy(p[:nvp], polys[i*nvp:i*nvp+nvp])
		mesh.Regions[mesh.NPolys] = pregs[i]
		mesh.Areas[mesh.NPolys] = pareas[i]
		mesh.NPolys++
		if mesh.NPolys > maxTris {
			return fmt.Errorf("polymesh: too many polygons %d (max %d)", mesh.NPolys, maxTris)
		}
	}
	return nil
}
