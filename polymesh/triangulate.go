package polymesh

import "github.com/wayfarer-nav/navmesh/contour"

func area2(a, b, c contour.Vertex) int32 {
	return (b.X-a.X)*(c.Z-a.Z) - (c.X-a.X)*(b.Z-a.Z)
}
func left(a, b, c contour.Vertex) bool     { return area2(a, b, c) < 0 }
func leftOn(a, b, c contour.Vertex) bool   { return area2(a, b, c) <= 0 }
func collinear(a, b, c contour.Vertex) bool { return area2(a, b, c) == 0 }

func between(a, b, c contour.Vertex) bool {
	if !collinear(a, b, c) {
		return false
	}
	if a.X != b.X {
		return (a.X <= c.X && c.X <= b.X) || (a.X >= c.X && c.X >= b.X)
	}
	return (a.Z <= c.Z && c.Z <= b.Z) || (a.Z >= c.Z && c.Z >= b.Z)
}

func vequal(a, b contour.Vertex) bool { return a.X == b.X && a.Z == b.Z }

func intersectProp(a, b, c, d contour.Vertex) bool {
	if collinear(a, b, c) || collinear(a, b, d) || collinear(c, d, a) || collinear(c, d, b) {
		return false
	}
	return (left(a, b, c) != left(a, b, d)) && (left(c, d, a) != left(c, d, b))
}

func segIntersect(a, b, c, d contour.Vertex) bool {
	if intersectProp(a, b, c, d) {
		return true
	}
	return between(a, b, c) || between(a, b, d) || between(c, d, a) || between(c, d, b)
}

func next(i, n int32) int32 {
	if i+1 < n {
		return i + 1
	}
	return 0
}
func prev(i, n int32) int32 {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

// inCone reports whether vertex j lies in the cone described by the
// three vertices around i (i-1, i, i+1) of polygon verts[indices[...]].
func inCone(i, j, n int32, verts []contour.Vertex, indices []int32) bool {
	pi := verts[indices[i]&0x0fffffff]
	pj := verts[indices[j]&0x0fffffff]
	pi1 := verts[indices[next(i, n)]&0x0fffffff]
	pin1 := verts[indices[prev(i, n)]&0x0fffffff]

	if leftOn(pin1, pi, pi1) {
		return left(pi, pj, pin1) && left(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonalie(i, j, n int32, verts []contour.Vertex, indices []int32) bool {
	d0 := verts[indices[i]&0x0fffffff]
	d1 := verts[indices[j]&0x0fffffff]
	for k := int32(0); k < n; k++ {
		k1 := next(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[indices[k]&0x0fffffff]
		p1 := verts[indices[k1]&0x0fffffff]
		if vequal(d0, p0) || vequal(d1, p0) || vequal(d0, p1) || vequal(d1, p1) {
			continue
		}
		if segIntersect(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func diagonal(i, j, n int32, verts []contour.Vertex, indices []int32) bool {
	return inCone(i, j, n, verts, indices) && diagonalie(i, j, n, verts, indices)
}

// triangulate ear-clips the simple polygon described by verts/indices
// into n-2 triangles, always removing the ear with the shortest new
// diagonal to keep triangle shapes reasonable. If no valid ear remains
// (which can happen when simplification left a self-touching contour),
// it stops and returns the negated count of triangles emitted so far;
// there is no looser fallback test.
func triangulate(verts []contour.Vertex, indices []int32, tris []int32) int32 {
	n := int32(len(indices))
	dst := 0
	var ntris int32

	for i := int32(0); i < n; i++ {
		i1 := next(i, n)
		i2 := next(i1, n)
		if diagonal(i, i2, n, verts, indices) {
			indices[i1] |= int32(1) << 31
		}
	}

	for n > 3 {
		minLen := int32(-1)
		mini := int32(-1)
		for i := int32(0); i < n; i++ {
			i1 := next(i, n)
			if indices[i1]&(int32(1)<<31) != 0 {
				p0 := verts[indices[i]&0x0fffffff]
				p2 := verts[indices[next(i1, n)]&0x0fffffff]
				dx := p2.X - p0.X
				dz := p2.Z - p0.Z
				length := dx*dx + dz*dz
				if minLen < 0 || length < minLen {
					minLen = length
					mini = i
				}
			}
		}
		if mini == -1 {
			return -ntris
		}

		i := mini
		i1 := next(i, n)
		i2 := next(i1, n)

		tris[dst] = indices[i] & 0x0fffffff
		tris[dst+1] = indices[i1] & 0x0fffffff
		tris[dst+2] = indices[i2] & 0x0fffffff
		dst += 3
		ntris++

		n--
		for k := i1; k < n; k++ {
			indices[k] = indices[k+1]
		}
		if i1 >= n {
			i1 = 0
		}
		i = prev(i1, n)
		if diagonal(prev(i, n), i1, n, verts, indices) {
			indices[i] |= int32(1) << 31
		} else {
			indices[i] &= 0x0fffffff
		}
		if diagonal(i, next(i1, n), n, verts, indices) {
			indices[i1] |= int32(1) << 31
		} else {
			indices[i1] &= 0x0fffffff
		}
	}

	tris[dst] = indices[0] & 0x0fffffff
	tris[dst+1] = indices[1] & 0x0fffffff
	tris[dst+2] = indices[2] & 0x0fffffff
	ntris++
	return ntris
}

func getPolyMergeValue(pa, pb []uint16, verts []uint16, nvp int32) (value, ea, eb int32) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)
	if na+nb-2 > nvp {
		return -1, -1, -1
	}
	ea, eb = -1, -1
	for i := int32(0); i < na; i++ {
		va0, va1 := pa[i], pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := int32(0); j < nb; j++ {
			vb0, vb1 := pb[j], pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea, eb = i, j
				break
			}
		}
	}
	if ea == -1 || eb == -1 {
		return -1, -1, -1
	}

	va := pa[(ea+na-1)%na]
	vb := pa[ea]
	vc := pb[(eb+2)%nb]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, -1, -1
	}
	va = pb[(eb+nb-1)%nb]
	vb = pb[eb]
	vc = pa[(ea+2)%na]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, -1, -1
	}

	va = pa[ea]
	vb = pa[(ea+1)%na]
	dx := int32(verts[va*3]) - int32(verts[vb*3])
	dz := int32(verts[va*3+2]) - int32(verts[vb*3+2])
	return dx*dx + dz*dz, ea, eb
}

func mergePolyVerts(pa, pb []uint16, ea, eb, nvp int32, tmp []uint16) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)
	for i := int32(0); i < nvp; i++ {
		tmp[i] = nullIdx
	}
	var n int32
	for i := int32(0); i < na-1; i++ {
		tmp[n] = pa[(ea+1+i)%na]
		n++
	}
	for i := int32(0); i < nb-1; i++ {
		tmp[n] = pb[(eb+1+i)%nb]
		n++
	}
	copy(pa, tmp[:nvp])
}

// mergeAdjacentPolys greedily merges the pair of polygons sharing
// the longest edge (the largest getPolyMergeValue), repeating
// until no legal merge remains.
func mergeAdjacentPolys(polys []uint16, npolys *int32, verts []uint16, nvp int32, tmp []uint16) {
	for {
		bestVal := int32(0)
		bestA, bestB, bestEa, bestEb := int32(0), int32(0), int32(0), int32(0)
		for j := int32(0); j < *npolys-1; j++ {
			pj := polys[j*nvp:]
			for k := j + 1; k < *npolys; k++ {
				pk := polys[k*nvp:]
				v, ea, eb := getPolyMergeValue(pj, pk, verts, nvp)
				if v > bestVal {
					bestVal, bestA, bestB, bestEa, bestEb = v, j, k, ea, eb
				}
			}
		}
		if bestVal == 0 {
			return
		}
		pa := polys[bestA*nvp:]
		pb := polys[bestB*nvp:]
		mergePolyVerts(pa, pb, bestEa, bestEb, nvp, tmp)
		last := polys[(*npolys-1)*nvp:]
		copy(pb[:nvp], last[:nvp])
		*npolys--
	}
}
