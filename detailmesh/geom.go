package detailmesh

import "github.com/arl/math32"

func vdot2(a, b []float32) float32 { return a[0]*b[0] + a[2]*b[2] }

func vdistSq2(p, q []float32) float32 {
	dx := q[0] - p[0]
	dz := q[2] - p[2]
	return dx*dx + dz*dz
}

func vdist2(p, q []float32) float32 { return math32.Sqrt(vdistSq2(p, q)) }

func vcross2(p1, p2, p3 []float32) float32 {
	u1 := p2[0] - p1[0]
	v1 := p2[2] - p1[2]
	u2 := p3[0] - p1[0]
	v2 := p3[2] - p1[2]
	return u1*v2 - v1*u2
}

// circumCircle finds the circle through p1,p2,p3, writing its center to
// c. Returns ok=false (and c=p1) when the three points are collinear.
// Computed relative to p1 (so v1 is always the zero vector) to avoid the
// precision loss of working in absolute coordinates.
func circumCircle(p1, p2, p3, c []float32) (r float32, ok bool) {
	const eps float32 = 1e-6
	var v1, v2, v3 [3]float32
	v2[0], v2[1], v2[2] = p2[0]-p1[0], p2[1]-p1[1], p2[2]-p1[2]
	v3[0], v3[1], v3[2] = p3[0]-p1[0], p3[1]-p1[1], p3[2]-p1[2]

	cp := vcross2(v1[:], v2[:], v3[:])
	if math32.Abs(cp) <= eps {
		copy(c[:3], p1[:3])
		return 0, false
	}
	v1Sq := vdot2(v1[:], v1[:])
	v2Sq := vdot2(v2[:], v2[:])
	v3Sq := vdot2(v3[:], v3[:])
	c[0] = (v1Sq*(v2[2]-v3[2]) + v2Sq*(v3[2]-v1[2]) + v3Sq*(v1[2]-v2[2])) / (2 * cp)
	c[1] = 0
	c[2] = (v1Sq*(v3[0]-v2[0]) + v2Sq*(v1[0]-v3[0]) + v3Sq*(v2[0]-v1[0])) / (2 * cp)
	r = vdist2(c, v1[:])
	c[0] += p1[0]
	c[1] += p1[1]
	c[2] += p1[2]
	return r, true
}

func distPtTri(p, a, b, c []float32) float32 {
	var v0, v1, v2 [3]float32
	v0[0], v0[1], v0[2] = c[0]-a[0], c[1]-a[1], c[2]-a[2]
	v1[0], v1[1], v1[2] = b[0]-a[0], b[1]-a[1], b[2]-a[2]
	v2[0], v2[1], v2[2] = p[0]-a[0], p[1]-a[1], p[2]-a[2]

	dot00 := vdot2(v0[:], v0[:])
	dot01 := vdot2(v0[:], v1[:])
	dot02 := vdot2(v0[:], v2[:])
	dot11 := vdot2(v1[:], v1[:])
	dot12 := vdot2(v1[:], v2[:])

	invDenom := float32(1.0 / (dot00*dot11 - dot01*dot01))
	u := (dot11*dot02 - dot01*dot12) * invDenom
	v := (dot00*dot12 - dot01*dot02) * invDenom

	const eps float32 = 1e-4
	if u >= -eps && v >= -eps && (u+v) <= 1+eps {
		y := a[1] + v0[1]*u + v1[1]*v
		return math32.Abs(y - p[1])
	}
	return math32.MaxFloat32
}

func distancePtSeg3(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqy := q[1] - p[1]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dy := pt[1] - p[1]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqy*pqy + pqz*pqz
	t := pqx*dx + pqy*dy + pqz*dz
	if d > 0 {
		t /= d
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dx = p[0] + t*pqx - pt[0]
	dy = p[1] + t*pqy - pt[1]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dy*dy + dz*dz
}

func distancePtSeg2d(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
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
	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dz*dz
}

func distToTriMesh(p, verts []float32, tris []int32, ntris int32) float32 {
	dmin := math32.MaxFloat32
	for i := int32(0); i < ntris; i++ {
		va := verts[tris[i*4+0]*3:]
		vb := verts[tris[i*4+1]*3:]
		vc := verts[tris[i*4+2]*3:]
		if d := distPtTri(p, va, vb, vc); d < dmin {
			dmin = d
		}
	}
	if dmin == math32.MaxFloat32 {
		return -1
	}
	return dmin
}

// distToPoly returns a signed 2D distance from p to the polygon verts: negative
// when p is inside.
func distToPoly(nvert int32, verts, p []float32) float32 {
	dmin := math32.MaxFloat32
	var c bool
	i, j := int32(0), nvert-1
	for ; i < nvert; i++ {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if ((vi[2] > p[2]) != (vj[2] > p[2])) &&
			(p[0] < (vj[0]-vi[0])*(p[2]-vi[2])/(vj[2]-vi[2])+vi[0]) {
			c = !c
		}
		if d := distancePtSeg2d(p, vj, vi); d < dmin {
			dmin = d
		}
		j = i
	}
	if c {
		return -dmin
	}
	return dmin
}

func polyMinExtent(verts []float32, nverts int32) float32 {
	minDist := math32.MaxFloat32
	for i := int32(0); i < nverts; i++ {
		ni := (i + 1) % nverts
		p1 := verts[i*3:]
		p2 := verts[ni*3:]
		var maxEdgeDist float32
		for j := int32(0); j < nverts; j++ {
			if j == i || j == ni {
				continue
			}
			if d := distancePtSeg2d(verts[j*3:], p1, p2); d > maxEdgeDist {
				maxEdgeDist = d
			}
		}
		if maxEdgeDist < minDist {
			minDist = maxEdgeDist
		}
	}
	return math32.Sqrt(minDist)
}

func jitterX(i int64) float32 {
	return (float32((i*0x8da6b343)&0xffff)/float32(65535.0))*2.0 - 1.0
}

func jitterY(i int64) float32 {
	return (float32((i*0xd8163841)&0xffff)/float32(65535.0))*2.0 - 1.0
}

func next32(i, n int32) int32 {
	if i+1 < n {
		return i + 1
	}
	return 0
}

func prev32(i, n int32) int32 {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}
