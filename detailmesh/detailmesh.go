// Package detailmesh samples a compact heightfield's surface underneath
// each polygon of a polymesh.Mesh and triangulates it into a detail
// mesh: vertices that track the ground's actual height instead of the
// coarse per-polygon plane, used so path-following code can place an
// agent's feet on the terrain rather than on a flat polygon lid.
package detailmesh

import (
	"github.com/arl/math32"
	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/polymesh"
	"github.com/wayfarer-nav/navmesh/voxel"
)

const noPolyVert = 0xffff

// Mesh holds, per source polygon, a height-sampled sub-mesh: Meshes[i*4:]
// is {vertBase, vertCount, triBase, triCount} into the shared Verts/Tris
// arrays. Tris stores, per triangle, three vertex indices (into this
// sub-mesh's own vertex range) plus a per-edge "on polygon boundary" flag
// byte used by flag-checking raycasts to know when they've crossed onto
// a neighbour polygon.
type Mesh struct {
	Meshes  []int32
	Verts   []float32
	Tris    []uint8
	NMeshes int32
	NVerts  int32
	NTris   int32
}

const (
	maxVerts        = 127
	maxTris         = 255 // Delaunay yields at most 2n-2-k triangles (n verts, k hull verts).
	maxVertsPerEdge = 32
)

// Build samples and triangulates a detail sub-mesh for every polygon in
// mesh, using chf for ground height data. sampleDist is the spacing (in
// world units) between height samples along edges and across the
// interior; sampleMaxError is the maximum allowed deviation between a
// sample and the surface it approximates. sampleDist<=0 skips sampling
// entirely and returns a flat fan triangulation of each polygon.
func Build(ctx *buildlog.Context, mesh *polymesh.Mesh, chf *voxel.CompactHeightfield, sampleDist, sampleMaxError float32) (*Mesh, error) {
	t := ctx.Start(buildlog.StageDetailMesh)
	defer ctx.Stop(buildlog.StageDetailMesh, t)

	dm := &Mesh{}
	if mesh.NVerts == 0 || mesh.NPolys == 0 {
		return dm, nil
	}

	nvp := mesh.Nvp
	cs := mesh.CellSize
	ch := mesh.CellHeight
	orig := mesh.BMin
	borderSize := mesh.BorderSize
	heightSearchRadius := int32(1)
	if r := int32(math32.Ceil(mesh.MaxEdgeError)); r > heightSearchRadius {
		heightSearchRadius = r
	}

	var nPolyVerts int32
	var maxhw, maxhh int32
	bounds := make([]int32, mesh.NPolys*4)
	poly := make([]float32, nvp*3)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2 : i*nvp*2+nvp*2]
		xmin, xmax := chf.Width, int32(0)
		ymin, ymax := chf.Height, int32(0)
		for j := int32(0); j < nvp; j++ {
			if p[j] == noPolyVert {
				break
			}
			v := mesh.Verts[p[j]*3:]
			xmin = minI32(xmin, int32(v[0]))
			xmax = maxI32(xmax, int32(v[0]))
			ymin = minI32(ymin, int32(v[2]))
			ymax = maxI32(ymax, int32(v[2]))
			nPolyVerts++
		}
		xmin = maxI32(0, xmin-1)
		xmax = minI32(chf.Width, xmax+1)
		ymin = maxI32(0, ymin-1)
		ymax = minI32(chf.Height, ymax+1)
		bounds[i*4+0], bounds[i*4+1], bounds[i*4+2], bounds[i*4+3] = xmin, xmax, ymin, ymax
		if xmin >= xmax || ymin >= ymax {
			continue
		}
		maxhw = maxI32(maxhw, xmax-xmin)
		maxhh = maxI32(maxhh, ymax-ymin)
	}

	hp := &heightPatch{data: make([]uint16, maxI32(1, maxhw*maxhh))}

	dm.NMeshes = mesh.NPolys
	dm.Meshes = make([]int32, dm.NMeshes*4)

	vcap := nPolyVerts + nPolyVerts/2
	tcap := vcap * 2
	dm.Verts = make([]float32, vcap*3)
	dm.Tris = make([]uint8, tcap*4)

	verts := make([]float32, 256*3)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2 : i*nvp*2+nvp*2]

		var npoly int32
		for j := int32(0); j < nvp; j++ {
			if p[j] == noPolyVert {
				break
			}
			v := mesh.Verts[p[j]*3:]
			poly[j*3+0] = float32(v[0]) * cs
			poly[j*3+1] = float32(v[1]) * ch
			poly[j*3+2] = float32(v[2]) * cs
			npoly++
		}

		hp.xmin = bounds[i*4+0]
		hp.ymin = bounds[i*4+2]
		hp.width = bounds[i*4+1] - bounds[i*4+0]
		hp.height = bounds[i*4+3] - bounds[i*4+2]
		if hp.width > 0 && hp.height > 0 {
			getHeightData(ctx, chf, p, npoly, mesh.Verts, borderSize, hp, int32(mesh.Regions[i]))
		}

		nverts, tris, err := buildPolyDetail(ctx, poly, npoly, sampleDist, sampleMaxError, heightSearchRadius, chf, hp, verts)
		if err != nil {
			return nil, err
		}

		for j := int32(0); j < nverts; j++ {
			verts[j*3+0] += orig[0]
			verts[j*3+1] += orig[1] + ch
			verts[j*3+2] += orig[2]
		}
		for j := int32(0); j < npoly; j++ {
			poly[j*3+0] += orig[0]
			poly[j*3+1] += orig[1]
			poly[j*3+2] += orig[2]
		}

		ntris := int32(len(tris) / 4)
		dm.Meshes[i*4+0] = dm.NVerts
		dm.Meshes[i*4+1] = nverts
		dm.Meshes[i*4+2] = dm.NTris
		dm.Meshes[i*4+3] = ntris

		if dm.NVerts+nverts > vcap {
			for dm.NVerts+nverts > vcap {
				vcap += 256
			}
			newv := make([]float32, vcap*3)
			copy(newv, dm.Verts[:3*dm.NVerts])
			dm.Verts = newv
		}
		for j := int32(0); j < nverts; j++ {
			dm.Verts[dm.NVerts*3+0] = verts[j*3+0]
			dm.Verts[dm.NVerts*3+1] = verts[j*3+1]
			dm.Verts[dm.NVerts*3+2] = verts[j*3+2]
			dm.NVerts++
		}

		if dm.NTris+ntris > tcap {
			for dm.NTris+ntris > tcap {
				tcap += 256
			}
			newt := make([]uint8, tcap*4)
			copy(newt, dm.Tris[:4*dm.NTris])
			dm.Tris = newt
		}
		for j := int32(0); j < ntris; j++ {
			tri := tris[j*4:]
			dm.Tris[dm.NTris*4+0] = uint8(tri[0])
			dm.Tris[dm.NTris*4+1] = uint8(tri[1])
			dm.Tris[dm.NTris*4+2] = uint8(tri[2])
			dm.Tris[dm.NTris*4+3] = triFlags(verts[tri[0]*3:], verts[tri[1]*3:], verts[tri[2]*3:], poly, npoly)
			dm.NTris++
		}
	}

	return dm, nil
}

func edgeFlag(va, vb, vpoly []float32, npoly int32) uint8 {
	const thrSqr = 0.001 * 0.001
	j := npoly - 1
	for i := int32(0); i < npoly; i++ {
		if distancePtSeg2d(va, vpoly[j*3:], vpoly[i*3:]) < thrSqr &&
			distancePtSeg2d(vb, vpoly[j*3:], vpoly[i*3:]) < thrSqr {
			return 1
		}
		j = i
	}
	return 0
}

func triFlags(va, vb, vc, vpoly []float32, npoly int32) uint8 {
	var flags uint8
	flags |= edgeFlag(va, vb, vpoly, npoly) << 0
	flags |= edgeFlag(vb, vc, vpoly, npoly) << 2
	flags |= edgeFlag(vc, va, vpoly, npoly) << 4
	return flags
}

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// buildPolyDetail tessellates one polygon's boundary (only when
// sampleDist>0), then either hull-triangulates directly (for slivers, or
// whenever there are no interior points to add) or fills the interior
// with a grid of candidate samples and adds them one at a time, always
// the sample with the largest deviation from the current triangulation,
// until every sample is within sampleMaxError or the vertex budget is
// exhausted.
func buildPolyDetail(ctx *buildlog.Context, in []float32, nin int32, sampleDist, sampleMaxError float32, heightSearchRadius int32, chf *voxel.CompactHeightfield, hp *heightPatch, verts []float32) (int32, []int32, error) {
	var edge [(maxVertsPerEdge + 1) * 3]float32
	var hull [maxVerts]int32
	var nhull int32

	nverts := nin
	copy(verts[:nin*3], in[:nin*3])

	cs := chf.CellSize
	ics := float32(1.0) / cs

	minExtent := polyMinExtent(verts, nverts)

	if sampleDist > 0 {
		i := int32(0)
		for j := nin - 1; i < nin; i++ {
			vj := append([]float32(nil), in[j*3:j*3+3]...)
			vi := append([]float32(nil), in[i*3:i*3+3]...)
			var swapped bool
			if math32.Abs(vj[0]-vi[0]) < 1e-6 {
				if vj[2] > vi[2] {
					vj, vi = vi, vj
					swapped = true
				}
			} else if vj[0] > vi[0] {
				vj, vi = vi, vj
				swapped = true
			}

			dx := vi[0] - vj[0]
			dy := vi[1] - vj[1]
			dz := vi[2] - vj[2]
			d := math32.Sqrt(dx*dx + dz*dz)
			nn := 1 + int32(math32.Floor(d/sampleDist))
			if nn >= maxVertsPerEdge {
				nn = maxVertsPerEdge - 1
			}
			if nverts+nn >= maxVerts {
				nn = maxVerts - 1 - nverts
			}

			for k := int32(0); k <= nn; k++ {
				u := float32(k) / float32(nn)
				pos := edge[k*3:]
				pos[0] = vj[0] + dx*u
				pos[1] = vj[1] + dy*u
				pos[2] = vj[2] + dz*u
				pos[1] = float32(getHeight(pos[0], pos[1], pos[2], cs, ics, chf.CellHeight, heightSearchRadius, hp)) * chf.CellHeight
			}

			idx := [maxVertsPerEdge]int32{0, nn}
			nidx := int32(2)
			for k := int32(0); k < nidx-1; {
				a, b := idx[k], idx[k+1]
				va, vb := edge[a*3:], edge[b*3:]
				var maxd float32
				maxi := int32(-1)
				for m := a + 1; m < b; m++ {
					if dev := distancePtSeg3(edge[m*3:], va, vb); dev > maxd {
						maxd, maxi = dev, m
					}
				}
				if maxi != -1 && maxd > sampleMaxError*sampleMaxError {
					for m := nidx; m > k; m-- {
						idx[m] = idx[m-1]
					}
					idx[k+1] = maxi
					nidx++
				} else {
					k++
				}
			}

			hull[nhull] = j
			nhull++
			if swapped {
				for k := nidx - 2; k > 0; k-- {
					copy(verts[nverts*3:], edge[idx[k]*3:idx[k]*3+3])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			} else {
				for k := int32(1); k < nidx-1; k++ {
					copy(verts[nverts*3:], edge[idx[k]*3:idx[k]*3+3])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			}
			j = i
		}
	} else {
		for i := int32(0); i < nin; i++ {
			hull[nhull] = i
			nhull++
		}
	}

	if minExtent < sampleDist*2 {
		tris := triangulateHull(verts, hull[:nhull], nhull)
		return nverts, tris, nil
	}

	tris := triangulateHull(verts, hull[:nhull], nhull)
	if len(tris) == 0 {
		ctx.Warnf("untriangulable_poly", "detailmesh: could not triangulate polygon (%d verts)", nverts)
		return nverts, tris, nil
	}

	if sampleDist > 0 {
		var bmin, bmax [3]float32
		copy(bmin[:], in[:3])
		copy(bmax[:], in[:3])
		for i := int32(1); i < nin; i++ {
			p := in[i*3 : i*3+3]
			for k := 0; k < 3; k++ {
				if p[k] < bmin[k] {
					bmin[k] = p[k]
				}
				if p[k] > bmax[k] {
					bmax[k] = p[k]
				}
			}
		}
		x0 := int32(math32.Floor(bmin[0] / sampleDist))
		x1 := int32(math32.Ceil(bmax[0] / sampleDist))
		z0 := int32(math32.Floor(bmin[2] / sampleDist))
		z1 := int32(math32.Ceil(bmax[2] / sampleDist))

		var samples []int32
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				var pt [3]float32
				pt[0] = float32(x) * sampleDist
				pt[1] = (bmax[1] + bmin[1]) * 0.5
				pt[2] = float32(z) * sampleDist
				if distToPoly(nin, in, pt[:]) > -sampleDist/2 {
					continue
				}
				samples = append(samples, x, int32(getHeight(pt[0], pt[1], pt[2], cs, ics, chf.CellHeight, heightSearchRadius, hp)), z, 0)
			}
		}

		nsamples := int32(len(samples) / 4)
		for iter := int32(0); iter < nsamples; iter++ {
			if nverts >= maxVerts {
				break
			}

			var bestpt [3]float32
			var bestd float32
			besti := int32(-1)
			for i := int32(0); i < nsamples; i++ {
				s := samples[i*4:]
				if s[3] != 0 {
					continue
				}
				var pt [3]float32
				pt[0] = float32(s[0])*sampleDist + jitterX(int64(i))*cs*0.1
				pt[1] = float32(s[1]) * chf.CellHeight
				pt[2] = float32(s[2])*sampleDist + jitterY(int64(i))*cs*0.1
				d := distToTriMesh(pt[:], verts, tris, int32(len(tris)/4))
				if d < 0 {
					continue
				}
				if d > bestd {
					bestd, besti = d, i
					copy(bestpt[:], pt[:])
				}
			}

			if bestd <= sampleMaxError || besti == -1 {
				break
			}
			samples[besti*4+3] = 1
			copy(verts[nverts*3:], bestpt[:])
			nverts++

			tris = delaunayHull(ctx, nverts, verts, hull[:nhull], nhull)
		}
	}

	ntris := int32(len(tris) / 4)
	if ntris > maxTris {
		ctx.Errorf("too_many_detail_tris", "detailmesh: shrinking triangle count from %d to max %d", ntris, maxTris)
		tris = tris[:maxTris*4]
	}

	return nverts, tris, nil
}
