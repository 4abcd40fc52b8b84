// Package polymesh triangulates each simplified contour with ear
// clipping, greedily re-merges adjacent triangles into larger convex
// polygons (up to a configured vertex cap), then stitches the whole set
// into one vertex-deduplicated mesh with per-edge neighbour adjacency.
package polymesh

import (
	"fmt"

	"github.com/arl/assertgo"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/contour"
)

const nullIdx uint16 = 0xffff
const multipleRegions uint16 = 0xffff

// MultipleRegions marks a polygon stitched together from source contours
// of more than one region (can happen after border-vertex removal
// re-triangulates a hole). detailmesh must not trust per-region height
// seeding for such a polygon, since it may overlap a neighbour.
const MultipleRegions = multipleRegions
const borderVertex int32 = 0x10000
const vertexBucketCount int32 = 1 << 12

// Mesh is the tessellated, deduplicated polygon soup a tile's navigable
// surface is made of: Verts holds unique (x,y,z) voxel-space points,
// Polys holds, for each polygon, its up-to-Nvp vertex indices followed
// by up-to-Nvp neighbour polygon indices (nullIdx where there is none).
type Mesh struct {
	Verts      []uint16
	Polys      []uint16
	Regions    []uint16
	Areas      []uint8
	NVerts     int32
	NPolys     int32
	Nvp        int32
	BMin, BMax [3]float32
	CellSize   float32
	CellHeight float32
	BorderSize int32
	MaxEdgeError float32
}

func (m *Mesh) poly(i int32) []uint16 { return m.Polys[i*m.Nvp*2 : i*m.Nvp*2+m.Nvp*2] }

func countPolyVerts(p []uint16, nvp int32) int32 {
	for i := int32(0); i < nvp; i++ {
		if p[i] == nullIdx {
			return i
		}
	}
	return nvp
}

func uleft(a, b, c []uint16) bool {
	return (int32(b[0])-int32(a[0]))*(int32(c[2])-int32(a[2]))-
		(int32(c[0])-int32(a[0]))*(int32(b[2])-int32(a[2])) < 0
}

// Build triangulates every contour in cset and assembles the result
// into one Mesh whose polygons have at most maxVertsPerPoly vertices.
func Build(ctx *buildlog.Context, cset *contour.Set, maxVertsPerPoly int32) (*Mesh, error) {
	t := ctx.Start(buildlog.StagePolyMesh)
	defer ctx.Stop(buildlog.StagePolyMesh, t)

	var maxVertices, maxTris, maxVertsPerCont int32
	for _, c := range cset.Contours {
		n := int32(len(c.Verts))
		if n < 3 {
			continue
		}
		maxVertices += n
		maxTris += n - 2
		if n > maxVertsPerCont {
			maxVertsPerCont = n
		}
	}
	if maxVertices >= 0xfffe {
		return nil, fmt.Errorf("polymesh: too many vertices %d", maxVertices)
	}

	mesh := &Mesh{
		CellSize:     cset.CellSize,
		CellHeight:   cset.CellHeight,
		BorderSize:   cset.BorderSize,
		MaxEdgeError: cset.MaxError,
		BMin:         cset.BMin,
		BMax:         cset.BMax,
		Nvp:          maxVertsPerPoly,
		Verts:      make([]uint16, maxVertices*3),
		Polys:      make([]uint16, maxTris*maxVertsPerPoly*2),
		Regions:    make([]uint16, maxTris),
		Areas:      make([]uint8, maxTris),
	}
	for i := range mesh.Polys {
		mesh.Polys[i] = nullIdx
	}

	vflags := make([]uint8, maxVertices)
	nextVert := make([]int32, maxVertices)
	firstVert := make([]int32, vertexBucketCount)
	for i := range firstVert {
		firstVert[i] = -1
	}

	indices := make([]int32, maxVertsPerCont)
	tris := make([]int32, maxVertsPerCont*3)
	polys := make([]uint16, (maxVertsPerCont+1)*maxVertsPerPoly)
	tmpPoly := polys[maxVertsPerCont*maxVertsPerPoly:]

	for ci, cont := range cset.Contours {
		n := int32(len(cont.Verts))
		if n < 3 {
			continue
		}

		flags := make([]int32, n)
		for j := range flags {
			flags[j] = int32(j)
		}
		ntris := triangulate(cont.Verts, flags, tris)
		if ntris <= 0 {
			ctx.Warnf("bad_triangulation", "bad triangulation for contour %d", ci)
			ntris = -ntris
		}

		for j, v := range cont.Verts {
			indices[j] = int32(addVertex(uint16(v.X), uint16(v.Y), uint16(v.Z), mesh.Verts, firstVert, nextVert, &mesh.NVerts))
			if v.Flags&borderVertex != 0 {
				vflags[indices[j]] = 1
			}
		}

		for i := range polys[:maxVertsPerCont*maxVertsPerPoly] {
			polys[i] = nullIdx
		}
		var npolys int32
		for j := int32(0); j < ntris; j++ {
			a, b, c := tris[j*3], tris[j*3+1], tris[j*3+2]
			if a != b && a != c && b != c {
				polys[npolys*maxVertsPerPoly+0] = uint16(indices[a])
				polys[npolys*maxVertsPerPoly+1] = uint16(indices[b])
				polys[npolys*maxVertsPerPoly+2] = uint16(indices[c])
				npolys++
			}
		}
		if npolys == 0 {
			continue
		}

		if maxVertsPerPoly > 3 {
			mergeAdjacentPolys(polys, &npolys, mesh.Verts, maxVertsPerPoly, tmpPoly)
		}

		for j := int32(0); j < npolys; j++ {
			p := mesh.poly(mesh.NPolys)
			copy(p[:maxVertsPerPoly], polys[j*maxVertsPerPoly:j*maxVertsPerPoly+maxVertsPerPoly])
			mesh.Regions[mesh.NPolys] = cont.Region
			mesh.Areas[mesh.NPolys] = cont.Area
			mesh.NPolys++
			if mesh.NPolys > maxTris {
				return nil, fmt.Errorf("polymesh: too many polygons %d (max %d)", mesh.NPolys, maxTris)
			}
		}
	}

	// Drop vertices flagged as simplification-only border artifacts.
	for i := int32(0); i < mesh.NVerts; i++ {
		if vflags[i] == 0 {
			continue
		}
		if !canRemoveVertex(mesh, uint16(i)) {
			continue
		}
		if err := removeVertex(ctx, mesh, uint16(i), maxTris); err != nil {
			return nil, err
		}
		copy(vflags[i:mesh.NVerts], vflags[i+1:mesh.NVerts+1])
		i--
	}

	buildAdjacency(mesh.Polys[:mesh.NPolys*maxVertsPerPoly*2], mesh.NPolys, mesh.NVerts, maxVertsPerPoly)
	return mesh, nil
}

func addVertex(x, y, z uint16, verts []uint16, firstVert, nextVert []int32, nv *int32) uint16 {
	bucket := vertexHash(int32(x), int32(z))
	i := firstVert[bucket]
	for i != -1 {
		v := verts[i*3:]
		if v[0] == x && absI32(int32(v[1])-int32(y)) <= 2 && v[2] == z {
			return uint16(i)
		}
		i = nextVert[i]
	}
	i = *nv
	*nv++
	v := verts[i*3:]
	v[0], v[1], v[2] = x, y, z
	nextVert[i] = firstVert[bucket]
	firstVert[bucket] = i
	return uint16(i)
}

func vertexHash(x, z int32) int32 {
	const h1, h3 = 0x8da6b343, 0xcb1ab31f
	n := uint32(int64(h1)*int64(x) + int64(h3)*int64(z))
	return int32(n & uint32(vertexBucketCount-1))
}

func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func buildAdjacency(polys []uint16, npolys, nverts, nvp int32) {
	assert.True(int32(len(polys)) == npolys*nvp*2, "polys buffer size %d does not match npolys*nvp*2 (%d)", len(polys), npolys*nvp*2)
	type edge struct {
		vert, polyEdge, poly [2]uint16
	}
	maxEdges := npolys * nvp
	firstEdge := make([]int32, nverts)
	for i := range firstEdge {
		firstEdge[i] = -1
	}
	nextEdge := make([]int32, maxEdges)
	edges := make([]edge, 0, maxEdges)

	for i := int32(0); i < npolys; i++ {
		p := polys[i*nvp*2 : i*nvp*2+nvp*2]
		for j := int32(0); j < nvp; j++ {
			if p[j] == nullIdx {
				break
			}
			v0 := p[j]
			var v1 uint16
			if j+1 >= nvp || p[j+1] == nullIdx {
				v1 = p[0]
			} else {
				v1 = p[j+1]
			}
			if v0 < v1 {
				e := edge{vert: [2]uint16{v0, v1}, poly: [2]uint16{uint16(i), uint16(i)}, polyEdge: [2]uint16{uint16(j), 0}}
				idx := int32(len(edges))
				edges = append(edges, e)
				nextEdge[idx] = firstEdge[v0]
				firstEdge[v0] = idx
			}
		}
	}

	for i := int32(0); i < npolys; i++ {
		p := polys[i*nvp*2 : i*nvp*2+nvp*2]
		for j := int32(0); j < nvp; j++ {
			if p[j] == nullIdx {
				break
			}
			v0 := p[j]
			var v1 uint16
			if j+1 >= nvp || p[j+1] == nullIdx {
				v1 = p[0]
			} else {
				v1 = p[j+1]
			}
			if v0 > v1 {
				for e := firstEdge[v1]; e != -1; e = nextEdge[e] {
					if edges[e].vert[1] == v0 && edges[e].poly[0] == edges[e].poly[1] {
						edges[e].poly[1] = uint16(i)
						edges[e].polyEdge[1] = uint16(j)
						break
					}
				}
			}
		}
	}

	for _, e := range edges {
		if e.poly[0] != e.poly[1] {
			p0 := polys[int32(e.poly[0])*nvp*2:]
			p1 := polys[int32(e.poly[1])*nvp*2:]
			p0[nvp+int32(e.polyEdge[0])] = e.poly[1]
			p1[nvp+int32(e.polyEdge[1])] = e.poly[0]
		}
	}
}
