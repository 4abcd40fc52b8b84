package navmesh

import (
	"fmt"

	"github.com/wayfarer-nav/navmesh/detailmesh"
	"github.com/wayfarer-nav/navmesh/polymesh"
)

// extLink marks the high bit of a Poly.Neis[j] entry: the edge crosses
// into a neighbour tile rather than another polygon of this tile.
const extLink uint16 = 0x8000

// TileBuildParams carries the per-tile geometry needed to pack a
// polymesh.Mesh/detailmesh.Mesh pair into a navmesh.Tile: where the
// tile sits in the grid, which voxel columns are the tile-crossing
// border (so PackTile can tell a true mesh border from a portal to the
// next tile), and the agent dimensions baked into the header for
// later use by query-time clearance checks.
type TileBuildParams struct {
	TileX, TileY, Layer int32
	UserID              uint32
	WalkableHeight      float32
	WalkableRadius      float32
	WalkableClimb       float32
	BvQuantFactor       float32 // typically 1/CellSize; 0 disables BV tree
	OffMeshCons         []OffMeshConnection
}

// PackTile converts one tile's build output into the wire-format the
// runtime understands: world-space vertices, polygons with tile-local
// internal adjacency resolved and tile-border edges flagged for
// external linking, the detail mesh, attached off-mesh connections, and
// (if BvQuantFactor != 0) a bounding-volume tree for fast spatial
// queries.
func PackTile(mesh *polymesh.Mesh, dmesh *detailmesh.Mesh, p TileBuildParams) (*Header, []Poly, []float32, []PolyDetail, []float32, []uint8, []BvNode, error) {
	if mesh.NVerts == 0 || mesh.NPolys == 0 {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("navmesh: empty tile mesh")
	}

	nvp := mesh.Nvp
	if nvp > VertsPerPolygon {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("navmesh: Nvp %d exceeds VertsPerPolygon %d", nvp, VertsPerPolygon)
	}

	// World-space vertices.
	verts := make([]float32, mesh.NVerts*3)
	for i := int32(0); i < mesh.NVerts; i++ {
		vx := mesh.Verts[i*3+0]
		vy := mesh.Verts[i*3+1]
		vz := mesh.Verts[i*3+2]
		verts[i*3+0] = mesh.BMin[0] + float32(vx)*mesh.CellSize
		verts[i*3+1] = mesh.BMin[1] + float32(vy)*mesh.CellHeight
		verts[i*3+2] = mesh.BMin[2] + float32(vz)*mesh.CellSize
	}

	// Determine the voxel-space extent of the interior (non-border)
	// portion of the tile so edges running along x==0, x==w, z==0, z==h
	// of that interior can be told apart from true mesh boundaries.
	var minX, maxX, minZ, maxZ uint16
	minX, minZ = ^uint16(0), ^uint16(0)
	for i := int32(0); i < mesh.NVerts; i++ {
		x, z := mesh.Verts[i*3+0], mesh.Verts[i*3+2]
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
	}

	npolys := mesh.NPolys
	noffmesh := int32(len(p.OffMeshCons))
	polys := make([]Poly, npolys+noffmesh)

	for i := int32(0); i < npolys; i++ {
		src := mesh.Polys[i*nvp*2 : i*nvp*2+nvp*2]
		dst := &polys[i]
		dst.SetArea(mesh.Areas[i])
		dst.SetType(PolyTypeGround)
		dst.Flags = 1 // walkable by default; callers can re-tag by area after build
		var vc uint8
		for j := int32(0); j < nvp; j++ {
			if src[j] == 0xffff {
				break
			}
			dst.Verts[j] = src[j]
			vc++

			nei := src[nvp+j]
			if nei == 0xffff {
				// No polymesh neighbour. Flag as an external portal if this
				// edge runs along the tile's outer rim; otherwise it is a
				// genuine mesh border (nothing walkable beyond it).
				v0 := dst.Verts[j]
				var v1 uint16
				if j+1 < nvp && src[j+1] != 0xffff {
					v1 = src[j+1]
				} else {
					v1 = src[0]
				}
				side, ok := tileBorderSide(mesh, v0, v1, minX, maxX, minZ, maxZ)
				if ok {
					dst.Neis[j] = extLink | uint16(side)
				} else {
					dst.Neis[j] = 0
				}
			} else {
				dst.Neis[j] = nei + 1 // 1-based so 0 still means "no neighbour"
			}
		}
		dst.VertCount = vc
	}

	for i := int32(0); i < noffmesh; i++ {
		c := p.OffMeshCons[i]
		dst := &polys[npolys+i]
		dst.SetType(PolyTypeOffMeshConnection)
		dst.Flags = 1
		dst.VertCount = 2
		dst.Verts[0] = uint16(i*2 + 0)
		dst.Verts[1] = uint16(i*2 + 1)
	}

	// Detail mesh.
	var detailMeshes []PolyDetail
	var detailVerts []float32
	var detailTris []uint8
	if dmesh != nil && dmesh.NMeshes == npolys {
		detailMeshes = make([]PolyDetail, npolys)
		// Count detail verts beyond each polygon's own VertCount.
		var extraVerts, ntris int32
		for i := int32(0); i < npolys; i++ {
			vb, nv, tb, nt := dmesh.Meshes[i*4+0], dmesh.Meshes[i*4+1], dmesh.Meshes[i*4+2], dmesh.Meshes[i*4+3]
			_ = vb
			_ = tb
			poly := &polys[i]
			extraVerts += nv - int32(poly.VertCount)
			ntris += nt
		}
		if extraVerts < 0 {
			extraVerts = 0
		}
		detailVerts = make([]float32, extraVerts*3)
		detailTris = make([]uint8, ntris*4)
		var vcur, tcur int32
		for i := int32(0); i < npolys; i++ {
			vb, nv, tb, nt := dmesh.Meshes[i*4+0], dmesh.Meshes[i*4+1], dmesh.Meshes[i*4+2], dmesh.Meshes[i*4+3]
			poly := &polys[i]
			extra := nv - int32(poly.VertCount)
			if extra < 0 {
				extra = 0
			}
			copy(detailVerts[vcur*3:vcur*3+extra*3], dmesh.Verts[(vb+int32(poly.VertCount))*3:(vb+int32(poly.VertCount))*3+extra*3])
			copy(detailTris[tcur*4:tcur*4+nt*4], dmesh.Tris[tb*4:tb*4+nt*4])
			detailMeshes[i] = PolyDetail{
				VertBase:  uint32(vcur),
				TriBase:   uint32(tcur),
				VertCount: uint8(extra),
				TriCount:  uint8(nt),
			}
			vcur += extra
			tcur += nt
		}
	}

	header := &Header{
		X: p.TileX, Y: p.TileY, Layer: p.Layer,
		UserID:          p.UserID,
		PolyCount:       int32(len(polys)),
		VertCount:       mesh.NVerts,
		DetailMeshCount: int32(len(detailMeshes)),
		DetailVertCount: int32(len(detailVerts) / 3),
		DetailTriCount:  int32(len(detailTris) / 4),
		OffMeshConCount: noffmesh,
		OffMeshBase:     npolys,
		WalkableHeight:  p.WalkableHeight,
		WalkableRadius:  p.WalkableRadius,
		WalkableClimb:   p.WalkableClimb,
		Bmin:            mesh.BMin[:],
		Bmax:            mesh.BMax[:],
		BvQuantFactor:   p.BvQuantFactor,
	}

	var bvtree []BvNode
	if p.BvQuantFactor != 0 {
		items := make([]boundsItem, 0, npolys+noffmesh)
		for i := int32(0); i < npolys; i++ {
			poly := &polys[i]
			var bmin, bmax [3]uint16
			bmin, bmax = [3]uint16{0xffff, 0xffff, 0xffff}, [3]uint16{}
			for j := uint8(0); j < poly.VertCount; j++ {
				v := poly.Verts[j]
				x := uint16((verts[v*3+0] - mesh.BMin[0]) * p.BvQuantFactor)
				y := uint16((verts[v*3+1] - mesh.BMin[1]) * p.BvQuantFactor)
				z := uint16((verts[v*3+2] - mesh.BMin[2]) * p.BvQuantFactor)
				bmin, bmax = minU16(bmin, [3]uint16{x, y, z}), maxU16(bmax, [3]uint16{x, y, z})
			}
			// bounds are the quantized vertex extents, with no vertical padding
			items = append(items, boundsItem{bmin: bmin, bmax: bmax, i: i})
		}
		for i := int32(0); i < noffmesh; i++ {
			c := p.OffMeshCons[i]
			var bmin, bmax [3]uint16
			for k := 0; k < 2; k++ {
				x := uint16((c.Pos[k*3+0] - mesh.BMin[0]) * p.BvQuantFactor)
				y := uint16((c.Pos[k*3+1] - mesh.BMin[1]) * p.BvQuantFactor)
				z := uint16((c.Pos[k*3+2] - mesh.BMin[2]) * p.BvQuantFactor)
				if k == 0 {
					bmin, bmax = [3]uint16{x, y, z}, [3]uint16{x, y, z}
				} else {
					bmin, bmax = minU16(bmin, [3]uint16{x, y, z}), maxU16(bmax, [3]uint16{x, y, z})
				}
			}
			items = append(items, boundsItem{bmin: bmin, bmax: bmax, i: npolys + i})
		}
		bvtree = buildBvTree(items)
	}

	return header, polys, verts, detailMeshes, detailVerts, detailTris, bvtree, nil
}

// tileBorderSide reports whether the edge (v0,v1) of mesh runs along
// one of the tile's four outer sides, returning the Detour-style side
// index (0=+x, 1=+z, 2=-x, 3=-z) that a portal through it would use.
func tileBorderSide(mesh *polymesh.Mesh, v0, v1 uint16, minX, maxX, minZ, maxZ uint16) (int32, bool) {
	x0, z0 := mesh.Verts[v0*3+0], mesh.Verts[v0*3+2]
	x1, z1 := mesh.Verts[v1*3+0], mesh.Verts[v1*3+2]
	switch {
	case x0 == maxX && x1 == maxX:
		return 0, true
	case z0 == maxZ && z1 == maxZ:
		return 1, true
	case x0 == minX && x1 == minX:
		return 2, true
	case z0 == minZ && z1 == minZ:
		return 3, true
	}
	return 0, false
}

func minU16(a, b [3]uint16) [3]uint16 {
	for i := range a {
		if b[i] < a[i] {
			a[i] = b[i]
		}
	}
	return a
}

func maxU16(a, b [3]uint16) [3]uint16 {
	for i := range a {
		if b[i] > a[i] {
			a[i] = b[i]
		}
	}
	return a
}
