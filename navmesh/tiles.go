package navmesh

import (
	"fmt"

	"github.com/arl/math32"
)

// AddTile installs a packed tile (as produced by PackTile) at its grid
// coordinates, wires its internal polygon adjacency, attaches its
// off-mesh connections to the nearest polygon at each endpoint, and
// connects it to any already-present neighbour tiles across shared
// portals. Returns the reference of the tile's first polygon slot,
// from which every other PolyRef in the tile can be derived.
func (nm *NavMesh) AddTile(header *Header, polys []Poly, verts []float32,
	detailMeshes []PolyDetail, detailVerts []float32, detailTris []uint8,
	bvtree []BvNode, offMeshCons []OffMeshConnection) (PolyRef, error) {

	key := [3]int32{header.X, header.Y, header.Layer}
	if _, exists := nm.tileLUT[key]; exists {
		return 0, fmt.Errorf("navmesh: tile (%d,%d,%d) already present", header.X, header.Y, header.Layer)
	}

	slot := nm.freeTileSlot()
	if slot < 0 {
		return 0, fmt.Errorf("navmesh: no free tile slots (MaxTiles=%d)", len(nm.tiles))
	}

	t := &nm.tiles[slot]
	t.Header = header
	t.Polys = polys
	t.Verts = verts
	t.DetailMeshes = detailMeshes
	t.DetailVerts = detailVerts
	t.DetailTris = detailTris
	t.BvTree = bvtree
	t.OffMeshCons = offMeshCons
	t.Links = make([]Link, 0, len(polys)*VertsPerPolygon)
	t.linksFreeList = nullLink
	for i := range t.Polys {
		t.Polys[i].FirstLink = nullLink
	}

	nm.tileLUT[key] = t.index

	nm.connectIntLinks(t)
	nm.baseOffMeshLinks(t)

	for side := int32(0); side < 4; side++ {
		nm.connectExtLinks(t, side)
		if nbr := nm.neighbourTile(t.Header, side); nbr != nil {
			nm.connectExtLinks(nbr, oppositeSide(side))
		}
	}

	base := nm.encodePolyID(t.Salt, t.index, 0)
	return base, nil
}

// RemoveTile frees the tile at (x,y,layer): every PolyRef issued for it
// is invalidated by bumping its salt, so a stale ref held by a caller
// is safely rejected rather than silently resolving to whatever tile
// later reuses the slot.
func (nm *NavMesh) RemoveTile(x, y, layer int32) error {
	key := [3]int32{x, y, layer}
	slot, ok := nm.tileLUT[key]
	if !ok {
		return fmt.Errorf("navmesh: no tile at (%d,%d,%d)", x, y, layer)
	}
	t := &nm.tiles[slot]

	for side := int32(0); side < 4; side++ {
		nm.unconnectExtLinks(t, side)
	}

	t.Salt++
	if t.Salt == 0 {
		t.Salt = 1
	}
	t.Header = nil
	t.Polys = nil
	t.Verts = nil
	t.Links = nil
	t.DetailMeshes = nil
	t.DetailVerts = nil
	t.DetailTris = nil
	t.BvTree = nil
	t.OffMeshCons = nil
	delete(nm.tileLUT, key)
	return nil
}

func (nm *NavMesh) freeTileSlot() int32 {
	for i := range nm.tiles {
		if nm.tiles[i].Header == nil {
			return int32(i)
		}
	}
	return -1
}

func (nm *NavMesh) allocLink(t *Tile) uint32 {
	t.Links = append(t.Links, Link{})
	return uint32(len(t.Links) - 1)
}

func (nm *NavMesh) connectIntLinks(t *Tile) {
	for i := range t.Polys {
		poly := &t.Polys[i]
		if poly.Type() == PolyTypeOffMeshConnection {
			continue
		}
		for j := uint8(0); j < poly.VertCount; j++ {
			nei := poly.Neis[j]
			if nei == 0 || nei&extLink != 0 {
				continue
			}
			targetIdx := nei - 1
			li := nm.allocLink(t)
			t.Links[li].Ref = nm.encodePolyID(t.Salt, t.index, targetIdx)
			t.Links[li].Edge = j
			t.Links[li].Side = 0xff
			t.Links[li].Bmin, t.Links[li].Bmax = 0, 0
			t.Links[li].Next = poly.FirstLink
			poly.FirstLink = li
		}
	}
}

// baseOffMeshLinks attaches every off-mesh connection of t to the
// nearest ground polygon at each endpoint, within the connection's
// radius, so a query can step on or off it like any other edge.
func (nm *NavMesh) baseOffMeshLinks(t *Tile) {
	if t.Header == nil {
		return
	}
	base := t.Header.OffMeshBase
	for i := int32(0); i < t.Header.OffMeshConCount; i++ {
		con := &t.OffMeshCons[i]
		poly := &t.Polys[base+i]
		for end := 0; end < 2; end++ {
			pos := con.Pos[end*3 : end*3+3]
			ref, nearest, ok := nm.findNearestPolyInTile(t, pos, [3]float32{con.Rad, con.Rad, con.Rad})
			if !ok {
				continue
			}
			dx, dz := nearest[0]-pos[0], nearest[2]-pos[2]
			if dx*dx+dz*dz > con.Rad*con.Rad {
				continue
			}
			li := nm.allocLink(t)
			t.Links[li].Ref = ref
			t.Links[li].Edge = uint8(end)
			t.Links[li].Side = 0xff
			t.Links[li].Next = poly.FirstLink
			poly.FirstLink = li
			copy(con.Pos[end*3:end*3+3], nearest[:])

			// The start end-point is always connected back to the
			// off-mesh connection; the end end-point only for a
			// bidirectional connection, so a one-way START_TO_END
			// link can't be entered from its finish side.
			if end == 0 || con.Flags&OffMeshConBidir != 0 {
				if nbrTile, nbrPoly, ok2 := nm.TileAndPolyByRef(ref); ok2 {
					li2 := nm.allocLink(nbrTile)
					nbrTile.Links[li2].Ref = nm.encodePolyID(t.Salt, t.index, uint16(base+i))
					nbrTile.Links[li2].Edge = uint8(1 - end)
					nbrTile.Links[li2].Side = 0xff
					nbrTile.Links[li2].Next = nbrPoly.FirstLink
					nbrPoly.FirstLink = li2
				}
			}
		}
	}
}

// neighbourTile returns the tile adjacent to h across side, or nil if
// that grid slot is unoccupied.
func (nm *NavMesh) neighbourTile(h *Header, side int32) *Tile {
	nx, ny := h.X, h.Y
	switch side {
	case 0:
		nx++
	case 1:
		ny++
	case 2:
		nx--
	case 3:
		ny--
	}
	return nm.TileAt(nx, ny, h.Layer)
}

// connectExtLinks wires one-way portal links from t to its neighbour
// across side. AddTile calls this once per side for t and once more
// for the neighbour (with the opposite side) so both directions end up
// wired; calling it from only one side leaves the reverse tile unable
// to cross back into t.
func (nm *NavMesh) connectExtLinks(t *Tile, side int32) {
	nbr := nm.neighbourTile(t.Header, side)
	if nbr == nil {
		return
	}
	opposite := uint8(oppositeSide(side))

	for i := range t.Polys {
		poly := &t.Polys[i]
		for j := uint8(0); j < poly.VertCount; j++ {
			if poly.Neis[j]&extLink == 0 || int32(poly.Neis[j]&0xff) != side {
				continue
			}
			va := poly.Verts[j]
			vb := poly.Verts[(int(j)+1)%int(poly.VertCount)]
			amin, amax := portalInterval(t, va, vb, side)

			for k := range nbr.Polys {
				npoly := &nbr.Polys[k]
				for jj := uint8(0); jj < npoly.VertCount; jj++ {
					if npoly.Neis[jj]&extLink == 0 || uint8(npoly.Neis[jj]&0xff) != opposite {
						continue
					}
					nva := npoly.Verts[jj]
					nvb := npoly.Verts[(int(jj)+1)%int(npoly.VertCount)]
					bmin, bmax := portalInterval(nbr, nva, nvb, int32(opposite))
					lo, hi := math32.Max(amin, bmin), math32.Min(amax, bmax)
					if lo >= hi {
						continue
					}
					li := nm.allocLink(t)
					t.Links[li].Ref = nm.encodePolyID(nbr.Salt, nbr.index, uint16(k))
					t.Links[li].Edge = j
					t.Links[li].Side = uint8(side)
					t.Links[li].Bmin, t.Links[li].Bmax = scaleToByte(lo, amin, amax), scaleToByte(hi, amin, amax)
					t.Links[li].Next = poly.FirstLink
					poly.FirstLink = li
				}
			}
		}
	}
}

func (nm *NavMesh) unconnectExtLinks(t *Tile, side int32) {
	nbr := nm.neighbourTile(t.Header, side)
	if nbr == nil {
		return
	}
	for i := range nbr.Polys {
		poly := &nbr.Polys[i]
		var kept uint32 = nullLink
		for li := poly.FirstLink; li != nullLink; {
			next := nbr.Links[li].Next
			tileIdx := nm.decodePolyIDTile(nbr.Links[li].Ref)
			if tileIdx == t.index {
				li = next
				continue
			}
			nbr.Links[li].Next = kept
			kept = li
			li = next
		}
		poly.FirstLink = kept
	}
}

func oppositeSide(side int32) int32 { return (side + 2) % 4 }

// portalInterval returns the [lo,hi] extent of edge (va,vb) along the
// axis the given side's portal plane runs on (z for sides 0/2, x for
// sides 1/3).
func portalInterval(t *Tile, va, vb uint16, side int32) (lo, hi float32) {
	var a, b float32
	if side == 0 || side == 2 {
		a, b = t.Verts[va*3+2], t.Verts[vb*3+2]
	} else {
		a, b = t.Verts[va*3+0], t.Verts[vb*3+0]
	}
	if a > b {
		a, b = b, a
	}
	return a, b
}

func scaleToByte(v, lo, hi float32) uint8 {
	if hi <= lo {
		return 0
	}
	t := (v - lo) / (hi - lo)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return uint8(t * 255)
}
