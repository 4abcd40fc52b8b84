package navmesh

// encodePolyID packs a tile's salt, its slot index and a polygon index
// within that tile into one PolyRef.
func (nm *NavMesh) encodePolyID(salt uint32, tileIdx int32, polyIdx uint16) PolyRef {
	return PolyRef(salt)<<(nm.polyBits+nm.tileBits) |
		PolyRef(tileIdx)<<nm.polyBits |
		PolyRef(polyIdx)
}

// decodePolyID splits ref back into (salt, tileIdx, polyIdx).
func (nm *NavMesh) decodePolyID(ref PolyRef) (salt uint32, tileIdx int32, polyIdx uint16) {
	saltMask := (PolyRef(1) << nm.saltBits) - 1
	tileMask := (PolyRef(1) << nm.tileBits) - 1
	polyMask := (PolyRef(1) << nm.polyBits) - 1
	salt = uint32((ref >> (nm.polyBits + nm.tileBits)) & saltMask)
	tileIdx = int32((ref >> nm.polyBits) & tileMask)
	polyIdx = uint16(ref & polyMask)
	return
}

func (nm *NavMesh) decodePolyIDTile(ref PolyRef) int32 {
	tileMask := (PolyRef(1) << nm.tileBits) - 1
	return int32((ref >> nm.polyBits) & tileMask)
}

func (nm *NavMesh) decodePolyIDPoly(ref PolyRef) uint16 {
	polyMask := (PolyRef(1) << nm.polyBits) - 1
	return uint16(ref & polyMask)
}

// IsValidPolyRef reports whether ref still resolves to a live polygon:
// the tile slot must be in use, its salt must match, and the polygon
// index must be within range.
func (nm *NavMesh) IsValidPolyRef(ref PolyRef) bool {
	if ref == 0 {
		return false
	}
	salt, tileIdx, polyIdx := nm.decodePolyID(ref)
	if tileIdx < 0 || tileIdx >= int32(len(nm.tiles)) {
		return false
	}
	tile := &nm.tiles[tileIdx]
	if tile.Salt != salt || tile.Header == nil {
		return false
	}
	if int32(polyIdx) >= int32(len(tile.Polys)) {
		return false
	}
	return true
}

// TileAndPolyByRef resolves ref to its owning tile and polygon. ok is
// false if ref is stale or out of range.
func (nm *NavMesh) TileAndPolyByRef(ref PolyRef) (tile *Tile, poly *Poly, ok bool) {
	if ref == 0 {
		return nil, nil, false
	}
	salt, tileIdx, polyIdx := nm.decodePolyID(ref)
	if tileIdx < 0 || tileIdx >= int32(len(nm.tiles)) {
		return nil, nil, false
	}
	t := &nm.tiles[tileIdx]
	if t.Salt != salt || t.Header == nil || int32(polyIdx) >= int32(len(t.Polys)) {
		return nil, nil, false
	}
	return t, &t.Polys[polyIdx], true
}
