package navmesh

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPolyRefRoundTripProperty checks that encodePolyID/decodePolyID are
// inverse for every (salt, tileIdx, polyIdx) triple that fits the bit
// budget New() derived from MaxTiles/MaxPolys, regardless of the
// specific values chosen.
func TestPolyRefRoundTripProperty(t *testing.T) {
	nm := newTestMesh(t)
	maxTile := int32(1)<<nm.tileBits - 1
	maxPoly := uint16(1)<<nm.polyBits - 1
	maxSalt := uint32(1)<<nm.saltBits - 1

	rapid.Check(t, func(rt *rapid.T) {
		salt := rapid.Uint32Range(0, maxSalt).Draw(rt, "salt")
		tileIdx := rapid.Int32Range(0, maxTile).Draw(rt, "tileIdx")
		polyIdx := uint16(rapid.Uint32Range(0, uint32(maxPoly)).Draw(rt, "polyIdx"))

		ref := nm.encodePolyID(salt, tileIdx, polyIdx)
		gotSalt, gotTile, gotPoly := nm.decodePolyID(ref)
		if gotSalt != salt || gotTile != tileIdx || gotPoly != polyIdx {
			rt.Fatalf("round trip mismatch: got (%d,%d,%d), want (%d,%d,%d)",
				gotSalt, gotTile, gotPoly, salt, tileIdx, polyIdx)
		}
	})
}
