package voxel

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/wayfarer-nav/navmesh/buildlog"
)

// TestErodeWalkableAreaIsMonotoneInRadius checks that eroding with a
// larger radius never re-opens a span a smaller radius already closed:
// the set of non-walkable spans only grows as radius increases.
func TestErodeWalkableAreaIsMonotoneInRadius(t *testing.T) {
	_, chf := buildFlatCompact(t)
	areaSnapshot := append([]uint8(nil), chf.Areas...)
	ctx := buildlog.Disabled()

	rapid.Check(t, func(rt *rapid.T) {
		r := rapid.IntRange(0, 4).Draw(rt, "r")

		chfSmall := *chf
		chfSmall.Areas = append([]uint8(nil), areaSnapshot...)
		chfSmall.Spans = append([]CompactSpan(nil), chf.Spans...)
		ErodeWalkableArea(ctx, int32(r), &chfSmall)

		chfLarge := *chf
		chfLarge.Areas = append([]uint8(nil), areaSnapshot...)
		chfLarge.Spans = append([]CompactSpan(nil), chf.Spans...)
		ErodeWalkableArea(ctx, int32(r+1), &chfLarge)

		for i := range chfSmall.Areas {
			if chfSmall.Areas[i] == NullArea && chfLarge.Areas[i] != NullArea {
				rt.Fatalf("span %d closed at radius %d must stay closed at radius %d", i, r, r+1)
			}
		}
	})
}
