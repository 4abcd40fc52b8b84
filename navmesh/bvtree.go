package navmesh

import "sort"

// boundsItem is a polygon's quantized AABB awaiting insertion into a
// tile's BV tree.
type boundsItem struct {
	bmin, bmax [3]uint16
	i          int32
}

// buildBvTree computes a bounding-volume tree over polys (whose bounds
// are given in quantized tile-local units) by recursively splitting the
// item list on its longest axis's median, the same way a k-d tree would
// but flattened into a single slice with escape-index interior nodes so
// traversal needs no recursion at query time.
func buildBvTree(items []boundsItem) []BvNode {
	if len(items) == 0 {
		return nil
	}
	nodes := make([]BvNode, 0, len(items)*2)
	subdivide(items, &nodes)
	return nodes
}

func calcExtents(items []boundsItem) (bmin, bmax [3]uint16) {
	bmin, bmax = items[0].bmin, items[0].bmax
	for _, it := range items[1:] {
		for a := 0; a < 3; a++ {
			if it.bmin[a] < bmin[a] {
				bmin[a] = it.bmin[a]
			}
			if it.bmax[a] > bmax[a] {
				bmax[a] = it.bmax[a]
			}
		}
	}
	return
}

func longestAxis(bmin, bmax [3]uint16) int {
	axis := 0
	maxLen := bmax[0] - bmin[0]
	if d := bmax[2] - bmin[2]; d > maxLen {
		axis, maxLen = 2, d
	}
	if d := bmax[1] - bmin[1]; d > maxLen {
		axis = 1
	}
	return axis
}

// subdivide appends the node for items (and, recursively, its whole
// subtree) to nodes, returning the number of nodes it added so the
// caller can set an interior node's escape-count (I) correctly.
func subdivide(items []boundsItem, nodes *[]BvNode) int32 {
	bmin, bmax := calcExtents(items)

	if len(items) == 1 {
		*nodes = append(*nodes, BvNode{Bmin: bmin, Bmax: bmax, I: -items[0].i - 1})
		return 1
	}

	axis := longestAxis(bmin, bmax)
	sort.Slice(items, func(i, j int) bool { return items[i].bmin[axis] < items[j].bmin[axis] })
	split := len(items) / 2

	idx := len(*nodes)
	*nodes = append(*nodes, BvNode{Bmin: bmin, Bmax: bmax})
	n := int32(1)
	n += subdivide(items[:split], nodes)
	n += subdivide(items[split:], nodes)
	(*nodes)[idx].I = n
	return n
}

// quantizeBounds maps a float point into the tile's quantized integer
// space used by the BV tree, truncating toward zero and clamping each
// coordinate to [0, 65535].
func quantizeBounds(p, tbmin [3]float32, quantFactor float32) [3]uint16 {
	return [3]uint16{
		uint16(clampF((p[0]-tbmin[0])*quantFactor, 0, 65535)),
		uint16(clampF((p[1]-tbmin[1])*quantFactor, 0, 65535)),
		uint16(clampF((p[2]-tbmin[2])*quantFactor, 0, 65535)),
	}
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
