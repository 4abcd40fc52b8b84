package navmesh

import (
	"fmt"

	"github.com/katalvlaran/lvlath/core"
)

// AdjacencyGraph exports the current poly/link graph as a weighted,
// directed core.Graph: one vertex per present polygon and at most one
// edge per linked ordered pair of polygons, weighted by the squared
// distance between the two polygons' centroids (truncated to an
// integer). It is
// meant for offline diagnostics (connectivity checks, dumping to a
// graph-analysis tool) rather than anything the runtime queries read.
func (nm *NavMesh) AdjacencyGraph() (*core.Graph, error) {
	g := core.NewGraph(core.WithDirected(true), core.WithWeighted())

	for i := range nm.tiles {
		t := &nm.tiles[i]
		if t.Header == nil {
			continue
		}
		for p := int32(0); p < t.Header.PolyCount; p++ {
			ref := nm.encodePolyID(t.Salt, t.index, uint16(p))
			if err := g.AddVertex(vertexID(ref)); err != nil {
				return nil, fmt.Errorf("navmesh: adding vertex for poly %d: %w", p, err)
			}
		}
	}

	for i := range nm.tiles {
		t := &nm.tiles[i]
		if t.Header == nil {
			continue
		}
		for p := int32(0); p < t.Header.PolyCount; p++ {
			fromRef := nm.encodePolyID(t.Salt, t.index, uint16(p))
			poly := &t.Polys[p]
			for li := poly.FirstLink; li != nullLink; li = t.Links[li].Next {
				link := t.Links[li]
				weight := int64(1)
				if toTile, toPoly, ok := nm.TileAndPolyByRef(link.Ref); ok {
					weight = int64(polyCentroidDist(t, poly, toTile, toPoly))
				}
				if !g.HasEdge(vertexID(fromRef), vertexID(link.Ref)) {
					if _, err := g.AddEdge(vertexID(fromRef), vertexID(link.Ref), weight); err != nil {
						return nil, fmt.Errorf("navmesh: linking poly %d: %w", p, err)
					}
				}
			}
		}
	}
	return g, nil
}

func vertexID(ref PolyRef) string {
	return fmt.Sprintf("poly-%d", uint64(ref))
}

func polyCentroidDist(fromTile *Tile, from *Poly, toTile *Tile, to *Poly) float32 {
	fc := polyCenter(fromTile, from)
	tc := polyCenter(toTile, to)
	dx, dy, dz := fc[0]-tc[0], fc[1]-tc[1], fc[2]-tc[2]
	return dx*dx + dy*dy + dz*dz
}

func polyCenter(t *Tile, p *Poly) [3]float32 {
	var c [3]float32
	n := int(p.VertCount)
	if n == 0 {
		return c
	}
	for i := 0; i < n; i++ {
		vi := p.Verts[i]
		c[0] += t.Verts[int(vi)*3+0]
		c[1] += t.Verts[int(vi)*3+1]
		c[2] += t.Verts[int(vi)*3+2]
	}
	inv := 1 / float32(n)
	c[0] *= inv
	c[1] *= inv
	c[2] *= inv
	return c
}
