// Package geomio loads the flat vertex/triangle buffers the build
// pipeline consumes, from a small JSON document rather than a 3D
// interchange format: walkability here is a function of voxelized
// slope, not of material names or scene graphs, so there is nothing a
// mesh-interchange parser would buy the pipeline that a plain array of
// floats doesn't already provide.
package geomio

import (
	"encoding/json"
	"fmt"
	"io"
)

// Mesh is raw input geometry: Verts is a flat (x,y,z)*N array and Tris
// indexes into it three at a time. Areas, if present, pre-assigns a
// per-triangle area id (otherwise the caller derives it from slope).
type Mesh struct {
	Verts []float32 `json:"verts"`
	Tris  []int32   `json:"tris"`
	Areas []uint8   `json:"areas,omitempty"`
}

// Load decodes a Mesh from JSON and checks basic well-formedness.
func Load(r io.Reader) (*Mesh, error) {
	var m Mesh
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("geomio: decoding geometry: %w", err)
	}
	if len(m.Verts)%3 != 0 {
		return nil, fmt.Errorf("geomio: Verts length %d is not a multiple of 3", len(m.Verts))
	}
	if len(m.Tris)%3 != 0 {
		return nil, fmt.Errorf("geomio: Tris length %d is not a multiple of 3", len(m.Tris))
	}
	nverts := int32(len(m.Verts) / 3)
	for i, idx := range m.Tris {
		if idx < 0 || idx >= nverts {
			return nil, fmt.Errorf("geomio: Tris[%d]=%d out of range [0,%d)", i, idx, nverts)
		}
	}
	if len(m.Areas) != 0 && len(m.Areas) != len(m.Tris)/3 {
		return nil, fmt.Errorf("geomio: Areas length %d does not match triangle count %d", len(m.Areas), len(m.Tris)/3)
	}
	return &m, nil
}

// NumTriangles returns the number of triangles in the mesh.
func (m *Mesh) NumTriangles() int32 { return int32(len(m.Tris) / 3) }

// Bounds returns the mesh's axis-aligned bounding box.
func (m *Mesh) Bounds() (bmin, bmax [3]float32) {
	if len(m.Verts) == 0 {
		return
	}
	bmin = [3]float32{m.Verts[0], m.Verts[1], m.Verts[2]}
	bmax = bmin
	for i := 0; i < len(m.Verts); i += 3 {
		for a := 0; a < 3; a++ {
			if m.Verts[i+a] < bmin[a] {
				bmin[a] = m.Verts[i+a]
			}
			if m.Verts[i+a] > bmax[a] {
				bmax[a] = m.Verts[i+a]
			}
		}
	}
	return
}
