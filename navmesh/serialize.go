package navmesh

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// wireTile is the serializable form of a Tile: everything AddTile
// needs, minus the runtime-only Links/linksFreeList the mesh rebuilds
// from adjacency on load.
type wireTile struct {
	Header       Header              `json:"header" yaml:"header"`
	Polys        []Poly              `json:"polys" yaml:"polys"`
	Verts        []float32           `json:"verts" yaml:"verts"`
	DetailMeshes []PolyDetail        `json:"detailMeshes,omitempty" yaml:"detailMeshes,omitempty"`
	DetailVerts  []float32           `json:"detailVerts,omitempty" yaml:"detailVerts,omitempty"`
	DetailTris   []uint8             `json:"detailTris,omitempty" yaml:"detailTris,omitempty"`
	BvTree       []BvNode            `json:"bvTree,omitempty" yaml:"bvTree,omitempty"`
	OffMeshCons  []OffMeshConnection `json:"offMeshCons,omitempty" yaml:"offMeshCons,omitempty"`
}

// wireMesh is the full on-disk representation of a NavMesh.
type wireMesh struct {
	Params Params     `json:"params" yaml:"params"`
	Tiles  []wireTile `json:"tiles" yaml:"tiles"`
}

func (nm *NavMesh) toWire() wireMesh {
	w := wireMesh{Params: nm.params}
	for i := range nm.tiles {
		t := &nm.tiles[i]
		if t.Header == nil {
			continue
		}
		w.Tiles = append(w.Tiles, wireTile{
			Header:       *t.Header,
			Polys:        t.Polys,
			Verts:        t.Verts,
			DetailMeshes: t.DetailMeshes,
			DetailVerts:  t.DetailVerts,
			DetailTris:   t.DetailTris,
			BvTree:       t.BvTree,
			OffMeshCons:  t.OffMeshCons,
		})
	}
	return w
}

// fromWire rebuilds a NavMesh by re-running AddTile for every tile, so
// the normal link-wiring path (internal adjacency, off-mesh attachment,
// cross-tile portals) runs exactly as it did at build time.
func fromWire(w wireMesh) (*NavMesh, error) {
	nm, err := New(w.Params)
	if err != nil {
		return nil, err
	}
	for _, wt := range w.Tiles {
		h := wt.Header
		if _, err := nm.AddTile(&h, wt.Polys, wt.Verts, wt.DetailMeshes, wt.DetailVerts, wt.DetailTris, wt.BvTree, wt.OffMeshCons); err != nil {
			return nil, fmt.Errorf("navmesh: loading tile (%d,%d,%d): %w", h.X, h.Y, h.Layer, err)
		}
	}
	return nm, nil
}

// WriteJSON serializes the mesh as JSON.
func (nm *NavMesh) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(nm.toWire())
}

// ReadJSON deserializes a mesh previously written by WriteJSON.
func ReadJSON(r io.Reader) (*NavMesh, error) {
	var w wireMesh
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("navmesh: decoding JSON: %w", err)
	}
	return fromWire(w)
}

// WriteYAML serializes the mesh as YAML.
func (nm *NavMesh) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(nm.toWire())
}

// ReadYAML deserializes a mesh previously written by WriteYAML.
func ReadYAML(r io.Reader) (*NavMesh, error) {
	var w wireMesh
	if err := yaml.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("navmesh: decoding YAML: %w", err)
	}
	return fromWire(w)
}
