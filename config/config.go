// Package config defines the YAML-loadable build configuration: the
// set of voxelization, filtering, region, and mesh-simplification knobs
// a caller tunes per agent size and terrain instead of hardcoding them
// alongside the pipeline stages.
package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/wayfarer-nav/navmesh/region"
)

// Build holds every tunable of one end-to-end build, mirroring recastConfig
// from the rasterizer through to the runtime tile's agent dimensions.
type Build struct {
	CellSize   float32 `yaml:"cellSize"`
	CellHeight float32 `yaml:"cellHeight"`

	WalkableSlopeDeg float32 `yaml:"walkableSlopeDeg"`
	WalkableHeight   int32   `yaml:"walkableHeight"`  // voxels
	WalkableClimb    int32   `yaml:"walkableClimb"`   // voxels
	WalkableRadius   int32   `yaml:"walkableRadius"`  // voxels

	MaxEdgeLen     int32   `yaml:"maxEdgeLen"`
	MaxSimplificationError float32 `yaml:"maxSimplificationError"`
	MinRegionArea  int32   `yaml:"minRegionArea"`
	MergeRegionArea int32  `yaml:"mergeRegionArea"`
	MaxVertsPerPoly int32  `yaml:"maxVertsPerPoly"`

	DetailSampleDist      float32 `yaml:"detailSampleDist"`
	DetailSampleMaxError  float32 `yaml:"detailSampleMaxError"`

	PartitionStrategy string `yaml:"partitionStrategy"` // "watershed" | "monotone" | "layers"

	TileSize   int32 `yaml:"tileSize"`   // voxels; 0 disables tiling (single tile covers whole input)
	BorderSize int32 `yaml:"borderSize"` // voxels of non-navigable rim painted around each tile

	AgentMaxSlopeDeg float32 `yaml:"agentMaxSlopeDeg"`
	AgentHeight      float32 `yaml:"agentHeight"`
	AgentRadius      float32 `yaml:"agentRadius"`
	AgentMaxClimb    float32 `yaml:"agentMaxClimb"`
}

// Default returns a Build config with reasonable values for a
// human-scale agent on a 0.3 unit voxel grid.
func Default() Build {
	return Build{
		CellSize:               0.3,
		CellHeight:             0.2,
		WalkableSlopeDeg:       45,
		WalkableHeight:         10,
		WalkableClimb:          4,
		WalkableRadius:         2,
		MaxEdgeLen:             40,
		MaxSimplificationError: 1.3,
		MinRegionArea:          64,
		MergeRegionArea:        400,
		MaxVertsPerPoly:        6,
		DetailSampleDist:       6,
		DetailSampleMaxError:   1,
		PartitionStrategy:      "watershed",
		TileSize:               0,
		BorderSize:             0,
		AgentMaxSlopeDeg:       45,
		AgentHeight:            2.0,
		AgentRadius:            0.6,
		AgentMaxClimb:          0.8,
	}
}

// Strategy resolves PartitionStrategy to a region.Strategy.
func (b Build) Strategy() (region.Strategy, error) {
	switch b.PartitionStrategy {
	case "", "watershed":
		return region.Watershed, nil
	case "monotone":
		return region.Monotone, nil
	case "layers":
		return region.Layers, nil
	default:
		return 0, fmt.Errorf("config: unknown partitionStrategy %q", b.PartitionStrategy)
	}
}

// Load decodes a Build config from YAML, filling any zero-valued field
// left unset in the document from Default().
func Load(r io.Reader) (Build, error) {
	b := Default()
	if err := yaml.NewDecoder(r).Decode(&b); err != nil && err != io.EOF {
		return Build{}, fmt.Errorf("config: decoding YAML: %w", err)
	}
	return b, nil
}

// Write encodes b as YAML.
func (b Build) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(b)
}
