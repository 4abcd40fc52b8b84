package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wayfarer-nav/navmesh/navmesh"
)

func inspectCmd() *cobra.Command {
	var meshPath, format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print summary statistics for a built navigation mesh",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(meshPath)
			if err != nil {
				return fmt.Errorf("opening mesh: %w", err)
			}
			defer f.Close()

			var nm *navmesh.NavMesh
			if strings.EqualFold(format, "yaml") {
				nm, err = navmesh.ReadYAML(f)
			} else {
				nm, err = navmesh.ReadJSON(f)
			}
			if err != nil {
				return fmt.Errorf("reading mesh: %w", err)
			}

			var tiles, polys, verts int32
			for i := int32(0); i < nm.TileCount(); i++ {
				t := nm.TileByIndex(i)
				if t.Header == nil {
					continue
				}
				tiles++
				polys += t.Header.PolyCount
				verts += t.Header.VertCount
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tiles=%d polys=%d verts=%d\n", tiles, polys, verts)
			return nil
		},
	}
	cmd.Flags().StringVar(&meshPath, "mesh", "", "mesh file to inspect (required)")
	cmd.Flags().StringVar(&format, "format", "json", "mesh format: json or yaml")
	cmd.MarkFlagRequired("mesh")
	return cmd
}
