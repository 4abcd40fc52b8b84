package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/config"
	"github.com/wayfarer-nav/navmesh/internal/geomio"
	"github.com/wayfarer-nav/navmesh/pipeline"
)

func buildCmd() *cobra.Command {
	var geomPath, cfgPath, outPath, reportPath, format string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a navigation mesh from a geometry file and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")

			geomFile, err := os.Open(geomPath)
			if err != nil {
				return fmt.Errorf("opening geometry: %w", err)
			}
			defer geomFile.Close()
			geom, err := geomio.Load(geomFile)
			if err != nil {
				return err
			}

			cfg := config.Default()
			if cfgPath != "" {
				cfgFile, err := os.Open(cfgPath)
				if err != nil {
					return fmt.Errorf("opening config: %w", err)
				}
				defer cfgFile.Close()
				cfg, err = config.Load(cfgFile)
				if err != nil {
					return err
				}
			}

			buildID := uuid.New()
			ctx := buildlog.New(buildlog.NewConsoleSink(debug))
			ctx.Infof("build_start", "build %s starting", buildID)
			nm, results, err := pipeline.Build(ctx, geom, cfg)
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer out.Close()
			switch format {
			case "yaml":
				err = nm.WriteYAML(out)
			default:
				err = nm.WriteJSON(out)
			}
			if err != nil {
				return fmt.Errorf("writing mesh: %w", err)
			}

			if reportPath != "" {
				report, err := os.Create(reportPath)
				if err != nil {
					return fmt.Errorf("creating report: %w", err)
				}
				defer report.Close()
				enc := json.NewEncoder(report)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					BuildID  string             `json:"buildId"`
					Tiles    int                `json:"tiles"`
					Messages []buildlog.Message `json:"messages"`
					Timings  []buildlog.Timing  `json:"timings"`
				}{buildID.String(), len(results), ctx.Messages(), ctx.Timings()}); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
			}

			if ctx.HasErrors() {
				return fmt.Errorf("build completed with errors, see report")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built %d tile(s) -> %s\n", len(results), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&geomPath, "geom", "", "geometry JSON file (required)")
	cmd.Flags().StringVar(&cfgPath, "config", "", "build config YAML file")
	cmd.Flags().StringVar(&outPath, "out", "navmesh.json", "output mesh file")
	cmd.Flags().StringVar(&reportPath, "report", "", "optional build diagnostics JSON file")
	cmd.Flags().StringVar(&format, "format", "json", "output mesh format: json or yaml")
	cmd.MarkFlagRequired("geom")
	return cmd
}
