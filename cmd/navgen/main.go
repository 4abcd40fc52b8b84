// Command navgen builds a navigation mesh from a geometry JSON file and
// a build-config YAML file, writing the resulting mesh and a build
// diagnostics report to disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "navgen",
		Short: "Build and inspect navigation meshes",
	}
	root.AddCommand(buildCmd())
	root.AddCommand(inspectCmd())
	root.PersistentFlags().Bool("debug", false, "verbose console logging")
	return root
}
