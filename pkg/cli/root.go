// Package cli implements the geoseed command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"geoseed/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "geoseed",
		Short:         "Seed a PostGIS database from declarative asset manifests",
		Long:          "geoseed fetches the vector and raster layers named in YAML manifests and loads them into PostGIS through shp2pgsql and raster2pgsql.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Env vars take precedence over the .env file.
			return config.LoadDotEnv(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file loaded before configuration")

	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
