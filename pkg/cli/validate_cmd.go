package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"geoseed/internal/config"
	"geoseed/internal/domain"
	"geoseed/internal/fetch"
	"geoseed/internal/manifest"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the manifests and check locations without fetching or loading",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	// Builds the transfer clients for the configured credentials so scheme
	// support can be checked, but performs no transfers.
	fetcher, err := fetch.New(cmd.Context(), credentialsFromConfig(cfg), fetch.Options{}, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var problems int
	for _, class := range []domain.AssetClass{domain.AssetClassVector, domain.AssetClassRaster} {
		path, defaults := classManifest(cfg, class)
		assets, err := manifest.ParseFile(path, class, defaults)
		if err != nil {
			return err
		}
		if assets == nil {
			fmt.Fprintf(out, "%s: no manifest at %s (nothing to load)\n", class, path)
			continue
		}
		fmt.Fprintf(out, "%s: %d asset(s) in %s\n", class, len(assets), path)
		for i := range assets {
			a := &assets[i]
			if err := fetcher.Supports(a.Location); err != nil {
				fmt.Fprintf(out, "  %s -> %s  PROBLEM: %v\n", a.Name, a.QualifiedTable(), err)
				problems++
				continue
			}
			fmt.Fprintf(out, "  %s -> %s (srid %d)\n", a.Name, a.QualifiedTable(), a.SRID)
		}
	}

	if problems > 0 {
		return fmt.Errorf("validation found %d problem(s)", problems)
	}
	return nil
}
