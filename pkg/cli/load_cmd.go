package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"geoseed/internal/config"
	"geoseed/internal/domain"
	"geoseed/internal/fetch"
	"geoseed/internal/manifest"
	"geoseed/internal/pgload"
	"geoseed/internal/seed"
)

func newLoadCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:       "load {vector|raster|all}",
		Short:     "Fetch and load the assets of one or both classes",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"vector", "raster", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print converter invocations without fetching or loading")
	return cmd
}

func runLoad(cmd *cobra.Command, selector string, dryRun bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	assetsByClass := make(map[domain.AssetClass][]domain.Asset)
	for _, class := range selectedClasses(selector) {
		assets, err := parseClassManifest(cfg, class, logger)
		if err != nil {
			return err
		}
		assetsByClass[class] = assets
	}

	if dryRun {
		printPlan(cmd, selectedClasses(selector), assetsByClass)
		return nil
	}

	if err := cfg.DB.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	// Run-scoped temp dir: individual artifacts are released per asset, the
	// directory itself catches anything an interrupt left behind.
	tempDir, err := os.MkdirTemp("", "geoseed-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir) //nolint:errcheck

	fetcher, err := fetch.New(ctx, credentialsFromConfig(cfg), fetch.Options{
		TempDir:  tempDir,
		Attempts: cfg.FetchAttempts,
		Timeout:  cfg.FetchTimeout,
	}, logger)
	if err != nil {
		return err
	}

	loader := pgload.NewLoader(pgload.LoaderDeps{
		DB:      cfg.DB,
		Timeout: cfg.LoadTimeout,
		Logger:  logger,
	})

	// Missing tooling for any selected class is a startup failure: a broken
	// raster toolchain must surface before the vector pass does any work.
	var active []domain.AssetClass
	for _, class := range selectedClasses(selector) {
		if len(assetsByClass[class]) > 0 {
			active = append(active, class)
		}
	}
	if len(active) > 0 {
		if err := loader.Preflight(active...); err != nil {
			return err
		}
	}

	orch := seed.New(seed.Deps{
		Fetcher: fetcher,
		Loader:  loader,
		Workers: cfg.FetchWorkers,
		Logger:  logger,
	})

	for _, class := range selectedClasses(selector) {
		summary, err := orch.Run(ctx, class, assetsByClass[class])
		summary.Log(logger)
		if err != nil {
			return err
		}
	}
	return nil
}

// selectedClasses keeps vector before raster so "all" matches the original
// two-pass seeding order.
func selectedClasses(selector string) []domain.AssetClass {
	switch selector {
	case "vector":
		return []domain.AssetClass{domain.AssetClassVector}
	case "raster":
		return []domain.AssetClass{domain.AssetClassRaster}
	default:
		return []domain.AssetClass{domain.AssetClassVector, domain.AssetClassRaster}
	}
}

func parseClassManifest(cfg *config.Config, class domain.AssetClass, logger *slog.Logger) ([]domain.Asset, error) {
	path, defaults := classManifest(cfg, class)
	assets, err := manifest.ParseFile(path, class, defaults)
	if err != nil {
		return nil, err
	}
	if class == domain.AssetClassVector {
		for i := range assets {
			if assets[i].SRID != cfg.VectorDefaultSRID {
				logger.Warn("vector asset overrides the class-wide SRID",
					"asset", assets[i].Name, "srid", assets[i].SRID, "default", cfg.VectorDefaultSRID)
			}
		}
	}
	return assets, nil
}

func classManifest(cfg *config.Config, class domain.AssetClass) (path string, defaults manifest.Defaults) {
	if class == domain.AssetClassRaster {
		return cfg.RasterManifestPath, manifest.Defaults{
			Schema:   cfg.RasterSchema,
			SRID:     4326,
			TileSize: "256x256",
		}
	}
	return cfg.VectorManifestPath, manifest.Defaults{
		Schema: cfg.VectorSchema,
		SRID:   cfg.VectorDefaultSRID,
	}
}

func credentialsFromConfig(cfg *config.Config) fetch.Credentials {
	creds := fetch.Credentials{
		GCSKeyFile:   cfg.GCSKeyFile,
		GCSAnonymous: cfg.GCSAnonymous,
	}
	if cfg.HasS3Config() {
		creds.S3 = &fetch.S3Credentials{
			KeyID:    *cfg.S3KeyID,
			Secret:   *cfg.S3Secret,
			Endpoint: *cfg.S3Endpoint,
			Region:   *cfg.S3Region,
		}
	}
	if cfg.HasAzureConfig() {
		creds.Azure = &fetch.AzureCredentials{
			AccountName: cfg.AzureAccountName,
			AccountKey:  cfg.AzureAccountKey,
		}
	}
	return creds
}

func printPlan(cmd *cobra.Command, classes []domain.AssetClass, assetsByClass map[domain.AssetClass][]domain.Asset) {
	out := cmd.OutOrStdout()
	for _, class := range classes {
		assets := assetsByClass[class]
		if len(assets) == 0 {
			fmt.Fprintf(out, "%s: nothing to load\n", class)
			continue
		}
		for i := range assets {
			a := &assets[i]
			args := pgload.ConverterArgs(a, "<artifact>")
			fmt.Fprintf(out, "%s: %s %s | psql  # from %s\n",
				class, pgload.ConverterTool(class), strings.Join(args, " "), a.Location)
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}
