// Package seed orchestrates the manifest-driven load pipeline: it walks the
// asset list of one class, drives fetch and load for each asset, applies the
// class failure policy, and produces an ordered run summary.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"geoseed/internal/domain"
)

// Fetcher resolves an asset location to a local temporary artifact.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*domain.FetchResult, error)
}

// Loader ensures destination schemas and loads fetched artifacts.
type Loader interface {
	Preflight(classes ...domain.AssetClass) error
	EnsureSchema(ctx context.Context, schema string) error
	Load(ctx context.Context, a *domain.Asset, artifactPath string) error
}

// Orchestrator runs the pipeline for one asset class at a time.
type Orchestrator struct {
	fetcher Fetcher
	loader  Loader
	workers int
	logger  *slog.Logger
}

// Deps holds dependencies for Orchestrator.
type Deps struct {
	Fetcher Fetcher
	Loader  Loader

	// Workers bounds parallel prefetch. 1 (the default) keeps the pipeline
	// fully sequential. Loads are serialized in manifest order regardless.
	Workers int

	Logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		fetcher: deps.Fetcher,
		loader:  deps.Loader,
		workers: workers,
		logger:  deps.Logger,
	}
}

// Run processes the assets of one class in manifest order. The returned
// error is non-nil only for fatal conditions: preflight or schema failure,
// or any asset failure under AbortOnFirstFailure. Per-asset failures under
// ContinueAndReport are recorded in the summary only.
//
// Temporary artifacts are released before the next asset is processed, on
// every path.
func (o *Orchestrator) Run(ctx context.Context, class domain.AssetClass, assets []domain.Asset) (*Summary, error) {
	summary := &Summary{Class: class}
	if len(assets) == 0 {
		o.logger.Info("nothing to load", "class", class)
		return summary, nil
	}

	if err := o.loader.Preflight(class); err != nil {
		return summary, err
	}
	for _, schema := range distinctSchemas(assets) {
		if err := o.loader.EnsureSchema(ctx, schema); err != nil {
			return summary, err
		}
	}

	policy := class.Policy()
	o.logger.Info("starting load",
		"class", class, "assets", len(assets), "fail_fast", policy == domain.AbortOnFirstFailure)

	if o.workers > 1 {
		return o.runPrefetched(ctx, class, assets, summary)
	}
	return o.runSequential(ctx, class, assets, summary)
}

func (o *Orchestrator) runSequential(ctx context.Context, class domain.AssetClass, assets []domain.Asset, summary *Summary) (*Summary, error) {
	policy := class.Policy()
	for i := range assets {
		a := &assets[i]
		start := time.Now()
		err := o.processOne(ctx, a)
		summary.record(a.Name, err, time.Since(start))

		if err != nil && policy == domain.AbortOnFirstFailure {
			summary.skipRemaining(assets[i+1:])
			return summary, fmt.Errorf("%s load aborted at asset %q: %w", class, a.Name, err)
		}
	}
	return summary, nil
}

// runPrefetched overlaps fetches up to the worker bound while keeping loads
// and policy evaluation in manifest order, so the summary is deterministic.
func (o *Orchestrator) runPrefetched(ctx context.Context, class domain.AssetClass, assets []domain.Asset, summary *Summary) (*Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type prefetched struct {
		res *domain.FetchResult
		err error
	}
	results := make([]chan prefetched, len(assets))
	for i := range results {
		results[i] = make(chan prefetched, 1)
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	go func() {
		for i := range assets {
			g.Go(func() error {
				res, err := o.fetcher.Fetch(ctx, assets[i].Location)
				results[i] <- prefetched{res: res, err: err}
				return nil
			})
		}
	}()

	// drain releases every artifact still in flight after an abort. Each
	// fetch goroutine sends exactly once, so blocking receives are safe.
	drain := func(from int) {
		for j := from; j < len(assets); j++ {
			if p := <-results[j]; p.res != nil {
				if err := p.res.Release(); err != nil {
					o.logger.Warn("release artifact", "asset", assets[j].Name, "error", err)
				}
			}
		}
	}

	policy := class.Policy()
	for i := range assets {
		a := &assets[i]
		start := time.Now()
		p := <-results[i]

		err := p.err
		if err == nil {
			err = o.loadOne(ctx, a, p.res)
		}
		summary.record(a.Name, err, time.Since(start))

		if err != nil && policy == domain.AbortOnFirstFailure {
			cancel()
			drain(i + 1)
			summary.skipRemaining(assets[i+1:])
			return summary, fmt.Errorf("%s load aborted at asset %q: %w", class, a.Name, err)
		}
	}
	return summary, nil
}

// processOne runs the Fetching and Loading states for one asset.
func (o *Orchestrator) processOne(ctx context.Context, a *domain.Asset) error {
	o.logger.Info("fetching asset", "asset", a.Name, "location", a.Location)
	res, err := o.fetcher.Fetch(ctx, a.Location)
	if err != nil {
		return err
	}
	return o.loadOne(ctx, a, res)
}

// loadOne takes ownership of the fetched artifact and guarantees its
// release.
func (o *Orchestrator) loadOne(ctx context.Context, a *domain.Asset, res *domain.FetchResult) error {
	defer func() {
		if err := res.Release(); err != nil {
			o.logger.Warn("release artifact", "asset", a.Name, "error", err)
		}
	}()

	o.logger.Info("loading asset",
		"asset", a.Name, "target", a.QualifiedTable(), "size_bytes", res.SizeBytes)
	return o.loader.Load(ctx, a, res.LocalPath)
}

func distinctSchemas(assets []domain.Asset) []string {
	seen := make(map[string]bool)
	var schemas []string
	for i := range assets {
		if s := assets[i].Schema; !seen[s] {
			seen[s] = true
			schemas = append(schemas, s)
		}
	}
	return schemas
}
