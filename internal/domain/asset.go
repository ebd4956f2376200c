// Package domain defines core types and errors for the seeding pipeline.
package domain

import (
	"fmt"
	"os"
	"time"
)

// AssetClass distinguishes vector layers (shapefiles) from raster layers
// (GeoTIFFs). The class decides the default target schema, the conversion
// tool, and the failure policy applied by the orchestrator.
type AssetClass string

// Asset classes.
const (
	AssetClassVector AssetClass = "vector"
	AssetClassRaster AssetClass = "raster"
)

// DefaultSchema returns the destination schema used when a manifest entry
// does not name one.
func (c AssetClass) DefaultSchema() string { return string(c) }

// FailurePolicy controls how the orchestrator reacts to a per-asset failure.
type FailurePolicy int

const (
	// ContinueAndReport records the failure and proceeds with the next asset.
	ContinueAndReport FailurePolicy = iota
	// AbortOnFirstFailure stops the remaining queue on the first failure.
	AbortOnFirstFailure
)

// Policy returns the failure policy for the class: vector layers are
// tolerable individually, a broken raster pipeline blocks the build.
func (c AssetClass) Policy() FailurePolicy {
	if c == AssetClassRaster {
		return AbortOnFirstFailure
	}
	return ContinueAndReport
}

// Asset is one manifest entry resolved against its class defaults.
type Asset struct {
	Name     string
	Location string
	Class    AssetClass
	Schema   string
	Table    string
	SRID     int

	// TileSize is a "WxH" storage tiling hint, raster only.
	TileSize string

	// ExtraOptions are opaque flags passed through to the conversion tool
	// verbatim, in manifest order.
	ExtraOptions []string
}

// QualifiedTable returns the destination identifier "schema.table".
func (a *Asset) QualifiedTable() string {
	return fmt.Sprintf("%s.%s", a.Schema, a.Table)
}

// FetchResult is a downloaded artifact on local disk. It is owned by the
// fetch call that created it; ownership transfers to the loader, and the
// orchestrator releases it on every exit path.
type FetchResult struct {
	LocalPath      string
	SizeBytes      int64
	SourceLocation string

	released bool
}

// Release deletes the local artifact. Safe to call more than once.
func (r *FetchResult) Release() error {
	if r == nil || r.released {
		return nil
	}
	r.released = true
	if err := os.Remove(r.LocalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", r.LocalPath, err)
	}
	return nil
}

// LoadStatus is the terminal state of one asset.
type LoadStatus string

// Load statuses.
const (
	StatusLoaded  LoadStatus = "loaded"
	StatusFailed  LoadStatus = "failed"
	StatusSkipped LoadStatus = "skipped"
)

// LoadOutcome records the result for one asset. Created once by the
// orchestrator after the asset reaches a terminal state, never mutated.
type LoadOutcome struct {
	AssetName string
	Status    LoadStatus
	Err       error
	Duration  time.Duration
}
