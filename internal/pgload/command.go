// Package pgload drives the external conversion tools that turn fetched
// artifacts into PostGIS tables: shp2pgsql for vector layers, raster2pgsql
// for raster layers, with the generated SQL streamed into psql. The tools
// are black boxes; this package owns only their argument contract and
// process lifecycle.
package pgload

import (
	"strconv"

	"geoseed/internal/domain"
)

// Tool names resolved via PATH.
const (
	toolPsql   = "psql"
	toolVector = "shp2pgsql"
	toolRaster = "raster2pgsql"
)

// ConverterTool returns the conversion binary for an asset class.
func ConverterTool(class domain.AssetClass) string {
	if class == domain.AssetClassRaster {
		return toolRaster
	}
	return toolVector
}

// ConverterArgs translates an asset descriptor into the conversion tool's
// argv. Order matters and is part of the contract: mandatory flags first,
// then tiling (raster only), then pass-through extra options, then the
// source artifact and the destination identifier.
//
// Vector: shp2pgsql -s <srid> -I -D [extras...] <shp> <schema.table>
// Raster: raster2pgsql -s <srid> -I -C -t <WxH> [extras...] <tif> <schema.table>
func ConverterArgs(a *domain.Asset, artifactPath string) []string {
	var args []string
	if a.Class == domain.AssetClassRaster {
		args = []string{"-s", strconv.Itoa(a.SRID), "-I", "-C", "-t", a.TileSize}
	} else {
		args = []string{"-s", strconv.Itoa(a.SRID), "-I", "-D"}
	}
	args = append(args, a.ExtraOptions...)
	args = append(args, artifactPath, a.QualifiedTable())
	return args
}

// psqlArgs are the flags for the loading side of the pipe. ON_ERROR_STOP
// with a single transaction makes each asset's load all-or-nothing.
func psqlArgs() []string {
	return []string{"--quiet", "--single-transaction", "-v", "ON_ERROR_STOP=1"}
}
