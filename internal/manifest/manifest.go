// Package manifest decodes asset manifests into typed descriptors.
//
// A manifest is a YAML document with a single top-level "assets" list. Each
// entry names one geospatial asset and where to fetch it from:
//
//	assets:
//	  - name: parks
//	    uri: gs://geo-assets/parks.tif
//	    srid: 32119
//	    tile_size: 512x512
//
// An absent or empty manifest is a valid zero-entry result, so a run with
// nothing to load exits cleanly.
package manifest

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"geoseed/internal/domain"
)

// Defaults are the per-class fallback values applied to entries that omit
// optional fields.
type Defaults struct {
	Schema   string
	SRID     int
	TileSize string // raster only
}

// entry mirrors the recognized manifest fields for one asset.
type entry struct {
	Name                string   `yaml:"name"`
	URI                 string   `yaml:"uri"`
	GSPath              string   `yaml:"gs_path"`
	SRID                int      `yaml:"srid"`
	Schema              string   `yaml:"schema"`
	Table               string   `yaml:"table"`
	TileSize            string   `yaml:"tile_size"`
	Raster2pgsqlOptions []string `yaml:"raster2pgsql_options"`
}

// document is the manifest top-level shape.
type document struct {
	Assets []entry `yaml:"assets"`
}

var tileSizeRe = regexp.MustCompile(`^\d+x\d+$`)

// supportedSchemes are the location schemes the pipeline can fetch.
// Whether a client is actually configured for a scheme is the fetcher's
// concern; the parser only rejects syntactic nonsense.
var supportedSchemes = map[string]bool{
	"gs":    true,
	"s3":    true,
	"az":    true,
	"abfss": true,
	"http":  true,
	"https": true,
}

// ParseFile reads and parses the manifest at path. A missing file is not an
// error; it signals "nothing to load" and yields zero assets.
func ParseFile(path string, class domain.AssetClass, defaults Defaults) ([]domain.Asset, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading operator-specified manifests
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data, class, defaults)
}

// Parse decodes manifest bytes into asset descriptors for one class,
// applying defaults. It fails with a MalformedManifestError when the
// document cannot be decoded or an entry is missing a required field.
// Location reachability is not checked here.
func Parse(data []byte, class domain.AssetClass, defaults Defaults) ([]domain.Asset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, domain.ErrMalformedManifest("parse %s manifest: %v", class, err)
	}

	seen := make(map[string]bool, len(doc.Assets))
	assets := make([]domain.Asset, 0, len(doc.Assets))
	for i, e := range doc.Assets {
		if strings.TrimSpace(e.Name) == "" {
			return nil, domain.ErrMalformedManifest("%s manifest entry %d: name is required", class, i)
		}
		if seen[e.Name] {
			return nil, domain.ErrMalformedManifest("%s manifest: duplicate asset name %q", class, e.Name)
		}
		seen[e.Name] = true

		location, err := resolveLocation(e)
		if err != nil {
			return nil, domain.ErrMalformedManifest("%s manifest entry %q: %v", class, e.Name, err)
		}

		if class != domain.AssetClassRaster {
			if e.TileSize != "" {
				return nil, domain.ErrMalformedManifest("%s manifest entry %q: tile_size is raster-only", class, e.Name)
			}
			if len(e.Raster2pgsqlOptions) > 0 {
				return nil, domain.ErrMalformedManifest("%s manifest entry %q: raster2pgsql_options is raster-only", class, e.Name)
			}
		}

		a := domain.Asset{
			Name:         e.Name,
			Location:     location,
			Class:        class,
			Schema:       e.Schema,
			Table:        e.Table,
			SRID:         e.SRID,
			TileSize:     e.TileSize,
			ExtraOptions: e.Raster2pgsqlOptions,
		}
		if a.Schema == "" {
			a.Schema = defaults.Schema
		}
		if a.Schema == "" {
			a.Schema = class.DefaultSchema()
		}
		if a.Table == "" {
			a.Table = a.Name
		}
		if a.SRID == 0 {
			a.SRID = defaults.SRID
		}
		if class == domain.AssetClassRaster && a.TileSize == "" {
			a.TileSize = defaults.TileSize
			if a.TileSize == "" {
				a.TileSize = "256x256"
			}
		}
		if a.TileSize != "" && !tileSizeRe.MatchString(a.TileSize) {
			return nil, domain.ErrMalformedManifest("%s manifest entry %q: tile_size %q is not WxH", class, e.Name, a.TileSize)
		}

		assets = append(assets, a)
	}
	return assets, nil
}

// resolveLocation picks the fetch location from uri/gs_path and checks that
// it is a syntactically valid URI of a supported scheme.
func resolveLocation(e entry) (string, error) {
	location := e.URI
	if location == "" {
		location = e.GSPath
	} else if e.GSPath != "" {
		return "", fmt.Errorf("uri and gs_path are mutually exclusive")
	}
	if location == "" {
		return "", fmt.Errorf("uri or gs_path is required")
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %v", location, err)
	}
	if !supportedSchemes[u.Scheme] {
		return "", fmt.Errorf("unsupported location scheme %q in %q", u.Scheme, location)
	}
	return location, nil
}
