package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoseed/internal/domain"
)

func rasterDefaults() Defaults {
	return Defaults{Schema: "raster", SRID: 4326, TileSize: "256x256"}
}

func vectorDefaults() Defaults {
	return Defaults{Schema: "vector", SRID: 4326}
}

func TestParse_AppliesDefaults(t *testing.T) {
	data := []byte(`
assets:
  - name: counties
    uri: gs://geo-assets/counties.zip
`)
	assets, err := Parse(data, domain.AssetClassVector, vectorDefaults())
	require.NoError(t, err)
	require.Len(t, assets, 1)

	a := assets[0]
	assert.Equal(t, "counties", a.Name)
	assert.Equal(t, "gs://geo-assets/counties.zip", a.Location)
	assert.Equal(t, "vector", a.Schema)
	assert.Equal(t, "counties", a.Table)
	assert.Equal(t, 4326, a.SRID)
	assert.Empty(t, a.TileSize)
	assert.Equal(t, "vector.counties", a.QualifiedTable())
}

func TestParse_RasterEntryOverrides(t *testing.T) {
	data := []byte(`
assets:
  - name: parks
    uri: https://example/parks.tif
    srid: 32119
    tile_size: 512x512
`)
	assets, err := Parse(data, domain.AssetClassRaster, rasterDefaults())
	require.NoError(t, err)
	require.Len(t, assets, 1)

	a := assets[0]
	assert.Equal(t, "raster.parks", a.QualifiedTable())
	assert.Equal(t, 32119, a.SRID)
	assert.Equal(t, "512x512", a.TileSize)
}

func TestParse_RasterDefaultsAndOptions(t *testing.T) {
	data := []byte(`
assets:
  - name: elevation
    gs_path: gs://geo-assets/dem/elevation.tif
    schema: terrain
    table: dem
    raster2pgsql_options: ["-M", "-l", "2,4"]
`)
	assets, err := Parse(data, domain.AssetClassRaster, rasterDefaults())
	require.NoError(t, err)
	require.Len(t, assets, 1)

	a := assets[0]
	assert.Equal(t, "terrain.dem", a.QualifiedTable())
	assert.Equal(t, "256x256", a.TileSize)
	assert.Equal(t, []string{"-M", "-l", "2,4"}, a.ExtraOptions)
}

func TestParse_EmptyDocument(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty bytes": nil,
		"whitespace":  []byte("\n\n  \n"),
		"empty list":  []byte("assets: []\n"),
	} {
		t.Run(name, func(t *testing.T) {
			assets, err := Parse(data, domain.AssetClassVector, vectorDefaults())
			require.NoError(t, err)
			assert.Empty(t, assets)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"not yaml":          "{{{",
		"unknown field":     "assets:\n  - name: a\n    uri: https://x/y\n    bogus: 1\n",
		"missing name":      "assets:\n  - uri: https://x/y\n",
		"blank name":        "assets:\n  - name: \"  \"\n    uri: https://x/y\n",
		"missing location":  "assets:\n  - name: a\n",
		"both locations":    "assets:\n  - name: a\n    uri: https://x/y\n    gs_path: gs://b/y\n",
		"bad scheme":        "assets:\n  - name: a\n    uri: ftp://x/y\n",
		"duplicate name":    "assets:\n  - name: a\n    uri: https://x/y\n  - name: a\n    uri: https://x/z\n",
		"bad tile size":     "assets:\n  - name: a\n    uri: https://x/y.tif\n    tile_size: huge\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), domain.AssetClassRaster, rasterDefaults())
			require.Error(t, err)
			var malformed *domain.MalformedManifestError
			assert.ErrorAs(t, err, &malformed)
		})
	}
}

func TestParse_RasterOnlyFieldsRejectedForVector(t *testing.T) {
	data := []byte(`
assets:
  - name: roads
    uri: gs://geo-assets/roads.zip
    tile_size: 256x256
`)
	_, err := Parse(data, domain.AssetClassVector, vectorDefaults())
	var malformed *domain.MalformedManifestError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, err.Error(), "raster-only")
}

func TestParseFile_AbsentIsNothingToLoad(t *testing.T) {
	assets, err := ParseFile(filepath.Join(t.TempDir(), "missing.yaml"), domain.AssetClassVector, vectorDefaults())
	require.NoError(t, err)
	assert.Nil(t, assets)
}

func TestParseFile_ReadsManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vector.yaml")
	doc := "assets:\n  - name: rivers\n    uri: s3://geo/rivers.zip\n    srid: 3857\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	assets, err := ParseFile(path, domain.AssetClassVector, vectorDefaults())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, 3857, assets[0].SRID)
}
