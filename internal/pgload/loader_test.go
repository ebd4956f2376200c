package pgload

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoseed/internal/config"
	"geoseed/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTool writes an executable shell script named tool into dir.
func stubTool(t *testing.T, dir, tool, script string) {
	t.Helper()
	path := filepath.Join(dir, tool)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
}

// withToolDir points PATH at a directory of stub tools.
func withToolDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PATH", dir)
	return dir
}

func newTestLoader() *Loader {
	return NewLoader(LoaderDeps{
		DB:      config.DatabaseConfig{Host: "localhost", Port: "5432", User: "gis", Database: "gisdb"},
		Timeout: 10 * time.Second,
		Logger:  testLogger(),
	})
}

func TestPreflight(t *testing.T) {
	dir := withToolDir(t)
	l := newTestLoader()

	err := l.Preflight(domain.AssetClassVector)
	var missing *domain.MissingToolError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "psql", missing.Tool)

	stubTool(t, dir, "psql", "exit 0")
	err = l.Preflight(domain.AssetClassVector, domain.AssetClassRaster)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "shp2pgsql", missing.Tool)

	stubTool(t, dir, "shp2pgsql", "exit 0")
	stubTool(t, dir, "raster2pgsql", "exit 0")
	require.NoError(t, l.Preflight(domain.AssetClassVector, domain.AssetClassRaster))
}

func TestEnsureSchema(t *testing.T) {
	dir := withToolDir(t)
	marker := filepath.Join(dir, "stmt")
	stubTool(t, dir, "psql", `echo "$@" > `+marker+"\nexit 0")

	l := newTestLoader()
	require.NoError(t, l.EnsureSchema(context.Background(), "vector"))

	stmt, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Contains(t, string(stmt), `CREATE SCHEMA IF NOT EXISTS "vector"`)
	assert.Contains(t, string(stmt), "ON_ERROR_STOP=1")
}

func TestEnsureSchema_Failure(t *testing.T) {
	dir := withToolDir(t)
	stubTool(t, dir, "psql", "echo 'FATAL: connection refused' >&2\nexit 2")

	l := newTestLoader()
	err := l.EnsureSchema(context.Background(), "vector")
	var ensureErr *domain.SchemaEnsureError
	require.ErrorAs(t, err, &ensureErr)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnsureSchema_RejectsBadIdentifier(t *testing.T) {
	l := newTestLoader()
	err := l.EnsureSchema(context.Background(), `vector"; drop schema public`)
	var ensureErr *domain.SchemaEnsureError
	require.ErrorAs(t, err, &ensureErr)
}

func TestLoad_PipesConverterIntoPsql(t *testing.T) {
	dir := withToolDir(t)
	captured := filepath.Join(dir, "captured.sql")
	stubTool(t, dir, "shp2pgsql", `echo "INSERT INTO $6 VALUES (1);"`)
	stubTool(t, dir, "psql", "/bin/cat > "+captured+"\nexit 0")

	a := &domain.Asset{
		Name: "counties", Class: domain.AssetClassVector,
		Schema: "vector", Table: "counties", SRID: 4326,
	}
	l := newTestLoader()
	require.NoError(t, l.Load(context.Background(), a, "/tmp/counties.shp"))

	sql, err := os.ReadFile(captured)
	require.NoError(t, err)
	assert.Contains(t, string(sql), "INSERT INTO vector.counties") // $6 is the target in stub argv
}

func TestLoad_ConverterFailureIsLoadError(t *testing.T) {
	dir := withToolDir(t)
	stubTool(t, dir, "shp2pgsql", "echo 'Unable to open shapefile' >&2\nexit 1")
	stubTool(t, dir, "psql", "cat > /dev/null\nexit 0")

	a := &domain.Asset{Name: "broken", Class: domain.AssetClassVector, Schema: "vector", Table: "broken", SRID: 4326}
	err := newTestLoader().Load(context.Background(), a, "/tmp/broken.shp")

	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "broken", loadErr.Asset)
	assert.Contains(t, err.Error(), "Unable to open shapefile")
}

func TestLoad_PsqlFailureIsLoadError(t *testing.T) {
	dir := withToolDir(t)
	stubTool(t, dir, "raster2pgsql", "echo 'SELECT 1;'")
	stubTool(t, dir, "psql", "cat > /dev/null\necho 'ERROR: constraint violated' >&2\nexit 3")

	a := &domain.Asset{
		Name: "parks", Class: domain.AssetClassRaster,
		Schema: "raster", Table: "parks", SRID: 4326, TileSize: "256x256",
	}
	err := newTestLoader().Load(context.Background(), a, "/tmp/parks.tif")

	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "constraint violated")
}

func TestLoad_PsqlErrorWinsWhenBothToolsFail(t *testing.T) {
	dir := withToolDir(t)
	stubTool(t, dir, "shp2pgsql", "echo 'SELECT 1;'\necho 'write failed' >&2\nexit 1")
	stubTool(t, dir, "psql", "cat > /dev/null\necho 'ERROR: duplicate key value' >&2\nexit 3")

	a := &domain.Asset{Name: "counties", Class: domain.AssetClassVector, Schema: "vector", Table: "counties", SRID: 4326}
	err := newTestLoader().Load(context.Background(), a, "/tmp/counties.shp")

	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "psql")
	assert.Contains(t, err.Error(), "duplicate key value")
	// The converter's stderr is kept as secondary detail.
	assert.Contains(t, err.Error(), "write failed")
}

func TestLoad_TimeoutKillsHungPipeline(t *testing.T) {
	dir := withToolDir(t)
	stubTool(t, dir, "shp2pgsql", "sleep 30")
	stubTool(t, dir, "psql", "cat > /dev/null\nexit 0")

	l := NewLoader(LoaderDeps{
		DB:      config.DatabaseConfig{Host: "localhost", Port: "5432", User: "gis", Database: "gisdb"},
		Timeout: 100 * time.Millisecond,
		Logger:  testLogger(),
	})
	a := &domain.Asset{Name: "counties", Class: domain.AssetClassVector, Schema: "vector", Table: "counties", SRID: 4326}

	start := time.Now()
	err := l.Load(context.Background(), a, "/tmp/counties.shp")
	elapsed := time.Since(start)

	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Less(t, elapsed, 10*time.Second, "hung tools must be killed at the timeout, not waited out")
}

func TestLoad_MissingConverterIsToolInvocationError(t *testing.T) {
	dir := withToolDir(t)
	stubTool(t, dir, "psql", "cat > /dev/null\nexit 0")

	a := &domain.Asset{Name: "counties", Class: domain.AssetClassVector, Schema: "vector", Table: "counties", SRID: 4326}
	err := newTestLoader().Load(context.Background(), a, "/tmp/counties.shp")

	var toolErr *domain.ToolInvocationError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "shp2pgsql", toolErr.Tool)
}
