// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds the destination PostGIS connection settings. They are
// handed to psql through its standard PG* environment variables.
type DatabaseConfig struct {
	Host     string // PGHOST (default "localhost")
	Port     string // PGPORT (default "5432")
	User     string // PGUSER
	Password string // PGPASSWORD
	Database string // PGDATABASE
}

// Validate checks that the database configuration is complete.
func (d *DatabaseConfig) Validate() error {
	if d.User == "" {
		return fmt.Errorf("PGUSER must be set")
	}
	if d.Database == "" {
		return fmt.Errorf("PGDATABASE must be set")
	}
	return nil
}

// Env renders the connection settings as PG* environment entries for a
// psql subprocess.
func (d *DatabaseConfig) Env() []string {
	return []string{
		"PGHOST=" + d.Host,
		"PGPORT=" + d.Port,
		"PGUSER=" + d.User,
		"PGPASSWORD=" + d.Password,
		"PGDATABASE=" + d.Database,
	}
}

// Config holds the configuration for the seeding pipeline.
type Config struct {
	DB DatabaseConfig

	// Manifest locations. An absent file means "nothing to load" for that
	// class, not an error.
	VectorManifestPath string // VECTOR_MANIFEST (default "manifests/vector.yaml")
	RasterManifestPath string // RASTER_MANIFEST (default "manifests/raster.yaml")

	// Destination schemas per asset class.
	VectorSchema string // VECTOR_SCHEMA (default "vector")
	RasterSchema string // RASTER_SCHEMA (default "raster")

	// VectorDefaultSRID applies to vector entries that do not declare one.
	VectorDefaultSRID int // VECTOR_DEFAULT_SRID (default 4326)

	// GCSKeyFile is a service-account key for gs:// locations. Empty means
	// ambient credentials; GCSAnonymous forces unauthenticated access.
	GCSKeyFile   string // GCS_KEY_FILE
	GCSAnonymous bool   // GCS_ANONYMOUS

	// S3 fields are optional, nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string

	// Azure shared-key fields are optional.
	AzureAccountName string // AZURE_ACCOUNT_NAME
	AzureAccountKey  string // AZURE_ACCOUNT_KEY

	// Fetch behavior.
	FetchWorkers  int           // SEED_FETCH_WORKERS (default 1 = sequential)
	FetchTimeout  time.Duration // FETCH_TIMEOUT (default 10m)
	FetchAttempts int           // FETCH_ATTEMPTS (default 3)

	// LoadTimeout bounds one converter+psql pipeline. Default 30m.
	LoadTimeout time.Duration // LOAD_TIMEOUT

	LogLevel string // log level: debug, info, warn, error (default "info")

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Config returns true if all required S3 fields are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil &&
		c.S3Endpoint != nil && c.S3Region != nil
}

// HasAzureConfig returns true if Azure shared-key credentials are set.
func (c *Config) HasAzureConfig() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// LoadFromEnv loads configuration from environment variables.
// Object-store credentials are optional; the pipeline can run with public
// HTTPS locations only.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DB: DatabaseConfig{
			Host:     os.Getenv("PGHOST"),
			Port:     os.Getenv("PGPORT"),
			User:     os.Getenv("PGUSER"),
			Password: os.Getenv("PGPASSWORD"),
			Database: os.Getenv("PGDATABASE"),
		},
		VectorManifestPath: os.Getenv("VECTOR_MANIFEST"),
		RasterManifestPath: os.Getenv("RASTER_MANIFEST"),
		VectorSchema:       os.Getenv("VECTOR_SCHEMA"),
		RasterSchema:       os.Getenv("RASTER_SCHEMA"),
		GCSKeyFile:         os.Getenv("GCS_KEY_FILE"),
		GCSAnonymous:       strings.EqualFold(os.Getenv("GCS_ANONYMOUS"), "true"),
		AzureAccountName:   os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:    os.Getenv("AZURE_ACCOUNT_KEY"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
	}

	// S3 fields are optional, only set if present
	if v := os.Getenv("S3_KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("S3_SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3Region = &v
	}

	if v := os.Getenv("VECTOR_DEFAULT_SRID"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("VECTOR_DEFAULT_SRID: %w", err)
		}
		cfg.VectorDefaultSRID = n
	}
	if v := os.Getenv("SEED_FETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SEED_FETCH_WORKERS: %w", err)
		}
		cfg.FetchWorkers = n
	}
	if v := os.Getenv("FETCH_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FETCH_ATTEMPTS: %w", err)
		}
		cfg.FetchAttempts = n
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if v := os.Getenv("LOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("LOAD_TIMEOUT: %w", err)
		}
		cfg.LoadTimeout = d
	}

	// Defaults
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == "" {
		cfg.DB.Port = "5432"
	}
	if cfg.VectorManifestPath == "" {
		cfg.VectorManifestPath = "manifests/vector.yaml"
	}
	if cfg.RasterManifestPath == "" {
		cfg.RasterManifestPath = "manifests/raster.yaml"
	}
	if cfg.VectorSchema == "" {
		cfg.VectorSchema = "vector"
	}
	if cfg.RasterSchema == "" {
		cfg.RasterSchema = "raster"
	}
	if cfg.VectorDefaultSRID == 0 {
		cfg.VectorDefaultSRID = 4326
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 1
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Minute
	}
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = 30 * time.Minute
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.GCSKeyFile != "" && cfg.GCSAnonymous {
		return nil, fmt.Errorf("GCS_KEY_FILE and GCS_ANONYMOUS are mutually exclusive")
	}
	if cfg.GCSKeyFile == "" && !cfg.GCSAnonymous {
		cfg.Warnings = append(cfg.Warnings,
			"GCS_KEY_FILE not set; gs:// locations will use ambient credentials")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
