package pgload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"time"

	"geoseed/internal/config"
	"geoseed/internal/domain"
)

// Loader invokes the conversion tools and streams their SQL output into the
// destination database through psql.
type Loader struct {
	db      config.DatabaseConfig
	timeout time.Duration
	logger  *slog.Logger
}

// LoaderDeps holds dependencies for Loader.
type LoaderDeps struct {
	DB      config.DatabaseConfig
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(deps LoaderDeps) *Loader {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Loader{
		db:      deps.DB,
		timeout: timeout,
		logger:  deps.Logger,
	}
}

// Preflight verifies every external tool the given classes will need.
// Missing tooling is a fatal startup condition, never a per-asset failure.
func (l *Loader) Preflight(classes ...domain.AssetClass) error {
	tools := []string{toolPsql}
	for _, c := range classes {
		tools = append(tools, ConverterTool(c))
	}
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			return &domain.MissingToolError{Tool: tool}
		}
	}
	return nil
}

var schemaNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// EnsureSchema idempotently creates the destination schema. Creating a
// schema that already exists is a no-op, never an error.
func (l *Loader) EnsureSchema(ctx context.Context, schema string) error {
	if !schemaNameRe.MatchString(schema) {
		return &domain.SchemaEnsureError{Schema: schema, Cause: fmt.Errorf("invalid schema name")}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schema)
	cmd := exec.CommandContext(ctx, toolPsql, append(psqlArgs(), "-c", stmt)...)
	cmd.Env = append(os.Environ(), l.db.Env()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &domain.SchemaEnsureError{Schema: schema, Cause: commandError(err, &stderr)}
	}
	l.logger.Debug("schema ensured", "schema", schema)
	return nil
}

// Load runs the conversion tool for one asset and pipes its SQL output into
// psql inside a single transaction with ON_ERROR_STOP, so a failing
// statement leaves no partially-loaded table. The artifact is read from
// local disk; the caller keeps ownership of it.
func (l *Loader) Load(ctx context.Context, a *domain.Asset, artifactPath string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	tool := ConverterTool(a.Class)
	conv := exec.CommandContext(ctx, tool, ConverterArgs(a, artifactPath)...)
	load := exec.CommandContext(ctx, toolPsql, psqlArgs()...)
	load.Env = append(os.Environ(), l.db.Env()...)

	var convErr, loadErr bytes.Buffer
	conv.Stderr = &convErr
	load.Stderr = &loadErr

	pipe, err := conv.StdoutPipe()
	if err != nil {
		return &domain.ToolInvocationError{Tool: tool, Cause: err}
	}
	load.Stdin = pipe

	l.logger.Debug("loading asset",
		"asset", a.Name, "tool", tool, "target", a.QualifiedTable(), "srid", a.SRID)

	if err := conv.Start(); err != nil {
		return &domain.ToolInvocationError{Tool: tool, Cause: err}
	}
	if err := load.Start(); err != nil {
		// Reap the converter so it does not linger writing to a dead pipe.
		_ = conv.Process.Kill()
		_ = conv.Wait()
		return &domain.ToolInvocationError{Tool: toolPsql, Cause: err}
	}

	convWaitErr := conv.Wait()
	loadWaitErr := load.Wait()

	// A failing psql statement kills the converter on the broken pipe, so
	// psql's stderr carries the actionable message when both exit non-zero.
	if loadWaitErr != nil {
		cause := commandError(loadWaitErr, &loadErr)
		if msg := bytes.TrimSpace(convErr.Bytes()); convWaitErr != nil && len(msg) > 0 {
			cause = fmt.Errorf("%w (%s: %s)", cause, tool, msg)
		}
		return &domain.LoadError{Asset: a.Name, Cause: fmt.Errorf("%s: %w", toolPsql, cause)}
	}
	if convWaitErr != nil {
		return &domain.LoadError{Asset: a.Name, Cause: fmt.Errorf("%s: %w", tool, commandError(convWaitErr, &convErr))}
	}
	return nil
}

// commandError folds captured stderr into a process exit error.
func commandError(err error, stderr *bytes.Buffer) error {
	msg := bytes.TrimSpace(stderr.Bytes())
	if len(msg) == 0 {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
