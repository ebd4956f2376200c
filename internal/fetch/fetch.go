// Package fetch resolves asset locations to local temporary artifacts.
//
// Locations are dispatched by scheme: gs:// (Google Cloud Storage),
// s3:// (S3-compatible object storage), az:// and abfss:// (Azure Blob
// Storage), and http(s):// including pre-signed URLs. Transient transfer
// failures are retried with bounded exponential backoff; permanent failures
// are classified so operators get an actionable message, in particular an
// expired-signature rejection versus a generic transfer error.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"path"
	"time"

	"geoseed/internal/domain"
)

// Options configures fetch behavior.
type Options struct {
	// TempDir is where artifacts land. Must be on the same filesystem the
	// loader reads from. Default: os.TempDir().
	TempDir string

	// Attempts is the number of tries for transient failures. Default: 3.
	Attempts int

	// Timeout bounds a single transfer attempt. Default: 10m.
	Timeout time.Duration

	// RetryBackoff is the initial backoff duration. Default: 1s.
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration. Default: 30s.
	RetryMaxBackoff time.Duration
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = 30 * time.Second
	}
	return opts
}

// transfer copies one remote object into w. Implementations classify their
// own permanent failures (ExpiredCredentialError, TransferError) and return
// transient causes unwrapped so the retry loop can tell them apart.
type transfer interface {
	download(ctx context.Context, location string, w io.Writer) error
}

// Fetcher resolves locations to local files. A nil client for a scheme means
// the scheme is unavailable and fetches for it fail with
// UnsupportedSchemeError.
type Fetcher struct {
	schemes map[string]transfer
	opts    Options
	logger  *slog.Logger
}

// New creates a Fetcher from the given credentials. Activating an explicitly
// supplied service-account key fails the whole run; ambient credentials that
// cannot be resolved only disable the gs:// scheme.
func New(ctx context.Context, creds Credentials, opts Options, logger *slog.Logger) (*Fetcher, error) {
	f := &Fetcher{
		schemes: make(map[string]transfer),
		opts:    opts.withDefaults(),
		logger:  logger,
	}

	gcs, err := newGCSTransfer(ctx, creds)
	if err != nil {
		return nil, err
	}
	if gcs != nil {
		f.schemes["gs"] = gcs
	} else {
		logger.Debug("gs:// scheme unavailable: no usable GCS credentials")
	}

	if s3t := newS3Transfer(creds); s3t != nil {
		f.schemes["s3"] = s3t
	}

	azure, err := newAzureTransfer(creds)
	if err != nil {
		return nil, err
	}
	if azure != nil {
		f.schemes["az"] = azure
		f.schemes["abfss"] = azure
	}

	h := newHTTPTransfer(f.opts.Timeout)
	f.schemes["http"] = h
	f.schemes["https"] = h

	return f, nil
}

// Supports reports whether a transfer client is configured for the
// location's scheme. Used by preflight so a manifest full of gs:// paths
// fails before the first asset rather than N times.
func (f *Fetcher) Supports(location string) error {
	u, err := url.Parse(location)
	if err != nil {
		return &domain.TransferError{Location: location, Cause: err}
	}
	if _, ok := f.schemes[u.Scheme]; !ok {
		return &domain.UnsupportedSchemeError{Scheme: u.Scheme, Location: location}
	}
	return nil
}

// Fetch downloads the location to a uniquely named temporary file and
// returns it as a FetchResult. The caller owns the result and must call
// Release on every exit path. The temporary file is created before any
// network I/O; on fetch failure it is removed here.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*domain.FetchResult, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, &domain.TransferError{Location: location, Cause: err}
	}
	t, ok := f.schemes[u.Scheme]
	if !ok {
		return nil, &domain.UnsupportedSchemeError{Scheme: u.Scheme, Location: location}
	}

	tmp, err := os.CreateTemp(f.opts.TempDir, "geoseed-*"+path.Ext(u.Path))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	if err := f.downloadWithRetry(ctx, t, location, tmp); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return nil, err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return nil, fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	info, err := os.Stat(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return nil, fmt.Errorf("stat %s: %w", tmp.Name(), err)
	}

	f.logger.Debug("fetched asset",
		"location", location, "local_path", tmp.Name(), "size_bytes", info.Size())

	return &domain.FetchResult{
		LocalPath:      tmp.Name(),
		SizeBytes:      info.Size(),
		SourceLocation: location,
	}, nil
}

// downloadWithRetry retries transient failures with exponential backoff.
// Permanent failures (expired signature, missing object, denied permission)
// abort immediately.
func (f *Fetcher) downloadWithRetry(ctx context.Context, t transfer, location string, tmp *os.File) error {
	var lastErr error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := f.backoff(ctx, attempt-1); err != nil {
				return &domain.TransferError{Location: location, Cause: err}
			}
			// Restart the artifact from scratch for the new attempt.
			if err := tmp.Truncate(0); err != nil {
				return fmt.Errorf("truncate %s: %w", tmp.Name(), err)
			}
			if _, err := tmp.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind %s: %w", tmp.Name(), err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
		err := t.download(attemptCtx, location, tmp)
		cancel()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return classify(location, err)
		}
		lastErr = err
		f.logger.Warn("transient fetch failure, retrying",
			"location", location, "attempt", attempt, "error", err)
	}
	return classify(location, fmt.Errorf("after %d attempts: %w", f.opts.Attempts, lastErr))
}

// backoff sleeps for an exponentially increasing duration with jitter,
// honoring context cancellation.
func (f *Fetcher) backoff(ctx context.Context, attempt int) error {
	d := f.opts.RetryBackoff * time.Duration(1<<(attempt-1))
	if d > f.opts.RetryMaxBackoff {
		d = f.opts.RetryMaxBackoff
	}
	// Up to 25% jitter to avoid thundering herds on shared endpoints.
	if j := int64(d) / 4; j > 0 {
		d += time.Duration(rand.Int64N(j))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
