package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoseed/internal/domain"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	opts := Options{
		TempDir:         t.TempDir(),
		Attempts:        3,
		Timeout:         5 * time.Second,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	}
	h := newHTTPTransfer(opts.Timeout)
	return &Fetcher{
		schemes: map[string]transfer{"http": h, "https": h},
		opts:    opts.withDefaults(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestFetch_HTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "shapefile bytes")
	}))
	defer srv.Close()

	f := testFetcher(t)
	res, err := f.Fetch(context.Background(), srv.URL+"/counties.zip")
	require.NoError(t, err)

	data, err := os.ReadFile(res.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "shapefile bytes", string(data))
	assert.Equal(t, int64(len(data)), res.SizeBytes)
	assert.Equal(t, srv.URL+"/counties.zip", res.SourceLocation)

	require.NoError(t, res.Release())
	assert.NoFileExists(t, res.LocalPath)
	require.NoError(t, res.Release()) // idempotent
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok after retries")
	}))
	defer srv.Close()

	f := testFetcher(t)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer res.Release() //nolint:errcheck

	assert.Equal(t, 3, calls)
	data, err := os.ReadFile(res.LocalPath)
	require.NoError(t, err)
	// Earlier attempts must not leak partial bytes into the artifact.
	assert.Equal(t, "ok after retries", string(data))
}

func TestFetch_TransientExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assertNoLeftoverFiles(t, f)
}

func TestFetch_AttemptTimeoutIsRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := testFetcher(t)
	f.opts.Attempts = 2
	f.opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL+"/dem.tif")
	elapsed := time.Since(start)
	require.Error(t, err)

	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, elapsed, 10*time.Second, "a hanging server must trip the per-attempt timeout")
	assertNoLeftoverFiles(t, f)
}

func TestFetch_ExpiredSignatureIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<Error><Code>SignatureDoesNotMatch</Code></Error>`)
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL+"/signed.tif")
	require.Error(t, err)

	var expired *domain.ExpiredCredentialError
	require.ErrorAs(t, err, &expired)
	assert.Contains(t, err.Error(), "regenerate the URL")
	assert.Equal(t, 1, calls)
	assertNoLeftoverFiles(t, f)
}

func TestFetch_PlainForbiddenIsTransferError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no access for you", http.StatusForbidden)
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var expired *domain.ExpiredCredentialError
	assert.False(t, errors.As(err, &expired))
	var transferErr *domain.TransferError
	assert.ErrorAs(t, err, &transferErr)
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assertNoLeftoverFiles(t, f)
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), "gs://bucket/key")
	var unsupported *domain.UnsupportedSchemeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "gs", unsupported.Scheme)
	assertNoLeftoverFiles(t, f)
}

func TestFetch_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	f := testFetcher(t)
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assertNoLeftoverFiles(t, f)
}

func TestSupports(t *testing.T) {
	f := testFetcher(t)
	assert.NoError(t, f.Supports("https://example.com/a.tif"))

	err := f.Supports("s3://bucket/a.tif")
	var unsupported *domain.UnsupportedSchemeError
	assert.ErrorAs(t, err, &unsupported)
}

// assertNoLeftoverFiles verifies failed fetches clean up their temp files.
func assertNoLeftoverFiles(t *testing.T, f *Fetcher) {
	t.Helper()
	entries, err := os.ReadDir(f.opts.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
