package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"geoseed/internal/domain"
)

// gcsTransfer fetches gs:// locations.
type gcsTransfer struct {
	client *storage.Client
}

// newGCSTransfer builds the gs:// client from the selected credential
// strategy. A key file that cannot be activated is a fatal
// CredentialActivationError; missing ambient credentials just leave the
// scheme unconfigured (nil, nil).
func newGCSTransfer(ctx context.Context, creds Credentials) (*gcsTransfer, error) {
	switch {
	case creds.GCSKeyFile != "":
		client, err := storage.NewClient(ctx, option.WithAuthCredentialsFile(option.ServiceAccount, creds.GCSKeyFile))
		if err != nil {
			return nil, &domain.CredentialActivationError{
				Message: fmt.Sprintf("activate service-account key %s", creds.GCSKeyFile),
				Cause:   err,
			}
		}
		return &gcsTransfer{client: client}, nil
	case creds.GCSAnonymous:
		client, err := storage.NewClient(ctx, option.WithoutAuthentication())
		if err != nil {
			return nil, fmt.Errorf("create anonymous GCS client: %w", err)
		}
		return &gcsTransfer{client: client}, nil
	default:
		client, err := storage.NewClient(ctx)
		if err != nil {
			// No ambient credentials available. Not fatal, the run may not
			// reference gs:// at all.
			return nil, nil
		}
		return &gcsTransfer{client: client}, nil
	}
}

func (t *gcsTransfer) download(ctx context.Context, location string, w io.Writer) error {
	bucket, key, err := parseGCSPath(location)
	if err != nil {
		return &domain.TransferError{Location: location, Cause: err}
	}

	rc, err := t.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return classifyGCSError(location, err)
	}
	defer rc.Close() //nolint:errcheck

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("%w: copy gs object: %w", errTransient, err)
	}
	return nil
}

func classifyGCSError(location string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return &domain.TransferError{Location: location, Cause: err}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 || apiErr.Code == 429 {
			return fmt.Errorf("%w: %w", errTransient, err)
		}
		if hasExpiredSignatureIndicator(apiErr.Error()) {
			return &domain.ExpiredCredentialError{Location: location, Cause: err}
		}
		return &domain.TransferError{Location: location, Cause: err}
	}
	return err
}

// parseGCSPath extracts bucket and key from a "gs://bucket/path/to/file" URI.
func parseGCSPath(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse GCS path %q: %w", path, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("expected gs:// scheme, got %q in %q", u.Scheme, path)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in GCS path %q", path)
	}
	return bucket, key, nil
}
