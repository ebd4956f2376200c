package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"geoseed/internal/domain"
)

// s3Transfer fetches s3:// locations from S3-compatible object storage.
// Configured with path-style addressing for non-AWS endpoints.
type s3Transfer struct {
	client *s3.Client
}

func newS3Transfer(creds Credentials) *s3Transfer {
	if creds.S3 == nil {
		return nil
	}

	endpoint := creds.S3.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}

	client := s3.New(s3.Options{
		Region: creds.S3.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.S3.KeyID, creds.S3.Secret, "",
		),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})
	return &s3Transfer{client: client}
}

func (t *s3Transfer) download(ctx context.Context, location string, w io.Writer) error {
	bucket, key, err := parseS3Path(location)
	if err != nil {
		return &domain.TransferError{Location: location, Cause: err}
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if hasExpiredSignatureIndicator(err.Error()) {
			return &domain.ExpiredCredentialError{Location: location, Cause: err}
		}
		return err
	}
	defer out.Body.Close() //nolint:errcheck

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("%w: copy s3 object: %w", errTransient, err)
	}
	return nil
}

// parseS3Path extracts bucket and key from an "s3://bucket/path/to/file" URI.
func parseS3Path(s3Path string) (bucket, key string, err error) {
	u, err := url.Parse(s3Path)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 path %q: %w", s3Path, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, s3Path)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in S3 path %q", s3Path)
	}
	return bucket, key, nil
}
