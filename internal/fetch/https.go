package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"geoseed/internal/domain"
)

// httpTransfer fetches http(s) locations, including pre-signed URLs.
type httpTransfer struct {
	client *http.Client
}

func newHTTPTransfer(timeout time.Duration) *httpTransfer {
	return &httpTransfer{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

func (t *httpTransfer) download(ctx context.Context, location string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errTransient, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", errTransient, resp.Status)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		// A 403 on a signed URL usually means the signature expired. The
		// provider says which in the response body.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		cause := fmt.Errorf("%s: %s", resp.Status, body)
		if hasExpiredSignatureIndicator(string(body)) {
			return &domain.ExpiredCredentialError{Location: location, Cause: cause}
		}
		return &domain.TransferError{Location: location, Cause: cause}
	case resp.StatusCode != http.StatusOK:
		return &domain.TransferError{Location: location, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: copy response body: %w", errTransient, err)
	}
	return nil
}
