package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"geoseed/internal/domain"
)

// azureTransfer fetches az:// and abfss:// locations from Azure Blob Storage
// using shared-key authentication.
type azureTransfer struct {
	client *azblob.Client
}

func newAzureTransfer(creds Credentials) (*azureTransfer, error) {
	if creds.Azure == nil {
		return nil, nil
	}

	sharedKeyCred, err := azblob.NewSharedKeyCredential(creds.Azure.AccountName, creds.Azure.AccountKey)
	if err != nil {
		return nil, &domain.CredentialActivationError{
			Message: fmt.Sprintf("activate Azure shared key for account %s", creds.Azure.AccountName),
			Cause:   err,
		}
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", creds.Azure.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKeyCred, nil)
	if err != nil {
		return nil, &domain.CredentialActivationError{
			Message: fmt.Sprintf("create Azure blob client for account %s", creds.Azure.AccountName),
			Cause:   err,
		}
	}
	return &azureTransfer{client: client}, nil
}

func (t *azureTransfer) download(ctx context.Context, location string, w io.Writer) error {
	container, key, err := parseAzurePath(location)
	if err != nil {
		return &domain.TransferError{Location: location, Cause: err}
	}

	resp, err := t.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		if hasExpiredSignatureIndicator(err.Error()) {
			return &domain.ExpiredCredentialError{Location: location, Cause: err}
		}
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: copy blob: %w", errTransient, err)
	}
	return nil
}

// parseAzurePath extracts container and key from an Azure storage URI.
//
// Supported formats:
//
//	az://container/path/to/file
//	abfss://container@account.dfs.core.windows.net/path/to/file
func parseAzurePath(path string) (container, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse Azure path %q: %w", path, err)
	}

	switch u.Scheme {
	case "az":
		container = u.Host
		key = strings.TrimPrefix(u.Path, "/")

	case "abfss":
		// url.Parse treats "container" as userinfo (before @) and
		// "account.dfs.core.windows.net" as host.
		if u.User == nil {
			return "", "", fmt.Errorf("abfss path %q missing container@account component", path)
		}
		container = u.User.Username()
		key = strings.TrimPrefix(u.Path, "/")

	default:
		return "", "", fmt.Errorf("unrecognized Azure path scheme %q in %q", u.Scheme, path)
	}

	if container == "" {
		return "", "", fmt.Errorf("empty container in Azure path %q", path)
	}
	if key == "" {
		return "", "", fmt.Errorf("empty key in Azure path %q", path)
	}
	return container, key, nil
}
