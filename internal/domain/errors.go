package domain

import "fmt"

// MalformedManifestError indicates the manifest document could not be
// decoded or an entry is missing a required field. Fatal for the run.
type MalformedManifestError struct {
	Message string
}

func (e *MalformedManifestError) Error() string { return e.Message }

// ErrMalformedManifest creates a MalformedManifestError with a formatted message.
func ErrMalformedManifest(format string, args ...interface{}) *MalformedManifestError {
	return &MalformedManifestError{Message: fmt.Sprintf(format, args...)}
}

// MissingToolError indicates a required external binary is not on PATH.
// Raised by preflight, never attributed to an individual asset.
type MissingToolError struct {
	Tool string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("required tool %q not found in PATH", e.Tool)
}

// ToolInvocationError indicates an external tool could not be started or was
// invoked with a broken argument contract. Fatal precondition, distinct from
// a load failure attributable to the asset's data.
type ToolInvocationError struct {
	Tool  string
	Cause error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Tool, e.Cause)
}

func (e *ToolInvocationError) Unwrap() error { return e.Cause }

// CredentialActivationError indicates an explicitly supplied credential
// (service-account key file, static key pair) could not be activated.
// Fatal before any asset is attempted.
type CredentialActivationError struct {
	Message string
	Cause   error
}

func (e *CredentialActivationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CredentialActivationError) Unwrap() error { return e.Cause }

// UnsupportedSchemeError indicates an asset location uses a scheme with no
// configured transfer client.
type UnsupportedSchemeError struct {
	Scheme   string
	Location string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("no transfer client configured for scheme %q (location %q)", e.Scheme, e.Location)
}

// TransferError indicates a fetch failed for a cause other than an expired
// signature: network failure, missing object, denied permission.
type TransferError struct {
	Location string
	Cause    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %q: %v", e.Location, e.Cause)
}

func (e *TransferError) Unwrap() error { return e.Cause }

// ExpiredCredentialError indicates a signed location's signature has expired
// or no longer matches. Not retryable: the operator must regenerate the
// signed URL and update the manifest.
type ExpiredCredentialError struct {
	Location string
	Cause    error
}

func (e *ExpiredCredentialError) Error() string {
	return fmt.Sprintf("signed URL for %q rejected (expired or invalid signature): regenerate the URL and update the manifest: %v",
		e.Location, e.Cause)
}

func (e *ExpiredCredentialError) Unwrap() error { return e.Cause }

// LoadError indicates the conversion or database load failed for one asset:
// constraint violation, malformed geometry, dropped connection.
type LoadError struct {
	Asset string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load asset %q: %v", e.Asset, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// SchemaEnsureError indicates the destination schema could not be created.
// Fatal: no schema means no asset can land.
type SchemaEnsureError struct {
	Schema string
	Cause  error
}

func (e *SchemaEnsureError) Error() string {
	return fmt.Sprintf("ensure schema %q: %v", e.Schema, e.Cause)
}

func (e *SchemaEnsureError) Unwrap() error { return e.Cause }
