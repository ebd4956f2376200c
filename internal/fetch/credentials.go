package fetch

// Credentials selects how each object-store scheme authenticates. A nil or
// zero field leaves the scheme unconfigured (gs:// falls back to ambient
// credentials when available). The value is passed explicitly to New so
// tests can substitute fakes without mutating process state.
type Credentials struct {
	// GCSKeyFile activates a service-account key for gs:// locations.
	// Activation failure is fatal for the run.
	GCSKeyFile string

	// GCSAnonymous forces unauthenticated gs:// access (public buckets only).
	GCSAnonymous bool

	S3    *S3Credentials
	Azure *AzureCredentials
}

// S3Credentials holds a static key pair for S3-compatible storage.
type S3Credentials struct {
	KeyID    string
	Secret   string
	Endpoint string
	Region   string
}

// AzureCredentials holds an Azure storage shared key.
type AzureCredentials struct {
	AccountName string
	AccountKey  string
}
