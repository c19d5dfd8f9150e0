package simplepresign

import (
	"context"
	"net/http"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
	"github.com/tendant/simple-presign/pkg/simplepresign/policy"
	"github.com/tendant/simple-presign/pkg/simplepresign/ratelimit"
)

// Service is the capability issuer: it authenticates callers and hands out
// short-lived presigned URLs against the blob store.
type Service interface {
	// Authenticate verifies a bearer credential and returns the identity it carries
	Authenticate(ctx context.Context, credential string) (*auth.Identity, error)

	// IssueUpload authorizes, admits, classifies and presigns an upload
	IssueUpload(ctx context.Context, id *auth.Identity, req UploadRequest) (*Capability, error)

	// IssueDownload presigns a download for an existing object
	IssueDownload(ctx context.Context, id *auth.Identity, fileKey string) (*Capability, error)

	// ListFiles lists object metadata under a prefix
	ListFiles(ctx context.Context, id *auth.Identity, prefix string, maxKeys int) (*FileList, error)

	// DeleteFile removes an object from the blob store
	DeleteFile(ctx context.Context, id *auth.Identity, fileKey string) error

	// CheckHealth reports whether the blob store is reachable
	CheckHealth(ctx context.Context) error

	// AllowedExtensions lists the extensions the file policy accepts
	AllowedExtensions() []string

	// PresignExpiry is the validity window of issued capabilities
	PresignExpiry() time.Duration
}

// BlobStore is the object storage the issuer presigns against. Implementations
// return errors wrapping ErrNotFound for missing objects.
type BlobStore interface {
	PresignPut(ctx context.Context, key string, opts PutOptions) (*PresignedRequest, error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (*PresignedRequest, error)
	HeadObject(ctx context.Context, key string) (*ObjectMeta, error)
	ListObjects(ctx context.Context, prefix string, maxKeys int) ([]ObjectMeta, error)
	DeleteObject(ctx context.Context, key string) error
	HeadBucket(ctx context.Context) error
}

// Authenticator verifies credentials and guards permissions
type Authenticator interface {
	Verify(ctx context.Context, credential string) auth.Result
	Guard(ctx context.Context, required auth.Permission, id *auth.Identity) (*auth.Identity, error)
}

// Admitter decides whether a caller may perform an operation right now
type Admitter interface {
	Admit(ctx context.Context, subject, operation string) ratelimit.Decision
}

// Classifier applies the file policy to a filename
type Classifier interface {
	Classify(filename string) policy.Decision
	AllowedExtensions() []string
}

// KeyDeriver produces the storage key for a new upload
type KeyDeriver interface {
	Derive(filename, prefix string) string
}

// PutOptions are the constraints baked into an upload capability
type PutOptions struct {
	ContentType   string
	ContentLength int64
	Expires       time.Duration
}

// PresignedRequest is a signed request a client can replay without credentials
type PresignedRequest struct {
	URL     string
	Method  string
	Headers http.Header
}
