package simplepresign

import (
	"fmt"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
	"github.com/tendant/simple-presign/pkg/simplepresign/objectkey"
	"github.com/tendant/simple-presign/pkg/simplepresign/policy"
	"github.com/tendant/simple-presign/pkg/simplepresign/ratelimit"
)

const (
	// DefaultPresignExpiry is how long issued capabilities stay valid
	DefaultPresignExpiry = 600 * time.Second

	// DefaultMaxFileSize is the largest upload a capability is issued for
	DefaultMaxFileSize int64 = 50 * 1024 * 1024

	// DefaultMaxListKeys applies when a listing asks for no particular size
	DefaultMaxListKeys = 100

	// MaxListKeys caps a single listing
	MaxListKeys = 1000

	// MaxKeyLength is the longest object key accepted
	MaxKeyLength = 1024
)

// service implements the Service interface
type service struct {
	blobStore     BlobStore
	authenticator Authenticator
	admitter      Admitter
	classifier    Classifier
	deriver       KeyDeriver
	emitter       audit.Emitter
	presignExpiry time.Duration
	maxFileSize   int64
	uploadPrefix  string
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the blob store capabilities are presigned against
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithAuthenticator sets the credential verifier and permission guard
func WithAuthenticator(a Authenticator) Option {
	return func(s *service) {
		s.authenticator = a
	}
}

// WithAdmitter sets the rate admission controller
func WithAdmitter(a Admitter) Option {
	return func(s *service) {
		s.admitter = a
	}
}

// WithClassifier sets the file policy
func WithClassifier(c Classifier) Option {
	return func(s *service) {
		s.classifier = c
	}
}

// WithKeyDeriver sets how upload keys are named
func WithKeyDeriver(d KeyDeriver) Option {
	return func(s *service) {
		s.deriver = d
	}
}

// WithEmitter sets the audit sink for issuance and file operation records
func WithEmitter(e audit.Emitter) Option {
	return func(s *service) {
		s.emitter = e
	}
}

// WithPresignExpiry sets the validity window of issued capabilities
func WithPresignExpiry(d time.Duration) Option {
	return func(s *service) {
		s.presignExpiry = d
	}
}

// WithMaxFileSize sets the upload size ceiling; zero disables it
func WithMaxFileSize(n int64) Option {
	return func(s *service) {
		s.maxFileSize = n
	}
}

// WithUploadPrefix sets the key prefix for new uploads
func WithUploadPrefix(prefix string) Option {
	return func(s *service) {
		s.uploadPrefix = prefix
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		admitter:      ratelimit.NewController(),
		classifier:    policy.Default(),
		deriver:       objectkey.NewUUIDGenerator(),
		emitter:       audit.Discard,
		presignExpiry: DefaultPresignExpiry,
		maxFileSize:   DefaultMaxFileSize,
		uploadPrefix:  objectkey.DefaultPrefix,
	}

	for _, option := range options {
		option(s)
	}

	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if s.presignExpiry <= 0 {
		return nil, fmt.Errorf("presign expiry must be positive")
	}
	if s.emitter == nil {
		s.emitter = audit.Discard
	}

	return s, nil
}
