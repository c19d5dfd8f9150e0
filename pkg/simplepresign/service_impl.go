package simplepresign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
	"github.com/tendant/simple-presign/pkg/simplepresign/metrics"
	"github.com/tendant/simple-presign/pkg/simplepresign/policy"
	"github.com/tendant/simple-presign/pkg/simplepresign/ratelimit"
)

func (s *service) Authenticate(ctx context.Context, credential string) (*auth.Identity, error) {
	res := s.authenticator.Verify(ctx, credential)
	if !res.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, res.Err)
	}
	return res.Identity, nil
}

func (s *service) IssueUpload(ctx context.Context, id *auth.Identity, req UploadRequest) (*Capability, error) {
	const op = "upload"

	id, err := s.authorize(ctx, id, auth.PermUpload)
	if err != nil {
		return nil, s.count(op, err)
	}
	if err := s.admit(ctx, id, op); err != nil {
		return nil, s.count(op, err)
	}

	details := map[string]any{
		"filename":  req.Filename,
		"file_size": req.FileSize,
	}
	fail := func(key string, err error) (*Capability, error) {
		s.emitter.Emit(ctx, audit.PresignedURL(id.Subject, op, key, details, err))
		return nil, s.count(op, err)
	}

	if strings.TrimSpace(req.Filename) == "" {
		return fail("", fmt.Errorf("%w: filename is required", ErrInvalidRequest))
	}
	if req.FileSize < 0 {
		return fail("", fmt.Errorf("%w: file size must not be negative", ErrInvalidRequest))
	}
	if s.maxFileSize > 0 && req.FileSize > s.maxFileSize {
		return fail("", &PolicyError{Reason: ReasonFileTooLarge, Limit: s.maxFileSize})
	}

	decision := s.classifier.Classify(req.Filename)
	switch decision.Verdict {
	case policy.Blocked:
		return fail("", &PolicyError{Reason: ReasonBlockedExtension, Extension: decision.Extension})
	case policy.Unrecognized:
		return fail("", &PolicyError{
			Reason:    ReasonUnsupportedExtension,
			Extension: decision.Extension,
			Allowed:   s.classifier.AllowedExtensions(),
		})
	}
	contentType := decision.ContentType
	if req.ContentType != "" {
		contentType = req.ContentType
	}
	details["content_type"] = contentType

	key := s.deriver.Derive(req.Filename, s.uploadPrefix)
	presigned, err := s.blobStore.PresignPut(ctx, key, PutOptions{
		ContentType:   contentType,
		ContentLength: req.FileSize,
		Expires:       s.presignExpiry,
	})
	if err != nil {
		slog.Error("Failed to presign upload", "key", key, "error", err)
		return fail(key, fmt.Errorf("%w: %w", ErrInfrastructure, &StorageError{Op: "presign_put", Key: key, Err: err}))
	}

	s.emitter.Emit(ctx, audit.PresignedURL(id.Subject, op, key, details, nil))
	s.count(op, nil)
	return &Capability{
		URL:         presigned.URL,
		Method:      presigned.Method,
		FileKey:     key,
		ContentType: contentType,
		ExpiresIn:   s.presignExpiry,
		Headers:     presigned.Headers,
	}, nil
}

func (s *service) IssueDownload(ctx context.Context, id *auth.Identity, fileKey string) (*Capability, error) {
	const op = "download"

	id, err := s.authorize(ctx, id, auth.PermDownload)
	if err != nil {
		return nil, s.count(op, err)
	}
	if err := s.admit(ctx, id, op); err != nil {
		return nil, s.count(op, err)
	}

	fail := func(err error) (*Capability, error) {
		s.emitter.Emit(ctx, audit.PresignedURL(id.Subject, op, fileKey, nil, err))
		return nil, s.count(op, err)
	}

	if err := validateKey(fileKey); err != nil {
		return fail(err)
	}

	meta, err := s.blobStore.HeadObject(ctx, fileKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(&StorageError{Op: "head_object", Key: fileKey, Err: err})
		}
		slog.Error("Failed to check object", "key", fileKey, "error", err)
		return fail(fmt.Errorf("%w: %w", ErrInfrastructure, &StorageError{Op: "head_object", Key: fileKey, Err: err}))
	}

	presigned, err := s.blobStore.PresignGet(ctx, fileKey, s.presignExpiry)
	if err != nil {
		slog.Error("Failed to presign download", "key", fileKey, "error", err)
		return fail(fmt.Errorf("%w: %w", ErrInfrastructure, &StorageError{Op: "presign_get", Key: fileKey, Err: err}))
	}

	s.emitter.Emit(ctx, audit.PresignedURL(id.Subject, op, fileKey, map[string]any{"file_size": meta.Size}, nil))
	s.count(op, nil)
	return &Capability{
		URL:         presigned.URL,
		Method:      presigned.Method,
		FileKey:     fileKey,
		ContentType: meta.ContentType,
		ExpiresIn:   s.presignExpiry,
		Headers:     presigned.Headers,
	}, nil
}

func (s *service) ListFiles(ctx context.Context, id *auth.Identity, prefix string, maxKeys int) (*FileList, error) {
	const op = "list"

	id, err := s.authorize(ctx, id, auth.PermList)
	if err != nil {
		return nil, s.count(op, err)
	}
	if err := s.admit(ctx, id, op); err != nil {
		return nil, s.count(op, err)
	}

	if prefix == "" {
		prefix = s.uploadPrefix + "/"
	}
	details := map[string]any{"prefix": prefix}
	fail := func(err error) (*FileList, error) {
		s.emitter.Emit(ctx, audit.FileOperation(id.Subject, op, details, err))
		return nil, s.count(op, err)
	}

	switch {
	case maxKeys < 0:
		return fail(fmt.Errorf("%w: max_keys must not be negative", ErrInvalidRequest))
	case maxKeys == 0:
		maxKeys = DefaultMaxListKeys
	case maxKeys > MaxListKeys:
		maxKeys = MaxListKeys
	}

	files, err := s.blobStore.ListObjects(ctx, prefix, maxKeys)
	if err != nil {
		slog.Error("Failed to list objects", "prefix", prefix, "error", err)
		return fail(fmt.Errorf("%w: %w", ErrInfrastructure, &StorageError{Op: "list_objects", Key: prefix, Err: err}))
	}
	if len(files) > maxKeys {
		files = files[:maxKeys]
	}

	details["file_count"] = len(files)
	s.emitter.Emit(ctx, audit.FileOperation(id.Subject, op, details, nil))
	s.count(op, nil)
	return &FileList{Prefix: prefix, Files: files}, nil
}

func (s *service) DeleteFile(ctx context.Context, id *auth.Identity, fileKey string) error {
	const op = "delete"

	id, err := s.authorize(ctx, id, auth.PermDelete)
	if err != nil {
		return s.count(op, err)
	}
	if err := s.admit(ctx, id, op); err != nil {
		return s.count(op, err)
	}

	err = validateKey(fileKey)
	if err == nil {
		if derr := s.blobStore.DeleteObject(ctx, fileKey); derr != nil {
			slog.Error("Failed to delete object", "key", fileKey, "error", derr)
			err = fmt.Errorf("%w: %w", ErrInfrastructure, &StorageError{Op: "delete_object", Key: fileKey, Err: derr})
		}
	}

	s.emitter.Emit(ctx, audit.FileOperation(id.Subject, op, map[string]any{"file_key": fileKey}, err))
	return s.count(op, err)
}

func (s *service) CheckHealth(ctx context.Context) error {
	if err := s.blobStore.HeadBucket(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrInfrastructure, &StorageError{Op: "head_bucket", Err: err})
	}
	return nil
}

func (s *service) AllowedExtensions() []string {
	return s.classifier.AllowedExtensions()
}

func (s *service) PresignExpiry() time.Duration {
	return s.presignExpiry
}

// authorize requires a verified identity carrying perm
func (s *service) authorize(ctx context.Context, id *auth.Identity, perm auth.Permission) (*auth.Identity, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: no identity", ErrUnauthorized)
	}
	id, err := s.authenticator.Guard(ctx, perm, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return id, nil
}

// admit charges one admission for op against the identity. A controller
// attached to ctx takes precedence over the configured one.
func (s *service) admit(ctx context.Context, id *auth.Identity, op string) error {
	admitter := s.admitter
	if c, ok := ratelimit.FromContext(ctx); ok {
		admitter = c
	}
	d := admitter.Admit(ctx, id.Subject, op)
	if !d.Admitted {
		return &RateLimitError{Operation: op, RetryAfter: d.RetryAfter}
	}
	return nil
}

// count records the outcome of op and returns err unchanged
func (s *service) count(op string, err error) error {
	metrics.Capabilities.WithLabelValues(op, Outcome(err)).Inc()
	return err
}

// Outcome names the error class of err for metrics and logs
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPolicyRejected):
		return "rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: file key is required", ErrInvalidRequest)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: file key exceeds %d bytes", ErrInvalidRequest, MaxKeyLength)
	}
	return nil
}
