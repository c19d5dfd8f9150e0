package simplepresign

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrUnauthorized indicates the caller presented no credential or an unusable one
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the identity lacks the permission the operation requires
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates the caller exhausted its admission window for an operation
	ErrRateLimited = errors.New("rate limited")

	// ErrPolicyRejected indicates the file policy refused the request
	ErrPolicyRejected = errors.New("rejected by file policy")

	// ErrNotFound indicates the referenced object does not exist in the blob store
	ErrNotFound = errors.New("object not found")

	// ErrInvalidRequest indicates a malformed request parameter
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInfrastructure indicates the blob store or another dependency failed
	ErrInfrastructure = errors.New("infrastructure failure")
)

// RateLimitError carries the wait hint for a denied admission
type RateLimitError struct {
	Operation  string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s. Try again in %d seconds.", e.Operation, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// PolicyReason names why the file policy refused a request
type PolicyReason string

const (
	ReasonBlockedExtension     PolicyReason = "blocked-extension"
	ReasonUnsupportedExtension PolicyReason = "unsupported-extension"
	ReasonFileTooLarge         PolicyReason = "file-too-large"
)

// PolicyError represents a file policy rejection
type PolicyError struct {
	Reason    PolicyReason
	Extension string
	Allowed   []string
	Limit     int64
}

func (e *PolicyError) Error() string {
	switch e.Reason {
	case ReasonBlockedExtension:
		return fmt.Sprintf("File type %s is blocked", displayExt(e.Extension))
	case ReasonFileTooLarge:
		return fmt.Sprintf("File size exceeds maximum of %d bytes", e.Limit)
	default:
		return fmt.Sprintf("File type %s not allowed. Allowed types: %s", displayExt(e.Extension), strings.Join(e.Allowed, ", "))
	}
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicyRejected
}

func displayExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
