// Package auth verifies bearer credentials and guards operations by permission.
package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Permission names an operation an identity may perform
type Permission string

const (
	PermUpload   Permission = "upload"
	PermDownload Permission = "download"
	PermList     Permission = "list"
	PermDelete   Permission = "delete"
)

// DefaultPermissions are granted by the issuer when none are requested
var DefaultPermissions = []Permission{PermUpload, PermDownload, PermList}

// Authentication errors
var (
	// ErrExpired is returned for a well-formed credential past its expiry
	ErrExpired = errors.New("auth: token has expired")

	// ErrMalformed is returned for any credential that fails verification
	ErrMalformed = errors.New("auth: invalid token")

	// ErrMissingPermission is returned when an identity lacks a required permission
	ErrMissingPermission = errors.New("auth: insufficient permissions")

	// ErrNoSecret is returned when a verifier or issuer has no signing secret
	ErrNoSecret = errors.New("auth: no signing secret configured")
)

// Identity is the verified subject of a credential. It is immutable after verification.
type Identity struct {
	Subject     string
	Permissions []Permission
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Has reports whether the identity carries p
func (i *Identity) Has(p Permission) bool {
	return i != nil && slices.Contains(i.Permissions, p)
}

// ParsePermissions splits a comma separated permission list
func ParsePermissions(s string) []Permission {
	var out []Permission
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, Permission(strings.ToLower(part)))
	}
	return out
}

// Status is the outcome of a credential verification
type Status int

const (
	StatusValid Status = iota
	StatusExpired
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "malformed"
	}
}

// Result is the outcome of Verify. Identity is set only when Status is StatusValid.
type Result struct {
	Status   Status
	Identity *Identity
	Err      error
}

// Valid reports whether verification succeeded
func (r Result) Valid() bool {
	return r.Status == StatusValid && r.Identity != nil
}

type identityKey struct{}

// WithIdentity attaches a verified identity to ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by WithIdentity
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
