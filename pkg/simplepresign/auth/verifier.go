package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
)

// Verifier checks HS256 bearer credentials against a shared secret. Every
// call to Verify emits exactly one authentication record.
type Verifier struct {
	secret []byte
	options
}

// NewVerifier creates a Verifier for the given secret
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: []byte(secret), options: buildOptions(opts)}, nil
}

// Verify validates credential and returns the identity it carries
func (v *Verifier) Verify(ctx context.Context, credential string) Result {
	res := v.verify(credential)

	userID := audit.UnknownUser
	if res.Identity != nil {
		userID = res.Identity.Subject
	}
	var auditErr error
	switch res.Status {
	case StatusExpired:
		auditErr = errors.New("Token has expired")
	case StatusMalformed:
		auditErr = errors.New("Invalid token")
	}
	v.emitter.Emit(ctx, audit.Authentication(userID, auditErr))

	if !res.Valid() {
		// An expired identity is only useful for the audit record.
		res.Identity = nil
	}
	return res
}

func (v *Verifier) verify(credential string) Result {
	if credential == "" {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: missing credential", ErrMalformed)}
	}

	var c claims
	_, err := jwt.ParseWithClaims(credential, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			res := Result{Status: StatusExpired, Err: ErrExpired}
			if sub := c.subject(); sub != "" {
				res.Identity = &Identity{Subject: sub}
			}
			return res
		}
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	sub := c.subject()
	if sub == "" {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: missing subject", ErrMalformed)}
	}
	if c.Type != "" && c.Type != TokenType {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: unexpected token type %q", ErrMalformed, c.Type)}
	}

	id := &Identity{Subject: sub}
	for _, p := range c.Permissions {
		id.Permissions = append(id.Permissions, Permission(p))
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return Result{Status: StatusValid, Identity: id}
}

// Guard passes id through when it carries required. Failures emit an
// authorization_failure record naming the permission and the endpoint.
func (v *Verifier) Guard(ctx context.Context, required Permission, id *Identity) (*Identity, error) {
	if id.Has(required) {
		return id, nil
	}

	userID := audit.UnknownUser
	if id != nil {
		userID = id.Subject
	}
	endpoint := audit.ClientFromContext(ctx).Path
	if endpoint == "" {
		endpoint = string(required)
	}
	v.emitter.Emit(ctx, audit.AuthorizationFailure(userID, string(required), endpoint))

	return nil, fmt.Errorf("%w: %s required", ErrMissingPermission, required)
}
