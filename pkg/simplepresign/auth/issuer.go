package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of issued credentials when none is given
const DefaultTokenTTL = 24 * time.Hour

// Issuer mints credentials the Verifier accepts
type Issuer struct {
	secret []byte
	ttl    time.Duration
	options
}

// NewIssuer creates an Issuer. A zero ttl falls back to DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, options: buildOptions(opts)}, nil
}

// Issue signs a credential for subject with the given permissions
func (is *Issuer) Issue(subject string, perms []Permission) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("auth: subject is required")
	}
	if len(perms) == 0 {
		perms = DefaultPermissions
	}

	now := is.now()
	expiresAt := now.Add(is.ttl)

	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		UserID:      subject,
		Permissions: names,
		Type:        TokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(is.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}
