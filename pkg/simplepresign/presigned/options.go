package presigned

import (
	"strings"
	"time"
)

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithBaseURL sets the URL prefix object keys are appended to
func WithBaseURL(base string) Option {
	return func(s *Signer) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithClock sets the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}
