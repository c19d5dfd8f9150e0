package presigned

import "errors"

var (
	ErrNoSecretKey       = errors.New("presigned: signing key not configured")
	ErrMissingSignature  = errors.New("presigned: signature is missing")
	ErrMissingExpiration = errors.New("presigned: expires is missing")
	ErrInvalidExpiration = errors.New("presigned: expires is not a valid timestamp")
	ErrInvalidLength     = errors.New("presigned: length is not a positive integer")
	ErrExpired           = errors.New("presigned: URL has expired")
	ErrInvalidSignature  = errors.New("presigned: signature does not match")
)

// IsMalformed reports whether err means the URL lacks usable signing parameters,
// as opposed to carrying a well-formed but rejected signature
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrMissingExpiration) ||
		errors.Is(err, ErrInvalidExpiration) ||
		errors.Is(err, ErrInvalidLength)
}
