package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC-signed capability URLs
type Signer struct {
	secretKey []byte
	baseURL   string
	now       func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		baseURL: "/blobs",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign returns a URL granting method on key until expiresIn elapses.
// contentType is bound into the signature and may be empty.
func (s *Signer) Sign(method, key, contentType string, expiresIn time.Duration) (string, error) {
	return s.SignWithLength(method, key, contentType, 0, expiresIn)
}

// SignWithLength is Sign with the request body size also bound into the
// signature. A non-positive contentLength leaves the size unbound.
func (s *Signer) SignWithLength(method, key, contentType string, contentLength int64, expiresIn time.Duration) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecretKey
	}
	if expiresIn <= 0 {
		return "", fmt.Errorf("%w: expiry must be positive", ErrInvalidExpiration)
	}

	expiresAt := s.now().Add(expiresIn).Unix()
	signature := s.generateSignature(s.createPayload(method, key, contentType, contentLength, expiresAt))

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiresAt, 10))
	if contentLength > 0 {
		q.Set("length", strconv.FormatInt(contentLength, 10))
	}
	q.Set("signature", signature)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, escapeKey(key), q.Encode()), nil
}

// Verify checks a URL produced by Sign or SignWithLength for the given
// method and content type
func (s *Signer) Verify(rawURL, method, contentType string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	query := u.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")
	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}
	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}
	length, err := SignedLength(query)
	if err != nil {
		return err
	}

	key, err := s.ExtractObjectKey(u.Path)
	if err != nil {
		return err
	}
	return s.validate(method, key, contentType, length, signature, expiresAt)
}

// SignedLength returns the body size carried by a signed URL's query, or 0
// when the URL does not bind one
func SignedLength(query url.Values) (int64, error) {
	raw := query.Get("length")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLength, raw)
	}
	return n, nil
}

// Validate checks a signature and expiry for the given request parameters
func (s *Signer) Validate(method, key, contentType, signature string, expiresAt int64) error {
	return s.validate(method, key, contentType, 0, signature, expiresAt)
}

func (s *Signer) validate(method, key, contentType string, contentLength int64, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}
	expected := s.generateSignature(s.createPayload(method, key, contentType, contentLength, expiresAt))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// ExtractObjectKey strips the base URL path from path
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	prefix := "/"
	if base, err := url.Parse(s.baseURL); err == nil {
		prefix = strings.TrimRight(base.Path, "/") + "/"
	}
	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("%w: path does not match base URL", ErrInvalidSignature)
	}
	return strings.TrimPrefix(path, prefix), nil
}

// createPayload creates the signature payload: METHOD|KEY|EXPIRES|CONTENT-TYPE,
// followed by |LENGTH when a body size is bound
func (s *Signer) createPayload(method, key, contentType string, contentLength, expiresAt int64) string {
	payload := fmt.Sprintf("%s|%s|%d|%s", strings.ToUpper(method), key, expiresAt, contentType)
	if contentLength > 0 {
		payload += "|" + strconv.FormatInt(contentLength, 10)
	}
	return payload
}

// generateSignature generates HMAC-SHA256 signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
