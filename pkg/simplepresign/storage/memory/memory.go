package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign"
	"github.com/tendant/simple-presign/pkg/simplepresign/presigned"
)

var _ simplepresign.BlobStore = (*Backend)(nil)

// Backend is an in-memory implementation of the simplepresign.BlobStore
// interface. It tracks object metadata only and signs capabilities with
// an HMAC signer.
type Backend struct {
	mu        sync.RWMutex
	objects   map[string]simplepresign.ObjectMeta
	data      map[string][]byte
	signer    *presigned.Signer
	healthErr error
}

// New creates a new in-memory storage backend
func New(signer *presigned.Signer) *Backend {
	return &Backend{
		objects: make(map[string]simplepresign.ObjectMeta),
		data:    make(map[string][]byte),
		signer:  signer,
	}
}

// Put records an object as if it had been uploaded
func (b *Backend) Put(meta simplepresign.ObjectMeta) {
	if meta.LastModified.IsZero() {
		meta.LastModified = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[meta.Key] = meta
}

// SetHealthError makes HeadBucket fail with err until cleared with nil
func (b *Backend) SetHealthError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthErr = err
}

func (b *Backend) PresignPut(ctx context.Context, key string, opts simplepresign.PutOptions) (*simplepresign.PresignedRequest, error) {
	u, err := b.signer.SignWithLength(http.MethodPut, key, opts.ContentType, opts.ContentLength, opts.Expires)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}
	headers := http.Header{}
	if opts.ContentType != "" {
		headers.Set("Content-Type", opts.ContentType)
	}
	if opts.ContentLength > 0 {
		headers.Set("Content-Length", strconv.FormatInt(opts.ContentLength, 10))
	}
	return &simplepresign.PresignedRequest{URL: u, Method: http.MethodPut, Headers: headers}, nil
}

func (b *Backend) PresignGet(ctx context.Context, key string, expires time.Duration) (*simplepresign.PresignedRequest, error) {
	u, err := b.signer.Sign(http.MethodGet, key, "", expires)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return &simplepresign.PresignedRequest{URL: u, Method: http.MethodGet, Headers: http.Header{}}, nil
}

// HeadObject retrieves metadata for an object in memory
func (b *Backend) HeadObject(ctx context.Context, key string) (*simplepresign.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", simplepresign.ErrNotFound, key)
	}
	return &meta, nil
}

// ListObjects returns up to maxKeys objects under prefix in key order
func (b *Backend) ListObjects(ctx context.Context, prefix string, maxKeys int) ([]simplepresign.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	files := make([]simplepresign.ObjectMeta, 0)
	for key, meta := range b.objects {
		if strings.HasPrefix(key, prefix) {
			files = append(files, meta)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	if maxKeys > 0 && len(files) > maxKeys {
		files = files[:maxKeys]
	}
	return files, nil
}

// DeleteObject removes an object. Deleting a missing key succeeds.
func (b *Backend) DeleteObject(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	delete(b.data, key)
	return nil
}

func (b *Backend) HeadBucket(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.healthErr != nil {
		return errors.Join(errors.New("memory backend unavailable"), b.healthErr)
	}
	return nil
}
