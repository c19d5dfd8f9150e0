package memory

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-presign/pkg/simplepresign"
	"github.com/tendant/simple-presign/pkg/simplepresign/presigned"
)

// MaxObjectSize bounds a single upload accepted by Handler
const MaxObjectSize = 64 << 20

// Handler serves the capability URLs minted by the backend, so clients can
// PUT and GET objects against it the way they would against S3. Mount it at
// the path of the signer's base URL.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Put("/*", b.handleUpload)
	r.Get("/*", b.handleDownload)
	return r
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	key, ok := b.authorize(w, r, http.MethodPut, contentType)
	if !ok {
		return
	}

	// authorize has verified the length parameter, so it is well formed
	length, _ := presigned.SignedLength(r.URL.Query())
	if length > 0 && r.ContentLength >= 0 && r.ContentLength != length {
		writeError(w, r, http.StatusBadRequest, "content_length_mismatch", "Content-Length does not match the signed size")
		return
	}
	limit := int64(MaxObjectSize)
	if length > 0 {
		limit = length
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "upload_failed", "failed to read request body")
		return
	}
	if length > 0 && int64(len(body)) != length {
		writeError(w, r, http.StatusBadRequest, "content_length_mismatch", "request body does not match the signed size")
		return
	}

	sum := md5.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	b.mu.Lock()
	b.objects[key] = simplepresign.ObjectMeta{
		Key:          key,
		Size:         int64(len(body)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
		ETag:         etag,
	}
	b.data[key] = body
	b.mu.Unlock()

	slog.Debug("Stored object", "key", key, "size", len(body))
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	key, ok := b.authorize(w, r, http.MethodGet, "")
	if !ok {
		return
	}

	b.mu.RLock()
	meta, found := b.objects[key]
	body := b.data[key]
	b.mu.RUnlock()
	if !found {
		writeError(w, r, http.StatusNotFound, "not_found", "object not found")
		return
	}

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if meta.ETag != "" {
		w.Header().Set("ETag", meta.ETag)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// authorize checks the request URL signature and returns the object key
func (b *Backend) authorize(w http.ResponseWriter, r *http.Request, method, contentType string) (string, bool) {
	key, err := b.signer.ExtractObjectKey(r.URL.Path)
	if err == nil {
		err = b.signer.Verify(r.URL.RequestURI(), method, contentType)
	}
	if err != nil {
		slog.Warn("Rejected blob request", "method", method, "path", r.URL.Path, "error", err)
		switch {
		case presigned.IsMalformed(err):
			writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, presigned.ErrExpired):
			writeError(w, r, http.StatusForbidden, "expired", "presigned URL has expired")
		default:
			writeError(w, r, http.StatusForbidden, "invalid_signature", "signature does not match")
		}
		return "", false
	}
	return key, true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error_code": code, "detail": message})
}
