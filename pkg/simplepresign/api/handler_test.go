package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-presign/pkg/simplepresign"
	"github.com/tendant/simple-presign/pkg/simplepresign/api"
	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
	"github.com/tendant/simple-presign/pkg/simplepresign/presigned"
	"github.com/tendant/simple-presign/pkg/simplepresign/ratelimit"
	memorystorage "github.com/tendant/simple-presign/pkg/simplepresign/storage/memory"
)

const testSecret = "api-test-secret"

type testServer struct {
	router  http.Handler
	store   *memorystorage.Backend
	issuer  *auth.Issuer
	records *audit.Buffer
}

func newTestServer(t *testing.T, opts api.Options) *testServer {
	t.Helper()
	records := audit.NewBuffer()
	store := memorystorage.New(presigned.New(presigned.WithSecretKey("blob-secret")))

	verifier, err := auth.NewVerifier(testSecret, auth.WithEmitter(records))
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	svc, err := simplepresign.New(
		simplepresign.WithBlobStore(store),
		simplepresign.WithAuthenticator(verifier),
		simplepresign.WithAdmitter(ratelimit.NewController(ratelimit.WithEmitter(records))),
		simplepresign.WithEmitter(records),
	)
	require.NoError(t, err)

	return &testServer{
		router:  api.NewHandler(svc, opts).Routes(),
		store:   store,
		issuer:  issuer,
		records: records,
	}
}

func (s *testServer) token(t *testing.T, subject string, perms ...auth.Permission) string {
	t.Helper()
	token, _, err := s.issuer.Issue(subject, perms)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, api.Options{Version: "2.0.0", MaxFileSize: 1024})

	rec := s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body api.IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2.0.0", body.Version)
	assert.Contains(t, body.AllowedFileTypes, ".pdf")
	assert.NotContains(t, body.AllowedFileTypes, ".exe")
	assert.Equal(t, "GET /docs", body.Endpoints["docs"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, api.Options{})

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.S3Connection)

	s.store.SetHealthError(errors.New("connection refused"))
	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "S3 connection failed", decodeError(t, rec).Detail)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestDocsHiddenInProduction(t *testing.T) {
	dev := newTestServer(t, api.Options{Environment: "development"})
	rec := dev.do(t, http.MethodGet, "/docs", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/upload-url")

	prod := newTestServer(t, api.Options{Environment: "production"})
	rec = prod.do(t, http.MethodGet, "/docs", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadURL(t *testing.T) {
	s := newTestServer(t, api.Options{})
	token := s.token(t, "alice", auth.PermUpload)

	rec := s.do(t, http.MethodPost, "/upload-url", token, api.UploadURLRequest{Filename: "report.PDF", FileSize: 2048})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body api.PresignedURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.MethodPut, body.Method)
	assert.Equal(t, 600, body.ExpiresIn)
	assert.True(t, strings.HasPrefix(body.FileKey, "uploads/"))
	assert.True(t, strings.HasSuffix(body.FileKey, ".PDF"))
	assert.NotEmpty(t, body.PresignedURL)
	assert.Equal(t, "application/pdf", body.UploadFields["Content-Type"])

	generated := s.records.Filter(audit.EventPresignedURLGenerated)
	require.Len(t, generated, 1)
	assert.Equal(t, "alice", generated[0].UserID)
	assert.Equal(t, "/upload-url", generated[0].Client.Path)
}

func TestUploadURLErrors(t *testing.T) {
	s := newTestServer(t, api.Options{})
	uploader := s.token(t, "alice", auth.PermUpload)
	reader := s.token(t, "bob", auth.PermDownload)

	tests := []struct {
		name   string
		token  string
		body   any
		status int
		code   string
	}{
		{"missing token", "", api.UploadURLRequest{Filename: "a.pdf"}, http.StatusUnauthorized, "not_authenticated"},
		{"garbage token", "not-a-jwt", api.UploadURLRequest{Filename: "a.pdf"}, http.StatusUnauthorized, "invalid_token"},
		{"missing permission", reader, api.UploadURLRequest{Filename: "a.pdf"}, http.StatusForbidden, "forbidden"},
		{"blocked extension", uploader, api.UploadURLRequest{Filename: "setup.exe"}, http.StatusBadRequest, "blocked-extension"},
		{"unsupported extension", uploader, api.UploadURLRequest{Filename: "notes.xyz"}, http.StatusBadRequest, "unsupported-extension"},
		{"missing filename", uploader, map[string]string{}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/upload-url", tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).ErrorCode)
		})
	}
}

func TestUploadURLExpiredToken(t *testing.T) {
	s := newTestServer(t, api.Options{})
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	issuer, err := auth.NewIssuer(testSecret, time.Minute, auth.WithClock(past))
	require.NoError(t, err)
	token, _, err := issuer.Issue("alice", []auth.Permission{auth.PermUpload})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/upload-url", token, api.UploadURLRequest{Filename: "a.pdf"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", decodeError(t, rec).ErrorCode)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestUploadURLRateLimited(t *testing.T) {
	s := newTestServer(t, api.Options{})
	token := s.token(t, "alice", auth.PermUpload)

	for i := 0; i < 10; i++ {
		rec := s.do(t, http.MethodPost, "/upload-url", token, api.UploadURLRequest{Filename: "a.png"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/upload-url", token, api.UploadURLRequest{Filename: "a.png"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 61)
	assert.Contains(t, decodeError(t, rec).Detail, "rate limit exceeded for upload")
	assert.Len(t, s.records.Filter(audit.EventRateLimitExceeded), 1)
}

func TestDownloadURL(t *testing.T) {
	s := newTestServer(t, api.Options{})
	token := s.token(t, "alice", auth.PermDownload)
	s.store.Put(simplepresign.ObjectMeta{Key: "uploads/abc.pdf", Size: 10})

	rec := s.do(t, http.MethodPost, "/download-url", token, api.DownloadURLRequest{FileKey: "uploads/abc.pdf"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body api.PresignedURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.MethodGet, body.Method)
	assert.Equal(t, "uploads/abc.pdf", body.FileKey)

	rec = s.do(t, http.MethodPost, "/download-url", token, api.DownloadURLRequest{FileKey: "uploads/missing.pdf"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decodeError(t, rec).Detail)
}

func TestListFiles(t *testing.T) {
	s := newTestServer(t, api.Options{})
	token := s.token(t, "alice", auth.PermList)
	s.store.Put(simplepresign.ObjectMeta{Key: "uploads/a.pdf", Size: 1})
	s.store.Put(simplepresign.ObjectMeta{Key: "uploads/b.pdf", Size: 2})
	s.store.Put(simplepresign.ObjectMeta{Key: "other/c.pdf", Size: 3})

	rec := s.do(t, http.MethodGet, "/files", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body api.FileListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "uploads/", body.Prefix)
	assert.Equal(t, "uploads/a.pdf", body.Files[0].Key)

	rec = s.do(t, http.MethodGet, "/files?prefix=other/&max_keys=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	rec = s.do(t, http.MethodGet, "/files?max_keys=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteFile(t *testing.T) {
	s := newTestServer(t, api.Options{})
	token := s.token(t, "alice", auth.PermDelete)
	s.store.Put(simplepresign.ObjectMeta{Key: "uploads/nested/a.pdf", Size: 1})

	rec := s.do(t, http.MethodDelete, "/files/uploads/nested/a.pdf", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body api.DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "uploads/nested/a.pdf", body.FileKey)

	_, err := s.store.HeadObject(context.Background(), "uploads/nested/a.pdf")
	assert.ErrorIs(t, err, simplepresign.ErrNotFound)

	noPerm := s.token(t, "bob", auth.PermUpload)
	rec = s.do(t, http.MethodDelete, "/files/uploads/x.pdf", noPerm, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHostAllowlist(t *testing.T) {
	s := newTestServer(t, api.Options{Environment: "production", AllowedHosts: []string{"api.example.com", "*.internal"}})

	for host, want := range map[string]int{
		"api.example.com":     http.StatusOK,
		"svc.internal:8000":   http.StatusOK,
		"evil.example.org":    http.StatusBadRequest,
		"api.example.com.bad": http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Host = host
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, host)
	}
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, api.Options{MaxBodyBytes: 32})
	token := s.token(t, "alice", auth.PermUpload)

	rec := s.do(t, http.MethodPost, "/upload-url", token, api.UploadURLRequest{Filename: strings.Repeat("a", 64) + ".pdf"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{simplepresign.ErrUnauthorized, http.StatusUnauthorized, "invalid_token"},
		{simplepresign.ErrForbidden, http.StatusForbidden, "forbidden"},
		{&simplepresign.RateLimitError{Operation: "list", RetryAfter: 5}, http.StatusTooManyRequests, "rate_limited"},
		{simplepresign.ErrNotFound, http.StatusNotFound, "not_found"},
		{simplepresign.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
		{simplepresign.ErrInfrastructure, http.StatusInternalServerError, "storage_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, body := api.StatusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, body.ErrorCode, tt.err.Error())
	}
}

func TestMounts(t *testing.T) {
	blobs := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := newTestServer(t, api.Options{Mounts: map[string]http.Handler{"/blobs": blobs}})

	rec := s.do(t, http.MethodPut, "/blobs/uploads/a.pdf", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMissingFieldsAreAudited(t *testing.T) {
	s := newTestServer(t, api.Options{})
	token := s.token(t, "alice", auth.PermUpload, auth.PermDownload)

	rec := s.do(t, http.MethodPost, "/upload-url", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).ErrorCode)

	rec = s.do(t, http.MethodPost, "/download-url", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).ErrorCode)

	records := s.records.Filter(audit.EventPresignedURLGenerated)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.False(t, r.Success)
		assert.Equal(t, "alice", r.UserID)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, "upload", records[0].Details["operation"])
	assert.Equal(t, "download", records[1].Details["operation"])
}
