package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/tendant/simple-presign/pkg/simplepresign"
	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
	"github.com/tendant/simple-presign/pkg/simplepresign/metrics"
)

// Options configures the HTTP surface
type Options struct {
	Environment      string
	Version          string
	CORSOrigins      []string
	AllowedHosts     []string
	MaxBodyBytes     int64
	MaxFileSize      int64
	VirusScanEnabled bool
	RequestTimeout   time.Duration
	Logger           *slog.Logger
	// Unauthenticated handlers mounted by path, such as the memory blob endpoint
	Mounts map[string]http.Handler
}

// Handler serves the capability issuer over HTTP
type Handler struct {
	service simplepresign.Service
	opts    Options
	checker health.Checker
}

// NewHandler creates a Handler for service
func NewHandler(service simplepresign.Service, opts Options) *Handler {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		service: service,
		opts:    opts,
		checker: health.NewChecker(
			health.WithTimeout(10*time.Second),
			health.WithDisabledCache(),
			health.WithCheck(health.Check{
				Name: "blob-store",
				Check: func(ctx context.Context) error {
					return service.CheckHealth(ctx)
				},
			}),
		),
	}
}

func (h *Handler) production() bool {
	return strings.EqualFold(h.opts.Environment, "production")
}

// Routes returns the router for the API
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(h.opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(h.opts.RequestTimeout))
	if h.production() && len(h.opts.AllowedHosts) > 0 {
		r.Use(HostAllowlistMiddleware(h.opts.AllowedHosts))
	}
	r.Use(corsMiddleware(h.opts.CORSOrigins))
	r.Use(ClientInfoMiddleware)

	r.Get("/", h.index)
	r.Get("/health", h.health)
	r.Handle("/metrics", metrics.Handler())
	if !h.production() {
		r.Get("/docs", h.docs)
	}
	for pattern, handler := range h.opts.Mounts {
		r.Mount(pattern, handler)
	}

	r.Group(func(r chi.Router) {
		r.Use(BodyLimitMiddleware(h.opts.MaxBodyBytes))
		r.Use(AuthMiddleware(h.service))
		r.Post("/upload-url", h.uploadURL)
		r.Post("/download-url", h.downloadURL)
		r.Get("/files", h.listFiles)
		r.Delete("/files/*", h.deleteFile)
	})

	return r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := len(origins) == 1 && origins[0] == "*"
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"upload_url":   "POST /upload-url",
		"download_url": "POST /download-url",
		"list_files":   "GET /files",
		"delete_file":  "DELETE /files/{file_key}",
		"health":       "GET /health",
	}
	if !h.production() {
		endpoints["docs"] = "GET /docs"
	}
	render.JSON(w, r, IndexResponse{
		Message:          "S3 Presigned URL API",
		Version:          h.opts.Version,
		Endpoints:        endpoints,
		AllowedFileTypes: h.service.AllowedExtensions(),
		MaxFileSize:      h.opts.MaxFileSize,
		VirusScanning:    h.opts.VirusScanEnabled,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	result := h.checker.Check(r.Context())
	if result.Status != health.StatusUp {
		slog.Error("Health check failed", "status", result.Status)
		writeDetail(w, r, http.StatusServiceUnavailable, "service_unavailable", "S3 connection failed")
		return
	}
	render.JSON(w, r, HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		S3Connection: "ok",
	})
}

func (h *Handler) uploadURL(w http.ResponseWriter, r *http.Request) {
	var req UploadURLRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		writeDecodeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	capability, err := h.service.IssueUpload(r.Context(), id, simplepresign.UploadRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, toPresignedResponse(capability))
}

func (h *Handler) downloadURL(w http.ResponseWriter, r *http.Request) {
	var req DownloadURLRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		writeDecodeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	capability, err := h.service.IssueDownload(r.Context(), id, req.FileKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, toPresignedResponse(capability))
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	maxKeys := 0
	if raw := r.URL.Query().Get("max_keys"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeDetail(w, r, http.StatusBadRequest, "invalid_request", "max_keys must be a positive integer")
			return
		}
		maxKeys = n
	}

	id, _ := auth.IdentityFromContext(r.Context())
	list, err := h.service.ListFiles(r.Context(), id, prefix, maxKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}

	files := make([]FileInfo, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, FileInfo{
			Key:          f.Key,
			Size:         f.Size,
			LastModified: f.LastModified,
			ETag:         f.ETag,
		})
	}
	render.JSON(w, r, FileListResponse{Files: files, Count: len(files), Prefix: list.Prefix})
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "*")

	id, _ := auth.IdentityFromContext(r.Context())
	if err := h.service.DeleteFile(r.Context(), id, fileKey); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, DeleteResponse{Message: "File deleted successfully", FileKey: fileKey})
}

func toPresignedResponse(c *simplepresign.Capability) PresignedURLResponse {
	resp := PresignedURLResponse{
		PresignedURL: c.URL,
		ExpiresIn:    int(c.ExpiresIn / time.Second),
		FileKey:      c.FileKey,
		Method:       c.Method,
	}
	if len(c.Headers) > 0 {
		resp.UploadFields = make(map[string]string, len(c.Headers))
		for k := range c.Headers {
			resp.UploadFields[k] = c.Headers.Get(k)
		}
	}
	return resp
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeDetail(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large")
		return
	}
	writeDetail(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body")
}
