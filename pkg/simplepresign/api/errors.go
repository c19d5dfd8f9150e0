package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/tendant/simple-presign/pkg/simplepresign"
	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// StatusFor maps a service error to its HTTP status and response body.
// Infrastructure details never reach the body.
func StatusFor(err error) (int, ErrorResponse) {
	var rlErr *simplepresign.RateLimitError
	var pErr *simplepresign.PolicyError

	switch {
	case errors.Is(err, simplepresign.ErrUnauthorized):
		if errors.Is(err, auth.ErrExpired) {
			return http.StatusUnauthorized, ErrorResponse{Detail: "Token has expired", ErrorCode: "token_expired"}
		}
		return http.StatusUnauthorized, ErrorResponse{Detail: "Invalid token", ErrorCode: "invalid_token"}
	case errors.Is(err, simplepresign.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Detail: "Insufficient permissions", ErrorCode: "forbidden"}
	case errors.As(err, &rlErr):
		return http.StatusTooManyRequests, ErrorResponse{Detail: rlErr.Error(), ErrorCode: "rate_limited"}
	case errors.As(err, &pErr):
		return http.StatusBadRequest, ErrorResponse{Detail: pErr.Error(), ErrorCode: string(pErr.Reason)}
	case errors.Is(err, simplepresign.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorResponse{Detail: err.Error(), ErrorCode: "invalid_request"}
	case errors.Is(err, simplepresign.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Detail: "File not found", ErrorCode: "not_found"}
	case errors.Is(err, simplepresign.ErrInfrastructure):
		return http.StatusInternalServerError, ErrorResponse{Detail: "internal storage error", ErrorCode: "storage_error"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Detail: "Internal server error", ErrorCode: "internal_error"}
	}
}

// writeError renders err with its mapped status, adding Retry-After for rate limits
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := StatusFor(err)

	var rlErr *simplepresign.RateLimitError
	if errors.As(err, &rlErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfter))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}

// writeDetail renders a fixed error body
func writeDetail(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail, ErrorCode: code})
}
