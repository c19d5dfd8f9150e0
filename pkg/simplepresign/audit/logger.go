package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes records as JSON lines. Timestamps never go backwards, and
// sink failures are reported to the error hook instead of the caller.
type Logger struct {
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
	last    time.Time
	onError func(error)
}

// LoggerOption configures a Logger
type LoggerOption func(*Logger)

// WithClock sets the time source used for record timestamps
func WithClock(now func() time.Time) LoggerOption {
	return func(l *Logger) {
		l.now = now
	}
}

// WithErrorHook sets the function called when a record cannot be written
func WithErrorHook(fn func(error)) LoggerOption {
	return func(l *Logger) {
		l.onError = fn
	}
}

// NewLogger creates a Logger writing to w
func NewLogger(w io.Writer, opts ...LoggerOption) *Logger {
	l := &Logger{
		now: time.Now,
		onError: func(err error) {
			slog.Warn("Failed to write audit record", "error", err)
		},
	}
	for _, opt := range opts {
		opt(l)
	}

	handler := slog.NewJSONHandler(&hookWriter{w: w, onError: func(err error) { l.onError(err) }}, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey, slog.LevelKey:
				return slog.Attr{}
			case slog.MessageKey:
				return slog.String("event_type", a.Value.String())
			}
			return a
		},
	})
	l.logger = slog.New(handler)
	return l
}

// OpenFile creates a Logger appending to path, creating parent directories
func OpenFile(path string, opts ...LoggerOption) (*Logger, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return NewLogger(f, opts...), f, nil
}

// Emit writes rec as a single JSON line
func (l *Logger) Emit(ctx context.Context, rec Record) {
	rec = complete(ctx, rec)

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	ts = ts.UTC()
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts

	attrs := []slog.Attr{
		slog.String("timestamp", ts.Format(time.RFC3339Nano)),
		slog.String("user_id", rec.UserID),
		slog.Bool("success", rec.Success),
		slog.String("client_ip", rec.Client.IP),
		slog.String("user_agent", rec.Client.UserAgent),
	}
	if rec.Client.Method != "" {
		attrs = append(attrs, slog.String("method", rec.Client.Method))
	}
	if rec.Client.URL != "" {
		attrs = append(attrs, slog.String("url", rec.Client.URL))
	}
	if len(rec.Details) > 0 {
		attrs = append(attrs, slog.Any("details", rec.Details))
	}
	if rec.Error != "" {
		attrs = append(attrs, slog.String("error", rec.Error))
	}

	// A context-free call keeps a cancelled request from suppressing the record.
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, string(rec.EventType), attrs...)
}

type hookWriter struct {
	w       io.Writer
	onError func(error)
}

func (h *hookWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	if err != nil {
		h.onError(err)
	}
	return n, err
}
