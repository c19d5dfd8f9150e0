// Package audit records security-relevant events as one JSON object per line.
package audit

import (
	"context"
	"time"
)

// EventType classifies an audit record
type EventType string

const (
	EventAuthentication        EventType = "authentication"
	EventAuthorizationFailure  EventType = "authorization_failure"
	EventRateLimitExceeded     EventType = "rate_limit_exceeded"
	EventPresignedURLGenerated EventType = "presigned_url_generated"
	EventFileOperation         EventType = "file_operation"
)

// UnknownUser is recorded when no verified subject is available
const UnknownUser = "unknown"

// Record is a single audit event
type Record struct {
	Timestamp time.Time
	EventType EventType
	UserID    string
	Success   bool
	Client    ClientInfo
	Details   map[string]any
	Error     string
}

// Emitter accepts audit records. Emit never reports failure to the caller.
type Emitter interface {
	Emit(ctx context.Context, rec Record)
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(ctx context.Context, rec Record)

func (f EmitterFunc) Emit(ctx context.Context, rec Record) {
	f(ctx, rec)
}

// Discard drops every record
var Discard Emitter = EmitterFunc(func(context.Context, Record) {})

// ClientInfo is the request metadata attached to each record
type ClientInfo struct {
	IP        string
	UserAgent string
	Method    string
	URL       string
	Path      string
}

type clientKey struct{}

// WithClient stores request metadata for records emitted under ctx
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey{}, info)
}

// ClientFromContext returns the request metadata stored in ctx, with
// "unknown" for any field that was not captured.
func ClientFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientKey{}).(ClientInfo)
	if info.IP == "" {
		info.IP = UnknownUser
	}
	if info.UserAgent == "" {
		info.UserAgent = UnknownUser
	}
	return info
}

// complete fills the client metadata from ctx when the caller left it empty
func complete(ctx context.Context, rec Record) Record {
	if rec.Client == (ClientInfo{}) {
		rec.Client = ClientFromContext(ctx)
	}
	if rec.UserID == "" {
		rec.UserID = UnknownUser
	}
	return rec
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
