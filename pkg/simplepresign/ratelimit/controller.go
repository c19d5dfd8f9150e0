package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
	"github.com/tendant/simple-presign/pkg/simplepresign/metrics"
)

// Controller applies per-operation ceilings to each identity
type Controller struct {
	limits  Limits
	store   Store
	emitter audit.Emitter
	now     func() time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithLimits sets the ceilings
func WithLimits(l Limits) Option {
	return func(c *Controller) {
		c.limits = l
	}
}

// WithStore sets where windows are kept
func WithStore(s Store) Option {
	return func(c *Controller) {
		if s != nil {
			c.store = s
		}
	}
}

// WithEmitter sets where rate_limit_exceeded records go
func WithEmitter(e audit.Emitter) Option {
	return func(c *Controller) {
		if e != nil {
			c.emitter = e
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a Controller with default limits and an in-process store
func NewController(opts ...Option) *Controller {
	c := &Controller{
		limits:  DefaultLimits(),
		store:   NewMemoryStore(),
		emitter: audit.Discard,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit decides whether subject may perform op now. A store failure admits
// the request so a broken backend never locks every caller out.
func (c *Controller) Admit(ctx context.Context, subject, op string) Decision {
	limit := c.limits.For(op)
	d, err := c.store.Admit(ctx, windowKey(subject, op), limit, c.now())
	if err != nil {
		slog.Error("Rate admission failed", "operation", op, "user_id", subject, "error", err)
		d = Decision{Admitted: true, Limit: limit}
	}

	if d.Admitted {
		metrics.Admissions.WithLabelValues(op, metrics.ResultAdmitted).Inc()
		return d
	}

	metrics.Admissions.WithLabelValues(op, metrics.ResultDenied).Inc()
	c.emitter.Emit(ctx, audit.RateLimitExceeded(subject, op, d.RetryAfter))
	return d
}

// Limits returns the configured ceilings
func (c *Controller) Limits() Limits {
	return c.limits
}

type controllerKey struct{}

// NewContext attaches a controller that overrides the service default for
// calls made under ctx
func NewContext(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerKey{}, c)
}

// FromContext returns the controller attached by NewContext
func FromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(controllerKey{}).(*Controller)
	return c, ok && c != nil
}
