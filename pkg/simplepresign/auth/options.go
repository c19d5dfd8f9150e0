package auth

import (
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
)

type options struct {
	emitter audit.Emitter
	now     func() time.Time
}

// Option configures a Verifier or Issuer
type Option func(*options)

// WithEmitter sets where authentication and authorization records go
func WithEmitter(e audit.Emitter) Option {
	return func(o *options) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithClock sets the time source used for expiry checks and issuance
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{emitter: audit.Discard, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
