// Package ratelimit admits or denies operations per identity using a
// sliding time window.
package ratelimit

import (
	"math"
	"time"
)

const (
	// Window is the span of history counted against a ceiling
	Window = 60 * time.Second

	// SweepInterval is the minimum time between evictions of idle windows
	SweepInterval = 300 * time.Second

	// DefaultCeiling applies to operations without an explicit limit
	DefaultCeiling = 60
)

// Limits maps operations to their per-window ceilings
type Limits struct {
	PerOperation map[string]int
	Default      int
}

// DefaultLimits returns the stock ceilings
func DefaultLimits() Limits {
	return Limits{
		PerOperation: map[string]int{
			"upload":   10,
			"download": 30,
			"list":     5,
			"delete":   5,
		},
		Default: DefaultCeiling,
	}
}

// For returns the ceiling for op
func (l Limits) For(op string) int {
	if n, ok := l.PerOperation[op]; ok {
		return n
	}
	if l.Default > 0 {
		return l.Default
	}
	return DefaultCeiling
}

// Decision is the outcome of an admission
type Decision struct {
	Admitted bool
	// RetryAfter is the whole number of seconds to wait; zero when admitted
	RetryAfter int
	// Count is the number of admissions in the window after this decision
	Count int
	Limit int
}

// retryAfter is the wait until oldest leaves the window, rounded up, plus one second
func retryAfter(oldest, now time.Time, window time.Duration) int {
	remaining := window - now.Sub(oldest)
	if remaining < 0 {
		remaining = 0
	}
	return int(math.Ceil(remaining.Seconds())) + 1
}

func windowKey(subject, op string) string {
	return op + ":" + subject
}
