package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store records admissions for a key and decides against a ceiling.
// Admit must trim, count and append as one atomic step per key.
type Store interface {
	Admit(ctx context.Context, key string, limit int, now time.Time) (Decision, error)
}

// MemoryStore keeps windows in process
type MemoryStore struct {
	mu         sync.Mutex
	windows    map[string][]time.Time
	window     time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewMemoryStore creates a MemoryStore with the standard window
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:    make(map[string][]time.Time),
		window:     Window,
		sweepEvery: SweepInterval,
	}
}

// Admit trims entries older than the window, then appends now when the
// remaining count is below limit. Denials leave the window unchanged.
func (s *MemoryStore) Admit(_ context.Context, key string, limit int, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	cutoff := now.Add(-s.window)
	w := trim(s.windows[key], cutoff)

	if len(w) < limit {
		w = append(w, now)
		s.windows[key] = w
		return Decision{Admitted: true, Count: len(w), Limit: limit}, nil
	}

	d := Decision{Count: len(w), Limit: limit, RetryAfter: 1}
	if len(w) == 0 {
		delete(s.windows, key)
		return d, nil
	}
	s.windows[key] = w
	d.RetryAfter = retryAfter(oldest(w), now, s.window)
	return d, nil
}

// Len returns the number of tracked windows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweep(now time.Time) {
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now

	cutoff := now.Add(-s.window)
	for key, w := range s.windows {
		w = trim(w, cutoff)
		if len(w) == 0 {
			delete(s.windows, key)
			continue
		}
		s.windows[key] = w
	}
}

// trim drops entries strictly older than cutoff. An entry exactly at the
// cutoff is still inside the window.
func trim(w []time.Time, cutoff time.Time) []time.Time {
	kept := w[:0]
	for _, t := range w {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func oldest(w []time.Time) time.Time {
	o := w[0]
	for _, t := range w[1:] {
		if t.Before(o) {
			o = t
		}
	}
	return o
}
