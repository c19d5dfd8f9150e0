package audit

import (
	"context"
	"sync"
	"time"
)

// Buffer keeps records in memory, mostly for tests
type Buffer struct {
	mu      sync.Mutex
	records []Record
}

// NewBuffer creates an empty Buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Emit(ctx context.Context, rec Record) {
	rec = complete(ctx, rec)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	b.records = append(b.records, rec)
	b.mu.Unlock()
}

// Records returns a copy of every record emitted so far
func (b *Buffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Filter returns the records of the given type
func (b *Buffer) Filter(event EventType) []Record {
	var out []Record
	for _, rec := range b.Records() {
		if rec.EventType == event {
			out = append(out, rec)
		}
	}
	return out
}

// Multi fans records out to several emitters
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ctx context.Context, rec Record) {
		for _, e := range emitters {
			e.Emit(ctx, rec)
		}
	})
}
