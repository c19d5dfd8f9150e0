package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStoreCeiling(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := s.Admit(ctx, "upload:alice", 10, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, d.Admitted, "admission %d", i)
		assert.Equal(t, i, d.Count)
	}

	d, err := s.Admit(ctx, "upload:alice", 10, t0.Add(11*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Admitted)
	assert.Equal(t, 10, d.Count)
	// oldest at t0+1s, now t0+11s: ceil(60-10)+1
	assert.Equal(t, 51, d.RetryAfter)
}

func TestMemoryStoreRetryAfterRoundsUp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Admit(ctx, "k", 1, t0)
	require.NoError(t, err)

	d, err := s.Admit(ctx, "k", 1, t0.Add(10500*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, d.Admitted)
	// 49.5s remaining rounds up to 50, plus one
	assert.Equal(t, 51, d.RetryAfter)
}

func TestMemoryStoreDenialDoesNotExtendWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Admit(ctx, "list:bob", 5, t0)
		require.NoError(t, err)
	}
	for i := 1; i <= 30; i++ {
		d, err := s.Admit(ctx, "list:bob", 5, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.False(t, d.Admitted)
	}

	// Denials were not recorded, so the window clears 60s after the first burst.
	d, err := s.Admit(ctx, "list:bob", 5, t0.Add(60*time.Second+time.Millisecond))
	require.NoError(t, err)
	assert.True(t, d.Admitted)
	assert.Equal(t, 1, d.Count)
}

func TestMemoryStoreBoundaryEntryStaysInWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Admit(ctx, "k", 1, t0)
	require.NoError(t, err)

	d, err := s.Admit(ctx, "k", 1, t0.Add(Window))
	require.NoError(t, err)
	assert.False(t, d.Admitted)
	assert.Equal(t, 1, d.RetryAfter)
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	d, err := s.Admit(ctx, "delete:alice", 1, t0)
	require.NoError(t, err)
	require.True(t, d.Admitted)

	d, err = s.Admit(ctx, "delete:bob", 1, t0)
	require.NoError(t, err)
	assert.True(t, d.Admitted)

	d, err = s.Admit(ctx, "list:alice", 1, t0)
	require.NoError(t, err)
	assert.True(t, d.Admitted)
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Admit(ctx, "upload:alice", 10, t0)
	require.NoError(t, err)
	_, err = s.Admit(ctx, "upload:bob", 10, t0.Add(120*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len(), "no sweep before the interval elapses")

	_, err = s.Admit(ctx, "upload:carol", 10, t0.Add(301*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len(), "idle windows are evicted")
}

func TestMemoryStoreConcurrentAdmissions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.Admit(ctx, "download:alice", 30, t0)
			if err == nil && d.Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(30), admitted.Load())
}
