package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the engine's notion of "now" explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T) (*SlidingWindowLimiter, *fakeClock) {
	t.Helper()

	l := NewSlidingWindowLimiter(nil)
	t.Cleanup(func() { _ = l.Close() })

	clock := newFakeClock()
	l.now = clock.Now

	return l, clock
}

// TestSlidingWindow_RollingWindowScenario walks the canonical sequence:
// policy {max=3, window=60s}; 3 requests at t=0 admitted; 4th at t=1
// denied with retry_after≈59s; 5th at t=61 admitted.
func TestSlidingWindow_RollingWindowScenario(t *testing.T) {
	l, clock := newTestLimiter(t)

	key := ClientKey{Client: "203.0.113.9", Endpoint: "/api/v1/triage"}
	policy := EndpointPolicy{MaxRequests: 3, Window: 60 * time.Second}

	for i := 0; i < 3; i++ {
		dec, err := l.Allow(context.Background(), key, policy)
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "request %d should be admitted", i+1)
	}

	clock.Advance(1 * time.Second)

	dec, err := l.Allow(context.Background(), key, policy)
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "4th request inside the window should be denied")
	assert.Equal(t, 59*time.Second, dec.RetryAfter)
	assert.Equal(t, 0, dec.Remaining)

	clock.Advance(60 * time.Second) // t = 61s, all three entries aged out

	dec, err = l.Allow(context.Background(), key, policy)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "request after the window rolls should be admitted")
}

func TestSlidingWindow_DenialDoesNotMutateBucket(t *testing.T) {
	l, clock := newTestLimiter(t)

	key := ClientKey{Client: "c", Endpoint: "/e"}
	policy := EndpointPolicy{MaxRequests: 1, Window: 10 * time.Second}

	dec, _ := l.Allow(context.Background(), key, policy)
	require.True(t, dec.Allowed)

	// Hammer the denied path; none of these may extend the window.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)

		dec, _ = l.Allow(context.Background(), key, policy)
		assert.False(t, dec.Allowed)
	}

	// 10s after the single admission the slot must be free again, no
	// matter how many denials happened in between.
	clock.Advance(5 * time.Second)

	dec, _ = l.Allow(context.Background(), key, policy)
	assert.True(t, dec.Allowed)
}

func TestSlidingWindow_RetryAfter(t *testing.T) {
	l, clock := newTestLimiter(t)

	key := ClientKey{Client: "c", Endpoint: "/e"}
	policy := EndpointPolicy{MaxRequests: 2, Window: 30 * time.Second}

	// Unknown key: conservative full window.
	wait, err := l.RetryAfter(context.Background(), key, policy)
	require.NoError(t, err)
	assert.Equal(t, policy.Window, wait)

	_, _ = l.Allow(context.Background(), key, policy)
	_, _ = l.Allow(context.Background(), key, policy)

	clock.Advance(10 * time.Second)

	wait, err = l.RetryAfter(context.Background(), key, policy)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, wait)

	// Waiting out retryAfter always results in admission.
	clock.Advance(wait)

	dec, _ := l.Allow(context.Background(), key, policy)
	assert.True(t, dec.Allowed)
}

func TestSlidingWindow_RemainingAndReset(t *testing.T) {
	l, _ := newTestLimiter(t)

	key := ClientKey{Client: "c", Endpoint: "/e"}
	policy := EndpointPolicy{MaxRequests: 3, Window: time.Minute}

	dec, _ := l.Allow(context.Background(), key, policy)
	assert.Equal(t, 2, dec.Remaining)
	assert.Equal(t, 3, dec.Limit)

	dec, _ = l.Allow(context.Background(), key, policy)
	assert.Equal(t, 1, dec.Remaining)

	dec, _ = l.Allow(context.Background(), key, policy)
	assert.Equal(t, 0, dec.Remaining)
	assert.False(t, dec.Reset.IsZero())
}

// TestSlidingWindow_ConcurrentLastSlot races many goroutines at a bucket
// with exactly one remaining slot; exactly one may win.
func TestSlidingWindow_ConcurrentLastSlot(t *testing.T) {
	l := NewSlidingWindowLimiter(nil)
	defer func() { _ = l.Close() }()

	key := ClientKey{Client: "c", Endpoint: "/e"}
	policy := EndpointPolicy{MaxRequests: 5, Window: time.Minute}

	for i := 0; i < 4; i++ {
		dec, _ := l.Allow(context.Background(), key, policy)
		require.True(t, dec.Allowed)
	}

	const contenders = 16

	var (
		wg      sync.WaitGroup
		admitMu sync.Mutex
		admits  int
	)

	for i := 0; i < contenders; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			dec, _ := l.Allow(context.Background(), key, policy)
			if dec.Allowed {
				admitMu.Lock()
				admits++
				admitMu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, admits, "exactly one contender may take the last slot")
}

func TestSlidingWindow_DistinctKeysAreIsolated(t *testing.T) {
	l, _ := newTestLimiter(t)

	policy := EndpointPolicy{MaxRequests: 1, Window: time.Minute}
	a := ClientKey{Client: "alice", Endpoint: "/e"}
	b := ClientKey{Client: "bob", Endpoint: "/e"}
	c := ClientKey{Client: "alice", Endpoint: "/other"}

	dec, _ := l.Allow(context.Background(), a, policy)
	require.True(t, dec.Allowed)

	dec, _ = l.Allow(context.Background(), a, policy)
	assert.False(t, dec.Allowed, "same client+endpoint shares a bucket")

	dec, _ = l.Allow(context.Background(), b, policy)
	assert.True(t, dec.Allowed, "different client gets its own bucket")

	dec, _ = l.Allow(context.Background(), c, policy)
	assert.True(t, dec.Allowed, "different endpoint gets its own bucket")
}

func TestSlidingWindow_SweepReclaimsIdleBuckets(t *testing.T) {
	l := NewSlidingWindowLimiter(&Config{
		SweepInterval: time.Hour, // never fires during the test; sweep invoked directly
		IdleTimeout:   30 * time.Second,
	})
	defer func() { _ = l.Close() }()

	clock := newFakeClock()
	l.now = clock.Now

	policy := EndpointPolicy{MaxRequests: 5, Window: 10 * time.Second}

	_, _ = l.Allow(context.Background(), ClientKey{Client: "stale", Endpoint: "/e"}, policy)
	_, _ = l.Allow(context.Background(), ClientKey{Client: "active", Endpoint: "/e"}, policy)

	require.Equal(t, 2, l.BucketCount())

	clock.Advance(45 * time.Second)
	_, _ = l.Allow(context.Background(), ClientKey{Client: "active", Endpoint: "/e"}, policy)

	l.sweep()

	assert.Equal(t, 1, l.BucketCount(), "only the recently touched bucket survives")
}

func TestSlidingWindow_GlobalGuard(t *testing.T) {
	l := NewSlidingWindowLimiter(&Config{GlobalRPS: 2, GlobalBurst: 2})
	defer func() { _ = l.Close() }()

	policy := EndpointPolicy{MaxRequests: 100, Window: time.Minute}

	admits := 0

	// Distinct keys, so only the global tier can deny.
	for i := 0; i < 5; i++ {
		key := ClientKey{Client: string(rune('a' + i)), Endpoint: "/e"}

		dec, _ := l.Allow(context.Background(), key, policy)
		if dec.Allowed {
			admits++
		}
	}

	assert.Equal(t, 2, admits, "global guard caps aggregate throughput")
}

func TestSlidingWindow_CloseIsIdempotent(t *testing.T) {
	l := NewSlidingWindowLimiter(nil)

	require.NoError(t, l.Close())
	assert.NotPanics(t, func() {
		assert.NoError(t, l.Close())
	})
}
