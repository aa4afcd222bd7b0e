// Package ratelimit provides admission control for the Mediguard API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultIdleTimeout   = 1 * time.Hour
)

type (
	// Config holds construction parameters for the in-memory engine.
	Config struct {
		// GlobalRPS caps aggregate throughput across all keys with a
		// token bucket in front of the per-key windows. 0 disables the
		// global tier.
		GlobalRPS int

		// GlobalBurst overrides the global burst capacity. 0 computes
		// it as 2 × GlobalRPS.
		GlobalBurst int

		// SweepInterval is how often idle buckets are reclaimed.
		// Default: 5 minutes.
		SweepInterval time.Duration

		// IdleTimeout is how long a bucket may go untouched before the
		// sweep removes it. Default: 1 hour.
		IdleTimeout time.Duration
	}

	// SlidingWindowLimiter is the in-process admission engine.
	//
	// Each ClientKey owns a bucket holding the accept-timestamps of its
	// in-window requests, at most policy.MaxRequests of them. The
	// prune-check-append sequence runs under the bucket's mutex so two
	// concurrent checks can never both observe a free slot and both be
	// admitted past the limit.
	//
	// Buckets are created lazily on first use. A background sweep
	// removes buckets that have been idle longer than IdleTimeout,
	// bounding aggregate memory under many distinct (spoofed) keys.
	SlidingWindowLimiter struct {
		mu      sync.RWMutex
		buckets map[ClientKey]*bucket

		global *rate.Limiter

		sweepInterval time.Duration
		idleTimeout   time.Duration
		sweepTicker   *time.Ticker
		done          chan struct{}
		closeOnce     sync.Once

		// now is the clock; replaced in tests.
		now func() time.Time
	}

	// bucket is the sliding-window log for one key.
	bucket struct {
		mu sync.Mutex

		// hits holds accept-timestamps in append order; entries older
		// than the window are pruned on every access.
		hits []time.Time

		lastAccess time.Time
	}
)

// NewSlidingWindowLimiter constructs the in-memory engine and starts its
// idle-bucket sweep. Callers own the instance and must Close it on
// shutdown; it is meant to be built once and shared by reference across
// all request handlers, never reached through package-global state.
func NewSlidingWindowLimiter(cfg *Config) *SlidingWindowLimiter {
	if cfg == nil {
		cfg = &Config{}
	}

	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}

	l := &SlidingWindowLimiter{
		buckets:       make(map[ClientKey]*bucket),
		sweepInterval: sweep,
		idleTimeout:   idle,
		done:          make(chan struct{}),
		now:           time.Now,
	}

	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = 2 * cfg.GlobalRPS
		}

		l.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}

	l.startSweep()

	return l
}

// Allow implements Limiter. It never returns an error: the in-memory
// engine has no backing store to fail.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key ClientKey, policy EndpointPolicy) (Decision, error) {
	// Global safety valve first, so a flood of distinct keys cannot
	// saturate the process before per-key limits apply.
	if l.global != nil && !l.global.Allow() {
		return Decision{
			Allowed:    false,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			RetryAfter: time.Second,
			Reset:      l.now().Add(time.Second),
		}, nil
	}

	b := l.getOrCreateBucket(key)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now
	b.prune(now, policy.Window)

	if len(b.hits) >= policy.MaxRequests {
		oldest := b.hits[0]

		return Decision{
			Allowed:    false,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			RetryAfter: retryAfter(now, oldest, policy.Window),
			Reset:      oldest.Add(policy.Window),
		}, nil
	}

	b.hits = append(b.hits, now)

	return Decision{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests - len(b.hits),
		Reset:     b.hits[0].Add(policy.Window),
	}, nil
}

// RetryAfter implements Limiter. An unknown key or empty bucket returns
// the full window as a conservative default and never errors.
func (l *SlidingWindowLimiter) RetryAfter(_ context.Context, key ClientKey, policy EndpointPolicy) (time.Duration, error) {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		return policy.Window, nil
	}

	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now, policy.Window)

	if len(b.hits) < policy.MaxRequests {
		return 0, nil
	}

	return retryAfter(now, b.hits[0], policy.Window), nil
}

// Close stops the idle-bucket sweep. Safe to call more than once.
func (l *SlidingWindowLimiter) Close() error {
	l.closeOnce.Do(func() {
		if l.sweepTicker != nil {
			l.sweepTicker.Stop()
		}

		close(l.done)
	})

	return nil
}

// BucketCount reports the number of live buckets, for tests and
// operational introspection.
func (l *SlidingWindowLimiter) BucketCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.buckets)
}

func (l *SlidingWindowLimiter) getOrCreateBucket(key ClientKey) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring the write lock (avoid race).
	if b, ok = l.buckets[key]; ok {
		return b
	}

	b = &bucket{lastAccess: l.now()}
	l.buckets[key] = b

	return b
}

// prune drops entries older than now - window. Caller holds b.mu.
func (b *bucket) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)

	i := 0
	for i < len(b.hits) && !b.hits[i].After(cutoff) {
		i++
	}

	if i > 0 {
		b.hits = append(b.hits[:0], b.hits[i:]...)
	}
}

func retryAfter(now, oldest time.Time, window time.Duration) time.Duration {
	wait := window - now.Sub(oldest)
	if wait < 0 {
		return 0
	}

	return wait
}

// startSweep starts the background goroutine that reclaims idle buckets.
func (l *SlidingWindowLimiter) startSweep() {
	l.sweepTicker = time.NewTicker(l.sweepInterval)

	go func() {
		for {
			select {
			case <-l.sweepTicker.C:
				l.sweep()
			case <-l.done:
				return
			}
		}
	}()
}

// sweep removes buckets that have not been touched within the idle
// timeout. Entries inside live buckets are pruned lazily on access, so
// the sweep only needs lastAccess.
func (l *SlidingWindowLimiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		b.mu.Lock()
		last := b.lastAccess
		b.mu.Unlock()

		if now.Sub(last) > l.idleTimeout {
			delete(l.buckets, key)
		}
	}
}
