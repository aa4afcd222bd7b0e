// Package ratelimit provides admission control for the Mediguard API.
//
// Two engines implement the Limiter contract: SlidingWindowLimiter keeps
// per-key sliding-window logs in process memory (single-instance
// deployments), and RedisLimiter keeps them in a shared Redis sorted set
// so multiple service instances enforce one logical quota.
package ratelimit

import (
	"context"
	"time"
)

type (
	// ClientKey names one admission bucket: a client identity checked
	// against the quota of one endpoint.
	ClientKey struct {
		Client   string
		Endpoint string
	}

	// Decision is the outcome of a single admission check.
	Decision struct {
		// Allowed reports whether the request may proceed.
		Allowed bool

		// Limit is the max_requests of the policy that was applied.
		Limit int

		// Remaining is the number of additional requests the key may
		// make in the current window, after this one.
		Remaining int

		// RetryAfter is how long the caller should wait before the
		// next attempt can succeed. Only meaningful on denial.
		RetryAfter time.Duration

		// Reset is the instant at which the oldest in-window entry
		// ages out and one slot frees up.
		Reset time.Time
	}

	// Limiter decides whether a request identified by key is admitted
	// under the given policy.
	//
	// Implementations must never return an error to signal denial;
	// denial is expressed through Decision.Allowed. An error indicates
	// an engine/backing-store problem, and callers are expected to
	// fail open (admit) when one is returned.
	Limiter interface {
		// Allow runs the prune-check-append sequence for key and
		// reports the decision. Unknown keys are treated as having no
		// prior requests and never produce an error.
		Allow(ctx context.Context, key ClientKey, policy EndpointPolicy) (Decision, error)

		// RetryAfter reports how long the key must wait for the next
		// admission. An empty bucket returns the full window as a
		// conservative default.
		RetryAfter(ctx context.Context, key ClientKey, policy EndpointPolicy) (time.Duration, error)

		// Close releases engine resources (sweep goroutines,
		// connection pools).
		Close() error
	}
)

// String renders the key in client|endpoint form, used as the storage key
// by the distributed engine.
func (k ClientKey) String() string {
	return k.Client + "|" + k.Endpoint
}
