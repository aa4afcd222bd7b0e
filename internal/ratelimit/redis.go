// Package ratelimit provides admission control for the Mediguard API.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "mediguard:rl:"
	defaultRedisTimeout = 200 * time.Millisecond
	pingTimeout         = 5 * time.Second
)

// allowScript runs the prune/count/add/expiry sequence as one atomic unit
// on the server, so concurrent checks from multiple instances cannot both
// observe a free slot. Returns {allowed, remaining, retry_after_ms}.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local window_ms = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local now_ms = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)

	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now_ms, member)
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_ms = window_ms
	if oldest[2] then
		retry_ms = (tonumber(oldest[2]) + window_ms) - now_ms
		if retry_ms < 0 then
			retry_ms = 0
		end
	end
	return {0, 0, retry_ms}
`)

type (
	// RedisConfig holds construction parameters for the distributed
	// engine.
	RedisConfig struct {
		Addr     string
		Password string
		DB       int

		// KeyPrefix namespaces sorted-set keys. Default "mediguard:rl:".
		KeyPrefix string

		// Timeout bounds each admission check's store round trip.
		// Default 200ms; on expiry the check fails open.
		Timeout time.Duration
	}

	// RedisLimiter enforces one logical quota across service instances
	// using a sorted set of accept-timestamps per ClientKey.
	//
	// The check runs as a server-side script, so the prune-check-append
	// sequence is atomic and no instance can be admitted past the limit
	// by a concurrent check elsewhere. On store timeout or connection
	// error the engine fails OPEN: availability of the medical API is
	// prioritized over precise quota enforcement for this non-critical
	// control.
	RedisLimiter struct {
		client  *redis.Client
		prefix  string
		timeout time.Duration
		logger  *slog.Logger

		now func() time.Time
	}
)

// NewRedisLimiter connects to the shared store and verifies it with a
// ping. A failed ping is a construction error: deployments that ask for
// distributed limiting should notice a dead store at startup, not fail
// open silently forever.
func NewRedisLimiter(cfg *RedisConfig, logger *slog.Logger) (*RedisLimiter, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLimiter{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Allow implements Limiter against the shared store.
//
// On any store error the returned Decision admits the request and the
// error is reported for logging; it is never a reason to reject.
func (l *RedisLimiter) Allow(ctx context.Context, key ClientKey, policy EndpointPolicy) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := policy.Window.Milliseconds()

	// Member values carry a uuid suffix so two admissions in the same
	// millisecond remain distinct sorted-set entries.
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := allowScript.Run(ctx, l.client, []string{l.prefix + key.String()},
		windowMs, policy.MaxRequests, nowMs, member).Result()
	if err != nil {
		l.warnFailOpen(key, err)

		return failOpenDecision(policy, now), fmt.Errorf("rate limit store check failed: %w", err)
	}

	vals, ok := res.([]any)
	if !ok || len(vals) < 3 {
		err := fmt.Errorf("unexpected rate limit script result: %v", res)
		l.warnFailOpen(key, err)

		return failOpenDecision(policy, now), err
	}

	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	retryMs, _ := vals[2].(int64)

	if allowed == 1 {
		return Decision{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: int(remaining),
			Reset:     now.Add(policy.Window),
		}, nil
	}

	retry := time.Duration(retryMs) * time.Millisecond

	return Decision{
		Allowed:    false,
		Limit:      policy.MaxRequests,
		Remaining:  0,
		RetryAfter: retry,
		Reset:      now.Add(retry),
	}, nil
}

// RetryAfter implements Limiter. Store errors return the full window.
func (l *RedisLimiter) RetryAfter(ctx context.Context, key ClientKey, policy EndpointPolicy) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	oldest, err := l.client.ZRangeWithScores(ctx, l.prefix+key.String(), 0, 0).Result()
	if err != nil {
		return policy.Window, fmt.Errorf("rate limit store read failed: %w", err)
	}

	if len(oldest) == 0 {
		return policy.Window, nil
	}

	oldestMs := int64(oldest[0].Score)
	wait := time.Duration(oldestMs+policy.Window.Milliseconds()-l.now().UnixMilli()) * time.Millisecond

	if wait < 0 {
		wait = 0
	}

	return wait, nil
}

// Close releases the connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) warnFailOpen(key ClientKey, err error) {
	if l.logger == nil {
		return
	}

	l.logger.Warn("Rate limit store unavailable, failing open",
		slog.String("client", key.Client),
		slog.String("endpoint", key.Endpoint),
		slog.String("error", err.Error()),
	)
}

func failOpenDecision(policy EndpointPolicy, now time.Time) Decision {
	return Decision{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
		Reset:     now.Add(policy.Window),
	}
}
