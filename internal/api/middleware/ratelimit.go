// Package middleware provides HTTP middleware components for the Mediguard API.
package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mediguard-io/mediguard/internal/ratelimit"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// rateLimitErrorCode is the machine-readable error value on 429 bodies.
const rateLimitErrorCode = "rate_limit_exceeded"

// RateLimit returns a middleware that enforces per-client, per-endpoint
// admission quotas.
//
// Per request: skip exempt paths (health probes), resolve the client
// identity, short-circuit whitelisted clients before touching the
// engine (no bucket is ever allocated for them), resolve the endpoint
// policy, and ask the engine for a
// decision. Denials produce a 429 with a machine-readable body and
// Retry-After guidance. Engine errors fail OPEN with a warning; the
// quota is a protective control, not a dependency of the medical API.
//
// The middleware must be placed after RequestID in the chain so denial
// responses and warnings carry the correlation id.
func RateLimit(limiter ratelimit.Limiter, policies *ratelimit.PolicySet, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policies.Exempt(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			client := clientIdentifier(r)

			if policies.Whitelisted(client) {
				next.ServeHTTP(w, r)

				return
			}

			policy := policies.Resolve(r.URL.Path)
			key := ratelimit.ClientKey{Client: client, Endpoint: r.URL.Path}

			decision, err := limiter.Allow(r.Context(), key, policy)
			if err != nil {
				// Fail open regardless of what the engine returned
				// alongside the error; the admission must not depend on
				// how a particular engine shapes its error decisions.
				decision = ratelimit.Decision{
					Allowed:   true,
					Limit:     policy.MaxRequests,
					Remaining: policy.MaxRequests,
				}

				logger.Warn("Rate limit check failed, admitting request",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("client", client),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}

			setRateLimitHeaders(w, decision)

			if !decision.Allowed {
				writeRateLimited(w, r, decision, logger)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentifier resolves the client identity for quota accounting:
// the first X-Forwarded-For hop when present, then X-Real-IP, then the
// connection's remote address.
func clientIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// setRateLimitHeaders exposes quota state on every limited response,
// admitted or denied, so well-behaved clients can pace themselves.
func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set(headerRateLimitLimit, strconv.Itoa(d.Limit))
	w.Header().Set(headerRateLimitRemaining, strconv.Itoa(d.Remaining))

	if !d.Reset.IsZero() {
		w.Header().Set(headerRateLimitReset, strconv.FormatInt(d.Reset.Unix(), 10))
	}
}

// writeRateLimited writes the 429 response. Denial is a deterministic
// policy outcome, not an error, so the body is a small machine-readable
// object rather than a problem document.
func writeRateLimited(w http.ResponseWriter, r *http.Request, d ratelimit.Decision, logger *slog.Logger) {
	retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set(headerRetryAfter, strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := map[string]any{
		"detail":      "Rate limit exceeded. Please retry after the indicated delay.",
		"error":       rateLimitErrorCode,
		"retry_after": retryAfter,
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode rate limit response",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
