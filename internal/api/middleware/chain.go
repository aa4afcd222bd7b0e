// Package middleware provides HTTP middleware components for the Mediguard API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mediguard-io/mediguard/internal/audit"
	"github.com/mediguard-io/mediguard/internal/privacy"
	"github.com/mediguard-io/mediguard/internal/ratelimit"
)

type (
	// Option is a function that applies middleware to a handler.
	Option func(http.Handler) http.Handler
)

// Apply applies a chain of middleware options to a base handler.
// Middleware is applied in the order provided (first option wraps handler first).
//
// Example:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithRequestID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithRateLimit(limiter, policies, logger),
//	    middleware.WithPrivacyAudit(policy, recorder),
//	    middleware.WithRequestLogger(logger),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	// Apply middleware in reverse order so that the first option
	// becomes the outermost middleware in the chain
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithRequestID returns an option that adds request id middleware.
func WithRequestID() Option {
	return func(next http.Handler) http.Handler {
		return RequestID()(next)
	}
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return Recovery(logger)(next)
	}
}

// WithRateLimit returns an option that adds admission control middleware.
// If limiter is nil, this option is skipped (no middleware applied).
func WithRateLimit(limiter ratelimit.Limiter, policies *ratelimit.PolicySet, logger *slog.Logger) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if limiter not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return RateLimit(limiter, policies, logger)(next)
	}
}

// WithPrivacyAudit returns an option that adds the redact-then-log
// middleware. If recorder is nil, this option is skipped.
func WithPrivacyAudit(policy *privacy.Policy, recorder *audit.Recorder) Option {
	if recorder == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if recorder not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return PrivacyAudit(policy, recorder)(next)
	}
}

// WithRequestLogger returns an option that adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return RequestLogger(logger)(next)
	}
}
