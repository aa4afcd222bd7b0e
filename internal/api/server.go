// Package api provides the HTTP API server for the Mediguard service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediguard-io/mediguard/internal/api/middleware"
	"github.com/mediguard-io/mediguard/internal/audit"
	"github.com/mediguard-io/mediguard/internal/privacy"
	"github.com/mediguard-io/mediguard/internal/ratelimit"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time

	limiter  ratelimit.Limiter
	policies *ratelimit.PolicySet
	privacy  *privacy.Policy
	recorder *audit.Recorder
}

// NewServer creates a new HTTP server instance with structured logging and middleware stack.
//
// Dependencies are injected explicitly rather than being part of ServerConfig.
// This follows the dependency injection pattern where configuration (what) is
// separated from dependencies (how).
//
// Parameters:
//   - cfg: Pure server configuration (ports, timeouts, log level)
//   - limiter: Admission engine (nil disables rate limiting)
//   - policies: Quota policies and whitelist (nil means built-in defaults)
//   - privacyPolicy: Redaction policy (nil means built-in defaults)
//   - recorder: Audit recorder (nil disables the audit trail)
func NewServer(
	cfg *ServerConfig,
	limiter ratelimit.Limiter,
	policies *ratelimit.PolicySet,
	privacyPolicy *privacy.Policy,
	recorder *audit.Recorder,
) *Server {
	// Create structured logger with configured log level
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if policies == nil {
		policies = ratelimit.DefaultPolicySet()
	}

	if privacyPolicy == nil {
		privacyPolicy = privacy.DefaultPolicy()
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:   logger,
		config:   cfg,
		limiter:  limiter,
		policies: policies,
		privacy:  privacyPolicy,
		recorder: recorder,
	}

	server.setupRoutes(mux)

	if limiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("Limiter not configured - rate limiting middleware disabled")
	}

	if recorder != nil {
		logger.Info("Privacy audit middleware enabled")
	} else {
		logger.Warn("Recorder not configured - privacy audit middleware disabled")
	}

	// Apply middleware chain using functional options pattern.
	// Middleware executes in the order listed (top-to-bottom):
	//   1. RequestID - correlation id for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. RateLimit - block requests before expensive operations (optional)
	//   4. PrivacyAudit - redact-then-log around admitted requests only
	//   5. RequestLogger - log only legitimate requests (not rate-limited spam)
	handler := middleware.Apply(mux,
		middleware.WithRequestID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(limiter, policies, logger),
		middleware.WithPrivacyAudit(privacyPolicy, recorder),
		middleware.WithRequestLogger(logger),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("Starting Mediguard API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Close the limiter to stop background sweeps or release the
	// distributed store's connection pool.
	if s.limiter != nil {
		s.logger.Info("Closing rate limiter")

		if err := s.limiter.Close(); err != nil {
			s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
		} else {
			s.logger.Info("Rate limiter closed successfully")
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
