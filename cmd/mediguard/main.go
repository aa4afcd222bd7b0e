// Package main provides the Mediguard medical triage API gateway.
//
// Mediguard sits in front of the triage and hospital-lookup services and
// enforces two request-path controls: per-client admission quotas and a
// privacy-preserving audit trail that never records raw patient data.
package main

import (
	"flag"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/mediguard-io/mediguard/internal/api"
	"github.com/mediguard-io/mediguard/internal/audit"
	"github.com/mediguard-io/mediguard/internal/config"
	"github.com/mediguard-io/mediguard/internal/privacy"
	"github.com/mediguard-io/mediguard/internal/ratelimit"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "mediguard"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Mediguard service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
		slog.String("config_path", serverConfig.ConfigPath),
	)

	// Quota policies and the redaction policy come from the same YAML
	// file; both degrade to built-in defaults when it is absent.
	policies, err := ratelimit.LoadPolicySet(serverConfig.ConfigPath)
	if err != nil {
		logger.Error("Failed to load rate policies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	privacyPolicy, err := privacy.LoadPolicy(serverConfig.ConfigPath)
	if err != nil {
		logger.Error("Failed to load privacy policy", slog.String("error", err.Error()))
		os.Exit(1)
	}

	limiter, err := buildLimiter(logger)
	if err != nil {
		logger.Error("Failed to initialize rate limiter", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorder, sinkCloser := buildRecorder(logger)
	if sinkCloser != nil {
		defer func() {
			_ = sinkCloser.Close()
		}()
	}

	server := api.NewServer(serverConfig, limiter, policies, privacyPolicy, recorder)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Mediguard service stopped")
}

// buildLimiter selects the admission engine: the Redis-backed engine
// when MEDIGUARD_REDIS_ADDR is set (multi-instance deployments share
// one logical quota), the in-memory sliding window otherwise. Returns
// nil when rate limiting is disabled outright.
func buildLimiter(logger *slog.Logger) (ratelimit.Limiter, error) {
	if !config.GetEnvBool("MEDIGUARD_RATE_LIMIT_ENABLED", true) {
		logger.Warn("Rate limiting disabled",
			slog.String("note", "Set MEDIGUARD_RATE_LIMIT_ENABLED=true to enable admission control"),
		)

		return nil, nil
	}

	if addr := config.GetEnvStr("MEDIGUARD_REDIS_ADDR", ""); addr != "" {
		limiter, err := ratelimit.NewRedisLimiter(&ratelimit.RedisConfig{
			Addr:     addr,
			Password: config.GetEnvStr("MEDIGUARD_REDIS_PASSWORD", ""),
			DB:       config.GetEnvInt("MEDIGUARD_REDIS_DB", 0),
		}, logger)
		if err != nil {
			return nil, err
		}

		logger.Info("Distributed rate limiter initialized",
			slog.String("redis_addr", addr),
		)

		return limiter, nil
	}

	limiter := ratelimit.NewSlidingWindowLimiter(&ratelimit.Config{
		GlobalRPS: config.GetEnvInt("MEDIGUARD_GLOBAL_RPS", 0),
	})

	logger.Info("In-memory rate limiter initialized")

	return limiter, nil
}

// buildRecorder wires the audit trail: a dedicated JSON stream on
// stderr, plus a Kafka sink when MEDIGUARD_KAFKA_BROKERS is set. The
// returned closer flushes the Kafka writer on shutdown and is nil for
// the stderr-only setup.
func buildRecorder(logger *slog.Logger) (*audit.Recorder, io.Closer) {
	slogSink := audit.NewSlogSink(os.Stderr)

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("MEDIGUARD_KAFKA_BROKERS", ""))
	if len(brokers) == 0 {
		logger.Info("Audit trail initialized", slog.String("sink", "stderr"))

		return audit.NewRecorder(slogSink, logger), nil
	}

	kafkaSink, err := audit.NewKafkaSink(&audit.KafkaConfig{
		Brokers: brokers,
		Topic:   config.GetEnvStr("MEDIGUARD_KAFKA_TOPIC", ""),
	})
	if err != nil {
		logger.Warn("Kafka audit sink unavailable, using stderr only",
			slog.String("error", err.Error()),
		)

		return audit.NewRecorder(slogSink, logger), nil
	}

	logger.Info("Audit trail initialized",
		slog.String("sink", "stderr+kafka"),
		slog.Any("brokers", brokers),
	)

	return audit.NewRecorder(audit.NewMultiSink(slogSink, kafkaSink), logger), kafkaSink
}
