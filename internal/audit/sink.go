package audit

import (
	"context"
	"io"
	"log/slog"
)

// Sink receives finished audit records. Implementations must tolerate
// concurrent Emit calls; the caller treats every Emit as best-effort.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// SlogSink writes records as JSON lines through a dedicated slog logger.
// The logger must be audit-only: sharing a handler with the application
// log would mix streams with different redaction guarantees.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds an audit sink writing JSON lines to w.
func NewSlogSink(w io.Writer) *SlogSink {
	return &SlogSink{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})),
	}
}

// Emit implements Sink.
func (s *SlogSink) Emit(_ context.Context, rec Record) error {
	s.logger.Info("audit",
		slog.String("request_id", rec.RequestID),
		slog.String("method", rec.Method),
		slog.String("path", rec.Path),
		slog.Int("status_code", rec.StatusCode),
		slog.Int64("duration_ms", rec.DurationMs),
		slog.String("client_ip", rec.ClientIP),
		slog.String("user_agent", rec.UserAgent),
		slog.String("body_summary", rec.BodySummary),
	)

	return nil
}

// MultiSink fans one record out to several sinks. Emit returns the first
// error but still delivers to every sink; one slow or broken destination
// must not starve the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit implements Sink.
func (m *MultiSink) Emit(ctx context.Context, rec Record) error {
	var firstErr error

	for _, s := range m.sinks {
		if err := s.Emit(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
