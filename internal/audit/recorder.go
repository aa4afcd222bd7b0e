package audit

import (
	"context"
	"log/slog"
	"time"
)

// Recorder assembles audit records and delivers them to the sink.
// Delivery is best-effort: a sink failure is logged and swallowed,
// never surfaced to request processing.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder builds a recorder around a sink. logger receives sink
// failure warnings and may be nil.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// RequestInfo carries the raw per-request values the recorder coarsens
// into a Record.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	ClientIP   string
	UserAgent  string

	// RedactedBody is the already-redacted body document, nil when the
	// request had no parseable JSON body.
	RedactedBody map[string]any
}

// Build converts raw request values into a Record, applying the IP
// mask, user-agent cap and body summary.
func (r *Recorder) Build(info RequestInfo) Record {
	rec := Record{
		RequestID:  info.RequestID,
		Method:     info.Method,
		Path:       info.Path,
		StatusCode: info.StatusCode,
		DurationMs: info.Duration.Milliseconds(),
		ClientIP:   MaskIP(info.ClientIP),
		UserAgent:  CapUserAgent(info.UserAgent),
	}

	if info.RedactedBody != nil {
		rec.BodySummary = Summarize(info.RedactedBody)
	}

	return rec
}

// Record builds and emits in one step. Sink errors are logged at Warn
// and dropped.
func (r *Recorder) Record(ctx context.Context, info RequestInfo) {
	rec := r.Build(info)

	if r.sink == nil {
		return
	}

	if err := r.sink.Emit(ctx, rec); err != nil && r.logger != nil {
		r.logger.Warn("Audit sink emit failed",
			slog.String("request_id", rec.RequestID),
			slog.String("error", err.Error()),
		)
	}
}
