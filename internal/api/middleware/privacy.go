// Package middleware provides HTTP middleware components for the Mediguard API.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mediguard-io/mediguard/internal/audit"
	"github.com/mediguard-io/mediguard/internal/privacy"
)

// maxAuditBodyBytes caps how much of a request body is read for audit
// purposes. Larger bodies are audited without a summary.
const maxAuditBodyBytes = 1 << 20

// PrivacyAudit returns the middleware that orchestrates redact-then-log
// around each request.
//
// Per request: read the body, redact a COPY for audit purposes only,
// hand the original body untouched to the downstream handler (triage
// logic legitimately needs true values), and after the handler returns
// emit an audit record through the recorder. The raw body never reaches
// any log; only the redacted summary does.
//
// Unparseable or non-JSON bodies are treated as "no structured body":
// the request proceeds normally and the record simply has no summary.
func PrivacyAudit(policy *privacy.Policy, recorder *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			redacted := redactBodyCopy(policy, r)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			recorder.Record(r.Context(), audit.RequestInfo{
				RequestID:    GetRequestID(r.Context()),
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   rw.statusCode,
				Duration:     time.Since(start),
				ClientIP:     clientIdentifier(r),
				UserAgent:    r.UserAgent(),
				RedactedBody: redacted,
			})
		})
	}
}

// redactBodyCopy reads the request body up to the audit cap, restores
// the full stream for the downstream handler, and returns a redacted
// copy of its top-level JSON object. Returns nil whenever no structured
// body is available.
func redactBodyCopy(policy *privacy.Policy, r *http.Request) map[string]any {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	orig := r.Body

	raw, err := io.ReadAll(io.LimitReader(orig, maxAuditBodyBytes+1))

	// Stitch the consumed prefix back in front of the unread remainder.
	// The handler always sees the complete original stream, including
	// bytes beyond the audit cap and any deferred read error.
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), orig), orig}

	if err != nil || len(raw) > maxAuditBodyBytes {
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}

	redacted, ok := policy.Redact(doc).(map[string]any)
	if !ok {
		return nil
	}

	return redacted
}
