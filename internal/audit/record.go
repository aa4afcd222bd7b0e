// Package audit builds and emits request audit records.
//
// Audit output is the one log stream with a hard privacy guarantee: a
// Record never carries a raw request value. Everything that reaches a
// Record is either coarsened (client IP), capped (user agent) or reduced
// to a shape descriptor (body summary). Records go to a dedicated sink,
// never to the general application log.
package audit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mediguard-io/mediguard/internal/privacy"
)

const (
	// maxUserAgentLen caps the user-agent string; anything longer is an
	// anomaly we do not want verbatim in audit storage.
	maxUserAgentLen = 128

	ipv4MaskSuffix = ".***.**"
	ipv6MaskSuffix = "::****"
)

// Record is the minimal per-request audit entry.
type Record struct {
	RequestID   string `json:"request_id"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	StatusCode  int    `json:"status_code"`
	DurationMs  int64  `json:"duration_ms"`
	ClientIP    string `json:"client_ip"`
	UserAgent   string `json:"user_agent,omitempty"`
	BodySummary string `json:"body_summary,omitempty"`
}

// MaskIP coarsens a client address so the audit trail shows network
// locality without identifying the host. IPv4 keeps the first two
// octets ("203.75.15.20" becomes "203.75.***.**"); IPv6 keeps the first
// two groups. Anything unparseable is fully masked.
func MaskIP(addr string) string {
	if addr == "" {
		return "***"
	}

	if strings.Contains(addr, ":") && strings.Count(addr, ":") > 1 {
		groups := strings.Split(addr, ":")
		if len(groups) >= 2 && groups[0] != "" {
			return groups[0] + ":" + groups[1] + ipv6MaskSuffix
		}

		return "***"
	}

	octets := strings.Split(addr, ".")
	if len(octets) == 4 {
		return octets[0] + "." + octets[1] + ipv4MaskSuffix
	}

	return "***"
}

// CapUserAgent truncates a user-agent string to the audit cap.
func CapUserAgent(ua string) string {
	if len(ua) <= maxUserAgentLen {
		return ua
	}

	return ua[:maxUserAgentLen]
}

// Summarize reduces a redacted body to a per-field shape description,
// like "phone=masked symptoms=masked note=truncated(19chars) age=number".
// Field values never appear; only the redaction outcome or the type.
//
// The input must already be redacted. Summarize does not redact; it only
// describes.
func Summarize(redacted map[string]any) string {
	if len(redacted) == 0 {
		return ""
	}

	parts := make([]string, 0, len(redacted))

	for field, value := range redacted {
		parts = append(parts, field+"="+describe(value))
	}

	// Map iteration order is random; a stable summary is easier to
	// read and to test against.
	sort.Strings(parts)

	return strings.Join(parts, " ")
}

func describe(value any) string {
	switch v := value.(type) {
	case string:
		if v == privacy.MaskToken || strings.HasPrefix(v, "hash:") {
			return "masked"
		}

		return fmt.Sprintf("truncated(%dchars)", len(v))
	case float64, int, int64:
		return "number"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return "value"
	}
}
