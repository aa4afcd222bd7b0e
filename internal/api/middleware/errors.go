// Package middleware provides HTTP middleware components for the Mediguard API.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// writeProblem writes an RFC 7807 problem document carrying the request
// correlation id. Used for generic failures; rate-limit denials use
// their own smaller body shape.
func writeProblem(w http.ResponseWriter, r *http.Request, statusCode int, detail, requestID string) error {
	var title string

	switch statusCode {
	case http.StatusNotFound:
		title = "Not Found"
	case http.StatusMethodNotAllowed:
		title = "Method Not Allowed"
	case http.StatusInternalServerError:
		title = "Internal Server Error"
	default:
		title = http.StatusText(statusCode)
	}

	problem := map[string]any{
		"type":       fmt.Sprintf("https://mediguard.io/problems/%d", statusCode),
		"title":      title,
		"status":     statusCode,
		"detail":     detail,
		"instance":   r.URL.Path,
		"request_id": requestID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		return fmt.Errorf("failed to encode problem document: %w", err)
	}

	return nil
}
