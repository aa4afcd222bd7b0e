// Package api provides the HTTP API server for the Mediguard service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/mediguard-io/mediguard/internal/api/middleware"
)

type (
	// TriageRequest is the payload of a triage submission. The handler
	// receives true patient values; the middleware layer guarantees
	// only redacted copies reach any log.
	TriageRequest struct {
		Name     string `json:"name"`
		Phone    string `json:"phone,omitempty"`
		Symptoms string `json:"symptoms"`
		Age      int    `json:"age,omitempty"`
	}

	// TriageResponse acknowledges an accepted triage submission.
	TriageResponse struct {
		TriageID  string `json:"triage_id"`  //nolint: tagliatelle
		Level     string `json:"level"`
		RequestID string `json:"request_id"` //nolint: tagliatelle
	}
)

// handleTriage accepts a triage submission. Classification logic lives
// in a downstream service; this handler validates shape and acknowledges.
func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return
	}

	var req TriageRequest

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Request body is not valid JSON"))

		return
	}

	if req.Symptoms == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("Field 'symptoms' is required"))

		return
	}

	resp := TriageResponse{
		TriageID:  uuid.NewString(),
		Level:     "standard",
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write triage response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}
