// Package api provides the HTTP API server for the Mediguard service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mediguard-io/mediguard/internal/api/middleware"
)

// Hospital is one entry in the hospital lookup response.
type Hospital struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	City      string `json:"city"`
	Emergency bool   `json:"emergency"`
}

// hospitalDirectory is a static stand-in for the geocoding service that
// owns real hospital search.
var hospitalDirectory = []Hospital{
	{ID: "h-001", Name: "Taipei General Hospital", City: "Taipei", Emergency: true},
	{ID: "h-002", Name: "Zhongshan District Clinic", City: "Taipei", Emergency: false},
	{ID: "h-003", Name: "Kaohsiung Medical Center", City: "Kaohsiung", Emergency: true},
}

// handleHospitals returns the hospital directory, optionally filtered by
// the "city" query parameter.
func (s *Server) handleHospitals(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	city := r.URL.Query().Get("city")

	results := make([]Hospital, 0, len(hospitalDirectory))

	for _, h := range hospitalDirectory {
		if city == "" || h.City == city {
			results = append(results, h)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]any{"hospitals": results}); err != nil {
		s.logger.Error("Failed to write hospitals response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}
