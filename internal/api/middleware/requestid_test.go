// Package middleware provides HTTP middleware components for the Mediguard API.
package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// TestRequestID_GeneratesWhenAbsent verifies a new uuid is minted and
// echoed when the caller supplies none.
func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var fromCtx string

	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetRequestID(r.Context())

		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	header := rec.Header().Get("X-Request-Id")
	if header == "" {
		t.Fatal("X-Request-Id header not set")
	}

	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("X-Request-Id %q is not a uuid: %v", header, err)
	}

	if fromCtx != header {
		t.Errorf("context id %q differs from header %q", fromCtx, header)
	}
}

// TestRequestID_PropagatesInbound verifies a caller-supplied id is kept.
func TestRequestID_PropagatesInbound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := RequestID()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied" {
		t.Errorf("X-Request-Id = %q, want caller-supplied", got)
	}
}

// TestGetRequestID_Unset verifies the fallback value.
func TestGetRequestID_Unset(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := GetRequestID(context.Background()); got != "unknown" {
		t.Errorf("GetRequestID() = %q, want unknown", got)
	}
}
