package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediguard-io/mediguard/internal/privacy"
)

func TestMaskIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ipv4", in: "203.75.15.20", want: "203.75.***.**"},
		{name: "ipv4 private", in: "10.0.113.9", want: "10.0.***.**"},
		{name: "ipv6", in: "2001:db8:85a3::8a2e:370:7334", want: "2001:db8::****"},
		{name: "empty", in: "", want: "***"},
		{name: "garbage", in: "not-an-ip", want: "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskIP(tt.in))
		})
	}
}

func TestCapUserAgent(t *testing.T) {
	assert.Equal(t, "curl/8.0", CapUserAgent("curl/8.0"))

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}

	assert.Len(t, CapUserAgent(string(long)), maxUserAgentLen)
}

func TestSummarize(t *testing.T) {
	redacted := map[string]any{
		"phone":    privacy.MaskToken,
		"symptoms": "hash:a1b2c3d4e5f60718",
		"note":     "call me tomorrow",
		"age":      float64(42),
		"walk_in":  true,
		"contacts": []any{},
		"meta":     map[string]any{},
		"ref":      nil,
	}

	got := Summarize(redacted)

	assert.Equal(t,
		"age=number contacts=array meta=object note=truncated(16chars) "+
			"phone=masked ref=null symptoms=masked walk_in=bool",
		got)

	// Raw values never appear.
	assert.NotContains(t, got, "call me")
}

func TestSummarize_Empty(t *testing.T) {
	assert.Empty(t, Summarize(nil))
	assert.Empty(t, Summarize(map[string]any{}))
}

func TestRecorderBuild(t *testing.T) {
	r := NewRecorder(nil, nil)

	rec := r.Build(RequestInfo{
		RequestID:  "req-1",
		Method:     "POST",
		Path:       "/api/v1/triage",
		StatusCode: 200,
		Duration:   150 * time.Millisecond,
		ClientIP:   "203.75.15.20",
		UserAgent:  "curl/8.0",
		RedactedBody: map[string]any{
			"symptoms": "hash:a1b2c3d4e5f60718",
		},
	})

	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/api/v1/triage", rec.Path)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, int64(150), rec.DurationMs)
	assert.Equal(t, "203.75.***.**", rec.ClientIP)
	assert.Equal(t, "curl/8.0", rec.UserAgent)
	assert.Equal(t, "symptoms=masked", rec.BodySummary)
}

func TestRecorderBuild_NoBody(t *testing.T) {
	r := NewRecorder(nil, nil)

	rec := r.Build(RequestInfo{Method: "GET", Path: "/ping"})

	assert.Empty(t, rec.BodySummary)
}

func TestSlogSinkEmit(t *testing.T) {
	var buf bytes.Buffer

	sink := NewSlogSink(&buf)

	err := sink.Emit(context.Background(), Record{
		RequestID:  "req-2",
		Method:     "GET",
		Path:       "/api/v1/hospitals",
		StatusCode: 200,
		ClientIP:   "203.75.***.**",
	})
	require.NoError(t, err)

	var line map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-2", line["request_id"])
	assert.Equal(t, "203.75.***.**", line["client_ip"])
}

type failingSink struct{ calls int }

func (s *failingSink) Emit(context.Context, Record) error {
	s.calls++

	return errors.New("sink unavailable")
}

func TestRecorder_SinkFailureIsSwallowed(t *testing.T) {
	sink := &failingSink{}
	r := NewRecorder(sink, nil)

	// Must not panic or propagate.
	r.Record(context.Background(), RequestInfo{RequestID: "req-3"})

	assert.Equal(t, 1, sink.calls)
}

func TestMultiSink_DeliversToAllDespiteFailure(t *testing.T) {
	var buf bytes.Buffer

	failing := &failingSink{}
	multi := NewMultiSink(failing, NewSlogSink(&buf))

	err := multi.Emit(context.Background(), Record{RequestID: "req-4"})

	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Contains(t, buf.String(), "req-4")
}
