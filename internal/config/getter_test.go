// Package config provides functions for reading config settings from ENV.
package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvStr(t *testing.T) {
	t.Setenv("MEDIGUARD_TEST_STR", "value")

	if got := GetEnvStr("MEDIGUARD_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnvStr() = %q, want value", got)
	}

	if got := GetEnvStr("MEDIGUARD_TEST_STR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnvStr() = %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("MEDIGUARD_TEST_INT", "42")
	t.Setenv("MEDIGUARD_TEST_INT_BAD", "not-a-number")

	if got := GetEnvInt("MEDIGUARD_TEST_INT", 7); got != 42 {
		t.Errorf("GetEnvInt() = %d, want 42", got)
	}

	if got := GetEnvInt("MEDIGUARD_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("GetEnvInt() with invalid value = %d, want default 7", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"garbage", true}, // falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("MEDIGUARD_TEST_BOOL", tt.value)

			if got := GetEnvBool("MEDIGUARD_TEST_BOOL", true); got != tt.want {
				t.Errorf("GetEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("MEDIGUARD_TEST_DURATION", "90s")
	t.Setenv("MEDIGUARD_TEST_DURATION_BAD", "ninety")

	if got := GetEnvDuration("MEDIGUARD_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("GetEnvDuration() = %v, want 90s", got)
	}

	if got := GetEnvDuration("MEDIGUARD_TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration() with invalid value = %v, want default 1s", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Setenv("MEDIGUARD_TEST_LEVEL", "warn")

	if got := GetEnvLogLevel("MEDIGUARD_TEST_LEVEL", slog.LevelInfo); got != slog.LevelWarn {
		t.Errorf("GetEnvLogLevel() = %v, want warn", got)
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	got := ParseCommaSeparatedList("broker1:9092, broker2:9092, ,broker3:9092")

	want := []string{"broker1:9092", "broker2:9092", "broker3:9092"}

	if len(got) != len(want) {
		t.Fatalf("ParseCommaSeparatedList() = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := ParseCommaSeparatedList(""); len(got) != 0 {
		t.Errorf("ParseCommaSeparatedList(\"\") = %v, want empty", got)
	}
}
