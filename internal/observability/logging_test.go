package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerIncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	ctx := AddCallSID(context.Background(), "CA123")
	ctx = AddConnectionID(ctx, "conn-1")
	logger.Info(ctx, "turn completed", "path", "function")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (output %q)", err, buf.String())
	}
	if record["call_sid"] != "CA123" {
		t.Errorf("call_sid = %v, want CA123", record["call_sid"])
	}
	if record["connection_id"] != "conn-1" {
		t.Errorf("connection_id = %v, want conn-1", record["connection_id"])
	}
	if record["path"] != "function" {
		t.Errorf("path = %v, want function", record["path"])
	}
	if record["msg"] != "turn completed" {
		t.Errorf("msg = %v", record["msg"])
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := LogLevelFromString(tt.level); got != tt.want {
				t.Errorf("LogLevelFromString(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})
	ctx := context.Background()

	logger.Info(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}

	logger.SetLevel("debug")
	logger.WithFields("component", "relay").Debug(ctx, "visible")
	out := buf.String()
	if !strings.Contains(out, "visible") || !strings.Contains(out, "component=relay") {
		t.Errorf("output = %q, want debug record with component field", out)
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	err := errors.New("request failed: api_key=abcdefghijklmnopqrstuvwxyz123456")
	logger.Error(context.Background(), "completion failed", "error", err, "dsn", "postgres://app:hunter2@db:5432/frontdesk")

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnopqrstuvwxyz123456") {
		t.Errorf("api key leaked: %s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("database password leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker in %s", out)
	}
}

func TestErrorType(t *testing.T) {
	if got := ErrorType(nil); got != "none" {
		t.Errorf("ErrorType(nil) = %q", got)
	}
	if got := ErrorType(context.DeadlineExceeded); got != "timeout" {
		t.Errorf("ErrorType(deadline) = %q", got)
	}
	if got := ErrorType(errors.New("x")); got != "error" {
		t.Errorf("ErrorType(x) = %q", got)
	}
}
