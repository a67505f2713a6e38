package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "schema", "birds")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["schema"] != "birds" {
		t.Errorf("entry = %v, want msg=kept schema=birds", entry)
	}
}

func TestWith_RequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	With(ctx, New(&buf, "info", "text")).Info("hello")

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("output %q missing request_id", buf.String())
	}
}

func TestWith_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	With(context.Background(), New(&buf, "info", "text")).Info("hello")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("output %q should not carry a request_id", buf.String())
	}
}
