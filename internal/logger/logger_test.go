package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNew_WritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "simserver", slog.LevelInfo)
	l.Debug("hidden")
	l.Info("hello", slog.Int("index", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "simserver" || rec["msg"] != "hello" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSessionID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := SessionID(ctx); id != "" {
		t.Errorf("expected empty session id, got %q", id)
	}

	ctx = WithSessionID(ctx, "sess-123")
	if id := SessionID(ctx); id != "sess-123" {
		t.Errorf("expected 'sess-123', got %q", id)
	}
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Errorf("expected distinct ids, got %q and %q", a, b)
	}
}

func TestLogWithSession(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithSession(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no ids, got %v", attrs)
	}

	ctx = WithSessionID(ctx, "abc-123")
	if attrs := LogWithSession(ctx); len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}

	ctx = WithRunID(ctx, "run-9")
	if attrs := LogWithSession(ctx); len(attrs) != 2 {
		t.Fatalf("expected two attrs, got %v", attrs)
	}
}
