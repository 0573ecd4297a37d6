package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerTagsComponentInJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentWorker, Output: &buf})
	l.Info("synced", FieldOutboxID, "abc")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if rec[FieldComponent] != ComponentWorker || rec[FieldOutboxID] != "abc" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentApp}))
	r := httptest.NewRequest("POST", "/process-csv", nil)

	sl.LogHTTPEnd(context.Background(), r, 502, 12, "10.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status_code=502") {
		t.Errorf("unexpected line %q", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "store failed", errors.New("boom"), ComponentStore, OpCreate, nil)
	if !strings.Contains(buf.String(), "component=store") || !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("unexpected line %q", buf.String())
	}

	buf.Reset()
	sl.LogBatchProcessed(context.Background(), "may.csv", 5, 3, 1, 1)
	line := buf.String()
	if !strings.Contains(line, "filename=may.csv") || !strings.Contains(line, "entries=3") || strings.Contains(line, FieldRowIndex) {
		t.Errorf("unexpected line %q", line)
	}
}

func TestFromContextFallback(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Errorf("FromContext() = %+v", l)
	}
}
