package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

type logRecord struct {
	Level    string `json:"level"`
	Msg      string `json:"msg"`
	Provider string `json:"provider"`
}

func TestLevelFunctions(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Logger
	Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { Logger = originalLogger }()

	tests := []struct {
		fn    func(msg string, args ...any)
		level string
	}{
		{fn: Debug, level: "DEBUG"},
		{fn: Info, level: "INFO"},
		{fn: Warn, level: "WARN"},
		{fn: Error, level: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.fn("usage fetched", "provider", "copilot")

			var rec logRecord
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			want := logRecord{Level: tt.level, Msg: "usage fetched", Provider: "copilot"}
			if rec != want {
				t.Errorf("record = %+v, want %+v", rec, want)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	originalLogger := Logger
	defer func() { Logger = originalLogger }()

	var buf bytes.Buffer
	Configure(&buf, slog.LevelWarn)

	Info("hidden")
	Warn("shown", "provider", "claude")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "provider=claude") {
		t.Errorf("warn message missing from output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
