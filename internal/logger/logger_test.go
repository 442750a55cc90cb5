package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
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

func TestConfigureWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	ConfigureWriter(&buf, "warn", "text")

	Info("hidden message")
	Error("visible failure", errors.New("boom"), "source", "hn")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "visible failure") || !strings.Contains(out, "error=boom") || !strings.Contains(out, "source=hn") {
		t.Errorf("error output missing fields: %s", out)
	}
}
