package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  LogLevel
	}{
		{name: "debug lower", input: "debug", want: LevelDebug},
		{name: "info upper", input: "INFO", want: LevelInfo},
		{name: "warn mixed", input: "WaRn", want: LevelWarn},
		{name: "error", input: "error", want: LevelError},
		{name: "fatal", input: "fatal", want: LevelFatal},
		{name: "trim spaces", input: "  debug  ", want: LevelDebug},
		{name: "unknown fallback", input: "verbose", want: LevelInfo},
		{name: "empty fallback", input: "", want: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Fatalf("ParseLevel(%q)=%v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_WithPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerTo(&buf, LevelWarn)
	jobLog := base.WithPrefix("[JOB abc]")

	jobLog.Info("dropped %d", 1)
	jobLog.Warn("kept %d", 2)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "[JOB abc] kept 2") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestInitFileLogger(t *testing.T) {
	t.Cleanup(func() { globalLogger = nil })

	path := filepath.Join(t.TempDir(), "logs", "video2slides.log")
	fl, err := InitFileLogger(path, LevelInfo)
	if err != nil {
		t.Fatalf("InitFileLogger: %v", err)
	}
	if GetLogger() != fl.Logger {
		t.Fatal("file logger is not the global logger")
	}

	Debug("hidden")
	Info("extraction %s started", "abc")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "extraction abc started") {
		t.Fatalf("unexpected log content: %q", out)
	}
	if !strings.Contains(out, "logger_level_test.go") {
		t.Fatalf("caller not reported: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %q", out)
	}
}
