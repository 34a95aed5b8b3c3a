package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestMake_Defaults(t *testing.T) {
	logger := Make(&bytes.Buffer{})

	if logger.Level() != LevelInfo {
		t.Errorf("default level = %v, want info", logger.Level())
	}

	if logger.Format() != FormatJSON {
		t.Errorf("default format = %v, want json", logger.Format())
	}
}

func TestLogger_ZeroValueIsSilent(t *testing.T) {
	var logger Logger

	logger.Error("nothing happens")
	logger.With(slog.String("k", "v")).Info("still nothing")

	if logger.Enabled(context.Background(), LevelError) {
		t.Error("zero logger must not be enabled")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf, WithLevel(LevelWarn), WithPretty(false))

	logger.Info("dropped")
	logger.Debug("dropped")

	if buf.Len() != 0 {
		t.Fatalf("messages below warn were written: %s", buf.String())
	}

	logger.Warn("kept")

	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn message missing: %s", buf.String())
	}
}

func TestLogger_TraceLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf, WithLevel(LevelTrace), WithFormat(FormatJSON))
	logger.Trace("deep", slog.Int("n", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}

	if rec["level"] != "TRACE" {
		t.Errorf("level = %v, want TRACE", rec["level"])
	}

	if rec["n"] != float64(3) {
		t.Errorf("n = %v, want 3", rec["n"])
	}
}

func TestLogger_TextFormatWithAttrs(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf,
		WithFormat(FormatText),
		WithTimeLayout("none"),
	).With(slog.String("component", "cache"))

	logger.Info("hit", slog.Bool("fresh", true))

	out := buf.String()
	for _, want := range []string{"INFO", "hit", "component", "cache", "fresh"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	if strings.Contains(out, "time=") {
		t.Errorf("timestamp should be omitted: %q", out)
	}
}

func TestLogger_Caller(t *testing.T) {
	var buf bytes.Buffer

	Make(&buf, WithCaller(true), WithFormat(FormatJSON)).Info("where")

	if !strings.Contains(buf.String(), "log_test.go") {
		t.Errorf("caller source missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace": LevelTrace,
		"DEBUG": LevelDebug,
		"warn":  LevelWarn,
		"error": LevelError,
		"bogus": DefaultLevel,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfig_ReconfiguresDefault(t *testing.T) {
	saved := Default()
	defer defaultLog.Store(&saved)

	var buf bytes.Buffer

	Config(WithOutput(&buf), WithLevel(LevelDebug), WithPretty(false))
	Debug("configured")

	if !strings.Contains(buf.String(), "configured") {
		t.Errorf("package logger did not use new output: %q", buf.String())
	}
}
