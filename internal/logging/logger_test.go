package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line is not JSON: %q: %v", line, err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "debug", Format: FormatJSON, App: "provision"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("installed", "path", "/opt/clice/bin/clice", "cached", false)
	log.Error("failed", "kind", "BadStatus", "error", errors.New("status 404"), 7, "odd")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	first := lines[0]
	if first["level"] != "info" || first["message"] != "installed" {
		t.Errorf("unexpected first line: %v", first)
	}
	if first["path"] != "/opt/clice/bin/clice" || first["cached"] != false {
		t.Errorf("fields not recorded: %v", first)
	}
	if first["app"] != "provision" {
		t.Errorf("app = %v, want provision", first["app"])
	}

	second := lines[1]
	if second["level"] != "error" || second["error"] != "status 404" {
		t.Errorf("unexpected second line: %v", second)
	}
	if second["7"] != "odd" {
		t.Errorf("non-string key should be formatted: %v", second)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "warn", Format: FormatJSON})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	for _, l := range lines {
		if l["message"] != "shown" {
			t.Errorf("unexpected line %v", l)
		}
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Format: FormatJSON})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.With("run_id", "abc").Info("step", "state", "Download")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["run_id"] != "abc" || lines[0]["state"] != "Download" {
		t.Errorf("unexpected output: %v", lines)
	}
}

func TestLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Format: FormatConsole})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("ready", "tag", "v0.1.0")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("console output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "ready") || !strings.Contains(out, "v0.1.0") {
		t.Errorf("console output missing content: %q", out)
	}
}

func TestIsTerminal(t *testing.T) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open %s: %v", os.DevNull, err)
	}
	defer devNull.Close()

	regular, err := os.Create(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	defer regular.Close()

	tests := []struct {
		name string
		w    io.Writer
	}{
		{"buffer", &bytes.Buffer{}},
		{"dev_null", devNull},
		{"regular_file", regular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if isTerminal(tt.w) {
				t.Errorf("isTerminal(%s) = true, want false", tt.name)
			}
		})
	}
}

func TestAutoFormatOnFileIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create output file: %v", err)
	}

	log, err := New(f, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info("ready")
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), "{") {
		t.Errorf("auto format on a non-terminal should be JSON, got %q", data)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Options{Level: "trace"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	Nop().Info("discarded", "k", "v")
}
