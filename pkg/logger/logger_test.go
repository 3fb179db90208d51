// ABOUTME: Tests for logger backends
// ABOUTME: Verifies prefixes, debug gating and recording behavior
package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"
)

func TestStandardLoggerPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0), "netclock", false)

	l.Info("hello %d", 1)
	l.Warning("careful")
	l.Error("broken")
	l.Debug("hidden")

	out := buf.String()
	for _, want := range []string{"[INFO] [netclock] hello 1", "[WARNING] [netclock] careful", "[ERROR] [netclock] broken"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug output should be gated when debug is disabled")
	}
}

func TestStandardLoggerDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0), "", true)

	l.Debug("visible %s", "now")

	if !strings.Contains(buf.String(), "[DEBUG] visible now") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}

func TestMockLoggerRecords(t *testing.T) {
	m := NewMockLogger()
	m.Warning("rtt %dms", 12000)
	m.Error("failed")

	if got := m.Warnings(); len(got) != 1 || got[0] != "rtt 12000ms" {
		t.Errorf("unexpected warnings: %v", got)
	}
	if got := m.Errors(); len(got) != 1 {
		t.Errorf("expected 1 error, got %d", len(got))
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Error("expected NopLogger for nil input")
	}
	m := NewMockLogger()
	if OrNop(m) != Logger(m) {
		t.Error("expected the same logger back")
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "engine", false)

	l.Warning("sources disagree by %dms", 1500)
	l.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if entry["level"] != "warn" {
		t.Errorf("expected level warn, got %v", entry["level"])
	}
	if entry["component"] != "engine" {
		t.Errorf("expected component engine, got %v", entry["component"])
	}
	if entry["message"] != "sources disagree by 1500ms" {
		t.Errorf("unexpected message %v", entry["message"])
	}
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, "server", false)

	l.Info("listening on %d", 8080)
	l.Debug("dropped")

	out := strings.TrimSpace(buf.String())
	if strings.Count(out, "\n") != 0 {
		t.Fatalf("expected 1 line, got %q", out)
	}
	for _, want := range []string{"INF", "listening on 8080", "component=server"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}
