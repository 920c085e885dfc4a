package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterEmitsJSONWithComp(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "INFO").Named("tasks")

	log.Debug("hidden")
	log.Info("visible", String("k", "v"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["message"] != "visible" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["comp"] != "tasks" {
		t.Fatalf("comp = %v", m["comp"])
	}
	if m["k"] != "v" {
		t.Fatalf("k = %v", m["k"])
	}
	if m["level"] != "info" {
		t.Fatalf("level = %v", m["level"])
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	if l.Enabled(LevelError) {
		t.Fatal("zero logger should not be enabled")
	}
	l.Info("no panic")
}

func TestServiceEffectiveLevelHierarchy(t *testing.T) {
	svc, _ := New(Config{
		Level:  "WARN",
		File:   FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "out.log")},
		Levels: map[string]string{"scheduler": "DEBUG"},
	})
	t.Cleanup(func() { _ = svc.Close() })

	tests := []struct {
		name string
		want Level
	}{
		{name: "", want: LevelWarn},
		{name: "scheduler", want: LevelDebug},
		{name: "scheduler.loop", want: LevelDebug},
		{name: "schedulerx", want: LevelWarn},
		{name: "tasks", want: LevelWarn},
	}
	for _, tt := range tests {
		if got := svc.EffectiveLevel(tt.name); got != tt.want {
			t.Errorf("EffectiveLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestServiceSetLevelAndReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, root := New(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log := root.Named("tasks")
	log.Debug("before")

	if err := svc.SetLevel("tasks", "debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	log.Debug("after")

	row, ok := svc.Lookup("tasks")
	if !ok {
		t.Fatal("tasks logger should be known")
	}
	if row.Configured == nil || *row.Configured != LevelDebug {
		t.Fatalf("configured = %v, want DEBUG", row.Configured)
	}

	if err := svc.SetLevel("tasks", ""); err != nil {
		t.Fatalf("reset: %v", err)
	}
	row, _ = svc.Lookup("tasks")
	if row.Configured != nil {
		t.Fatalf("configured = %v, want nil after reset", *row.Configured)
	}
	if row.Effective != LevelInfo {
		t.Fatalf("effective = %v, want INFO", row.Effective)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if strings.Contains(out, `"before"`) {
		t.Fatal("debug line logged before level change")
	}
	if !strings.Contains(out, `"after"`) {
		t.Fatalf("debug line missing after level change: %s", out)
	}
}

func TestServiceSetLevelRejectsUnknownLevel(t *testing.T) {
	svc, _ := New(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "out.log")}})
	t.Cleanup(func() { _ = svc.Close() })

	if err := svc.SetLevel("tasks", "LOUD"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := svc.SetLevel("", "INFO"); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestServiceRootLevelOverride(t *testing.T) {
	svc, _ := New(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "out.log")}})
	t.Cleanup(func() { _ = svc.Close() })

	if err := svc.SetLevel("root", "ERROR"); err != nil {
		t.Fatalf("SetLevel root: %v", err)
	}
	if got := svc.EffectiveLevel("anything"); got != LevelError {
		t.Fatalf("effective = %v, want ERROR", got)
	}
	if err := svc.SetLevel(RootName, ""); err != nil {
		t.Fatalf("reset root: %v", err)
	}
	if got := svc.EffectiveLevel("anything"); got != LevelInfo {
		t.Fatalf("effective = %v, want INFO after reset", got)
	}

	rows := svc.Loggers()
	if len(rows) == 0 || rows[0].Name != RootName {
		t.Fatalf("first row should be ROOT, got %+v", rows)
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, name := range SupportedLevels() {
		lvl, ok := ParseLevel(name)
		if !ok {
			t.Fatalf("ParseLevel(%q) not ok", name)
		}
		if got := LevelName(lvl); got != name {
			t.Fatalf("LevelName(ParseLevel(%q)) = %q", name, got)
		}
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Fatal("unexpected ok for unknown level")
	}
}
