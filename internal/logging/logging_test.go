package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil {
			t.Fatalf("round trip of %v failed: %v", level, err)
		}
		if parsed != level {
			t.Errorf("expected %v, got %v", level, parsed)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("expected json, got %v (%v)", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelWarn {
		t.Errorf("expected default level Warn, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "iocscan" {
		t.Errorf("expected component iocscan, got %s", cfg.Component)
	}
	if !strings.HasSuffix(cfg.FilePath, "iocscan.log") {
		t.Errorf("unexpected default log path %s", cfg.FilePath)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{
		Level:     LevelDebug,
		Format:    FormatJSON,
		Component: "ioc",
		Writer:    &buf,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("analysis complete", "key_length", 5, "average_ioc", 0.066)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "analysis complete" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["component"] != "ioc" {
		t.Errorf("unexpected component: %v", entry["component"])
	}
	if entry["key_length"] != float64(5) {
		t.Errorf("unexpected key_length: %v", entry["key_length"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelWarn, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be written")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelInfo, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithComponent("store").Info("opened")
	if !strings.Contains(buf.String(), "component=store") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "iocscan.log")
	l, err := New(&Config{Level: LevelInfo, Output: "file", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("written to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		FilePath:   filepath.Join(dir, "iocscan.log"),
		MaxSize:    1,
		MaxBackups: 2,
		Compress:   true,
	}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	defer r.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 5; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	rotated, err := r.rotatedFiles()
	if err != nil {
		t.Fatalf("rotatedFiles failed: %v", err)
	}
	if len(rotated) != 2 {
		t.Fatalf("expected 2 rotated files after cleanup, got %d: %v", len(rotated), rotated)
	}
	for _, f := range rotated {
		if !strings.HasSuffix(f, ".gz") {
			t.Errorf("expected compressed backup, got %s", f)
		}
	}
}
