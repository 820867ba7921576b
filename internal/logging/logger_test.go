package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "gsmd.log")
	var console bytes.Buffer

	logger, err := New(logPath, "main", "gsmd", Options{Console: &console})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("worker activated")
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["profile"] != "main" || entry["proc"] != "gsmd" || entry["msg"] != "worker activated" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("entry missing ts key")
	}
	if !strings.Contains(console.String(), "worker activated") {
		t.Errorf("console = %q, want the message", console.String())
	}
}

func TestNewDebugLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gsmtui.log")
	var console bytes.Buffer

	logger, err := New(logPath, "main", "gsmtui", Options{Debug: true, Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("frame received")
	_ = logger.Sync()

	if !strings.Contains(console.String(), "frame received") {
		t.Errorf("debug line missing from console: %q", console.String())
	}
}
