package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixmirror/pkg/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "chatty"})
	if err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO", ""} {
		if _, err := parseLogLevel(level); err != nil {
			t.Errorf("level %q should parse, got %v", level, err)
		}
	}
}

func TestNewWithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")

	log, err := New(&config.LoggingConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.WithField("run", 1).Info("traversal started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "traversal started") {
		t.Errorf("log file missing entry: %q", string(data))
	}
}

func TestChainedFieldsDoNotPanic(t *testing.T) {
	log, err := New(&config.LoggingConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.WithFields(map[string]interface{}{"a": 1, "b": "x"}).
		WithError(os.ErrNotExist).
		Warn("composite entry")
	log.DebugWithFields("fields variant", map[string]interface{}{"c": true})
}

func TestDefaultLogger(t *testing.T) {
	if GetLogger() == nil {
		t.Fatal("GetLogger returned nil")
	}

	custom, err := New(&config.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	SetLogger(custom)
	if GetLogger() != custom {
		t.Error("SetLogger did not replace the default")
	}
}
