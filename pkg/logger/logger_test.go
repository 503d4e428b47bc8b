package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sigtrack.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	l.Debug("hidden")
	l.With(String("component", "tracker")).Info("cycle finished",
		Int("resolved", 2), Bool("retrained", false), Error(errors.New("partial")))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d: %s", len(lines), raw)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["message"] != "cycle finished" || entry["component"] != "tracker" || entry["level"] != "info" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["resolved"] != float64(2) || entry["error"] != "partial" {
		t.Fatalf("fields = %v", entry)
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error")
	}
}
