// internal/utils/logger_test.go

package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"ERROR", ErrorLevel},
		{"  Debug ", DebugLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(WarnLevel, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Errorf("error %d", 42)

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug message logged below warn level")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message logged below warn level")
	}
	if !strings.Contains(out, "[WARN] warn message") {
		t.Errorf("warn message missing from output: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 42") {
		t.Errorf("error message missing from output: %q", out)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriterLogger(InfoLevel, &buf)
	derived := base.WithField("site", "99acres").WithField("run_id", "cafe0001")

	derived.Info("crawl started")

	out := buf.String()
	if !strings.Contains(out, "crawl started fields={") {
		t.Fatalf("fields block missing: %q", out)
	}
	if !strings.Contains(out, "site=99acres") {
		t.Errorf("site field missing: %q", out)
	}
	if !strings.Contains(out, "run_id=cafe0001") {
		t.Errorf("run_id field missing: %q", out)
	}

	// The parent logger must not inherit fields from derived loggers.
	buf.Reset()
	base.Info("plain")
	if strings.Contains(buf.String(), "fields=") {
		t.Errorf("parent logger picked up derived fields: %q", buf.String())
	}
}

func TestLoggerWithFieldsMerge(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(InfoLevel, &buf).WithFields(map[string]interface{}{
		"city":  "gurgaon",
		"pages": 5,
	})

	logger.Info("batch done")

	out := buf.String()
	if !strings.Contains(out, "city=gurgaon") || !strings.Contains(out, "pages=5") {
		t.Errorf("merged fields missing: %q", out)
	}
}

func TestFileLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scrape_99acres_20250614_100000_run-cafe0001.log")

	logger, closer, err := NewFileLogger(InfoLevel, path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Info("first line")
	logger.Debug("hidden line")
	logger.WithField("kind", "navigation").Warn("retrying page load")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[INFO] first line") {
		t.Errorf("info line missing from file: %q", content)
	}
	if strings.Contains(content, "hidden line") {
		t.Errorf("debug line leaked into info-level file: %q", content)
	}
	if !strings.Contains(content, "retrying page load fields={kind=navigation}") {
		t.Errorf("warn line with field missing: %q", content)
	}
}

func TestFileLoggerBadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := NewFileLogger(InfoLevel, filepath.Join(blocker, "run.log")); err == nil {
		t.Error("expected error when parent path is a regular file")
	}
}
