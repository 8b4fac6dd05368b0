package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintfWritesStderrAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cbuildbot.log")
	var stderr bytes.Buffer
	logger, err := New(path, &stderr)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Printf("Repo Sync Failed, retrying\n")
	logger.Filef("file only")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := stderr.String(); got != Prefix+"Repo Sync Failed, retrying\n" {
		t.Fatalf("stderr = %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", data)
	}
	if !strings.HasPrefix(lines[0], "[") || !strings.HasSuffix(lines[0], "] Repo Sync Failed, retrying") {
		t.Fatalf("unexpected log line %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "] file only") {
		t.Fatalf("unexpected log line %q", lines[1])
	}
}

func TestNilAndDiscardLoggersAreSafe(t *testing.T) {
	var nilLogger *Logger
	nilLogger.Printf("ignored")
	nilLogger.Filef("ignored")
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
	Discard().Printf("ignored")
}
