package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Prefix marks every line cbuildbot itself writes to the error stream, so
// its diagnostics stand out from the output of the stages it runs.
const Prefix = "CBUILDBOT -- "

// Logger appends timestamped lines to a log file and mirrors them to the
// error stream so an operator can see which stage failed while it happens
// and inspect the history afterwards.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	stderr io.Writer
}

// New creates (or reuses) the log file at path. An empty path logs to the
// error stream only.
func New(path string, stderr io.Writer) (*Logger, error) {
	l := &Logger{stderr: stderr}
	if strings.TrimSpace(path) == "" {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l.file = f
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{}
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single line to the error stream and the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stderr != nil {
		fmt.Fprintf(l.stderr, "%s%s\n", Prefix, line)
	}
	if l.file != nil {
		timestamp := time.Now().Format(time.RFC3339)
		fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	}
}

// Filef writes a line to the log file only.
func (l *Logger) Filef(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format(time.RFC3339), line)
}
