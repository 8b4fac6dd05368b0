package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupWithoutTraceFileIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("shutdown func must not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWritesSpansToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := Setup(context.Background(), Config{TraceFile: path, ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "stage.checkout")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	if !strings.Contains(string(data), "stage.checkout") {
		t.Fatalf("trace file missing span: %s", data)
	}
	if !strings.Contains(string(data), DefaultServiceName) {
		t.Fatalf("trace file missing service name: %s", data)
	}
}

func TestSetupBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "trace.json")
	shutdown, err := Setup(context.Background(), Config{TraceFile: path})
	if err == nil {
		t.Fatalf("expected error for unwritable trace file")
	}
	if shutdown == nil {
		t.Fatalf("shutdown func must not be nil on error")
	}
}
