package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"kiln/internal/services"
)

func TestPrettyHandlerFormatsComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl))

	logger.Info("build started", String(FieldComponent, "orchestrator"), String("target", "web"))

	line := buf.String()
	if !strings.Contains(line, "INFO orchestrator: build started") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "target=web") {
		t.Fatalf("expected attr in line: %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl))

	logger.Warn("tail", String("last_line", "error CS1002: ; expected"))

	if !strings.Contains(buf.String(), `last_line="error CS1002: ; expected"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newPrettyHandler(&buf, lvl))

	ctx := services.WithJobID(context.Background(), "job-123")
	ctx = services.WithStage(ctx, "patch")
	WithContext(ctx, base).Info("injected")

	line := buf.String()
	if !strings.Contains(line, "job_id=job-123") || !strings.Contains(line, "stage=patch") {
		t.Fatalf("context fields missing: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
