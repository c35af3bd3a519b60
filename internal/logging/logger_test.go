package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"mockingbird/internal/services"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" error ": slog.LevelError,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestJSONHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))

	logger.Info("transcoding started", String(FieldJobID, "job-1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("expected ts key in JSON output")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["msg"] != "transcoding started" {
		t.Errorf("msg = %v, want transcoding started", entry["msg"])
	}
	if entry[FieldJobID] != "job-1" {
		t.Errorf("job_id = %v, want job-1", entry[FieldJobID])
	}
}

func TestPrettyHandlerExtractsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))
	logger = NewComponentLogger(logger, "workflow")

	logger.Info("job claimed", String(FieldJobID, "job-2"))

	line := buf.String()
	if !strings.Contains(line, "workflow: job claimed") {
		t.Errorf("expected component prefix in %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component should be folded into prefix, got %q", line)
	}
	if !strings.Contains(line, "job_id=job-2") {
		t.Errorf("expected job_id attribute in %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Warn("slot overflow", String("title", "Grand Tour"))

	if !strings.Contains(buf.String(), `title="Grand Tour"`) {
		t.Errorf("expected quoted value, got %q", buf.String())
	}
}

func TestPrettyHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Info("mix finished", Group("mix", Int("segments", 12), Float64("peak", 0.91)))

	line := buf.String()
	if !strings.Contains(line, "mix.segments=12") {
		t.Errorf("expected flattened group key in %q", line)
	}
	if !strings.Contains(line, "mix.peak=0.91") {
		t.Errorf("expected flattened float in %q", line)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info record should be suppressed, got %q", buf.String())
	}
	logger.Error("loud")
	if !strings.Contains(buf.String(), "ERROR loud") {
		t.Errorf("expected error record, got %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-7")
	ctx = services.WithStage(ctx, "transcribing")
	ctx = services.WithLanguage(ctx, "es")

	fields := ContextFields(ctx)
	keys := map[string]string{}
	for _, attr := range fields {
		keys[attr.Key] = attr.Value.String()
	}
	if keys[FieldJobID] != "job-7" {
		t.Errorf("job_id = %q, want job-7", keys[FieldJobID])
	}
	if keys[FieldStage] != "transcribing" {
		t.Errorf("stage = %q, want transcribing", keys[FieldStage])
	}
	if keys[FieldLanguage] != "es" {
		t.Errorf("language = %q, want es", keys[FieldLanguage])
	}
	if _, ok := keys[FieldLane]; ok {
		t.Error("lane should be absent when not set")
	}
}

func TestWithContextAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	ctx := services.WithJobID(context.Background(), "job-9")
	WithContext(ctx, logger).Info("resumed")

	if !strings.Contains(buf.String(), "job_id=job-9") {
		t.Errorf("expected context attr in %q", buf.String())
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("nothing to see")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("nop logger should report disabled")
	}
}

func TestOpenWritersCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "app.log")

	writer, err := openWriters([]string{path}, nil)
	if err != nil {
		t.Fatalf("openWriters: %v", err)
	}
	if _, err := writer.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestArgsPairsUp(t *testing.T) {
	attrs := Args("provider", "openai", "attempt", 2)
	if len(attrs) != 2 {
		t.Fatalf("len = %d, want 2", len(attrs))
	}
	if attrs[0].Key != "provider" || attrs[0].Value.String() != "openai" {
		t.Errorf("first attr = %v", attrs[0])
	}
	if attrs[1].Key != "attempt" || attrs[1].Value.Int64() != 2 {
		t.Errorf("second attr = %v", attrs[1])
	}
}
