package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mockingbird/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config file, got exists=true for %s", resolved)
	}
	if cfg.Dubbing.StretchCeiling != 1.3 {
		t.Errorf("default stretch ceiling = %v, want 1.3", cfg.Dubbing.StretchCeiling)
	}
	if cfg.OpenAI.APIKey != "test-key" {
		t.Errorf("expected api key from environment, got %q", cfg.OpenAI.APIKey)
	}
	if got := cfg.Dubbing.TranscribeChain; len(got) != 2 || got[0] != "openai" || got[1] != "whispercpp" {
		t.Errorf("default transcribe chain = %v", got)
	}
	if !strings.HasPrefix(cfg.Paths.StagingDir, "/") {
		t.Errorf("staging dir not expanded: %q", cfg.Paths.StagingDir)
	}
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
output_dir = "` + filepath.Join(dir, "output") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[dubbing]
ducking_gain_db = -45.0
stretch_ceiling = 2.0
workers = 99
segment_failure_tolerance_percent = 150
transcribe_chain = ["OpenAI", "openai", "whispercpp"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Dubbing.DuckingGainDB != -30 {
		t.Errorf("ducking gain = %v, want clamp to -30", cfg.Dubbing.DuckingGainDB)
	}
	if cfg.Dubbing.StretchCeiling != 1.5 {
		t.Errorf("stretch ceiling = %v, want clamp to 1.5", cfg.Dubbing.StretchCeiling)
	}
	if cfg.Dubbing.Workers != 16 {
		t.Errorf("workers = %d, want clamp to 16", cfg.Dubbing.Workers)
	}
	if cfg.Dubbing.FailureTolerancePercent != 100 {
		t.Errorf("tolerance = %d, want clamp to 100", cfg.Dubbing.FailureTolerancePercent)
	}
	if got := cfg.Dubbing.TranscribeChain; len(got) != 2 || got[0] != "openai" || got[1] != "whispercpp" {
		t.Errorf("transcribe chain not deduped: %v", got)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[dubbing]
translate_chain = ["deepl"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown provider error")
	} else if !strings.Contains(err.Error(), "deepl") {
		t.Fatalf("error should name the provider: %v", err)
	}
}

func TestValidateRequiresOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected missing api key error")
	} else if !strings.Contains(err.Error(), "openai.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleParses(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample config not found after CreateSample")
	}
	if cfg.Dubbing.ModelSize != "auto" {
		t.Errorf("sample model size = %q, want auto", cfg.Dubbing.ModelSize)
	}
}

func TestModelTierIndex(t *testing.T) {
	if config.ModelTierIndex("tiny") != 0 {
		t.Error("tiny should be the smallest tier")
	}
	if config.ModelTierIndex("large-v3") != len(config.ModelSizes)-1 {
		t.Error("large-v3 should be the largest tier")
	}
	if config.ModelTierIndex("enormous") != -1 {
		t.Error("unknown size should return -1")
	}
	if !config.KnownModelSize("medium") {
		t.Error("medium should be known")
	}
}
