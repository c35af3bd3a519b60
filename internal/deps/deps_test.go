package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mockingbird/internal/config"
)

func writeStubBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinariesResolvesPaths(t *testing.T) {
	binDir := t.TempDir()
	present := writeStubBinary(t, binDir, "present")

	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "   "},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected stub binary to resolve, got %#v", results[0])
	}
	if results[0].Path != present {
		t.Fatalf("expected resolved path %q, got %q", present, results[0].Path)
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available binary: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Path != "" {
		t.Fatalf("missing binary should not record a path, got %q", results[1].Path)
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available {
		t.Fatalf("expected unconfigured command to be unavailable")
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unconfigured command: %s", results[2].Detail)
	}
}

func TestCheckBinariesRequiresAssetDir(t *testing.T) {
	binDir := t.TempDir()
	present := writeStubBinary(t, binDir, "engine")
	modelDir := t.TempDir()

	results := CheckBinaries([]Requirement{
		{Name: "WithModels", Command: present, AssetDir: modelDir},
		{Name: "NoModels", Command: present, AssetDir: filepath.Join(modelDir, "absent")},
		{Name: "FileNotDir", Command: present, AssetDir: present},
	})

	if !results[0].Available {
		t.Fatalf("expected engine with models to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing model directory to make engine unavailable")
	}
	if !strings.Contains(results[1].Detail, "model directory") {
		t.Fatalf("expected detail to name the model directory, got %q", results[1].Detail)
	}
	if results[1].Path == "" {
		t.Fatalf("binary resolution should still record the path, got %#v", results[1])
	}

	if results[2].Available {
		t.Fatalf("expected file in place of model directory to make engine unavailable")
	}
	if !strings.Contains(results[2].Detail, "not a directory") {
		t.Fatalf("unexpected detail for non-directory asset path: %q", results[2].Detail)
	}
}

func TestForConfigSkipsDisabledEngines(t *testing.T) {
	cfg := config.Default()
	cfg.Engines.ArgosEnabled = false

	reqs := ForConfig(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d: %#v", len(reqs), reqs)
	}
	if reqs[0].Name != "whisper.cpp" || reqs[1].Name != "Piper" {
		t.Fatalf("unexpected requirement order: %q, %q", reqs[0].Name, reqs[1].Name)
	}
	if reqs[0].AssetDir != cfg.Engines.WhisperCppModelDir {
		t.Fatalf("whisper requirement should carry the model dir, got %q", reqs[0].AssetDir)
	}
	if reqs[1].AssetDir != cfg.Engines.PiperVoiceDir {
		t.Fatalf("piper requirement should carry the voice dir, got %q", reqs[1].AssetDir)
	}

	cfg.Engines.WhisperCppEnabled = false
	cfg.Engines.PiperEnabled = false
	if got := ForConfig(&cfg); len(got) != 0 {
		t.Fatalf("expected no requirements with all engines disabled, got %#v", got)
	}
}
