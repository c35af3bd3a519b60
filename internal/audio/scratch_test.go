package audio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mockingbird/internal/audio"
	"mockingbird/internal/logging"
)

func TestScratchWriteAndRelease(t *testing.T) {
	root := t.TempDir()
	scratch, err := audio.NewScratch(root, "job-1")
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}

	track := audio.NewTrack(8000, 1, 800)
	path, err := scratch.WriteTrack("segment-0", track)
	if err != nil {
		t.Fatalf("WriteTrack: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("scratch file missing: %v", err)
	}
	if len(scratch.Files()) != 1 {
		t.Fatalf("files = %d, want 1", len(scratch.Files()))
	}

	if err := scratch.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll: %v", err)
	}
	if _, err := os.Stat(scratch.Dir()); !os.IsNotExist(err) {
		t.Error("scratch directory should be removed")
	}
	if err := scratch.ReleaseAll(); err != nil {
		t.Errorf("second ReleaseAll: %v", err)
	}
}

func TestOpenScratchRegistersExistingFiles(t *testing.T) {
	root := t.TempDir()
	first, err := audio.NewScratch(root, "job-2")
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	if _, err := first.WriteTrack("segment-0", audio.NewTrack(8000, 1, 80)); err != nil {
		t.Fatalf("WriteTrack: %v", err)
	}

	reopened, err := audio.OpenScratch(root, "job-2")
	if err != nil {
		t.Fatalf("OpenScratch: %v", err)
	}
	if len(reopened.Files()) != 1 {
		t.Errorf("files = %d, want 1", len(reopened.Files()))
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "job-old")
	fresh := filepath.Join(root, "job-new")
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result := audio.CleanStale(context.Background(), root, 24*time.Hour, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("errors: %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("removed = %v, want [%s]", result.Removed, stale)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh directory should survive")
	}
}

func TestCleanStaleIgnoresMissingRoot(t *testing.T) {
	result := audio.CleanStale(context.Background(), filepath.Join(t.TempDir(), "absent"), time.Hour, nil)
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}
