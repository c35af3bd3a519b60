package testsupport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"mockingbird/internal/config"
	"mockingbird/internal/queue"
)

// MustOpenStore opens the job queue database described by cfg and closes it
// when the test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// NewJob creates a dubbing job for tests using the provided store. The
// source path points under the test's base directory; tests that need real
// media write it there with WriteWAV.
func NewJob(t testing.TB, store *queue.Store, cfg *config.Config, title string, languages ...string) *queue.Job {
	t.Helper()

	if len(languages) == 0 {
		languages = []string{"es"}
	}
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	source := filepath.Join(BaseDir(cfg), "media", slug+".wav")
	job, err := store.NewJob(context.Background(), source, title, languages, queue.NewProcessingConfig(cfg))
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
