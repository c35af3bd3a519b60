package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scratch tracks the temporary audio artifacts produced for one job so they
// can be released together on every exit path.
type Scratch struct {
	dir string

	mu       sync.Mutex
	files    []string
	released bool
}

// NewScratch creates a per-job scratch directory under root.
func NewScratch(root, jobID string) (*Scratch, error) {
	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// OpenScratch reuses an existing per-job scratch directory, creating it when
// missing. Previously written files are registered again so release covers
// artifacts from earlier runs.
func OpenScratch(root, jobID string) (*Scratch, error) {
	scratch, err := NewScratch(root, jobID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(scratch.dir)
	if err != nil {
		return nil, fmt.Errorf("read scratch directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		scratch.files = append(scratch.files, filepath.Join(scratch.dir, entry.Name()))
	}
	return scratch, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string {
	return s.dir
}

// NewPath reserves a unique file path inside the scratch directory.
func (s *Scratch) NewPath(label, ext string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "clip"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s%s", label, uuid.NewString(), ext))
	s.mu.Lock()
	s.files = append(s.files, path)
	s.mu.Unlock()
	return path
}

// WriteTrack encodes the track into a fresh scratch WAV and returns its path.
func (s *Scratch) WriteTrack(label string, track *Track) (string, error) {
	path := s.NewPath(label, ".wav")
	if err := EncodeWAV(path, track); err != nil {
		return "", err
	}
	return path, nil
}

// Files returns the registered artifact paths.
func (s *Scratch) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// ReleaseAll removes the scratch directory and everything in it. Calling it
// more than once is safe.
func (s *Scratch) ReleaseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.files = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("release scratch directory: %w", err)
	}
	return nil
}

// CleanStaleResult contains the outcome of a stale scratch cleanup pass.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes per-job scratch directories older than maxAge. Jobs
// that crashed without releasing their scratch space are reclaimed here.
func CleanStale(ctx context.Context, scratchRoot string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	scratchRoot = strings.TrimSpace(scratchRoot)
	if scratchRoot == "" {
		return result
	}

	entries, err := os.ReadDir(scratchRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: scratchRoot, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(scratchRoot, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale scratch directory",
					slog.String("path", dirPath),
					slog.Any("error", err))
			}
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed stale scratch directory",
				slog.String("path", dirPath),
				slog.Duration("age", time.Since(info.ModTime())))
		}
	}

	return result
}
