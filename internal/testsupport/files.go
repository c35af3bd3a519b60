package testsupport

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"mockingbird/internal/audio"
)

// WriteFile creates path with exactly size bytes of filler so tests can stand
// in for media files without real content. A size <= 0 still writes one byte,
// since zero-length files trip non-empty checks the fixtures are meant to pass.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent dir for %s: %v", path, err)
	}
	pattern := []byte("mockingbird fixture\n")
	payload := bytes.Repeat(pattern, int(size)/len(pattern)+1)[:size]
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}

// WriteWAV writes a sine-tone WAV of the given length so media-handling
// tests have a decodable file.
func WriteWAV(t testing.TB, path string, seconds float64, sampleRate, channels int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	frames := int(math.Round(seconds * float64(sampleRate)))
	track := audio.NewTrack(sampleRate, channels, frames)
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < frames; i++ {
			track.Data[ch][i] = 0.25 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate))
		}
	}
	if err := audio.EncodeWAV(path, track); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
}
