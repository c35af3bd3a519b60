package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	src := NewTrack(16000, 2, 1600)
	for i := range src.Data[0] {
		src.Data[0][i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
		src.Data[1][i] = 0.25 * math.Sin(2*math.Pi*220*float64(i)/16000)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := EncodeWAV(path, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeWAV(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != 16000 {
		t.Errorf("rate = %d, want 16000", got.SampleRate)
	}
	if got.Channels() != 2 {
		t.Errorf("channels = %d, want 2", got.Channels())
	}
	if got.Frames() != src.Frames() {
		t.Fatalf("frames = %d, want %d", got.Frames(), src.Frames())
	}
	for ch := range src.Data {
		for i := range src.Data[ch] {
			if diff := math.Abs(got.Data[ch][i] - src.Data[ch][i]); diff > 1.0/32000 {
				t.Fatalf("ch %d sample %d differs by %v", ch, i, diff)
			}
		}
	}
}

func TestEncodeWAVClipsOutOfRangeSamples(t *testing.T) {
	src := NewTrack(8000, 1, 3)
	src.Data[0] = []float64{2.0, -2.0, 0}

	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := EncodeWAV(path, src); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeWAV(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Data[0][0] > 1.0001 || got.Data[0][1] < -1.0001 {
		t.Errorf("samples not clipped: %v", got.Data[0])
	}
}

func TestDecodeWAVMissingFile(t *testing.T) {
	if _, err := DecodeWAV(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEncodeWAVRejectsEmptyTrack(t *testing.T) {
	if err := EncodeWAV(filepath.Join(t.TempDir(), "empty.wav"), &Track{SampleRate: 8000}); err == nil {
		t.Fatal("expected error for empty track")
	}
}
