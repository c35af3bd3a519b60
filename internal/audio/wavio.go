package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a PCM WAV file into a normalized track.
func DecodeWAV(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav %s: %w", path, err)
	}
	defer f.Close()

	track, err := decodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode wav %s: %w", path, err)
	}
	return track, nil
}

// DecodeWAVBytes decodes an in-memory PCM WAV payload, as returned by hosted
// speech APIs.
func DecodeWAVBytes(data []byte) (*Track, error) {
	track, err := decodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode wav payload: %w", err)
	}
	return track, nil
}

func decodeWAV(r io.ReadSeeker) (*Track, error) {
	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("missing format")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	track := NewTrack(buf.Format.SampleRate, channels, frames)
	for frame := 0; frame < frames; frame++ {
		base := frame * channels
		for ch := 0; ch < channels; ch++ {
			track.Data[ch][frame] = float64(buf.Data[base+ch]) / scale
		}
	}
	return track, nil
}

// EncodeWAV writes the track to path as 16-bit PCM.
func EncodeWAV(path string, track *Track) error {
	if track == nil || track.Channels() == 0 {
		return fmt.Errorf("encode wav %s: empty track", path)
	}
	if track.SampleRate <= 0 {
		return fmt.Errorf("encode wav %s: invalid sample rate %d", path, track.SampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}

	channels := track.Channels()
	frames := track.Frames()
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: track.SampleRate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: 16,
	}
	for frame := 0; frame < frames; frame++ {
		base := frame * channels
		for ch := 0; ch < channels; ch++ {
			buf.Data[base+ch] = quantize16(track.Data[ch][frame])
		}
	}

	enc := wav.NewEncoder(f, track.SampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close wav %s: %w", path, err)
	}
	return nil
}

func quantize16(v float64) int {
	scaled := int(math.Round(v * 32768))
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return scaled
}
