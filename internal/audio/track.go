package audio

import (
	"math"
	"time"
)

// Track holds planar PCM samples normalized to [-1, 1]. Data is indexed by
// channel, then frame, and every channel carries the same frame count.
type Track struct {
	SampleRate int
	Data       [][]float64
}

// NewTrack allocates a zeroed track.
func NewTrack(sampleRate, channels, frames int) *Track {
	if channels < 1 {
		channels = 1
	}
	if frames < 0 {
		frames = 0
	}
	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = make([]float64, frames)
	}
	return &Track{SampleRate: sampleRate, Data: data}
}

// NewSilence allocates a zeroed track spanning the given duration.
func NewSilence(d time.Duration, sampleRate, channels int) *Track {
	return NewTrack(sampleRate, channels, FramesFor(d, sampleRate))
}

// Channels reports the channel count.
func (t *Track) Channels() int {
	return len(t.Data)
}

// Frames reports the per-channel frame count.
func (t *Track) Frames() int {
	if len(t.Data) == 0 {
		return 0
	}
	return len(t.Data[0])
}

// Duration reports the track length at its sample rate.
func (t *Track) Duration() time.Duration {
	return DurationFor(t.Frames(), t.SampleRate)
}

// Clone returns a deep copy of the track.
func (t *Track) Clone() *Track {
	clone := &Track{SampleRate: t.SampleRate, Data: make([][]float64, len(t.Data))}
	for ch, samples := range t.Data {
		clone.Data[ch] = make([]float64, len(samples))
		copy(clone.Data[ch], samples)
	}
	return clone
}

// Gain scales every sample in place.
func (t *Track) Gain(factor float64) {
	for _, samples := range t.Data {
		for i := range samples {
			samples[i] *= factor
		}
	}
}

// Peak returns the largest absolute sample value across all channels.
func (t *Track) Peak() float64 {
	peak := 0.0
	for _, samples := range t.Data {
		for _, v := range samples {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Normalize scales the track down so its peak does not exceed target. The
// track is never amplified. It returns the gain that was applied.
func (t *Track) Normalize(target float64) float64 {
	peak := t.Peak()
	if peak == 0 || peak <= target {
		return 1
	}
	gain := target / peak
	t.Gain(gain)
	return gain
}

// Truncate drops frames beyond the given count. Shorter tracks are left
// unchanged.
func (t *Track) Truncate(frames int) {
	if frames < 0 {
		frames = 0
	}
	for ch, samples := range t.Data {
		if len(samples) > frames {
			t.Data[ch] = samples[:frames]
		}
	}
}

// FadeEdges applies linear ramps over the first and last frames so clip
// boundaries do not click when composited. Ramp length is clamped to half
// the track.
func (t *Track) FadeEdges(frames int) {
	total := t.Frames()
	if frames <= 0 || total == 0 {
		return
	}
	if frames > total/2 {
		frames = total / 2
	}
	if frames == 0 {
		return
	}
	for _, samples := range t.Data {
		for i := 0; i < frames; i++ {
			ramp := float64(i+1) / float64(frames+1)
			samples[i] *= ramp
			samples[total-1-i] *= ramp
		}
	}
}

// Resample converts the track to a new sample rate using linear
// interpolation. The original track is not modified.
func (t *Track) Resample(sampleRate int) *Track {
	if sampleRate == t.SampleRate || sampleRate <= 0 || t.SampleRate <= 0 {
		out := t.Clone()
		if sampleRate > 0 {
			out.SampleRate = sampleRate
		}
		return out
	}
	frames := int(math.Round(float64(t.Frames()) * float64(sampleRate) / float64(t.SampleRate)))
	out := &Track{SampleRate: sampleRate, Data: make([][]float64, len(t.Data))}
	for ch, samples := range t.Data {
		out.Data[ch] = resampleChannel(samples, frames)
	}
	return out
}

// Remix converts the track to the given channel count. Downmixing averages
// source channels; upmixing replicates the first channel.
func (t *Track) Remix(channels int) *Track {
	if channels < 1 {
		channels = 1
	}
	if channels == t.Channels() {
		return t.Clone()
	}
	frames := t.Frames()
	out := NewTrack(t.SampleRate, channels, frames)
	if t.Channels() == 0 {
		return out
	}
	if channels == 1 {
		scale := 1 / float64(t.Channels())
		for _, samples := range t.Data {
			for i, v := range samples {
				out.Data[0][i] += v * scale
			}
		}
		return out
	}
	for ch := 0; ch < channels; ch++ {
		src := t.Data[0]
		if ch < t.Channels() {
			src = t.Data[ch]
		}
		copy(out.Data[ch], src)
	}
	return out
}

// Conform resamples and remixes the track to match the target format. The
// receiver is returned unchanged when it already matches.
func (t *Track) Conform(sampleRate, channels int) *Track {
	out := t
	if sampleRate > 0 && out.SampleRate != sampleRate {
		out = out.Resample(sampleRate)
	}
	if channels > 0 && out.Channels() != channels {
		out = out.Remix(channels)
	}
	return out
}

// TimeCompressTo remaps the track onto exactly the given frame count,
// shortening or lengthening playback without changing the sample rate.
func (t *Track) TimeCompressTo(frames int) *Track {
	if frames < 0 {
		frames = 0
	}
	if frames == t.Frames() {
		return t.Clone()
	}
	out := &Track{SampleRate: t.SampleRate, Data: make([][]float64, len(t.Data))}
	for ch, samples := range t.Data {
		out.Data[ch] = resampleChannel(samples, frames)
	}
	return out
}

// TimeCompress shortens the track by factor. A factor of 1.3 turns 13
// seconds of material into 10 seconds.
func (t *Track) TimeCompress(factor float64) *Track {
	if factor <= 0 || factor == 1 {
		return t.Clone()
	}
	return t.TimeCompressTo(int(math.Round(float64(t.Frames()) / factor)))
}

func resampleChannel(src []float64, frames int) []float64 {
	dst := make([]float64, frames)
	if len(src) == 0 || frames == 0 {
		return dst
	}
	if frames == 1 || len(src) == 1 {
		dst[0] = src[0]
		for i := 1; i < frames; i++ {
			dst[i] = src[len(src)-1]
		}
		return dst
	}
	step := float64(len(src)-1) / float64(frames-1)
	for i := range dst {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(src)-1 {
			dst[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(idx)
		dst[i] = src[idx]*(1-frac) + src[idx+1]*frac
	}
	return dst
}

// FramesFor converts a duration to a frame count at the given rate.
func FramesFor(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}

// DurationFor converts a frame count to a duration at the given rate.
func DurationFor(frames, sampleRate int) time.Duration {
	if frames <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(frames) / float64(sampleRate) * float64(time.Second)))
}

// DBToLinear converts a decibel gain to a linear multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear multiplier to decibels.
func LinearToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}
