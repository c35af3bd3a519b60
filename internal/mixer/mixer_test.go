package mixer

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"mockingbird/internal/audio"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

func constTrack(rate, channels, frames int, amp float64) *audio.Track {
	track := audio.NewTrack(rate, channels, frames)
	for ch := range track.Data {
		for i := range track.Data[ch] {
			track.Data[ch][i] = amp
		}
	}
	return track
}

func testParams() Params {
	return Params{
		SampleRate:     1000,
		Channels:       1,
		DuckingGainDB:  -12,
		DuckRamp:       120 * time.Millisecond,
		Crossfade:      20 * time.Millisecond,
		StretchCeiling: 1.3,
	}
}

func TestMixCompressesLongClipWithinCeiling(t *testing.T) {
	// A 13 second utterance against a 10 second slot and a 1.3x ceiling
	// compresses to exactly the slot with nothing dropped.
	params := testParams()
	engine := NewEngine(params, logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: constTrack(1000, 1, 13000, 0.8)},
		{SegmentID: "seg-1", Index: 1, Start: 15 * time.Second, End: 20 * time.Second, Track: constTrack(1000, 1, 4000, 0.8)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if len(result.Reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(result.Reports))
	}

	report := result.Reports[0]
	if math.Abs(report.StretchFactor-1.3) > 1e-9 {
		t.Errorf("stretch factor = %v, want 1.3", report.StretchFactor)
	}
	if report.Truncated || report.TruncatedBy != 0 {
		t.Errorf("unexpected truncation: %+v", report)
	}
	if report.Extended != 0 {
		t.Errorf("unexpected extension: %v", report.Extended)
	}
	if report.PlacedEnd != 15*time.Second {
		t.Errorf("placed end = %v, want 15s", report.PlacedEnd)
	}
}

func TestMixTruncatesWhenCeilingAndSlotExhausted(t *testing.T) {
	// The same utterance against a 1.2x ceiling with no trailing silence
	// keeps only 12 seconds of material and flags the truncation.
	params := testParams()
	params.StretchCeiling = 1.2
	engine := NewEngine(params, logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: constTrack(1000, 1, 13000, 0.8)},
		{SegmentID: "seg-1", Index: 1, Start: 15 * time.Second, End: 20 * time.Second, Track: constTrack(1000, 1, 4000, 0.8)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	report := result.Reports[0]
	if !report.Truncated {
		t.Error("expected truncation flag")
	}
	if report.TruncatedBy != time.Second {
		t.Errorf("truncated by = %v, want 1s", report.TruncatedBy)
	}
	if math.Abs(report.StretchFactor-1.2) > 1e-9 {
		t.Errorf("stretch factor = %v, want 1.2", report.StretchFactor)
	}
	if report.PlacedEnd != 15*time.Second {
		t.Errorf("placed end = %v, want 15s", report.PlacedEnd)
	}
}

func TestMixExtendsIntoTrailingSilence(t *testing.T) {
	// With no following segment, overflow past the ceiling spills into the
	// trailing gap instead of dropping material.
	params := testParams()
	params.StretchCeiling = 1.2
	engine := NewEngine(params, logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: constTrack(1000, 1, 13000, 0.8)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	report := result.Reports[0]
	if report.Truncated {
		t.Errorf("unexpected truncation: %+v", report)
	}
	if report.Extended != 834*time.Millisecond {
		t.Errorf("extended = %v, want 834ms", report.Extended)
	}
	if report.PlacedEnd <= report.SlotEnd {
		t.Errorf("placed end %v should pass slot end %v", report.PlacedEnd, report.SlotEnd)
	}
	if report.StretchFactor > params.StretchCeiling+1e-9 {
		t.Errorf("stretch factor %v exceeds ceiling", report.StretchFactor)
	}
}

func TestMixShortClipKeepsNaturalPace(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: constTrack(1000, 1, 2000, 0.8)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	report := result.Reports[0]
	if report.StretchFactor != 1 {
		t.Errorf("stretch factor = %v, want 1", report.StretchFactor)
	}
	if report.PlacedEnd != 7*time.Second {
		t.Errorf("placed end = %v, want 7s", report.PlacedEnd)
	}
}

func TestMixDucksBackgroundUnderSpeech(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.5)
	// A silent clip isolates the gain envelope in the composite.
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: audio.NewTrack(1000, 1, 10000)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	samples := result.Track.Data[0]
	outside := samples[2000]
	inside := samples[10000]
	if math.Abs(outside-0.5) > 1e-9 {
		t.Errorf("outside sample = %v, want 0.5", outside)
	}
	want := audio.DBToLinear(-12)
	if ratio := inside / outside; math.Abs(ratio-want) > 1e-9 {
		t.Errorf("duck ratio = %v, want %v", ratio, want)
	}
	// Ramp region sits between the duck level and unity.
	ramp := samples[4940]
	if ramp <= inside || ramp >= outside {
		t.Errorf("ramp sample %v should sit between %v and %v", ramp, inside, outside)
	}
}

func TestMixLeavesSpeechAtFullLevel(t *testing.T) {
	// The envelope shapes the background only: over a silent background the
	// composite inside the slot is the speech signal, unducked.
	engine := NewEngine(testParams(), logging.NewNop())

	background := audio.NewTrack(1000, 1, 30000)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: constTrack(1000, 1, 10000, 0.8)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	// Mid-slot, clear of the crossfade edges.
	if got := result.Track.Data[0][10000]; math.Abs(got-0.8) > 1e-9 {
		t.Errorf("mid-slot speech sample = %v, want 0.8", got)
	}
}

func TestMixSpeechSitsAboveDuckedBackground(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 15 * time.Second, Track: constTrack(1000, 1, 10000, 0.6)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	samples := result.Track.Data[0]
	want := 0.2*audio.DBToLinear(-12) + 0.6
	if got := samples[10000]; math.Abs(got-want) > 1e-9 {
		t.Errorf("mid-slot sample = %v, want ducked background plus speech %v", got, want)
	}
	if outside := samples[2000]; math.Abs(outside-0.2) > 1e-9 {
		t.Errorf("outside sample = %v, want 0.2", outside)
	}
}

func TestMixMergesCloseDips(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.5)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 7 * time.Second, Track: audio.NewTrack(1000, 1, 2000)},
		{SegmentID: "seg-1", Index: 1, Start: 7100 * time.Millisecond, End: 9 * time.Second, Track: audio.NewTrack(1000, 1, 1900)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	duck := audio.DBToLinear(-12)
	midGap := result.Track.Data[0][7050]
	if math.Abs(midGap-0.5*duck) > 1e-9 {
		t.Errorf("gap sample = %v, want fully ducked %v", midGap, 0.5*duck)
	}
}

func TestMixKeepsSeparateDipsApart(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 30000, 0.5)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 5 * time.Second, End: 7 * time.Second, Track: audio.NewTrack(1000, 1, 2000)},
		{SegmentID: "seg-1", Index: 1, Start: 7500 * time.Millisecond, End: 9 * time.Second, Track: audio.NewTrack(1000, 1, 1500)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	// 7.25s falls after the first recovery ramp and before the next dip.
	recovered := result.Track.Data[0][7250]
	if math.Abs(recovered-0.5) > 1e-9 {
		t.Errorf("recovered sample = %v, want 0.5", recovered)
	}
}

func TestMixOutputFormatMatchesParams(t *testing.T) {
	params := testParams()
	params.SampleRate = 16000
	params.Channels = 1
	engine := NewEngine(params, logging.NewNop())

	// 1.5 seconds of stereo source at 8 kHz, clip at 4 kHz mono.
	background := constTrack(8000, 2, 12000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 500 * time.Millisecond, End: time.Second, Track: constTrack(4000, 1, 2000, 0.5)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if result.Track.SampleRate != 16000 {
		t.Errorf("rate = %d, want 16000", result.Track.SampleRate)
	}
	if result.Track.Channels() != 1 {
		t.Errorf("channels = %d, want 1", result.Track.Channels())
	}
	if result.Track.Frames() != 24000 {
		t.Errorf("frames = %d, want 24000", result.Track.Frames())
	}
	if result.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", result.Duration)
	}
}

func TestMixNormalizesPeak(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 10000, 0.9)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: 2 * time.Second, End: 4 * time.Second, Track: constTrack(1000, 1, 2000, 0.9)},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if result.PeakGain >= 1 {
		t.Errorf("peak gain = %v, want < 1", result.PeakGain)
	}
	if peak := result.Track.Peak(); peak > 0.999+1e-9 {
		t.Errorf("peak = %v, want <= 0.999", peak)
	}
}

func TestMixDropsUnplaceableSegmentAndContinues(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 10000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: time.Second, End: 2 * time.Second, Track: constTrack(1000, 1, 500, 0.8)},
		{SegmentID: "seg-1", Index: 1, Start: 3 * time.Second, End: 4 * time.Second, Track: nil},
	}

	result, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if result.DroppedCount() != 1 {
		t.Fatalf("dropped = %d, want 1", result.DroppedCount())
	}
	var dropped *SegmentReport
	for i := range result.Reports {
		if result.Reports[i].Index == 1 {
			dropped = &result.Reports[i]
		}
	}
	if dropped == nil || !dropped.Dropped || dropped.Note == "" {
		t.Errorf("dropped report = %+v", dropped)
	}
}

func TestMixAbortsOnSyncErrorWhenConfigured(t *testing.T) {
	params := testParams()
	params.AbortOnSyncError = true
	engine := NewEngine(params, logging.NewNop())

	background := constTrack(1000, 1, 10000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: time.Second, End: 2 * time.Second, Track: nil},
	}

	_, err := engine.Mix(context.Background(), background, clips)
	if err == nil {
		t.Fatal("expected sync error")
	}
	if !errors.Is(err, services.ErrSync) {
		t.Errorf("error = %v, want sync marker", err)
	}
}

func TestMixRejectsOverlappingSlots(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 10000, 0.2)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: time.Second, End: 3 * time.Second, Track: constTrack(1000, 1, 100, 0.5)},
		{SegmentID: "seg-1", Index: 1, Start: 2 * time.Second, End: 4 * time.Second, Track: constTrack(1000, 1, 100, 0.5)},
	}

	_, err := engine.Mix(context.Background(), background, clips)
	if !errors.Is(err, services.ErrValidation) {
		t.Errorf("error = %v, want validation marker", err)
	}
}

func TestMixRejectsEmptyBackground(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())
	if _, err := engine.Mix(context.Background(), nil, nil); !errors.Is(err, services.ErrValidation) {
		t.Errorf("error = %v, want validation marker", err)
	}
}

func TestMixDeterministic(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 20000, 0.3)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: time.Second, End: 4 * time.Second, Track: constTrack(1000, 1, 4500, 0.7)},
		{SegmentID: "seg-1", Index: 1, Start: 6 * time.Second, End: 8 * time.Second, Track: constTrack(1000, 1, 1000, 0.7)},
	}

	first, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("first Mix: %v", err)
	}
	second, err := engine.Mix(context.Background(), background, clips)
	if err != nil {
		t.Fatalf("second Mix: %v", err)
	}
	if !reflect.DeepEqual(first.Track.Data, second.Track.Data) {
		t.Error("repeated mixes differ")
	}
	if !reflect.DeepEqual(first.Reports, second.Reports) {
		t.Error("repeated reports differ")
	}
}

func TestMixDoesNotModifyBackground(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())

	background := constTrack(1000, 1, 10000, 0.4)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: time.Second, End: 2 * time.Second, Track: constTrack(1000, 1, 1000, 0.6)},
	}

	if _, err := engine.Mix(context.Background(), background, clips); err != nil {
		t.Fatalf("Mix: %v", err)
	}
	for i, v := range background.Data[0] {
		if v != 0.4 {
			t.Fatalf("background sample %d changed to %v", i, v)
		}
	}
}

func TestMixCancelled(t *testing.T) {
	engine := NewEngine(testParams(), logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	background := constTrack(1000, 1, 10000, 0.4)
	clips := []Clip{
		{SegmentID: "seg-0", Index: 0, Start: time.Second, End: 2 * time.Second, Track: constTrack(1000, 1, 1000, 0.6)},
	}

	if _, err := engine.Mix(ctx, background, clips); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
