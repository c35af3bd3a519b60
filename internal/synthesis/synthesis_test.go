package synthesis_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/synthesis"
	"mockingbird/internal/testsupport"
)

type scriptedSynthesizer struct {
	name string
	fn   func(req services.SynthesizeRequest) (*audio.Track, error)

	mu    sync.Mutex
	calls int
}

func (s *scriptedSynthesizer) Name() string { return s.name }

func (s *scriptedSynthesizer) Synthesize(ctx context.Context, req services.SynthesizeRequest) (*audio.Track, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(req)
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = 22050
	}
	return audio.NewTrack(rate, 1, rate/2), nil
}

func (s *scriptedSynthesizer) Health(ctx context.Context) error { return nil }

func (s *scriptedSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newFixture(
	t *testing.T,
	synthesizers map[string]services.Synthesizer,
	mutate func(cfg *config.Config),
) (*config.Config, *queue.Store, *synthesis.Synthesizer, *queue.Job) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Dubbing.MaxRetries = 1
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, cfg, "Synthesis Movie", "es")
	handler := synthesis.NewSynthesizerWithDependencies(
		cfg, store, nil,
		providers.NewRegistryWithProviders(nil, nil, nil, synthesizers),
	)
	return cfg, store, handler, job
}

func translatedSegments(lang string, texts ...string) []queue.Segment {
	segments := make([]queue.Segment, len(texts))
	for i, text := range texts {
		segments[i] = queue.Segment{
			Index:      i,
			Start:      float64(i) * 2,
			End:        float64(i)*2 + 1.5,
			SourceText: text,
		}
		if text != "" {
			segments[i].Translations = map[string]string{lang: text}
		}
	}
	return segments
}

func TestExecuteRendersEveryTranslatedPair(t *testing.T) {
	stub := &scriptedSynthesizer{name: "openai"}
	cfg, _, handler, job := newFixture(t, map[string]services.Synthesizer{"openai": stub}, nil)

	if err := job.SetSegments(translatedSegments("es", "Hola.", "", "Adios.")); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if stub.callCount() != 2 {
		t.Errorf("provider called %d times, want 2", stub.callCount())
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	for _, i := range []int{0, 2} {
		clip, ok := segments[i].Synthesis["es"]
		if !ok {
			t.Fatalf("segment %d missing synthesized clip", i)
		}
		if clip.Provider != "openai" {
			t.Errorf("segment %d provider = %q, want openai", i, clip.Provider)
		}
		if clip.SampleRate != cfg.Dubbing.TargetSampleRate {
			t.Errorf("segment %d sample rate = %d, want %d", i, clip.SampleRate, cfg.Dubbing.TargetSampleRate)
		}
		if clip.DurationSeconds <= 0 {
			t.Errorf("segment %d duration = %v", i, clip.DurationSeconds)
		}
		if !strings.HasPrefix(clip.Path, cfg.ScratchRoot()) {
			t.Errorf("clip path %q outside scratch root %q", clip.Path, cfg.ScratchRoot())
		}
		if _, err := os.Stat(clip.Path); err != nil {
			t.Errorf("clip file missing: %v", err)
		}
	}
	if len(segments[1].Synthesis) != 0 {
		t.Errorf("silent segment received clips: %v", segments[1].Synthesis)
	}
	if job.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %v, want 100", job.ProgressPercent)
	}
}

func TestExecuteFailsWhenNothingToSynthesize(t *testing.T) {
	stub := &scriptedSynthesizer{name: "openai"}
	_, _, handler, job := newFixture(t, map[string]services.Synthesizer{"openai": stub}, nil)

	if err := job.SetSegments(translatedSegments("es", "", "")); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}

	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !services.Fatal(err) {
		t.Errorf("missing translations should be fatal")
	}
	if stub.callCount() != 0 {
		t.Errorf("provider called %d times, want 0", stub.callCount())
	}
}

func TestExecuteToleratesBoundedGaps(t *testing.T) {
	stub := &scriptedSynthesizer{
		name: "openai",
		fn: func(req services.SynthesizeRequest) (*audio.Track, error) {
			if req.Text == "dos" {
				return nil, services.Unavailable("openai", errors.New("503"))
			}
			return audio.NewTrack(req.SampleRate, 1, req.SampleRate/4), nil
		},
	}
	_, store, handler, job := newFixture(t, map[string]services.Synthesizer{"openai": stub}, func(cfg *config.Config) {
		cfg.Dubbing.FailureTolerancePercent = 50
	})

	if err := job.SetSegments(translatedSegments("es", "uno", "dos", "tres")); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed despite tolerance: %v", err)
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if _, ok := segments[1].Synthesis["es"]; ok {
		t.Errorf("failed segment should have no clip")
	}
	if _, ok := segments[0].Synthesis["es"]; !ok {
		t.Errorf("segment 0 missing clip")
	}

	history, err := store.JobErrors(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("JobErrors: %v", err)
	}
	var gaps int
	for _, entry := range history {
		if entry.Kind != "synthesis_gap" {
			continue
		}
		gaps++
		if entry.SegmentIndex == nil || *entry.SegmentIndex != 1 {
			t.Errorf("gap warning segment index = %v, want 1", entry.SegmentIndex)
		}
	}
	if gaps != 1 {
		t.Errorf("got %d synthesis_gap warnings, want 1", gaps)
	}
}

func TestExecuteFailsWhenGapsExceedTolerance(t *testing.T) {
	stub := &scriptedSynthesizer{
		name: "openai",
		fn: func(req services.SynthesizeRequest) (*audio.Track, error) {
			return nil, services.Unavailable("openai", errors.New("503"))
		},
	}
	_, _, handler, job := newFixture(t, map[string]services.Synthesizer{"openai": stub}, func(cfg *config.Config) {
		cfg.Dubbing.FailureTolerancePercent = 0
	})

	if err := job.SetSegments(translatedSegments("es", "uno")); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}

	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrService) {
		t.Fatalf("err = %v, want service error", err)
	}
	if services.Fatal(err) {
		t.Errorf("provider outage should stay retryable, got fatal: %v", err)
	}
}

func TestExecuteRecordsFallbackWinner(t *testing.T) {
	flaky := &scriptedSynthesizer{
		name: "openai",
		fn: func(req services.SynthesizeRequest) (*audio.Track, error) {
			return nil, services.Unavailable("openai", errors.New("503"))
		},
	}
	steady := &scriptedSynthesizer{name: "piper"}
	_, store, handler, job := newFixture(t, map[string]services.Synthesizer{"openai": flaky, "piper": steady}, func(cfg *config.Config) {
		cfg.Dubbing.SynthesizeChain = []string{"openai", "piper"}
	})

	if err := job.SetSegments(translatedSegments("es", "Hola.")); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	clip, ok := segments[0].Synthesis["es"]
	if !ok {
		t.Fatal("segment 0 missing clip")
	}
	if clip.Provider != "piper" {
		t.Errorf("clip provider = %q, want piper", clip.Provider)
	}

	history, err := store.JobErrors(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("JobErrors: %v", err)
	}
	var failovers int
	for _, entry := range history {
		if entry.Kind == "provider_failover" {
			failovers++
			if !strings.Contains(entry.Message, "openai") {
				t.Errorf("failover message = %q", entry.Message)
			}
		}
	}
	if failovers != 1 {
		t.Errorf("got %d failover warnings, want 1", failovers)
	}
}

func TestHealthCheck(t *testing.T) {
	stub := &scriptedSynthesizer{name: "openai"}
	_, _, handler, _ := newFixture(t, map[string]services.Synthesizer{"openai": stub}, nil)

	health := handler.HealthCheck(context.Background())
	if !health.Ready {
		t.Errorf("HealthCheck not ready: %s", health.Detail)
	}
	if health.Name != "synthesis" {
		t.Errorf("health name = %q", health.Name)
	}
}
