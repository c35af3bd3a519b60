package transcription_test

import (
	"context"
	"errors"
	"testing"

	"mockingbird/internal/config"
	"mockingbird/internal/queue"
	"mockingbird/internal/resource"
	"mockingbird/internal/services"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/testsupport"
	"mockingbird/internal/transcription"
)

type scriptedTranscriber struct {
	name   string
	result services.TranscribeResult
	err    error
	calls  int
	onCall func(ctx context.Context)
}

func (s *scriptedTranscriber) Name() string { return s.name }

func (s *scriptedTranscriber) Transcribe(ctx context.Context, req services.TranscribeRequest) (services.TranscribeResult, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall(ctx)
	}
	if s.err != nil {
		return services.TranscribeResult{}, s.err
	}
	return s.result, nil
}

func (s *scriptedTranscriber) Health(ctx context.Context) error { return nil }

func registryWith(transcribers map[string]services.Transcriber) *providers.Registry {
	return providers.NewRegistryWithProviders(nil, transcribers, nil, nil)
}

func cpuGuard() *resource.Guard {
	return resource.NewGuard(resource.Hardware{
		TotalMemory: 16 << 30,
		FreeMemory:  8 << 30,
		CPUCount:    8,
	}, nil)
}

func gpuGuard() *resource.Guard {
	return resource.NewGuard(resource.Hardware{
		GPUs:        []resource.GPU{{Device: "card0", Kind: "nvidia"}},
		TotalMemory: 32 << 30,
		FreeMemory:  24 << 30,
		CPUCount:    16,
	}, nil)
}

func newFixture(t *testing.T, stub *scriptedTranscriber) (*config.Config, *queue.Store, *transcription.Transcriber, *queue.Job) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Dubbing.MaxRetries = 1
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, cfg, "Transcription Movie", "es")
	handler := transcription.NewTranscriberWithDependencies(
		cfg, store, nil, cpuGuard(),
		registryWith(map[string]services.Transcriber{"openai": stub}),
	)
	return cfg, store, handler, job
}

func TestExecuteFillsHintSlots(t *testing.T) {
	stub := &scriptedTranscriber{
		name: "openai",
		result: services.TranscribeResult{
			Language: "en",
			Segments: []services.TranscriptSegment{
				{Start: 0.2, End: 1.8, Speaker: "spk0", Text: "Hello there."},
				{Start: 2.1, End: 2.9, Text: "How are"},
				{Start: 3.0, End: 3.8, Text: "you today?"},
				{Start: 4.5, End: 5.0, Text: "   "},
			},
		},
	}
	_, _, handler, job := newFixture(t, stub)

	hints := []queue.Segment{
		{Index: 0, Start: 0, End: 2},
		{Index: 1, Start: 2, End: 4, SpeakerID: "narrator"},
		{Index: 2, Start: 4, End: 6},
	}
	if err := job.SetSegments(hints); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if job.DetectedLanguage != "en" {
		t.Errorf("DetectedLanguage = %q, want en", job.DetectedLanguage)
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	if segments[0].SourceText != "Hello there." {
		t.Errorf("slot 0 text = %q", segments[0].SourceText)
	}
	if segments[0].SpeakerID != "spk0" {
		t.Errorf("slot 0 speaker = %q, want spk0", segments[0].SpeakerID)
	}
	if segments[1].SourceText != "How are you today?" {
		t.Errorf("slot 1 text = %q", segments[1].SourceText)
	}
	if segments[1].SpeakerID != "narrator" {
		t.Errorf("slot 1 speaker = %q, want narrator", segments[1].SpeakerID)
	}
	if segments[2].SourceText != "" {
		t.Errorf("slot 2 should stay empty, got %q", segments[2].SourceText)
	}
	if job.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %v, want 100", job.ProgressPercent)
	}
}

func TestExecuteBuildsSegmentsWithoutHints(t *testing.T) {
	stub := &scriptedTranscriber{
		name: "openai",
		result: services.TranscribeResult{
			Language: "en",
			Segments: []services.TranscriptSegment{
				{Start: 0.0, End: 1.5, Text: "First line"},
				{Start: 1.2, End: 2.5, Text: "overlaps a little"},
				{Start: 2.5, End: 2.4, Text: "swallowed"},
				{Start: 3.0, End: 4.0, Text: ""},
				{Start: 4.0, End: 5.0, Text: "last line"},
			},
		},
	}
	_, store, handler, job := newFixture(t, stub)

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	if segments[1].Start != 1.5 {
		t.Errorf("segment 1 start = %v, want clamped to 1.5", segments[1].Start)
	}
	for i, seg := range segments {
		if seg.Index != i {
			t.Errorf("segment %d carries index %d", i, seg.Index)
		}
	}
	if err := queue.ValidateSegments(segments); err != nil {
		t.Errorf("derived segments invalid: %v", err)
	}

	history, err := store.JobErrors(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("JobErrors: %v", err)
	}
	var adjusted int
	for _, entry := range history {
		if entry.Kind == "transcript_adjusted" {
			adjusted++
		}
	}
	if adjusted != 1 {
		t.Errorf("got %d transcript_adjusted warnings, want 1", adjusted)
	}
}

func TestExecuteFailsOnEmptyTranscript(t *testing.T) {
	stub := &scriptedTranscriber{name: "openai", result: services.TranscribeResult{Language: "en"}}
	_, _, handler, job := newFixture(t, stub)

	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !services.Fatal(err) {
		t.Errorf("empty transcript should be fatal")
	}
}

func TestExecuteFailsWhenTranscriptMissesAllHints(t *testing.T) {
	stub := &scriptedTranscriber{
		name: "openai",
		result: services.TranscribeResult{
			Language: "en",
			Segments: []services.TranscriptSegment{{Start: 8.0, End: 9.0, Text: "off screen"}},
		},
	}
	_, _, handler, job := newFixture(t, stub)
	if err := job.SetSegments([]queue.Segment{{Index: 0, Start: 0, End: 1}}); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}

	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestExecuteRecordsFailoverWarnings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Dubbing.MaxRetries = 1
	cfg.Dubbing.TranscribeChain = []string{"openai", "whispercpp"}
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, cfg, "Failover Movie", "es")

	broken := &scriptedTranscriber{name: "openai", err: services.Unavailable("openai", errors.New("503"))}
	good := &scriptedTranscriber{
		name: "whispercpp",
		result: services.TranscribeResult{
			Language: "en",
			Segments: []services.TranscriptSegment{{Start: 0, End: 1, Text: "hi"}},
		},
	}
	handler := transcription.NewTranscriberWithDependencies(
		cfg, store, nil, cpuGuard(),
		registryWith(map[string]services.Transcriber{"openai": broken, "whispercpp": good}),
	)

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if good.calls != 1 {
		t.Errorf("fallback provider called %d times, want 1", good.calls)
	}

	history, err := store.JobErrors(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("JobErrors: %v", err)
	}
	var failovers int
	for _, entry := range history {
		if entry.Kind != "provider_failover" {
			continue
		}
		failovers++
		if entry.Severity != queue.SeverityWarning {
			t.Errorf("failover severity = %q, want warning", entry.Severity)
		}
		if entry.Stage != string(queue.StageTranscribed) {
			t.Errorf("failover stage = %q", entry.Stage)
		}
	}
	if failovers != 1 {
		t.Errorf("got %d failover warnings, want 1", failovers)
	}
}

func TestExecuteHoldsGPULeaseDuringTranscription(t *testing.T) {
	guard := gpuGuard()
	cfg := testsupport.NewConfig(t)
	cfg.Dubbing.MaxRetries = 1
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, cfg, "GPU Movie", "es")

	stub := &scriptedTranscriber{
		name: "openai",
		result: services.TranscribeResult{
			Language: "en",
			Segments: []services.TranscriptSegment{{Start: 0, End: 1, Text: "hi"}},
		},
	}
	stub.onCall = func(ctx context.Context) {
		if holder := guard.Lease().Holder(); holder != job.ID {
			t.Errorf("lease holder during transcription = %q, want %q", holder, job.ID)
		}
	}
	handler := transcription.NewTranscriberWithDependencies(
		cfg, store, nil, guard,
		registryWith(map[string]services.Transcriber{"openai": stub}),
	)

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("provider called %d times, want 1", stub.calls)
	}
	if holder := guard.Lease().Holder(); holder != "" {
		t.Errorf("lease still held by %q after Execute", holder)
	}
}

func TestHealthCheck(t *testing.T) {
	stub := &scriptedTranscriber{name: "openai"}
	_, _, handler, _ := newFixture(t, stub)

	health := handler.HealthCheck(context.Background())
	if !health.Ready {
		t.Errorf("HealthCheck not ready: %s", health.Detail)
	}
	if health.Name != "transcription" {
		t.Errorf("health name = %q", health.Name)
	}
}
