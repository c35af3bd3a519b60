package transcription

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"mockingbird/internal/config"
	"mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/resource"
	"mockingbird/internal/services"
	"mockingbird/internal/services/adapter"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/stage"
)

// Transcriber runs speech recognition over the source media and attaches the
// recognized text to the job's segments. When validation found no segment
// hints, the transcript's own timestamps define the segment list.
type Transcriber struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	guard     *resource.Guard
	providers *providers.Registry
}

// NewTranscriber constructs the transcription stage handler with its own
// provider registry.
func NewTranscriber(cfg *config.Config, store *queue.Store, logger *slog.Logger, guard *resource.Guard) *Transcriber {
	return NewTranscriberWithDependencies(cfg, store, logger, guard, providers.NewRegistry(cfg, logger))
}

// NewTranscriberWithDependencies allows injecting the provider registry
// (shared by the daemon, faked in tests).
func NewTranscriberWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, guard *resource.Guard, registry *providers.Registry) *Transcriber {
	return &Transcriber{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "transcription"),
		guard:     guard,
		providers: registry,
	}
}

func (t *Transcriber) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)
	job.InitProgress("Transcribing", "Preparing transcription")
	logger.Info("starting transcription", logging.String("source", job.SourcePath))
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	pc, err := stage.Snapshot(job)
	if err != nil {
		return err
	}
	hints, err := stage.Segments(job)
	if err != nil {
		return err
	}

	// Downgrades were recorded against the job during validation; here the
	// resolved copy only steers execution.
	effective, _ := t.guard.Downgrade(pc)

	if effective.Device == "cuda" {
		t.updateProgress(ctx, job, "Waiting for GPU", 10)
		release, err := t.guard.AcquireGPU(ctx, job.ID)
		if err != nil {
			return services.Wrap(services.ErrResource, "transcribing", "acquire gpu", "GPU lease unavailable", err)
		}
		defer release()
	}

	t.updateProgress(ctx, job, "Transcribing audio", 20)
	chain := t.providers.TranscriberChain(pc)
	result, attempts, err := chain.Transcribe(ctx, services.TranscribeRequest{
		MediaPath: job.SourcePath,
		ModelSize: effective.ModelSize,
		Device:    effective.Device,
	})
	t.recordFailovers(ctx, job, attempts)
	if err != nil {
		return err
	}

	if detected := language.Normalize(result.Language); detected != "" {
		job.DetectedLanguage = detected
	}

	if len(result.Segments) == 0 {
		return services.Wrap(
			services.ErrValidation, "transcribing", "collect transcript",
			"No speech detected in media", nil)
	}

	t.updateProgress(ctx, job, "Aligning segments", 80)
	var segments []queue.Segment
	if len(hints) > 0 {
		filled := fillHintSegments(hints, result.Segments)
		if filled == 0 {
			return services.Wrap(
				services.ErrValidation, "transcribing", "align transcript",
				"Transcript does not overlap any segment hint", nil)
		}
		segments = hints
		logger.Info("transcript aligned to hints",
			logging.Int("hints", len(hints)),
			logging.Int("filled", filled),
		)
	} else {
		var adjusted int
		segments, adjusted = transcriptSegments(result.Segments)
		if len(segments) == 0 {
			return services.Wrap(
				services.ErrValidation, "transcribing", "collect transcript",
				"Transcript contains no usable speech segments", nil)
		}
		if adjusted > 0 {
			message := fmt.Sprintf("%d transcript segments trimmed to restore time order", adjusted)
			if err := t.store.RecordWarning(ctx, job.ID, queue.StageTranscribed, -1, "transcript_adjusted", message); err != nil {
				logger.Warn("failed to record transcript warning", logging.Error(err))
			}
		}
	}
	if err := queue.ValidateSegments(segments); err != nil {
		return services.Wrap(services.ErrValidation, "transcribing", "validate segments", "Transcribed segments are inconsistent", err)
	}
	if err := job.SetSegments(segments); err != nil {
		return services.Wrap(services.ErrValidation, "transcribing", "store segments", "Failed to encode segments", err)
	}

	t.updateProgress(ctx, job, "Transcription completed", 100)
	logger.Info(
		"transcription completed",
		logging.String(logging.FieldProvider, adapter.Winner(attempts)),
		logging.String(logging.FieldLanguage, job.DetectedLanguage),
		logging.Int("segments", len(segments)),
	)
	return nil
}

// recordFailovers stores each failed provider call as a warning so absorbed
// outages stay visible in the job history.
func (t *Transcriber) recordFailovers(ctx context.Context, job *queue.Job, attempts []adapter.Attempt) {
	logger := logging.WithContext(ctx, t.logger)
	for _, a := range adapter.Failures(attempts) {
		message := fmt.Sprintf("%s attempt %d failed (%s): %s", a.Provider, a.Try, a.Kind, a.Err)
		if err := t.store.RecordWarning(ctx, job.ID, queue.StageTranscribed, -1, "provider_failover", message); err != nil {
			logger.Warn("failed to record failover warning", logging.Error(err))
		}
	}
}

// fillHintSegments assigns transcript text to the hint slot containing each
// transcript segment's midpoint. Returns the number of slots that received
// text; slots left empty carry no speech and keep their original audio.
func fillHintSegments(hints []queue.Segment, transcript []services.TranscriptSegment) int {
	texts := make([][]string, len(hints))
	for _, ts := range transcript {
		text := strings.TrimSpace(ts.Text)
		if text == "" {
			continue
		}
		mid := (ts.Start + ts.End) / 2
		for i := range hints {
			if mid >= hints[i].Start && mid < hints[i].End {
				texts[i] = append(texts[i], text)
				if hints[i].SpeakerID == "" {
					hints[i].SpeakerID = strings.TrimSpace(ts.Speaker)
				}
				break
			}
		}
	}
	filled := 0
	for i := range hints {
		if len(texts[i]) == 0 {
			continue
		}
		hints[i].SourceText = strings.Join(texts[i], " ")
		filled++
	}
	return filled
}

// transcriptSegments converts raw transcript spans into the job's segment
// list, dropping empty text and trimming the rare span that starts before the
// previous one ended. Returns the segments plus how many spans were adjusted.
func transcriptSegments(transcript []services.TranscriptSegment) ([]queue.Segment, int) {
	segments := make([]queue.Segment, 0, len(transcript))
	adjusted := 0
	var prevEnd float64
	for _, ts := range transcript {
		text := strings.TrimSpace(ts.Text)
		if text == "" {
			continue
		}
		start, end := ts.Start, ts.End
		if start < prevEnd {
			start = prevEnd
			adjusted++
		}
		if end <= start {
			adjusted++
			continue
		}
		segments = append(segments, queue.Segment{
			Index:      len(segments),
			Start:      start,
			End:        end,
			SpeakerID:  strings.TrimSpace(ts.Speaker),
			SourceText: text,
		})
		prevEnd = end
	}
	return segments, adjusted
}

// HealthCheck reports whether any transcription provider is reachable under
// the current runtime config.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcription"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if err := t.providers.TranscriberChain(queue.NewProcessingConfig(t.cfg)).Health(ctx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

func (t *Transcriber) updateProgress(ctx context.Context, job *queue.Job, message string, percent float64) {
	logger := logging.WithContext(ctx, t.logger)
	copy := *job
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := t.store.UpdateProgress(ctx, &copy); err != nil {
		logger.Warn("failed to persist transcription progress", logging.Error(err))
		return
	}
	*job = copy
}
