package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/resource"
	"mockingbird/internal/services"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/stage"
)

// Validator checks that a job can run before any compute is spent on it:
// readable media, recognized target languages, a config snapshot within
// hardware bounds, and at least one reachable provider per capability.
type Validator struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	guard     *resource.Guard
	providers *providers.Registry
}

// NewValidator constructs the validation stage handler with its own provider
// registry.
func NewValidator(cfg *config.Config, store *queue.Store, logger *slog.Logger, guard *resource.Guard) *Validator {
	return NewValidatorWithDependencies(cfg, store, logger, guard, providers.NewRegistry(cfg, logger))
}

// NewValidatorWithDependencies allows injecting the provider registry (shared
// by the daemon, faked in tests).
func NewValidatorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, guard *resource.Guard, registry *providers.Registry) *Validator {
	return &Validator{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "validation"),
		guard:     guard,
		providers: registry,
	}
}

func (v *Validator) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, v.logger)
	job.InitProgress("Validating", "Preparing validation")
	logger.Info(
		"starting validation",
		logging.String("source", job.SourcePath),
		logging.String("languages", strings.Join(job.TargetLanguages, ",")),
	)
	return nil
}

func (v *Validator) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, v.logger)

	pc, err := stage.Snapshot(job)
	if err != nil {
		return err
	}
	if err := v.guard.ValidateProcessingConfig(pc).Err(); err != nil {
		return err
	}

	languages := language.NormalizeList(job.TargetLanguages)
	if len(languages) == 0 {
		return services.Wrap(
			services.ErrValidation, "validating", "check languages",
			fmt.Sprintf("No recognized target language in %v", job.TargetLanguages), nil)
	}
	job.TargetLanguages = languages

	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "validating", "stat media", "Media file missing or unreadable", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "validating", "stat media", "Media path is a directory, not a file", nil)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "validating", "stat media", "Media file is empty", nil)
	}

	v.updateProgress(ctx, job, "Decoding source audio", 20)
	track, err := audio.DecodeWAV(job.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "validating", "decode media", "Media is not a readable WAV file", err)
	}
	duration := track.Duration()
	logger.Info(
		"source audio decoded",
		logging.Duration("duration", duration),
		logging.Int("sample_rate", track.SampleRate),
		logging.Int("channels", track.Channels()),
	)

	v.updateProgress(ctx, job, "Reading segment hints", 40)
	hints, hintPath, err := readSegmentHints(job.SourcePath)
	if err != nil {
		return err
	}
	if len(hints) > 0 {
		if err := queue.ValidateSegments(hints); err != nil {
			return services.Wrap(
				services.ErrValidation, "validating", "validate segment hints",
				fmt.Sprintf("Segment hints in %s are inconsistent", filepath.Base(hintPath)), err)
		}
		if last := hints[len(hints)-1]; last.End > duration.Seconds()+0.05 {
			return services.Wrap(
				services.ErrValidation, "validating", "validate segment hints",
				fmt.Sprintf("Segment hints reach %.2fs but the media ends at %.2fs", last.End, duration.Seconds()), nil)
		}
		if err := job.SetSegments(hints); err != nil {
			return services.Wrap(services.ErrValidation, "validating", "store segment hints", "Failed to encode segment hints", err)
		}
		logger.Info("segment hints loaded", logging.Int("segments", len(hints)), logging.String("path", hintPath))
	} else {
		logger.Info("no segment hints found; transcription will derive timings", logging.String("path", hintPath))
	}

	v.updateProgress(ctx, job, "Probing providers", 60)
	if err := v.providers.TranscriberChain(pc).Health(ctx); err != nil {
		return err
	}
	if err := v.providers.TranslatorChain(pc).Health(ctx); err != nil {
		return err
	}
	if err := v.providers.SynthesizerChain(pc).Health(ctx); err != nil {
		return err
	}

	v.updateProgress(ctx, job, "Checking hardware fit", 80)
	effective, adjustments := v.guard.Downgrade(pc)
	for _, adj := range adjustments {
		if err := v.store.RecordWarning(ctx, job.ID, queue.StageValidated, -1, "downgrade", adj.String()); err != nil {
			logger.Warn("failed to record downgrade warning", logging.Error(err))
		}
	}
	v.warnPaceOverruns(ctx, job, hints, languages, effective.StretchCeiling)

	v.updateProgress(ctx, job, "Validation completed", 100)
	logger.Info(
		"validation completed",
		logging.Duration("media_duration", duration),
		logging.Int("segment_hints", len(hints)),
		logging.Int("downgrades", len(adjustments)),
	)
	return nil
}

// warnPaceOverruns records one warning per target language whose typical
// speech expansion exceeds the stretch ceiling, so truncation later in the
// pipeline does not surprise the operator.
func (v *Validator) warnPaceOverruns(ctx context.Context, job *queue.Job, hints []queue.Segment, languages []string, ceiling float64) {
	logger := logging.WithContext(ctx, v.logger)
	var speech time.Duration
	for _, seg := range hints {
		speech += time.Duration(seg.Duration() * float64(time.Second))
	}
	for _, lang := range languages {
		ratio := language.PaceRatio(lang)
		logger.Info(
			"speech estimate",
			logging.String(logging.FieldLanguage, lang),
			logging.Float64("pace_ratio", ratio),
			logging.Duration("source_speech", speech),
			logging.Duration("estimated_speech", language.EstimateSpeechDuration(speech, lang)),
		)
		if ratio <= ceiling {
			continue
		}
		message := fmt.Sprintf(
			"%s speech typically runs %.2fx the source length, above the %.2fx stretch ceiling; expect truncated segments",
			language.DisplayName(lang), ratio, ceiling)
		if err := v.store.RecordWarning(ctx, job.ID, queue.StageValidated, -1, "truncation_risk", message); err != nil {
			logger.Warn("failed to record truncation warning", logging.Error(err))
		}
	}
}

// HintPath returns the sidecar segment-hint path for a media file: the media
// name with its extension replaced by ".segments.json".
func HintPath(mediaPath string) string {
	return strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".segments.json"
}

// segmentHint is the sidecar JSON shape external speech detection produces.
type segmentHint struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
}

func readSegmentHints(mediaPath string) ([]queue.Segment, string, error) {
	path := HintPath(mediaPath)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, path, nil
	}
	if err != nil {
		return nil, path, services.Wrap(
			services.ErrValidation, "validating", "read segment hints",
			fmt.Sprintf("Segment hint file %s exists but cannot be read", filepath.Base(path)), err)
	}
	var hints []segmentHint
	if err := json.Unmarshal(data, &hints); err != nil {
		return nil, path, services.Wrap(
			services.ErrValidation, "validating", "parse segment hints",
			fmt.Sprintf("Segment hint file %s is not valid JSON", filepath.Base(path)), err)
	}
	segments := make([]queue.Segment, len(hints))
	for i, hint := range hints {
		segments[i] = queue.Segment{
			Index:     i,
			Start:     hint.Start,
			End:       hint.End,
			SpeakerID: strings.TrimSpace(hint.Speaker),
		}
	}
	return segments, path, nil
}

// HealthCheck verifies validation prerequisites: configuration, the resource
// guard, and the staging directory.
func (v *Validator) HealthCheck(ctx context.Context) stage.Health {
	const name = "validation"
	if v.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(v.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if v.guard == nil {
		return stage.Unhealthy(name, "resource guard unavailable")
	}
	return stage.Healthy(name)
}

func (v *Validator) updateProgress(ctx context.Context, job *queue.Job, message string, percent float64) {
	logger := logging.WithContext(ctx, v.logger)
	copy := *job
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := v.store.UpdateProgress(ctx, &copy); err != nil {
		logger.Warn("failed to persist validation progress", logging.Error(err))
		return
	}
	*job = copy
}
