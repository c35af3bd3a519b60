package mixdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/logging"
	"mockingbird/internal/mixer"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/stage"
)

// Mixer runs the synchronization engine once per target language and writes
// the final dubbed tracks under the job's output directory. Segments without
// a synthesized clip keep the original audio; unreadable clips count against
// the job's failure tolerance.
type Mixer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewMixer constructs the mixdown stage handler.
func NewMixer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Mixer {
	return &Mixer{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "mixdown"),
	}
}

func (m *Mixer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, m.logger)
	job.InitProgress("Mixing", "Preparing mixdown")
	logger.Info("starting mixdown", logging.Any("languages", job.TargetLanguages))
	return nil
}

func (m *Mixer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, m.logger)

	pc, err := stage.Snapshot(job)
	if err != nil {
		return err
	}
	segments, err := stage.Segments(job)
	if err != nil {
		return err
	}

	m.updateProgress(ctx, job, "Decoding source audio", 5)
	background, err := audio.DecodeWAV(job.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "mixing", "decode source", "Source media is not a readable WAV file", err)
	}

	outDir := filepath.Join(m.cfg.Paths.OutputDir, job.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return services.Wrap(services.ErrResource, "mixing", "create output directory", "Cannot create job output directory", err)
	}
	base := strings.TrimSuffix(filepath.Base(job.SourcePath), filepath.Ext(job.SourcePath))

	engine := mixer.NewEngine(mixer.Params{
		SampleRate:       pc.TargetSampleRate,
		Channels:         pc.TargetChannels,
		DuckingGainDB:    pc.DuckingGainDB,
		DuckRamp:         time.Duration(pc.DuckRampMs) * time.Millisecond,
		Crossfade:        time.Duration(pc.CrossfadeMs) * time.Millisecond,
		StretchCeiling:   pc.StretchCeiling,
		AbortOnSyncError: pc.AbortOnSyncError,
	}, m.logger)

	outputs := make(map[string]string, len(job.TargetLanguages))
	reports := make(map[string][]mixer.SegmentReport, len(job.TargetLanguages))
	for k, lang := range job.TargetLanguages {
		percent := 10 + float64(k)*80/float64(len(job.TargetLanguages))
		m.updateProgress(ctx, job, fmt.Sprintf("Mixing %s track", lang), percent)

		clips, missing := m.collectClips(ctx, job, segments, lang)
		if total := len(clips) + missing; missing > 0 {
			ratio := float64(missing) * 100 / float64(total)
			if ratio > float64(pc.FailureTolerancePercent) {
				message := fmt.Sprintf(
					"%d of %d synthesized clips unreadable for %s; re-run synthesis",
					missing, total, lang)
				return services.Wrap(services.ErrResource, "mixing", "collect clips", message, nil)
			}
		}

		result, err := engine.Mix(ctx, background, clips)
		if err != nil {
			return err
		}
		if dropped := result.DroppedCount(); dropped > 0 {
			message := fmt.Sprintf("%d segments dropped from the %s mix; original audio kept", dropped, lang)
			if err := m.store.RecordWarning(ctx, job.ID, queue.StageMixed, -1, "sync_drop", message); err != nil {
				logger.Warn("failed to record sync drop warning", logging.Error(err))
			}
		}

		outPath := filepath.Join(outDir, fmt.Sprintf("%s.%s.wav", base, lang))
		if err := audio.EncodeWAV(outPath, result.Track); err != nil {
			return services.Wrap(services.ErrResource, "mixing", "write output", "Cannot write mixed track", err)
		}
		outputs[lang] = outPath
		reports[lang] = result.Reports

		logger.Info("language track mixed",
			logging.String(logging.FieldLanguage, lang),
			logging.Int("clips", len(clips)),
			logging.Int("dropped", result.DroppedCount()),
			logging.Duration("duration", result.Duration),
			logging.Float64("peak_gain", result.PeakGain),
			logging.String("output", outPath),
		)
	}

	if err := job.SetOutputFiles(outputs); err != nil {
		return services.Wrap(services.ErrValidation, "mixing", "store outputs", "Failed to encode output file map", err)
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return services.Wrap(services.ErrValidation, "mixing", "store reports", "Failed to encode mix reports", err)
	}
	job.MixReportsJSON = string(data)

	m.updateProgress(ctx, job, "Mixdown completed", 100)
	logger.Info("mixdown completed", logging.Int("tracks", len(outputs)))
	return nil
}

// collectClips decodes the synthesized clips recorded for one language.
// Segments without a clip are skipped silently; their gaps were flagged by
// earlier stages. Unreadable clip files are flagged here and counted.
func (m *Mixer) collectClips(ctx context.Context, job *queue.Job, segments []queue.Segment, lang string) ([]mixer.Clip, int) {
	logger := logging.WithContext(ctx, m.logger)
	clips := make([]mixer.Clip, 0, len(segments))
	missing := 0
	for i := range segments {
		seg := segments[i]
		synth, ok := seg.Synthesis[lang]
		if !ok {
			continue
		}
		track, err := audio.DecodeWAV(synth.Path)
		if err != nil {
			missing++
			message := fmt.Sprintf("segment %d clip for %s unreadable: %v", seg.Index, lang, err)
			if err := m.store.RecordWarning(ctx, job.ID, queue.StageMixed, seg.Index, "missing_clip", message); err != nil {
				logger.Warn("failed to record missing clip warning", logging.Error(err))
			}
			continue
		}
		clips = append(clips, mixer.Clip{
			SegmentID: fmt.Sprintf("seg%04d", seg.Index),
			Index:     seg.Index,
			Start:     time.Duration(seg.Start * float64(time.Second)),
			End:       time.Duration(seg.End * float64(time.Second)),
			Track:     track,
		})
	}
	return clips, missing
}

// HealthCheck verifies the output directory is configured and writable.
func (m *Mixer) HealthCheck(ctx context.Context) stage.Health {
	const name = "mixdown"
	if m.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	dir := strings.TrimSpace(m.cfg.Paths.OutputDir)
	if dir == "" {
		return stage.Unhealthy(name, "output directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("output directory not writable: %v", err))
	}
	return stage.Healthy(name)
}

func (m *Mixer) updateProgress(ctx context.Context, job *queue.Job, message string, percent float64) {
	logger := logging.WithContext(ctx, m.logger)
	copy := *job
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := m.store.UpdateProgress(ctx, &copy); err != nil {
		logger.Warn("failed to persist mixdown progress", logging.Error(err))
		return
	}
	*job = copy
}
