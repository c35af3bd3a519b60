package synthesis

import (
	"context"
	"fmt"
	"sort"

	"log/slog"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/services/adapter"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/stage"
)

// Synthesizer voices the translated text. Each (segment, language) pair is an
// independent unit; rendered clips land in the job's scratch directory and
// their paths are recorded on the segment for the mixdown stage. Units that
// exhaust the provider chain leave the original audio in place, bounded by
// the job's failure tolerance.
type Synthesizer struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	providers *providers.Registry
}

// NewSynthesizer constructs the synthesis stage handler with its own provider
// registry.
func NewSynthesizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Synthesizer {
	return NewSynthesizerWithDependencies(cfg, store, logger, providers.NewRegistry(cfg, logger))
}

// NewSynthesizerWithDependencies allows injecting the provider registry
// (shared by the daemon, faked in tests).
func NewSynthesizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, registry *providers.Registry) *Synthesizer {
	return &Synthesizer{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "synthesis"),
		providers: registry,
	}
}

func (s *Synthesizer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	job.InitProgress("Synthesizing", "Preparing synthesis")
	logger.Info("starting synthesis", logging.Any("languages", job.TargetLanguages))
	return nil
}

type unit struct {
	segment int
	lang    string
}

type outcome struct {
	path     string
	track    *audio.Track
	attempts []adapter.Attempt
	err      error
}

func (s *Synthesizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)

	pc, err := stage.Snapshot(job)
	if err != nil {
		return err
	}
	segments, err := stage.Segments(job)
	if err != nil {
		return err
	}

	var units []unit
	for i := range segments {
		for _, lang := range job.TargetLanguages {
			if segments[i].Translations[lang] == "" {
				continue
			}
			units = append(units, unit{segment: i, lang: lang})
		}
	}
	if len(units) == 0 {
		return services.Wrap(
			services.ErrValidation, "synthesizing", "load units",
			"No translated text to synthesize; rerun translation", nil)
	}

	scratch, err := audio.OpenScratch(s.cfg.ScratchRoot(), job.ID)
	if err != nil {
		return services.Wrap(services.ErrResource, "synthesizing", "open scratch", "Cannot create scratch directory", err)
	}

	s.updateProgress(ctx, job, fmt.Sprintf("Synthesizing %d clips", len(units)), 20)

	chain := s.providers.SynthesizerChain(pc)
	outcomes := make([]outcome, len(units))
	errs := stage.RunPool(ctx, pc.Workers, len(units), func(ctx context.Context, i int) error {
		u := units[i]
		seg := segments[u.segment]
		track, attempts, err := chain.Synthesize(ctx, services.SynthesizeRequest{
			Text:       seg.Translations[u.lang],
			Language:   u.lang,
			SampleRate: pc.TargetSampleRate,
		})
		if err != nil {
			outcomes[i] = outcome{attempts: attempts, err: err}
			return err
		}
		label := fmt.Sprintf("seg%04d-%s", seg.Index, u.lang)
		path, err := scratch.WriteTrack(label, track)
		if err != nil {
			err = services.Wrap(services.ErrResource, "synthesizing", "write clip", "Cannot write synthesized clip", err)
		}
		outcomes[i] = outcome{path: path, track: track, attempts: attempts, err: err}
		return err
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, err := range errs {
		if err != nil && outcomes[i].err == nil {
			outcomes[i].err = err
		}
	}

	s.updateProgress(ctx, job, "Recording synthesized clips", 90)

	failures := 0
	var firstErr error
	failovers := make(map[string]int)
	for i, u := range units {
		out := outcomes[i]
		for _, a := range adapter.Failures(out.attempts) {
			failovers[a.Provider]++
		}
		seg := &segments[u.segment]
		if out.err != nil {
			failures++
			if firstErr == nil {
				firstErr = out.err
			}
			message := fmt.Sprintf("segment %d left undubbed for %s: %v", seg.Index, u.lang, out.err)
			if err := s.store.RecordWarning(ctx, job.ID, queue.StageSynthesized, seg.Index, "synthesis_gap", message); err != nil {
				logger.Warn("failed to record synthesis gap", logging.Error(err))
			}
			continue
		}
		if seg.Synthesis == nil {
			seg.Synthesis = make(map[string]queue.SynthesizedAudio)
		}
		seg.Synthesis[u.lang] = queue.SynthesizedAudio{
			Path:            out.path,
			SampleRate:      out.track.SampleRate,
			Channels:        out.track.Channels(),
			DurationSeconds: out.track.Duration().Seconds(),
			Provider:        adapter.Winner(out.attempts),
		}
	}
	s.recordFailovers(ctx, job, failovers)

	if failures > 0 {
		percent := float64(failures) * 100 / float64(len(units))
		if percent > float64(pc.FailureTolerancePercent) {
			message := fmt.Sprintf(
				"%d of %d synthesis units failed (%.0f%% exceeds %d%% tolerance)",
				failures, len(units), percent, pc.FailureTolerancePercent)
			return services.Wrap(services.ErrService, "synthesizing", "synthesize segments", message, firstErr)
		}
	}

	if err := job.SetSegments(segments); err != nil {
		return services.Wrap(services.ErrValidation, "synthesizing", "store segments", "Failed to encode segments", err)
	}

	s.updateProgress(ctx, job, "Synthesis completed", 100)
	logger.Info("synthesis completed",
		logging.Int("clips", len(units)-failures),
		logging.Int("gaps", failures),
	)
	return nil
}

func (s *Synthesizer) recordFailovers(ctx context.Context, job *queue.Job, failovers map[string]int) {
	if len(failovers) == 0 {
		return
	}
	logger := logging.WithContext(ctx, s.logger)
	names := make([]string, 0, len(failovers))
	for name := range failovers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		message := fmt.Sprintf("%s failed %d synthesize calls", name, failovers[name])
		if err := s.store.RecordWarning(ctx, job.ID, queue.StageSynthesized, -1, "provider_failover", message); err != nil {
			logger.Warn("failed to record failover warning", logging.Error(err))
		}
	}
}

// HealthCheck reports whether any synthesis provider is reachable under the
// current runtime config.
func (s *Synthesizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "synthesis"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if err := s.providers.SynthesizerChain(queue.NewProcessingConfig(s.cfg)).Health(ctx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

func (s *Synthesizer) updateProgress(ctx context.Context, job *queue.Job, message string, percent float64) {
	logger := logging.WithContext(ctx, s.logger)
	copy := *job
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := s.store.UpdateProgress(ctx, &copy); err != nil {
		logger.Warn("failed to persist synthesis progress", logging.Error(err))
		return
	}
	*job = copy
}
