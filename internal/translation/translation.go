package translation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"log/slog"

	"mockingbird/internal/config"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/services/adapter"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/stage"
)

// Translator renders each spoken segment into every target language. Units of
// work are independent (segment, language) pairs, so they fan out across the
// configured worker count. A unit that exhausts its provider chain leaves a
// gap that keeps the original audio; the job only fails when gaps exceed the
// configured tolerance.
type Translator struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	providers *providers.Registry
}

// NewTranslator constructs the translation stage handler with its own
// provider registry.
func NewTranslator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Translator {
	return NewTranslatorWithDependencies(cfg, store, logger, providers.NewRegistry(cfg, logger))
}

// NewTranslatorWithDependencies allows injecting the provider registry
// (shared by the daemon, faked in tests).
func NewTranslatorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, registry *providers.Registry) *Translator {
	return &Translator{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "translation"),
		providers: registry,
	}
}

func (t *Translator) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)
	job.InitProgress("Translating", "Preparing translation")
	logger.Info("starting translation",
		logging.Any("languages", job.TargetLanguages),
		logging.String(logging.FieldLanguage, job.DetectedLanguage),
	)
	return nil
}

// unit is one (segment, language) translation call.
type unit struct {
	segment int
	lang    string
}

type outcome struct {
	text     string
	attempts []adapter.Attempt
	err      error
}

func (t *Translator) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	pc, err := stage.Snapshot(job)
	if err != nil {
		return err
	}
	segments, err := stage.Segments(job)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return services.Wrap(
			services.ErrValidation, "translating", "load segments",
			"No segments to translate; rerun transcription", nil)
	}

	detected := job.DetectedLanguage
	var units []unit
	for i := range segments {
		if segments[i].SourceText == "" {
			continue
		}
		for _, lang := range job.TargetLanguages {
			if lang == detected {
				if segments[i].Translations == nil {
					segments[i].Translations = make(map[string]string)
				}
				segments[i].Translations[lang] = segments[i].SourceText
				continue
			}
			units = append(units, unit{segment: i, lang: lang})
		}
	}

	t.updateProgress(ctx, job, fmt.Sprintf("Translating %d segments into %d languages", len(segments), len(job.TargetLanguages)), 20)

	chain := t.providers.TranslatorChain(pc)
	outcomes := make([]outcome, len(units))
	errs := stage.RunPool(ctx, pc.Workers, len(units), func(ctx context.Context, i int) error {
		u := units[i]
		text, attempts, err := chain.Translate(ctx, services.TranslateRequest{
			Text:           segments[u.segment].SourceText,
			SourceLanguage: detected,
			TargetLanguage: u.lang,
		})
		outcomes[i] = outcome{text: text, attempts: attempts, err: err}
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

	t.updateProgress(ctx, job, "Recording translation results", 90)

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
			if err := t.store.RecordWarning(ctx, job.ID, queue.StageTranslated, seg.Index, "translation_gap", message); err != nil {
				logger.Warn("failed to record translation gap", logging.Error(err))
			}
			continue
		}
		if seg.Translations == nil {
			seg.Translations = make(map[string]string)
		}
		seg.Translations[u.lang] = strings.TrimSpace(out.text)
	}
	t.recordFailovers(ctx, job, failovers)

	if failures > 0 && len(units) > 0 {
		percent := float64(failures) * 100 / float64(len(units))
		if percent > float64(pc.FailureTolerancePercent) {
			message := fmt.Sprintf(
				"%d of %d translation units failed (%.0f%% exceeds %d%% tolerance)",
				failures, len(units), percent, pc.FailureTolerancePercent)
			return services.Wrap(services.ErrService, "translating", "translate segments", message, firstErr)
		}
	}

	if err := job.SetSegments(segments); err != nil {
		return services.Wrap(services.ErrValidation, "translating", "store segments", "Failed to encode segments", err)
	}

	t.updateProgress(ctx, job, "Translation completed", 100)
	logger.Info("translation completed",
		logging.Int("units", len(units)),
		logging.Int("gaps", failures),
	)
	return nil
}

// recordFailovers collapses absorbed provider failures into one warning per
// provider so large jobs do not flood the history.
func (t *Translator) recordFailovers(ctx context.Context, job *queue.Job, failovers map[string]int) {
	if len(failovers) == 0 {
		return
	}
	logger := logging.WithContext(ctx, t.logger)
	names := make([]string, 0, len(failovers))
	for name := range failovers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		message := fmt.Sprintf("%s failed %d translate calls", name, failovers[name])
		if err := t.store.RecordWarning(ctx, job.ID, queue.StageTranslated, -1, "provider_failover", message); err != nil {
			logger.Warn("failed to record failover warning", logging.Error(err))
		}
	}
}

// HealthCheck reports whether any translation provider is reachable under the
// current runtime config.
func (t *Translator) HealthCheck(ctx context.Context) stage.Health {
	const name = "translation"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if err := t.providers.TranslatorChain(queue.NewProcessingConfig(t.cfg)).Health(ctx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

func (t *Translator) updateProgress(ctx context.Context, job *queue.Job, message string, percent float64) {
	logger := logging.WithContext(ctx, t.logger)
	copy := *job
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := t.store.UpdateProgress(ctx, &copy); err != nil {
		logger.Warn("failed to persist translation progress", logging.Error(err))
		return
	}
	*job = copy
}
