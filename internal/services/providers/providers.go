package providers

import (
	"log/slog"
	"slices"
	"strings"

	"mockingbird/internal/config"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/services/adapter"
	"mockingbird/internal/services/argos"
	"mockingbird/internal/services/openai"
	"mockingbird/internal/services/piper"
	"mockingbird/internal/services/whispercpp"
)

// Registry holds the provider instances constructed once per process and
// assembles fallback chains from them on demand. Chains are built per job
// from the job's config snapshot, so the provider order a job was created
// with survives later runtime config edits.
type Registry struct {
	transcribers map[string]services.Transcriber
	translators  map[string]services.Translator
	synthesizers map[string]services.Synthesizer
	base         *slog.Logger
	logger       *slog.Logger
}

// NewRegistry constructs every provider the runtime config enables: the
// hosted client when an API key is present, each local engine when its
// enable flag is set.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	r := newEmpty(logger)
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		hosted := openai.New(openai.FromConfig(cfg), r.base)
		r.transcribers[openai.ProviderName] = hosted
		r.translators[openai.ProviderName] = hosted
		r.synthesizers[openai.ProviderName] = hosted
	}
	if cfg.Engines.WhisperCppEnabled {
		r.transcribers[whispercpp.ProviderName] = whispercpp.NewService(whispercpp.FromConfig(cfg), r.base)
	}
	if cfg.Engines.ArgosEnabled {
		r.translators[argos.ProviderName] = argos.NewService(argos.FromConfig(cfg), r.base)
	}
	if cfg.Engines.PiperEnabled {
		r.synthesizers[piper.ProviderName] = piper.NewService(piper.FromConfig(cfg), r.base)
	}
	return r
}

// NewRegistryWithProviders builds a registry from explicit capability maps
// (used in tests).
func NewRegistryWithProviders(
	logger *slog.Logger,
	transcribers map[string]services.Transcriber,
	translators map[string]services.Translator,
	synthesizers map[string]services.Synthesizer,
) *Registry {
	r := newEmpty(logger)
	for name, p := range transcribers {
		r.transcribers[key(name)] = p
	}
	for name, p := range translators {
		r.translators[key(name)] = p
	}
	for name, p := range synthesizers {
		r.synthesizers[key(name)] = p
	}
	return r
}

func newEmpty(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		transcribers: make(map[string]services.Transcriber),
		translators:  make(map[string]services.Translator),
		synthesizers: make(map[string]services.Synthesizer),
		base:         logger,
		logger:       logging.NewComponentLogger(logger, "providers"),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TranscriberChain assembles the fallback chain the snapshot names, in
// snapshot order. Names without a constructed provider (engine disabled,
// API key absent) are skipped; a chain left empty reports itself as a
// configuration error on first use.
func (r *Registry) TranscriberChain(pc queue.ProcessingConfig) *adapter.TranscriberChain {
	list := make([]services.Transcriber, 0, len(pc.TranscribeChain))
	for _, name := range pc.TranscribeChain {
		p, ok := r.transcribers[key(name)]
		if !ok {
			r.logger.Debug("transcriber not available", logging.String(logging.FieldProvider, name))
			continue
		}
		list = append(list, p)
	}
	return adapter.NewTranscriberChain(adapter.DefaultPolicy(pc.MaxRetries), r.base, list...)
}

// TranslatorChain assembles the translation fallback chain the snapshot
// names, in snapshot order.
func (r *Registry) TranslatorChain(pc queue.ProcessingConfig) *adapter.TranslatorChain {
	list := make([]services.Translator, 0, len(pc.TranslateChain))
	for _, name := range pc.TranslateChain {
		p, ok := r.translators[key(name)]
		if !ok {
			r.logger.Debug("translator not available", logging.String(logging.FieldProvider, name))
			continue
		}
		list = append(list, p)
	}
	return adapter.NewTranslatorChain(adapter.DefaultPolicy(pc.MaxRetries), r.base, list...)
}

// SynthesizerChain assembles the speech synthesis fallback chain the
// snapshot names, in snapshot order.
func (r *Registry) SynthesizerChain(pc queue.ProcessingConfig) *adapter.SynthesizerChain {
	list := make([]services.Synthesizer, 0, len(pc.SynthesizeChain))
	for _, name := range pc.SynthesizeChain {
		p, ok := r.synthesizers[key(name)]
		if !ok {
			r.logger.Debug("synthesizer not available", logging.String(logging.FieldProvider, name))
			continue
		}
		list = append(list, p)
	}
	return adapter.NewSynthesizerChain(adapter.DefaultPolicy(pc.MaxRetries), r.base, list...)
}

// Summary lists the constructed providers per capability for startup logging
// and the status surfaces.
type Summary struct {
	Transcribers []string `json:"transcribers"`
	Translators  []string `json:"translators"`
	Synthesizers []string `json:"synthesizers"`
}

// Summary reports which providers this process constructed.
func (r *Registry) Summary() Summary {
	return Summary{
		Transcribers: sortedKeys(r.transcribers),
		Translators:  sortedKeys(r.translators),
		Synthesizers: sortedKeys(r.synthesizers),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
