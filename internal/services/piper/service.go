package piper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	langpkg "mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

// ProviderName is the identifier used in provider chain configuration.
const ProviderName = "piper"

// Config captures runtime settings for piper invocations.
type Config struct {
	// Binary is the piper executable name or path.
	Binary string
	// VoiceDir holds the onnx voice models.
	VoiceDir string
	// Voices maps ISO 639-1 language codes to voice model names.
	Voices map[string]string
}

// FromConfig extracts piper settings from the runtime config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Binary:   strings.TrimSpace(cfg.Engines.PiperBinary),
		VoiceDir: cfg.Engines.PiperVoiceDir,
		Voices:   cfg.Engines.PiperVoices,
	}
}

// Service renders speech offline through the piper CLI. Piper reads text on
// stdin and writes a WAV at the voice model's native sample rate; rate and
// channel conforming happens downstream in the mixer.
type Service struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, stdin, name string, args ...string) error
}

// NewService creates a piper service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	return &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "piper"),
	}
}

// WithCommandRunner sets a custom command runner (for testing). stdin carries
// the text piper reads; the runner is responsible for writing the WAV named
// by --output_file.
func (s *Service) WithCommandRunner(runner func(ctx context.Context, stdin, name string, args ...string) error) {
	s.commandRunner = runner
}

// Name implements the Synthesizer interface.
func (s *Service) Name() string { return ProviderName }

// Health verifies the binary resolves and the voice directory exists.
func (s *Service) Health(ctx context.Context) error {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return services.Unavailable(ProviderName, fmt.Errorf("binary %q not found: %w", s.cfg.Binary, err))
	}
	info, err := os.Stat(s.cfg.VoiceDir)
	if err != nil || !info.IsDir() {
		return services.Unavailable(ProviderName, fmt.Errorf("voice directory %q not usable", s.cfg.VoiceDir))
	}
	return nil
}

// Synthesize runs piper for one segment and decodes the WAV it produced.
func (s *Service) Synthesize(ctx context.Context, req services.SynthesizeRequest) (*audio.Track, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, services.InvalidInput(ProviderName, errors.New("text is empty"))
	}
	voice, err := s.resolveVoice(req)
	if err != nil {
		return nil, err
	}
	modelPath, err := s.voicePath(voice)
	if err != nil {
		return nil, err
	}

	out, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, services.Unclassified(ProviderName, fmt.Errorf("create scratch wav: %w", err))
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{"--model", modelPath, "--output_file", outPath}
	if err := s.run(ctx, text, s.cfg.Binary, args...); err != nil {
		return nil, s.classifyRunError(err)
	}

	track, err := audio.DecodeWAV(outPath)
	if err != nil {
		return nil, services.Unclassified(ProviderName, fmt.Errorf("read synthesized audio: %w", err))
	}

	s.logger.Debug("segment synthesized",
		logging.String("voice", voice),
		logging.Int("sample_rate", track.SampleRate),
		logging.Duration("duration", track.Duration()))
	return track, nil
}

// resolveVoice picks the voice model: an explicit request wins, otherwise the
// per-language mapping from configuration.
func (s *Service) resolveVoice(req services.SynthesizeRequest) (string, error) {
	if voice := strings.TrimSpace(req.Voice); voice != "" {
		return voice, nil
	}
	lang := langpkg.Normalize(req.Language)
	if voice, ok := s.cfg.Voices[lang]; ok && strings.TrimSpace(voice) != "" {
		return strings.TrimSpace(voice), nil
	}
	return "", services.InvalidInput(ProviderName, fmt.Errorf("no voice configured for language %q", req.Language))
}

// voicePath resolves the onnx model file for a voice and verifies it exists.
func (s *Service) voicePath(voice string) (string, error) {
	name := voice
	if !strings.HasSuffix(name, ".onnx") {
		name += ".onnx"
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.VoiceDir, name)
	}
	if _, err := os.Stat(path); err != nil {
		return "", services.Unavailable(ProviderName, fmt.Errorf("voice %s not provisioned: %w", voice, err))
	}
	return path, nil
}

// run executes a command with the given stdin, using the custom runner if set.
func (s *Service) run(ctx context.Context, stdin, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, stdin, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = strings.NewReader(stdin)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (s *Service) classifyRunError(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return services.Unavailable(ProviderName, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Unavailable(ProviderName, err)
	default:
		return services.Unclassified(ProviderName, err)
	}
}
