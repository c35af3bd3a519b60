package argos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"mockingbird/internal/config"
	langpkg "mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

// ProviderName is the identifier used in provider chain configuration.
const ProviderName = "argos"

// Config captures runtime settings for argos-translate invocations.
type Config struct {
	// Binary is the argos-translate executable name or path.
	Binary string
}

// FromConfig extracts Argos settings from the runtime config.
func FromConfig(cfg *config.Config) Config {
	return Config{Binary: strings.TrimSpace(cfg.Engines.ArgosBinary)}
}

// Service translates text offline through the argos-translate CLI.
type Service struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) (string, error)
}

// NewService creates an Argos service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "argos-translate"
	}
	return &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "argos"),
	}
}

// WithCommandRunner sets a custom command runner (for testing). The runner
// returns the process stdout, which carries the translation.
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	s.commandRunner = runner
}

// Name implements the Translator interface.
func (s *Service) Name() string { return ProviderName }

// Health verifies the binary resolves on PATH.
func (s *Service) Health(ctx context.Context) error {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return services.Unavailable(ProviderName, fmt.Errorf("binary %q not found: %w", s.cfg.Binary, err))
	}
	return nil
}

// Translate shells out to argos-translate and returns its stdout. Argos needs
// ISO 639-1 codes for both ends of the pair; requests it cannot express are
// rejected as invalid input so the chain does not retry them here.
func (s *Service) Translate(ctx context.Context, req services.TranslateRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", services.InvalidInput(ProviderName, errors.New("text is empty"))
	}
	source := langpkg.Normalize(req.SourceLanguage)
	if source == "" {
		return "", services.InvalidInput(ProviderName, fmt.Errorf("source language %q not recognized", req.SourceLanguage))
	}
	target := langpkg.Normalize(req.TargetLanguage)
	if target == "" {
		return "", services.InvalidInput(ProviderName, fmt.Errorf("target language %q not recognized", req.TargetLanguage))
	}
	if source == target {
		// Identity pairs have no installed package; the text already is
		// the translation.
		return text, nil
	}

	out, err := s.run(ctx, s.cfg.Binary, "--from-lang", source, "--to-lang", target, text)
	if err != nil {
		return "", s.classifyRunError(err)
	}
	translated := strings.TrimSpace(out)
	if translated == "" {
		return "", services.Unclassified(ProviderName, fmt.Errorf("empty translation for %s->%s", source, target))
	}

	s.logger.Debug("segment translated",
		logging.String("source", source),
		logging.String("target", target),
		logging.Int("chars", len(translated)))
	return translated, nil
}

// run executes a command, using the custom runner if set. Stdout carries the
// translation, so it stays separate from stderr diagnostics.
func (s *Service) run(ctx context.Context, name string, args ...string) (string, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
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
