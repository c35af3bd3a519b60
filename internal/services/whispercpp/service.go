package whispercpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"mockingbird/internal/config"
	langpkg "mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

// ProviderName is the identifier used in provider chain configuration.
const ProviderName = "whispercpp"

const defaultModel = "base"

// Config captures runtime settings for whisper.cpp invocations.
type Config struct {
	// Binary is the whisper-cli executable name or path.
	Binary string
	// ModelDir holds the ggml model files.
	ModelDir string
	// Threads caps CPU threads; zero leaves the binary default.
	Threads int
}

// FromConfig extracts whisper.cpp settings from the runtime config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Binary:   strings.TrimSpace(cfg.Engines.WhisperCppBinary),
		ModelDir: strings.TrimSpace(cfg.Engines.WhisperCppModelDir),
	}
}

// Service shells out to whisper-cli for local transcription. It is the
// offline fallback behind the hosted transcriber.
type Service struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a whisper.cpp service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, ProviderName),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Name implements the Transcriber interface.
func (s *Service) Name() string { return ProviderName }

// Health verifies the binary resolves and the model directory exists.
func (s *Service) Health(ctx context.Context) error {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return services.Unavailable(ProviderName, fmt.Errorf("binary %q not found: %w", s.cfg.Binary, err))
	}
	if s.cfg.ModelDir != "" {
		if info, err := os.Stat(s.cfg.ModelDir); err != nil || !info.IsDir() {
			return services.Unavailable(ProviderName, fmt.Errorf("model dir %q not usable", s.cfg.ModelDir))
		}
	}
	return nil
}

// Transcribe runs whisper-cli over the media file and maps its JSON output
// onto the capability result.
func (s *Service) Transcribe(ctx context.Context, req services.TranscribeRequest) (services.TranscribeResult, error) {
	var result services.TranscribeResult

	media := strings.TrimSpace(req.MediaPath)
	if media == "" {
		return result, services.InvalidInput(ProviderName, errors.New("media path required"))
	}
	if _, err := os.Stat(media); err != nil {
		return result, services.InvalidInput(ProviderName, fmt.Errorf("media not readable: %w", err))
	}

	modelPath, err := s.modelPath(req.ModelSize)
	if err != nil {
		return result, err
	}

	prefix := strings.TrimSuffix(media, filepath.Ext(media)) + ".whispercpp"
	args := s.buildArgs(media, prefix, modelPath, req)
	if err := s.run(ctx, s.cfg.Binary, args...); err != nil {
		return result, s.classifyRunError(err)
	}

	payload, err := loadPayload(prefix + ".json")
	if err != nil {
		return result, services.Unclassified(ProviderName, fmt.Errorf("read transcription output: %w", err))
	}

	result.Language = langpkg.Normalize(payload.Result.Language)
	if result.Language == "" {
		result.Language = langpkg.Normalize(req.Language)
	}
	for _, entry := range payload.Transcription {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, services.TranscriptSegment{
			Start: float64(entry.Offsets.From) / 1000,
			End:   float64(entry.Offsets.To) / 1000,
			Text:  text,
		})
	}
	return result, nil
}

// modelPath resolves the ggml model file for a tier and verifies it exists.
func (s *Service) modelPath(size string) (string, error) {
	size = strings.TrimSpace(size)
	if size == "" || size == "auto" {
		size = defaultModel
	}
	if !config.KnownModelSize(size) {
		return "", services.InvalidInput(ProviderName, fmt.Errorf("unknown model size %q", size))
	}
	path := filepath.Join(s.cfg.ModelDir, "ggml-"+size+".bin")
	if _, err := os.Stat(path); err != nil {
		return "", services.Unavailable(ProviderName, fmt.Errorf("model %s not provisioned: %w", path, err))
	}
	return path, nil
}

// buildArgs constructs the whisper-cli invocation.
func (s *Service) buildArgs(media, prefix, modelPath string, req services.TranscribeRequest) []string {
	args := []string{
		"-m", modelPath,
		"-f", media,
		"--output-json",
		"--output-file", prefix,
		"--no-prints",
	}
	if lang := langpkg.Normalize(req.Language); lang != "" {
		args = append(args, "--language", lang)
	} else {
		args = append(args, "--language", "auto")
	}
	if s.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(s.cfg.Threads))
	}
	if req.Device == "cpu" {
		args = append(args, "--no-gpu")
	}
	return args
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
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

// payload is the whisper.cpp JSON output structure; offsets are in
// milliseconds.
type payload struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func loadPayload(jsonPath string) (payload, error) {
	var p payload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse whisper.cpp json: %w", err)
	}
	return p, nil
}
