package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and control API configuration. An empty api_token
// leaves the control API open, which is fine for the default localhost bind.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// OpenAI contains connection settings for the hosted transcription,
// translation, and speech providers.
type OpenAI struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	WhisperModel   string `toml:"whisper_model"`
	ChatModel      string `toml:"chat_model"`
	SpeechModel    string `toml:"speech_model"`
	SpeechVoice    string `toml:"speech_voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Engines contains configuration for the local fallback engines invoked as
// external commands.
type Engines struct {
	WhisperCppEnabled  bool   `toml:"whispercpp_enabled"`
	WhisperCppBinary   string `toml:"whispercpp_binary"`
	WhisperCppModelDir string `toml:"whispercpp_model_dir"`

	ArgosEnabled bool   `toml:"argos_enabled"`
	ArgosBinary  string `toml:"argos_binary"`

	PiperEnabled  bool              `toml:"piper_enabled"`
	PiperBinary   string            `toml:"piper_binary"`
	PiperVoiceDir string            `toml:"piper_voice_dir"`
	PiperVoices   map[string]string `toml:"piper_voices"`
}

// Dubbing contains the per-job processing defaults. A job snapshots these at
// creation time; changing them afterwards affects only new jobs.
type Dubbing struct {
	ModelSize               string   `toml:"model_size"`
	Device                  string   `toml:"device"`
	TargetSampleRate        int      `toml:"target_sample_rate"`
	TargetChannels          int      `toml:"target_channels"`
	DuckingGainDB           float64  `toml:"ducking_gain_db"`
	DuckRampMs              int      `toml:"duck_ramp_ms"`
	CrossfadeMs             int      `toml:"crossfade_ms"`
	StretchCeiling          float64  `toml:"stretch_ceiling"`
	MaxRetries              int      `toml:"max_retries"`
	Workers                 int      `toml:"workers"`
	FailureTolerancePercent int      `toml:"segment_failure_tolerance_percent"`
	AbortOnSyncError        bool     `toml:"abort_on_sync_error"`
	TranscribeChain         []string `toml:"transcribe_chain"`
	TranslateChain          []string `toml:"translate_chain"`
	SynthesizeChain         []string `toml:"synthesize_chain"`
}

// Resources contains hardware detection overrides for containers and tests.
type Resources struct {
	GPUOverride       string `toml:"gpu_override"`
	MemoryOverrideGiB int    `toml:"memory_override_gib"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Notifications contains push notification settings. An empty topic URL
// disables notifications entirely.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Mockingbird.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - OpenAI: hosted transcription/translation/speech connection settings
//   - Engines: local fallback engines (whisper.cpp, argos, piper)
//   - Dubbing: per-job processing defaults snapshotted at job creation
//   - Resources: hardware detection overrides
//   - Workflow: daemon polling intervals and timeouts
//   - Notifications: ntfy push notifications for terminal job states
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	OpenAI        OpenAI        `toml:"openai"`
	Engines       Engines       `toml:"engines"`
	Dubbing       Dubbing       `toml:"dubbing"`
	Resources     Resources     `toml:"resources"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mockingbird/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Defaults fill in both
// missing files and missing keys, so a partial config is always usable.
func Load(path string) (*Config, string, bool, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// resolveConfigPath picks the config location: an explicit path wins, then
// $MOCKINGBIRD_CONFIG, then the default path, then mockingbird.toml in the
// working directory. The boolean reports whether the file exists.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := configFileExists(expanded)
		if err != nil {
			return "", false, err
		}
		return expanded, exists, nil
	}

	if env := strings.TrimSpace(os.Getenv("MOCKINGBIRD_CONFIG")); env != "" {
		return resolveConfigPath(env)
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("mockingbird.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func configFileExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat config: %w", err)
	}
	return true, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite queue database location under the staging dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StagingDir, "mockingbird.db")
}

// LockPath returns the daemon singleton lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StagingDir, "mockingbirdd.lock")
}

// PIDPath returns the daemon process id file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StagingDir, "mockingbirdd.pid")
}

// ScratchRoot returns the directory holding per-job scratch audio.
func (c *Config) ScratchRoot() string {
	return filepath.Join(c.Paths.StagingDir, "scratch")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	expanded, err := expandHome(pathValue)
	if err != nil {
		return "", err
	}
	cleaned := filepath.Clean(expanded)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

func expandHome(pathValue string) (string, error) {
	if !strings.HasPrefix(pathValue, "~") {
		return pathValue, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if pathValue == "~" {
		return home, nil
	}
	if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
		return filepath.Join(home, pathValue[2:]), nil
	}
	return pathValue, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
