package config

import (
	"errors"
	"fmt"
	"strings"
)

// ModelSizes lists the accepted transcription model tiers, smallest first.
var ModelSizes = []string{"tiny", "base", "small", "medium", "large", "large-v2", "large-v3"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDubbing(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"openai.timeout_seconds":        c.OpenAI.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateDubbing() error {
	if c.Dubbing.ModelSize != "auto" && !KnownModelSize(c.Dubbing.ModelSize) {
		return fmt.Errorf("dubbing.model_size must be auto or one of %s", strings.Join(ModelSizes, ", "))
	}
	switch c.Dubbing.Device {
	case "auto", "cpu", "cuda":
	default:
		return errors.New("dubbing.device must be auto, cpu, or cuda")
	}
	if c.Dubbing.TargetSampleRate < 8000 || c.Dubbing.TargetSampleRate > 192000 {
		return errors.New("dubbing.target_sample_rate must be between 8000 and 192000")
	}
	return nil
}

func (c *Config) validateProviders() error {
	known := map[string][]string{
		"dubbing.transcribe_chain": {"openai", "whispercpp"},
		"dubbing.translate_chain":  {"openai", "argos"},
		"dubbing.synthesize_chain": {"openai", "piper"},
	}
	chains := map[string][]string{
		"dubbing.transcribe_chain": c.Dubbing.TranscribeChain,
		"dubbing.translate_chain":  c.Dubbing.TranslateChain,
		"dubbing.synthesize_chain": c.Dubbing.SynthesizeChain,
	}
	usesOpenAI := false
	for key, chain := range chains {
		if len(chain) == 0 {
			return fmt.Errorf("%s must list at least one provider", key)
		}
		for _, name := range chain {
			if name == "openai" {
				usesOpenAI = true
			}
			if !contains(known[key], name) {
				return fmt.Errorf("%s: unknown provider %q (known: %s)", key, name, strings.Join(known[key], ", "))
			}
		}
	}
	if usesOpenAI && c.OpenAI.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/mockingbird/config.toml"
		}
		return fmt.Errorf("openai.api_key is required while a provider chain includes openai. Set OPENAI_API_KEY env var or edit %s (create with 'mockingbird config init')", defaultPath)
	}
	return nil
}

// KnownModelSize reports whether size names a supported model tier.
func KnownModelSize(size string) bool {
	return contains(ModelSizes, size)
}

// ModelTierIndex returns the ordering index of a model size, with larger
// indexes meaning heavier models. Unknown sizes return -1.
func ModelTierIndex(size string) int {
	for i, s := range ModelSizes {
		if s == size {
			return i
		}
	}
	return -1
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
