package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeOpenAI(); err != nil {
		return err
	}
	if err := c.normalizeEngines(); err != nil {
		return err
	}
	c.normalizeDubbing()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeOpenAI() error {
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	if c.OpenAI.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.OpenAI.APIKey = strings.TrimSpace(value)
		}
	}
	c.OpenAI.BaseURL = strings.TrimSpace(c.OpenAI.BaseURL)
	c.OpenAI.WhisperModel = strings.TrimSpace(c.OpenAI.WhisperModel)
	if c.OpenAI.WhisperModel == "" {
		c.OpenAI.WhisperModel = defaultWhisperModel
	}
	c.OpenAI.ChatModel = strings.TrimSpace(c.OpenAI.ChatModel)
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = defaultChatModel
	}
	c.OpenAI.SpeechModel = strings.TrimSpace(c.OpenAI.SpeechModel)
	if c.OpenAI.SpeechModel == "" {
		c.OpenAI.SpeechModel = defaultSpeechModel
	}
	c.OpenAI.SpeechVoice = strings.TrimSpace(c.OpenAI.SpeechVoice)
	if c.OpenAI.SpeechVoice == "" {
		c.OpenAI.SpeechVoice = defaultSpeechVoice
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultOpenAITimeout
	}
	return nil
}

func (c *Config) normalizeEngines() error {
	var err error
	c.Engines.WhisperCppBinary = strings.TrimSpace(c.Engines.WhisperCppBinary)
	if c.Engines.WhisperCppBinary == "" {
		c.Engines.WhisperCppBinary = defaultWhisperCppBin
	}
	if strings.TrimSpace(c.Engines.WhisperCppModelDir) == "" {
		c.Engines.WhisperCppModelDir = defaultWhisperModels
	}
	if c.Engines.WhisperCppModelDir, err = expandPath(c.Engines.WhisperCppModelDir); err != nil {
		return fmt.Errorf("engines.whispercpp_model_dir: %w", err)
	}
	c.Engines.ArgosBinary = strings.TrimSpace(c.Engines.ArgosBinary)
	if c.Engines.ArgosBinary == "" {
		c.Engines.ArgosBinary = defaultArgosBinary
	}
	c.Engines.PiperBinary = strings.TrimSpace(c.Engines.PiperBinary)
	if c.Engines.PiperBinary == "" {
		c.Engines.PiperBinary = defaultPiperBinary
	}
	if strings.TrimSpace(c.Engines.PiperVoiceDir) == "" {
		c.Engines.PiperVoiceDir = defaultPiperVoiceDir
	}
	if c.Engines.PiperVoiceDir, err = expandPath(c.Engines.PiperVoiceDir); err != nil {
		return fmt.Errorf("engines.piper_voice_dir: %w", err)
	}
	if len(c.Engines.PiperVoices) > 0 {
		voices := make(map[string]string, len(c.Engines.PiperVoices))
		for lang, voice := range c.Engines.PiperVoices {
			lang = strings.ToLower(strings.TrimSpace(lang))
			voice = strings.TrimSpace(voice)
			if lang == "" || voice == "" {
				continue
			}
			voices[lang] = voice
		}
		c.Engines.PiperVoices = voices
	}
	return nil
}

func (c *Config) normalizeDubbing() {
	c.Dubbing.ModelSize = strings.ToLower(strings.TrimSpace(c.Dubbing.ModelSize))
	if c.Dubbing.ModelSize == "" {
		c.Dubbing.ModelSize = defaultModelSize
	}
	c.Dubbing.Device = strings.ToLower(strings.TrimSpace(c.Dubbing.Device))
	if c.Dubbing.Device == "" {
		c.Dubbing.Device = defaultDevice
	}
	if c.Dubbing.TargetSampleRate <= 0 {
		c.Dubbing.TargetSampleRate = defaultSampleRate
	}
	if c.Dubbing.TargetChannels <= 0 {
		c.Dubbing.TargetChannels = defaultChannels
	}
	if c.Dubbing.TargetChannels > 8 {
		c.Dubbing.TargetChannels = 8
	}
	if c.Dubbing.DuckingGainDB > 0 {
		c.Dubbing.DuckingGainDB = 0
	}
	if c.Dubbing.DuckingGainDB < -30 {
		c.Dubbing.DuckingGainDB = -30
	}
	if c.Dubbing.DuckRampMs <= 0 {
		c.Dubbing.DuckRampMs = defaultDuckRampMs
	}
	if c.Dubbing.CrossfadeMs < 0 {
		c.Dubbing.CrossfadeMs = defaultCrossfadeMs
	}
	if c.Dubbing.StretchCeiling < 1.0 {
		c.Dubbing.StretchCeiling = defaultStretchCeiling
	}
	if c.Dubbing.StretchCeiling > 1.5 {
		c.Dubbing.StretchCeiling = 1.5
	}
	if c.Dubbing.MaxRetries < 0 {
		c.Dubbing.MaxRetries = defaultMaxRetries
	}
	if c.Dubbing.MaxRetries > 10 {
		c.Dubbing.MaxRetries = 10
	}
	if c.Dubbing.Workers <= 0 {
		c.Dubbing.Workers = defaultWorkers
	}
	if c.Dubbing.Workers > 16 {
		c.Dubbing.Workers = 16
	}
	if c.Dubbing.FailureTolerancePercent < 0 {
		c.Dubbing.FailureTolerancePercent = 0
	}
	if c.Dubbing.FailureTolerancePercent > 100 {
		c.Dubbing.FailureTolerancePercent = 100
	}
	c.Dubbing.TranscribeChain = normalizeChain(c.Dubbing.TranscribeChain, []string{"openai", "whispercpp"})
	c.Dubbing.TranslateChain = normalizeChain(c.Dubbing.TranslateChain, []string{"openai", "argos"})
	c.Dubbing.SynthesizeChain = normalizeChain(c.Dubbing.SynthesizeChain, []string{"openai", "piper"})
	c.Resources.GPUOverride = strings.ToLower(strings.TrimSpace(c.Resources.GPUOverride))
	if c.Resources.MemoryOverrideGiB < 0 {
		c.Resources.MemoryOverrideGiB = 0
	}
}

func normalizeChain(chain []string, fallback []string) []string {
	out := make([]string, 0, len(chain))
	seen := make(map[string]struct{}, len(chain))
	for _, name := range chain {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "auto"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
