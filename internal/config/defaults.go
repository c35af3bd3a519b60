package config

const (
	defaultStagingDir = "~/.local/share/mockingbird/staging"
	defaultOutputDir  = "~/.local/share/mockingbird/output"
	defaultLogDir     = "~/.local/share/mockingbird/logs"
	defaultAPIBind    = "127.0.0.1:7598"

	defaultOpenAIBaseURL  = ""
	defaultWhisperModel   = "whisper-1"
	defaultChatModel      = "gpt-4o-mini"
	defaultSpeechModel    = "tts-1"
	defaultSpeechVoice    = "alloy"
	defaultOpenAITimeout  = 120
	defaultWhisperCppBin  = "whisper-cli"
	defaultWhisperModels  = "~/.local/share/mockingbird/models/whisper"
	defaultArgosBinary    = "argos-translate"
	defaultPiperBinary    = "piper"
	defaultPiperVoiceDir  = "~/.local/share/mockingbird/models/piper"
	defaultModelSize      = "auto"
	defaultDevice         = "auto"
	defaultSampleRate     = 48000
	defaultChannels       = 2
	defaultDuckingGainDB  = -12.0
	defaultDuckRampMs     = 120
	defaultCrossfadeMs    = 20
	defaultStretchCeiling = 1.3
	defaultMaxRetries     = 3
	defaultWorkers        = 4
	defaultTolerancePct   = 20

	defaultLogFormat = "auto"
	defaultLogLevel  = "info"

	defaultWorkflowQueuePollInterval  = 5
	defaultWorkflowErrorRetryInterval = 10
	defaultWorkflowHeartbeatInterval  = 15
	defaultWorkflowHeartbeatTimeout   = 120

	defaultNtfyTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		OpenAI: OpenAI{
			BaseURL:        defaultOpenAIBaseURL,
			WhisperModel:   defaultWhisperModel,
			ChatModel:      defaultChatModel,
			SpeechModel:    defaultSpeechModel,
			SpeechVoice:    defaultSpeechVoice,
			TimeoutSeconds: defaultOpenAITimeout,
		},
		Engines: Engines{
			WhisperCppEnabled:  true,
			WhisperCppBinary:   defaultWhisperCppBin,
			WhisperCppModelDir: defaultWhisperModels,
			ArgosEnabled:       true,
			ArgosBinary:        defaultArgosBinary,
			PiperEnabled:       true,
			PiperBinary:        defaultPiperBinary,
			PiperVoiceDir:      defaultPiperVoiceDir,
		},
		Dubbing: Dubbing{
			ModelSize:               defaultModelSize,
			Device:                  defaultDevice,
			TargetSampleRate:        defaultSampleRate,
			TargetChannels:          defaultChannels,
			DuckingGainDB:           defaultDuckingGainDB,
			DuckRampMs:              defaultDuckRampMs,
			CrossfadeMs:             defaultCrossfadeMs,
			StretchCeiling:          defaultStretchCeiling,
			MaxRetries:              defaultMaxRetries,
			Workers:                 defaultWorkers,
			FailureTolerancePercent: defaultTolerancePct,
			TranscribeChain:         []string{"openai", "whispercpp"},
			TranslateChain:          []string{"openai", "argos"},
			SynthesizeChain:         []string{"openai", "piper"},
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultWorkflowQueuePollInterval,
			ErrorRetryInterval: defaultWorkflowErrorRetryInterval,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
