package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mockingbird/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*testEnv)

type testEnv struct {
	t    testing.TB
	base string
	cfg  *config.Config
}

func (e *testEnv) path(parts ...string) string {
	return filepath.Join(append([]string{e.base}, parts...)...)
}

func (e *testEnv) mkdir(parts ...string) string {
	dir := e.path(parts...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.t.Fatalf("mkdir %s: %v", dir, err)
	}
	return dir
}

// NewConfig produces a config rooted in a fresh temp directory per test. The
// engine model directories are created up front so availability checks that
// stat them see a usable layout.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	env := &testEnv{t: t, base: t.TempDir()}
	cfg := config.Default()
	env.cfg = &cfg

	cfg.Paths.StagingDir = env.path("staging")
	cfg.Paths.OutputDir = env.path("output")
	cfg.Paths.LogDir = env.path("logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.OpenAI.APIKey = "test"
	cfg.Engines.WhisperCppModelDir = env.mkdir("models", "whisper")
	cfg.Engines.PiperVoiceDir = env.mkdir("models", "piper")

	for _, opt := range opts {
		opt(env)
	}
	return env.cfg
}

// WithOpenAIKey sets the OpenAI API key on the test config.
func WithOpenAIKey(key string) ConfigOption {
	return func(e *testEnv) {
		e.cfg.OpenAI.APIKey = key
	}
}

// WithWorkers overrides the per-stage worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(e *testEnv) {
		e.cfg.Dubbing.Workers = workers
	}
}

// WithChains overrides the provider fallback chains on the test config.
func WithChains(transcribe, translate, synthesize []string) ConfigOption {
	return func(e *testEnv) {
		if transcribe != nil {
			e.cfg.Dubbing.TranscribeChain = transcribe
		}
		if translate != nil {
			e.cfg.Dubbing.TranslateChain = translate
		}
		if synthesize != nil {
			e.cfg.Dubbing.SynthesizeChain = synthesize
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default local engine
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(e *testEnv) {
		if len(names) == 0 {
			names = []string{"whisper-cli", "argos-translate", "piper"}
		}
		binDir := e.mkdir("bin")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				e.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		e.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
