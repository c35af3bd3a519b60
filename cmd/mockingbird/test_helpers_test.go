package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mockingbird/internal/config"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/resource"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/testsupport"
	"mockingbird/internal/workflow"
)

// unreachableAddr is a port nothing listens on; dialing it fails fast with
// a connection refused, which drives commands down their offline path.
const unreachableAddr = "127.0.0.1:1"

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	server     *httpapi.Server
	addr       string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "mockingbird", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	manager := workflow.NewManager(cfg, store, logger)
	guard := resource.NewGuard(resource.Hardware{
		TotalMemory: 16 << 30,
		FreeMemory:  8 << 30,
		CPUCount:    4,
	}, logger)
	registry := providers.NewRegistry(cfg, logger)

	api := httpapi.NewAPI(cfg, store, manager, guard, registry, logger)
	server := httpapi.NewServer("127.0.0.1:0", api, logger)
	if err := server.Start(); err != nil {
		t.Fatalf("start control api: %v", err)
	}

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		server:     server,
		addr:       server.Addr(),
		configPath: configPath,
		baseDir:    testsupport.BaseDir(cfg),
	}

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	return env
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if apiAddr != "" {
		flags = append(flags, "--api", apiAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstaging_dir = %q\noutput_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[openai]\napi_key = %q\n",
		cfg.Paths.StagingDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.OpenAI.APIKey,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// seedJob creates a WAV source on disk and queues a job for it.
func seedJob(t *testing.T, env *cliTestEnv, title string, languages ...string) *queue.Job {
	t.Helper()
	source := filepath.Join(env.baseDir, strings.ReplaceAll(title, " ", "_")+".wav")
	testsupport.WriteWAV(t, source, 1.0, 16000, 1)
	job, err := env.store.NewJob(context.Background(), source, title, languages, queue.NewProcessingConfig(env.cfg))
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func failJob(t *testing.T, env *cliTestEnv, job *queue.Job, reason string) {
	t.Helper()
	job.SetFailed(reason)
	if err := env.store.Update(context.Background(), job); err != nil {
		t.Fatalf("fail job: %v", err)
	}
}

func jobStatus(t *testing.T, env *cliTestEnv, id string) queue.Status {
	t.Helper()
	job, err := env.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s not found", id)
	}
	return job.Status
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q to not contain %q", output, substr)
	}
}
