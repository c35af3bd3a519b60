// Package daemonrun boots the daemon process. It owns the bootstrap order
// (config, logging, preflight, store, hardware guard, providers, workflow,
// control API) so the daemon binary and tests share one entry point.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"log/slog"

	"mockingbird/internal/config"
	"mockingbird/internal/daemon"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/logging"
	"mockingbird/internal/mixdown"
	"mockingbird/internal/preflight"
	"mockingbird/internal/queue"
	"mockingbird/internal/resource"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/synthesis"
	"mockingbird/internal/transcription"
	"mockingbird/internal/translation"
	"mockingbird/internal/validation"
	"mockingbird/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the mockingbird daemon runtime loop and blocks until the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	if strings.TrimSpace(opts.LogLevel) != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := runPreflight(signalCtx, cfg, logger); err != nil {
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	hardware := resource.NewProber(cfg, logger).Probe(signalCtx)
	guard := resource.NewGuard(hardware, logger)
	registry := providers.NewRegistry(cfg, logger)

	manager := workflow.NewManager(cfg, store, logger)
	configureStages(manager, cfg, store, logger, guard, registry)

	var server *httpapi.Server
	if strings.TrimSpace(cfg.Paths.APIBind) != "" {
		api := httpapi.NewAPI(cfg, store, manager, guard, registry, logger)
		server = httpapi.NewServer(cfg.Paths.APIBind, api, logger)
	}

	d, err := daemon.New(cfg, store, logger, manager, server)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	<-signalCtx.Done()
	logger.Info("daemon shutting down")
	return nil
}

// runPreflight logs every check result and refuses to boot when a directory
// is unusable. Provider checks only warn: the chains re-verify health per
// job and a temporarily unreachable API should not keep the queue down.
func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	var dirFailure *preflight.Result
	for i, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		)
		if strings.HasSuffix(r.Name, "directory") && dirFailure == nil {
			dirFailure = &results[i]
		}
	}
	for _, status := range preflight.CheckSystemDeps(ctx, cfg) {
		if status.Available {
			logger.Info("engine binary found",
				logging.String("engine", status.Name),
				logging.String("path", status.Path),
			)
			continue
		}
		logger.Warn("engine binary missing",
			logging.String("engine", status.Name),
			logging.String("detail", status.Detail),
		)
	}
	if dirFailure != nil {
		return fmt.Errorf("preflight: %s: %s", dirFailure.Name, dirFailure.Detail)
	}
	return nil
}

func configureStages(mgr *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger, guard *resource.Guard, registry *providers.Registry) {
	mgr.ConfigureStages(workflow.StageSet{
		Validator:   validation.NewValidatorWithDependencies(cfg, store, logger, guard, registry),
		Transcriber: transcription.NewTranscriberWithDependencies(cfg, store, logger, guard, registry),
		Translator:  translation.NewTranslatorWithDependencies(cfg, store, logger, registry),
		Synthesizer: synthesis.NewSynthesizerWithDependencies(cfg, store, logger, registry),
		Mixer:       mixdown.NewMixer(cfg, store, logger),
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
