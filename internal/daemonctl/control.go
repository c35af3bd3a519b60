// Package daemonctl starts, stops, and probes the daemon process on behalf
// of the CLI. It talks to a running daemon over the control API and falls
// back to the pid file for process-level termination.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mockingbird/internal/config"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/queue"
)

// ErrDaemonNotRunning indicates the control API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	Graceful   bool
	ForcedKill bool
	PID        int
}

// Launch starts a detached daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForAPI waits for the control API to answer health checks and returns a
// connected client.
func WaitForAPI(ctx context.Context, addr string, timeout time.Duration) (*httpapi.Client, error) {
	client := httpapi.NewClient(addr)
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := client.Healthz(ctx); err == nil {
			return client, nil
		} else {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless its API already answers.
func EnsureStarted(ctx context.Context, addr, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client := httpapi.NewClient(addr)
	if err := client.Healthz(ctx); err == nil {
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if _, err := WaitForAPI(ctx, addr, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true}, nil
}

// Running reports whether the control API answers at addr.
func Running(ctx context.Context, addr string) bool {
	return httpapi.NewClient(addr).Healthz(ctx) == nil
}

// StopAndTerminate signals the daemon process to shut down and force-kills
// it when it is still alive after gracePeriod. The daemon has no stop
// endpoint; shutdown is SIGTERM to the pid on record, the same signal a
// service manager sends.
func StopAndTerminate(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}

	pid, err := readPIDFile(cfg.PIDPath())
	if err != nil {
		return StopResult{}, err
	}
	if pid <= 0 {
		if Running(ctx, cfg.Paths.APIBind) {
			return StopResult{}, fmt.Errorf("daemon is running but pid file %s is missing; stop it manually", cfg.PIDPath())
		}
		return StopResult{}, ErrDaemonNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			cleanupRuntimeFiles(cfg)
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	if waitForExit(ctx, pid, gracePeriod) {
		result.Graceful = true
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	if filePID, err := readPIDFile(pidPath); err == nil && filePID > 0 {
		pid = filePID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// OfflineQueueStats reads queue statistics directly from the database for
// status display when the daemon is down.
func OfflineQueueStats(ctx context.Context, cfg *config.Config) (map[queue.Status]int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Stats(queryCtx)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %q holds %q, not a process id", path, pidStr)
	}
	return pid, nil
}

// waitForExit polls the process until it disappears or the grace period ends.
func waitForExit(ctx context.Context, pid int, gracePeriod time.Duration) bool {
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return true
		}
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func cleanupRuntimeFiles(cfg *config.Config) {
	_ = os.Remove(cfg.PIDPath())
	_ = os.Remove(cfg.LockPath())
}
