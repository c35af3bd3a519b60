package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mockingbird/internal/daemonctl"
	"mockingbird/internal/httpapi"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 5 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the background processing daemon",
	}
	cmd.AddCommand(newDaemonStartCommand(ctx))
	cmd.AddCommand(newDaemonStopCommand(ctx))
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	cmd.AddCommand(newDaemonRestartCommand(ctx))
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon if it is not already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return startDaemon(cmd, ctx)
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return stopDaemon(cmd, ctx)
		},
	}
}

func newDaemonRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon and start it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := stopDaemon(cmd, ctx); err != nil {
				return err
			}
			return startDaemon(cmd, ctx)
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !ctx.daemonRunning(cmd.Context()) {
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"running": false})
				}
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			return ctx.withClient(cmd.Context(), func(client *httpapi.Client) error {
				resp, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(out, "Daemon running at %s\n", ctx.apiAddr())
				if resp.Running {
					fmt.Fprintln(out, "Workflow: processing enabled")
				} else {
					fmt.Fprintln(out, "Workflow: stopped")
				}
				if len(resp.ActiveJobs) > 0 {
					fmt.Fprintf(out, "Active jobs: %s\n", strings.Join(resp.ActiveJobs, ", "))
				}
				return nil
			})
		},
	}
}

func startDaemon(cmd *cobra.Command, ctx *commandContext) error {
	exe, err := daemonExecutable()
	if err != nil {
		return err
	}

	opts := daemonctl.LaunchOptions{ConfigPath: strings.TrimSpace(*ctx.configFlag)}
	result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.apiAddr(), exe, opts, daemonStartTimeout)
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if ctx.jsonMode() {
		return writeJSON(cmd, map[string]any{
			"state":    string(result.State),
			"launched": result.Launched,
		})
	}

	out := cmd.OutOrStdout()
	switch result.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(out, "Daemon already running")
	default:
		fmt.Fprintf(out, "Daemon started (API %s)\n", ctx.apiAddr())
	}
	return nil
}

func stopDaemon(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	result, err := daemonctl.StopAndTerminate(cmd.Context(), cfg, daemonStopGrace)
	out := cmd.OutOrStdout()
	if err != nil {
		if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
			if ctx.jsonMode() {
				return writeJSON(cmd, map[string]any{"running": false, "stopped": false})
			}
			fmt.Fprintln(out, "Daemon is not running")
			return nil
		}
		return err
	}

	if ctx.jsonMode() {
		return writeJSON(cmd, map[string]any{
			"stopped":     true,
			"pid":         result.PID,
			"graceful":    result.Graceful,
			"forced_kill": result.ForcedKill,
		})
	}

	if result.ForcedKill {
		fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
		return nil
	}
	fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
	return nil
}

// daemonExecutable locates the mockingbirdd binary. Packaging installs it
// next to the CLI, so the sibling path wins over PATH lookup.
func daemonExecutable() (string, error) {
	self, err := os.Executable()
	if err == nil {
		sidecar := filepath.Join(filepath.Dir(self), "mockingbirdd")
		if info, statErr := os.Stat(sidecar); statErr == nil && !info.IsDir() {
			return sidecar, nil
		}
	}

	path, lookErr := exec.LookPath("mockingbirdd")
	if lookErr != nil {
		return "", errors.New("mockingbirdd executable not found; install it next to the CLI or on PATH")
	}
	return path, nil
}
