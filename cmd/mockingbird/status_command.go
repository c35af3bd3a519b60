package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mockingbird/internal/config"
	"mockingbird/internal/daemonctl"
	"mockingbird/internal/deps"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, hardware, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if ctx.daemonRunning(cmd.Context()) {
				return ctx.withClient(cmd.Context(), func(client *httpapi.Client) error {
					resp, err := client.Status(cmd.Context())
					if err != nil {
						return err
					}
					if ctx.jsonMode() {
						return writeJSON(cmd, resp)
					}
					printOnlineStatus(cmd.OutOrStdout(), cfg, resp)
					return nil
				})
			}
			return runOfflineStatus(cmd, ctx, cfg)
		},
	}
}

func printOnlineStatus(out io.Writer, cfg *config.Config, resp *httpapi.StatusResponse) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	if resp.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Connected but workflow stopped", colorize))
	}
	if len(resp.ActiveJobs) > 0 {
		fmt.Fprintln(out, renderStatusLine("Active jobs", statusInfo, strings.Join(resp.ActiveJobs, ", "), colorize))
	}
	if resp.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, resp.LastError, colorize))
	}
	printDirectoryLines(out, cfg, colorize)
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Hardware", colorize) {
		fmt.Fprintln(out, line)
	}
	hw := resp.Hardware
	fmt.Fprintln(out, renderStatusLine("Device", statusOK, hw.Device, colorize))
	for _, gpu := range hw.GPUs {
		fmt.Fprintln(out, renderStatusLine("GPU", statusOK, fmt.Sprintf("%s (%s)", gpu.Device, gpu.Kind), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Memory", statusInfo,
		fmt.Sprintf("%.1f GiB free of %.1f GiB", hw.FreeMemoryGiB, hw.TotalMemoryGiB), colorize))
	fmt.Fprintln(out, renderStatusLine("CPU cores", statusInfo, fmt.Sprintf("%d", hw.CPUCount), colorize))
	fmt.Fprintln(out, renderStatusLine("Model", statusInfo, hw.RecommendedModel, colorize))
	if hw.GPULeaseHolder != "" {
		detail := fmt.Sprintf("held by %s", hw.GPULeaseHolder)
		if hw.GPULeaseWaiting > 0 {
			detail = fmt.Sprintf("%s (%d waiting)", detail, hw.GPULeaseWaiting)
		}
		fmt.Fprintln(out, renderStatusLine("GPU lease", statusInfo, detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Pipeline Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	stageNames := make([]string, 0, len(resp.StageHealth))
	for name := range resp.StageHealth {
		stageNames = append(stageNames, name)
	}
	sort.Strings(stageNames)
	for _, name := range stageNames {
		health := resp.StageHealth[name]
		if health.Ready {
			fmt.Fprintln(out, renderStatusLine(formatStatusLabel(name), statusOK, "Ready", colorize))
		} else {
			fmt.Fprintln(out, renderStatusLine(formatStatusLabel(name), statusWarn, health.Detail, colorize))
		}
	}
	fmt.Fprintln(out, renderStatusLine("Transcribers", statusInfo, providerList(resp.Providers.Transcribers), colorize))
	fmt.Fprintln(out, renderStatusLine("Translators", statusInfo, providerList(resp.Providers.Translators), colorize))
	fmt.Fprintln(out, renderStatusLine("Synthesizers", statusInfo, providerList(resp.Providers.Synthesizers), colorize))
	fmt.Fprintln(out)

	printQueueSection(out, buildQueueStatusRows(resp.Queue), colorize)
}

func runOfflineStatus(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	stats, statsErr := daemonctl.OfflineQueueStats(cmd.Context(), cfg)
	if ctx.jsonMode() {
		payload := map[string]any{"running": false}
		if statsErr == nil {
			payload["queue"] = stats
		}
		return writeJSON(cmd, payload)
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "Not running (start it with `mockingbird daemon start`)", colorize))
	printDirectoryLines(out, cfg, colorize)
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(preflight.CheckSystemDeps(cmd.Context(), cfg), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	if statsErr != nil {
		return statsErr
	}
	printQueueSection(out, buildQueueStatusRows(stats), colorize)
	return nil
}

func printDirectoryLines(out io.Writer, cfg *config.Config, colorize bool) {
	if cfg == nil {
		return
	}
	for _, dir := range []struct {
		label string
		path  string
	}{
		{"Staging directory", cfg.Paths.StagingDir},
		{"Output directory", cfg.Paths.OutputDir},
		{"Log directory", cfg.Paths.LogDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		if result.Passed {
			fmt.Fprintln(out, renderStatusLine(dir.label, statusOK, result.Detail, colorize))
		} else {
			fmt.Fprintln(out, renderStatusLine(dir.label, statusError, result.Detail, colorize))
		}
	}
}

func printQueueSection(out io.Writer, rows [][]string, colorize bool) {
	for _, line := range renderSectionHeader("Queue Status", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprintln(out, table)
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	if len(statuses) == 0 {
		return []string{renderStatusLine("Engines", statusInfo, "No local engines enabled", colorize)}
	}
	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Path != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Path)
			} else if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, statusWarn, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing engines", statusWarn,
			fmt.Sprintf("%s (hosted providers still cover these capabilities)", strings.Join(missing, ", ")), colorize))
	}
	return lines
}

func providerList(names []string) string {
	if len(names) == 0 {
		return "none configured"
	}
	return strings.Join(names, ", ")
}
