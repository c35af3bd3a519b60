package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mockingbird/internal/httpapi"
	"mockingbird/internal/queue"
)

func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[queue.Status(key)])})
	}
	return rows
}

func buildJobListRows(views []httpapi.JobView) [][]string {
	if len(views) == 0 {
		return nil
	}
	sorted := make([]httpapi.JobView, len(views))
	copy(sorted, views)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, view := range sorted {
		rows = append(rows, []string{
			view.ID,
			jobTitle(view),
			strings.Join(view.TargetLanguages, ","),
			jobStatusLabel(view),
			formatProgress(view),
			formatDisplayTime(view.CreatedAt),
		})
	}
	return rows
}

func jobTitle(view httpapi.JobView) string {
	if title := strings.TrimSpace(view.Title); title != "" {
		return title
	}
	if source := strings.TrimSpace(view.SourcePath); source != "" {
		return filepath.Base(source)
	}
	return "Unknown"
}

// jobStatusLabel renders the status for humans, marking completions that
// carried warnings so they are not mistaken for clean runs.
func jobStatusLabel(view httpapi.JobView) string {
	label := formatStatusLabel(string(view.Status))
	if view.Status == queue.StatusCompleted && view.WarningCount > 0 {
		label += fmt.Sprintf(" (%d warnings)", view.WarningCount)
	}
	return label
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatProgress(view httpapi.JobView) string {
	if view.ProgressPercent <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", view.ProgressPercent)
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format("2006-01-02 15:04")
}
