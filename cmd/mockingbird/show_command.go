package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mockingbird/internal/httpapi"
	"mockingbird/internal/language"
	"mockingbird/internal/mixer"
	"mockingbird/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var errorsOnly bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Display one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				detail, err := api.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if detail == nil {
					if ctx.jsonMode() || errorsOnly {
						return writeJSON(cmd, map[string]string{"error": "not_found"})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s not found\n", args[0])
					return nil
				}
				if errorsOnly {
					history := detail.History
					if history == nil {
						history = []queue.JobError{}
					}
					return writeJSON(cmd, history)
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, detail)
				}
				printJobDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Dump the job's error history as JSON")
	return cmd
}

func printJobDetail(out io.Writer, detail *httpapi.JobDetail) {
	fmt.Fprintf(out, "Job %s\n", detail.ID)

	pairs := [][2]string{
		{"Title", jobTitle(detail.JobView)},
		{"Source", detail.SourcePath},
		{"Languages", formatLanguageList(detail.TargetLanguages)},
	}
	if detail.DetectedLanguage != "" {
		pairs = append(pairs, [2]string{"Detected", formatLanguage(detail.DetectedLanguage)})
	}
	pairs = append(pairs,
		[2]string{"Status", jobStatusLabel(detail.JobView)},
		[2]string{"Stage", string(detail.Stage)},
		[2]string{"Progress", formatProgressDetail(detail.JobView)},
	)
	if detail.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", detail.ErrorMessage})
	}
	if detail.RetryCount > 0 {
		pairs = append(pairs, [2]string{"Retries", fmt.Sprintf("%d", detail.RetryCount)})
	}
	pairs = append(pairs,
		[2]string{"Created", formatDisplayTime(detail.CreatedAt)},
		[2]string{"Updated", formatDisplayTime(detail.UpdatedAt)},
	)
	fmt.Fprintln(out, renderKeyValues(pairs))

	if len(detail.Segments) > 0 {
		fmt.Fprintf(out, "\nSegments: %d\n", len(detail.Segments))
	}

	if len(detail.OutputFiles) > 0 {
		fmt.Fprintln(out, "\nOutputs:")
		langs := make([]string, 0, len(detail.OutputFiles))
		for lang := range detail.OutputFiles {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			fmt.Fprintf(out, "  %s: %s\n", lang, detail.OutputFiles[lang])
		}
	}

	printMixReports(out, detail.MixReports)
	printErrorHistory(out, detail.History)
}

func formatProgressDetail(view httpapi.JobView) string {
	progress := formatProgress(view)
	stage := strings.TrimSpace(view.ProgressStage)
	message := strings.TrimSpace(view.ProgressMessage)
	switch {
	case stage != "" && message != "":
		return fmt.Sprintf("%s (%s: %s)", progress, stage, message)
	case stage != "":
		return fmt.Sprintf("%s (%s)", progress, stage)
	default:
		return progress
	}
}

func formatLanguage(code string) string {
	name := language.DisplayName(code)
	if name == "" || strings.EqualFold(name, code) {
		return code
	}
	return fmt.Sprintf("%s (%s)", code, name)
}

func formatLanguageList(codes []string) string {
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, formatLanguage(code))
	}
	return strings.Join(parts, ", ")
}

func printMixReports(out io.Writer, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var reports map[string][]mixer.SegmentReport
	if err := json.Unmarshal(raw, &reports); err != nil || len(reports) == 0 {
		return
	}

	langs := make([]string, 0, len(reports))
	for lang := range reports {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		fmt.Fprintf(out, "\nMix report (%s):\n", lang)
		rows := make([][]string, 0, len(reports[lang]))
		for _, report := range reports[lang] {
			rows = append(rows, []string{
				fmt.Sprintf("%d", report.Index),
				fmt.Sprintf("%.2fs", report.SlotStart.Seconds()),
				fmt.Sprintf("%.2fs", report.SlotEnd.Seconds()),
				fmt.Sprintf("%.2fx", report.StretchFactor),
				fmt.Sprintf("%.1f", report.DuckGainDB),
				mixOutcome(report),
			})
		}
		table := renderTable(
			[]string{"Seg", "Slot Start", "Slot End", "Stretch", "Duck dB", "Outcome"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
		)
		fmt.Fprintln(out, table)
	}
}

func mixOutcome(report mixer.SegmentReport) string {
	var outcome string
	switch {
	case report.Dropped:
		outcome = "dropped"
	case report.Truncated:
		outcome = fmt.Sprintf("truncated %dms", report.TruncatedBy.Milliseconds())
	case report.Extended > 0:
		outcome = fmt.Sprintf("extended %dms", report.Extended.Milliseconds())
	default:
		outcome = "placed"
	}
	if note := strings.TrimSpace(report.Note); note != "" {
		outcome += "; " + note
	}
	return outcome
}

func printErrorHistory(out io.Writer, history []queue.JobError) {
	if len(history) == 0 {
		return
	}
	fmt.Fprintln(out, "\nError history:")
	rows := make([][]string, 0, len(history))
	for _, record := range history {
		segment := "-"
		if record.SegmentIndex != nil && *record.SegmentIndex >= 0 {
			segment = fmt.Sprintf("%d", *record.SegmentIndex)
		}
		rows = append(rows, []string{
			formatDisplayTime(record.CreatedAt),
			record.Stage,
			segment,
			record.Severity,
			record.Kind,
			record.Message,
		})
	}
	table := renderTable(
		[]string{"Time", "Stage", "Seg", "Severity", "Kind", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	)
	fmt.Fprintln(out, table)
}
