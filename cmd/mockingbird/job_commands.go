package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mockingbird/internal/httpapi"
	"mockingbird/internal/language"
	"mockingbird/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var languages []string
	var title string

	cmd := &cobra.Command{
		Use:   "add <media-file>",
		Short: "Queue a media file for dubbing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized := language.NormalizeList(languages)
			if len(normalized) == 0 {
				if len(languages) == 0 {
					return errors.New("at least one --lang target is required")
				}
				return fmt.Errorf("no recognized target language in %v", languages)
			}

			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			if ext := strings.ToLower(filepath.Ext(absPath)); ext != ".wav" {
				return fmt.Errorf("unsupported media extension %q; sources must be WAV", ext)
			}

			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				view, err := api.Submit(cmd.Context(), httpapi.CreateJobRequest{
					SourcePath: absPath,
					Title:      strings.TrimSpace(title),
					Languages:  normalized,
				})
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, view)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as job %s (languages: %s)\n",
					filepath.Base(absPath), view.ID, strings.Join(view.TargetLanguages, ", "))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "Target language code (repeatable or comma separated)")
	cmd.Flags().StringVar(&title, "title", "", "Display title for the job")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dubbing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				views, err := api.List(cmd.Context(), strings.TrimSpace(statusFilter))
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					if views == nil {
						views = []httpapi.JobView{}
					}
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Title", "Languages", "Status", "Progress", "Created"},
					buildJobListRows(views),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by job status")
	return cmd
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <job-id>",
		Short: "Pause a job at its next checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				view, err := api.Pause(cmd.Context(), args[0])
				return reportTransition(cmd, ctx, args[0], view, err, "paused")
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a paused job from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				view, err := api.Resume(cmd.Context(), args[0])
				return reportTransition(cmd, ctx, args[0], view, err, "resumed")
			})
		},
	}
}

func newAbortCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <job-id>",
		Short: "Abort a job and mark it failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				view, err := api.Abort(cmd.Context(), args[0])
				return reportTransition(cmd, ctx, args[0], view, err, "aborted")
			})
		},
	}
}

// reportTransition renders the outcome of a single-job state change.
// State conflicts print the server's explanation and exit clean so repeated
// invocations stay idempotent.
func reportTransition(cmd *cobra.Command, ctx *commandContext, id string, view *httpapi.JobView, err error, verb string) error {
	out := cmd.OutOrStdout()
	if err != nil {
		if detail, ok := conflictDetail(err); ok {
			if ctx.jsonMode() {
				return writeJSON(cmd, map[string]string{"id": id, "error": detail})
			}
			fmt.Fprintf(out, "Job %s: %s\n", id, detail)
			return nil
		}
		return err
	}
	if view == nil {
		if ctx.jsonMode() {
			return writeJSON(cmd, map[string]string{"id": id, "error": "not_found"})
		}
		fmt.Fprintf(out, "Job %s not found\n", id)
		return nil
	}
	if ctx.jsonMode() {
		return writeJSON(cmd, view)
	}
	fmt.Fprintf(out, "Job %s %s (%s)\n", view.ID, verb, view.Status)
	return nil
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs from scratch",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				ids := args
				if len(ids) == 0 {
					failed, err := api.List(cmd.Context(), string(queue.StatusFailed))
					if err != nil {
						return err
					}
					if len(failed) == 0 {
						if ctx.jsonMode() {
							return writeJSON(cmd, map[string]any{"items": []any{}})
						}
						fmt.Fprintln(cmd.OutOrStdout(), "No failed jobs to retry")
						return nil
					}
					for _, view := range failed {
						ids = append(ids, view.ID)
					}
				}

				type outcome struct {
					ID      string `json:"id"`
					Outcome string `json:"outcome"`
				}
				outcomes := make([]outcome, 0, len(ids))
				out := cmd.OutOrStdout()
				for _, id := range ids {
					view, err := api.Retry(cmd.Context(), id)
					switch {
					case err != nil:
						detail, ok := conflictDetail(err)
						if !ok {
							return err
						}
						outcomes = append(outcomes, outcome{ID: id, Outcome: "not_failed"})
						if !ctx.jsonMode() {
							fmt.Fprintf(out, "Job %s: %s\n", id, detail)
						}
					case view == nil:
						outcomes = append(outcomes, outcome{ID: id, Outcome: "not_found"})
						if !ctx.jsonMode() {
							fmt.Fprintf(out, "Job %s not found\n", id)
						}
					default:
						outcomes = append(outcomes, outcome{ID: id, Outcome: "retried"})
						if !ctx.jsonMode() {
							fmt.Fprintf(out, "Job %s reset for retry\n", id)
						}
					}
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"items": outcomes})
				}
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id...>",
		Short: "Remove jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobAPI) error {
				type outcome struct {
					ID      string `json:"id"`
					Outcome string `json:"outcome"`
				}
				outcomes := make([]outcome, 0, len(args))
				out := cmd.OutOrStdout()
				for _, id := range args {
					removed, err := api.Remove(cmd.Context(), id)
					switch {
					case err != nil:
						detail, ok := conflictDetail(err)
						if !ok {
							return err
						}
						outcomes = append(outcomes, outcome{ID: id, Outcome: "processing"})
						if !ctx.jsonMode() {
							fmt.Fprintf(out, "Job %s: %s\n", id, detail)
						}
					case removed:
						outcomes = append(outcomes, outcome{ID: id, Outcome: "removed"})
						if !ctx.jsonMode() {
							fmt.Fprintf(out, "Job %s removed\n", id)
						}
					default:
						outcomes = append(outcomes, outcome{ID: id, Outcome: "not_found"})
						if !ctx.jsonMode() {
							fmt.Fprintf(out, "Job %s not found\n", id)
						}
					}
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"items": outcomes})
				}
				return nil
			})
		},
	}
}
