package workflow

import (
	"context"
	"path/filepath"

	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
)

// notifyJobCompleted publishes a completion event. Delivery failures are
// logged and swallowed; a lost push never fails a finished job.
func (m *Manager) notifyJobCompleted(ctx context.Context, job *queue.Job) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.JobCompleted(ctx, notifyTitle(job), job.TargetLanguages, job.WarningCount); err != nil && m.logger != nil {
		m.logger.Warn("completion notification failed", logging.String("job_id", job.ID), logging.Error(err))
	}
}

func (m *Manager) notifyJobFailed(ctx context.Context, job *queue.Job, reason string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.JobFailed(ctx, notifyTitle(job), reason); err != nil && m.logger != nil {
		m.logger.Warn("failure notification failed", logging.String("job_id", job.ID), logging.Error(err))
	}
}

func notifyTitle(job *queue.Job) string {
	if job.Title != "" {
		return job.Title
	}
	return filepath.Base(job.SourcePath)
}
