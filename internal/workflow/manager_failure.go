package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/stage"
)

// handleStageFailure decides what a stage error costs the job. Validation,
// configuration, and not-found errors fail it permanently; anything else is
// requeued at the start of the stage until the job's retry budget runs out.
func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, job *queue.Job, stageErr error) {
	kind := services.Classify(stageErr)
	message := failureMessage(stg.name, stageErr)

	if !services.Fatal(stageErr) && m.requeueForRetry(ctx, stg, stageLogger, job, kind, message) {
		return
	}

	job.SetFailed(message)
	if err := m.store.Update(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			stageLogger.Debug("daemon shutting down, could not persist stage failure")
		} else {
			stageLogger.Error("failed to persist stage failure", logging.Error(err))
		}
		m.setLastJob(job)
		return
	}
	if err := m.store.RecordError(ctx, job.ID, stg.commits, -1, kind, message); err != nil {
		stageLogger.Warn("failed to record stage error", logging.Error(err))
	}
	stageLogger.Error(
		"stage failed permanently",
		logging.String("error_kind", kind),
		logging.Int("retry_count", job.RetryCount),
		logging.Error(stageErr),
	)
	m.notifyJobFailed(ctx, job, message)
	m.setLastJob(job)
}

// requeueForRetry returns the job to its stage's waiting status with an
// incremented retry count. It reports false when the budget is exhausted or
// the requeue could not be persisted, in which case the job fails instead.
func (m *Manager) requeueForRetry(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, job *queue.Job, kind, message string) bool {
	pc, err := stage.Snapshot(job)
	if err != nil {
		stageLogger.Warn("cannot read retry budget from job config", logging.Error(err))
		return false
	}
	if job.RetryCount >= pc.MaxRetries {
		return false
	}

	job.RetryCount++
	job.Status = stg.startStatus
	job.ProgressPercent = 0
	job.ProgressMessage = fmt.Sprintf("Retrying after error (attempt %d of %d)", job.RetryCount, pc.MaxRetries)
	job.ErrorMessage = message
	job.LastHeartbeat = nil
	if err := m.store.Update(ctx, job); err != nil {
		stageLogger.Error("failed to requeue job for retry", logging.Error(err))
		return false
	}
	if err := m.store.RecordWarning(ctx, job.ID, stg.commits, -1, "stage_retry", message); err != nil {
		stageLogger.Warn("failed to record retry warning", logging.Error(err))
	}
	stageLogger.Warn(
		"stage failed; job requeued",
		logging.String("error_kind", kind),
		logging.Int("retry_count", job.RetryCount),
		logging.Int("max_retries", pc.MaxRetries),
		logging.String("error_message", strings.TrimSpace(message)),
	)
	m.setLastJob(job)
	return true
}

func failureMessage(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		return fmt.Sprintf("%s failed", stageName)
	}
	return message
}
