package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"mockingbird/internal/audio"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
	"mockingbird/internal/stage"
)

func (m *Manager) processJob(ctx context.Context, lane *laneState, laneLogger *slog.Logger, job *queue.Job) error {
	stg, ok := lane.stageForStatus(job.Status)
	if !ok {
		laneLogger.Warn("no stage configured for status", logging.String("status", string(job.Status)))
		m.waitForJobOrShutdown(ctx)
		return nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.trackActive(job.ID, cancel)
	defer m.clearActive(job.ID)

	stageCtx := withStageContext(jobCtx, lane, stg.name, job, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, laneLogger)

	if err := m.claimJob(stageCtx, stg, job); err != nil {
		stageLogger.Error("failed to claim job", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stg, stageLogger, job)
}

func (m *Manager) executeStage(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, job *queue.Job) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String("title", strings.TrimSpace(job.Title)),
		logging.String("source", strings.TrimSpace(job.SourcePath)),
		logging.Int("retry_count", job.RetryCount),
	)

	if err := stg.handler.Prepare(ctx, job); err != nil {
		m.handleStageFailure(ctx, stg, stageLogger, job, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg.handler, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			m.releaseInterrupted(stg, stageLogger, job)
			return execErr
		}
		m.handleStageFailure(ctx, stg, stageLogger, job, execErr)
		m.setLastError(execErr)
		return execErr
	}

	prevStage := job.Stage
	job.Stage = stg.commits
	job.Status = queue.NextStatus(job.Stage)
	job.LastHeartbeat = nil
	if job.Status == queue.StatusCompleted {
		job.SetProgressComplete("Completed", "All target languages dubbed")
		if err := m.store.CompleteJob(ctx, job); err != nil {
			wrapped := fmt.Errorf("persist job completion: %w", err)
			return m.failCommit(ctx, stg, stageLogger, job, prevStage, wrapped)
		}
		m.releaseScratch(stageLogger, job)
		m.notifyJobCompleted(ctx, job)
	} else {
		if err := m.store.CommitStage(ctx, job); err != nil {
			wrapped := fmt.Errorf("commit stage result: %w", err)
			return m.failCommit(ctx, stg, stageLogger, job, prevStage, wrapped)
		}
	}
	stageLogger.Info(
		"stage committed",
		logging.String("committed_stage", string(job.Stage)),
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastJob(job)
	return nil
}

// failCommit handles a checkpoint or completion write that did not persist.
// The stage output is uncommitted, so the in-memory stage advance is rolled
// back and the failure is charged against the job's retry budget like any
// other stage error; exhausting it parks the job failed with the cause
// recorded.
func (m *Manager) failCommit(ctx context.Context, stg pipelineStage, stageLogger *slog.Logger, job *queue.Job, prevStage queue.Stage, commitErr error) error {
	stageLogger.Error("failed to persist stage commit", logging.Error(commitErr))
	job.Stage = prevStage
	if errors.Is(commitErr, context.Canceled) {
		m.releaseInterrupted(stg, stageLogger, job)
		return commitErr
	}
	m.handleStageFailure(ctx, stg, stageLogger, job, commitErr)
	m.setLastError(commitErr)
	return commitErr
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// claimJob moves a waiting job into its stage's processing status so other
// lanes skip it. The heartbeat is seeded here; the loop in
// executeWithHeartbeat keeps it fresh while the handler runs.
func (m *Manager) claimJob(ctx context.Context, stg pipelineStage, job *queue.Job) error {
	if stg.processingStatus == "" {
		return errors.New("processing status must not be empty")
	}
	now := time.Now().UTC()
	job.Status = stg.processingStatus
	job.ProgressStage = progressLabel(stg.processingStatus)
	job.ProgressMessage = fmt.Sprintf("%s started", job.ProgressStage)
	job.ProgressPercent = 0
	job.ErrorMessage = ""
	job.LastHeartbeat = &now
	if err := m.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastJob(job)
	return nil
}

// releaseInterrupted returns a cancelled job to the start of its stage so the
// next daemon run resumes it from the last checkpoint. Pause and abort update
// the row before cancelling the stage, so a job that is no longer in the
// stage's processing status is left exactly where the operator put it.
func (m *Manager) releaseInterrupted(stg pipelineStage, stageLogger *slog.Logger, job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fresh, err := m.store.GetByID(ctx, job.ID)
	if err != nil {
		stageLogger.Warn("could not inspect interrupted job", logging.Error(err))
		return
	}
	if fresh == nil || fresh.Status != stg.processingStatus {
		stageLogger.Info("stage interrupted by operator")
		return
	}

	fresh.Status = stg.startStatus
	fresh.ProgressPercent = 0
	fresh.ProgressMessage = queue.DaemonStopReason
	fresh.LastHeartbeat = nil
	if err := m.store.Update(ctx, fresh); err != nil {
		stageLogger.Warn("failed to return interrupted job to queue", logging.Error(err))
		return
	}
	stageLogger.Info("stage interrupted; job returned to queue", logging.String("status", string(fresh.Status)))
}

// releaseScratch drops the per-job scratch directory once the final mix is
// on disk. Failed jobs keep theirs so a retry can reuse synthesized clips.
func (m *Manager) releaseScratch(stageLogger *slog.Logger, job *queue.Job) {
	scratch, err := audio.OpenScratch(m.cfg.ScratchRoot(), job.ID)
	if err != nil {
		stageLogger.Warn("failed to open scratch directory for release", logging.Error(err))
		return
	}
	if err := scratch.ReleaseAll(); err != nil {
		stageLogger.Warn("failed to release scratch artifacts", logging.Error(err))
	}
}

func withStageContext(ctx context.Context, lane *laneState, stageName string, job *queue.Job, requestID string) context.Context {
	if job != nil {
		ctx = services.WithJobID(ctx, job.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if lane != nil {
		ctx = services.WithLane(ctx, lane.name)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

func progressLabel(status queue.Status) string {
	s := string(status)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
