package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// rollbackCase builds the CASE expression returning in-flight statuses to
// their stage's waiting status.
func rollbackCase() (string, []any) {
	var clause strings.Builder
	args := make([]any, 0, len(stageRollbackTransitions)*2)
	clause.WriteString("CASE status")
	for _, transition := range stageRollbackTransitions {
		clause.WriteString(" WHEN ? THEN ?")
		args = append(args, transition.from, transition.to)
	}
	clause.WriteString(" ELSE status END")
	return clause.String(), args
}

// resumeCase builds the CASE expression mapping a committed stage to the
// dispatch status a retried or resumed job re-enters at.
func resumeCase() (string, []any) {
	var clause strings.Builder
	args := make([]any, 0, len(allStages)*2)
	clause.WriteString("CASE stage")
	for _, stage := range allStages {
		clause.WriteString(" WHEN ? THEN ?")
		args = append(args, stage, stageResumeStatuses[stage])
	}
	clause.WriteString(" ELSE status END")
	return clause.String(), args
}

// ResetStuckProcessing returns every in-flight job to the start of its
// current stage. Called on daemon startup before lanes begin polling.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	caseSQL, args := rollbackCase()
	query := `UPDATE jobs
        SET status = ` + caseSQL + `,
            progress_stage = 'Reset from stuck processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (` + makePlaceholders(len(stageRollbackTransitions)) + `)`
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	for _, transition := range stageRollbackTransitions {
		args = append(args, transition.from)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleProcessing returns jobs whose heartbeats expired before cutoff
// to the start of their current stage. With no statuses provided every
// in-flight status is eligible.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, statuses ...Status) (int64, error) {
	targets := make([]Status, 0, len(stageRollbackTransitions))
	if len(statuses) == 0 {
		for _, transition := range stageRollbackTransitions {
			targets = append(targets, transition.from)
		}
	} else {
		for _, status := range statuses {
			if IsProcessingStatus(status) {
				targets = append(targets, status)
			}
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	caseSQL, args := rollbackCase()
	query := `UPDATE jobs
        SET status = ` + caseSQL + `,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (` + makePlaceholders(len(targets)) + `) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	for _, status := range targets {
		args = append(args, status)
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back into the pipeline at the status after
// their last committed stage, so committed work never replays. With no ids
// every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	caseSQL, caseArgs := resumeCase()
	query := `UPDATE jobs
        SET status = ` + caseSQL + `,
            progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, retry_count = 0, updated_at = ?
        WHERE status = ?`
	args := append(caseArgs, time.Now().UTC().Format(time.RFC3339Nano), StatusFailed)
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	var affected int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("retry failed jobs: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		// A job that failed between its final stage commit and finalization
		// retries straight to completed; drop the checkpoint it left behind.
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM checkpoints WHERE job_id IN (SELECT id FROM jobs WHERE status = ?)`,
			StatusCompleted,
		); err != nil {
			return fmt.Errorf("sweep completed checkpoints: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// PauseJob parks a job. In-flight work is cancelled by the workflow manager;
// the stage output stays uncommitted while the checkpoint remains for resume.
func (s *Store) PauseJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress_message = 'Paused', last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusPaused,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusPaused,
	)
	if err != nil {
		return false, fmt.Errorf("pause job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResumeJob returns a paused job to the dispatch status after its last
// committed stage.
func (s *Store) ResumeJob(ctx context.Context, id string) (bool, error) {
	caseSQL, args := resumeCase()
	query := `UPDATE jobs
        SET status = ` + caseSQL + `,
            progress_message = 'Resume requested', progress_percent = 0,
            error_message = NULL, updated_at = ?
        WHERE id = ? AND status = ?`
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id, StatusPaused)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("resume job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
