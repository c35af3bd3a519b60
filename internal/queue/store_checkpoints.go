package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCheckpointNotFound indicates no checkpoint exists for a job.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint is the durable snapshot a job resumes from: the last committed
// stage plus the segment states and config as of that commit.
type Checkpoint struct {
	JobID     string
	Stage     Stage
	Segments  []Segment
	Config    ProcessingConfig
	UpdatedAt time.Time
}

const upsertCheckpointSQL = `INSERT INTO checkpoints (job_id, stage, segments_json, config_json, updated_at)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT(job_id) DO UPDATE SET
        stage = excluded.stage,
        segments_json = excluded.segments_json,
        config_json = excluded.config_json,
        updated_at = excluded.updated_at`

// SaveCheckpoint writes or overwrites the checkpoint for a job.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}
	if cp.JobID == "" {
		return errors.New("checkpoint job id must not be empty")
	}
	segments, err := json.Marshal(cp.Segments)
	if err != nil {
		return fmt.Errorf("encode checkpoint segments: %w", err)
	}
	configJSON, err := json.Marshal(cp.Config)
	if err != nil {
		return fmt.Errorf("encode checkpoint config: %w", err)
	}
	cp.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		upsertCheckpointSQL,
		cp.JobID,
		cp.Stage,
		string(segments),
		string(configJSON),
		cp.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns a job's checkpoint, or ErrCheckpointNotFound when
// none exists.
func (s *Store) LoadCheckpoint(ctx context.Context, jobID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT job_id, stage, segments_json, config_json, updated_at FROM checkpoints WHERE job_id = ?`,
		jobID,
	)

	var (
		id         string
		stageStr   string
		segments   string
		configJSON string
		updatedRaw string
	)
	if err := row.Scan(&id, &stageStr, &segments, &configJSON, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", ErrCheckpointNotFound, jobID)
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp := &Checkpoint{JobID: id, Stage: Stage(stageStr)}
	if err := json.Unmarshal([]byte(segments), &cp.Segments); err != nil {
		return nil, fmt.Errorf("decode checkpoint segments: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &cp.Config); err != nil {
		return nil, fmt.Errorf("decode checkpoint config: %w", err)
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		cp.UpdatedAt = updated
	}
	return cp, nil
}

// DeleteCheckpoint removes a job's checkpoint.
func (s *Store) DeleteCheckpoint(ctx context.Context, jobID string) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM checkpoints WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// CommitStage persists the job row and overwrites its checkpoint in one
// transaction. A stage counts as committed only when this call returns nil;
// on error nothing is applied and the caller may retry or fail the job.
func (s *Store) CommitStage(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	languages, err := encodeLanguages(job.TargetLanguages)
	if err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	timestamp := job.UpdatedAt.Format(time.RFC3339Nano)

	return s.txWithRetry(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET source_path = ?, title = ?, target_languages = ?, detected_language = ?,
                 status = ?, stage = ?, segments_json = ?, config_json = ?,
                 output_files_json = ?, mix_reports_json = ?, error_message = ?,
                 progress_stage = ?, progress_percent = ?, progress_message = ?,
                 retry_count = ?, updated_at = ?, last_heartbeat = ?
             WHERE id = ?`,
			job.SourcePath,
			nullableString(job.Title),
			languages,
			nullableString(job.DetectedLanguage),
			job.Status,
			job.Stage,
			nullableString(job.SegmentsJSON),
			nullableString(job.ConfigJSON),
			nullableString(job.OutputFilesJSON),
			nullableString(job.MixReportsJSON),
			nullableString(job.ErrorMessage),
			nullableString(job.ProgressStage),
			job.ProgressPercent,
			nullableString(job.ProgressMessage),
			job.RetryCount,
			timestamp,
			nullableTime(job.LastHeartbeat),
			job.ID,
		); err != nil {
			return fmt.Errorf("commit job row: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			upsertCheckpointSQL,
			job.ID,
			job.Stage,
			jsonArrayOrEmpty(job.SegmentsJSON),
			jsonObjectOrEmpty(job.ConfigJSON),
			timestamp,
		); err != nil {
			return fmt.Errorf("commit checkpoint: %w", err)
		}
		return nil
	})
}

// CompleteJob marks the job completed and deletes its checkpoint in one
// transaction. Checkpoints only exist while there is work left to resume.
func (s *Store) CompleteJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.Status = StatusCompleted
	job.LastHeartbeat = nil
	languages, err := encodeLanguages(job.TargetLanguages)
	if err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	timestamp := job.UpdatedAt.Format(time.RFC3339Nano)

	return s.txWithRetry(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET source_path = ?, title = ?, target_languages = ?, detected_language = ?,
                 status = ?, stage = ?, segments_json = ?, config_json = ?,
                 output_files_json = ?, mix_reports_json = ?, error_message = NULL,
                 progress_stage = ?, progress_percent = ?, progress_message = ?,
                 retry_count = ?, updated_at = ?, last_heartbeat = NULL
             WHERE id = ?`,
			job.SourcePath,
			nullableString(job.Title),
			languages,
			nullableString(job.DetectedLanguage),
			job.Status,
			job.Stage,
			nullableString(job.SegmentsJSON),
			nullableString(job.ConfigJSON),
			nullableString(job.OutputFilesJSON),
			nullableString(job.MixReportsJSON),
			nullableString(job.ProgressStage),
			job.ProgressPercent,
			nullableString(job.ProgressMessage),
			job.RetryCount,
			timestamp,
			job.ID,
		); err != nil {
			return fmt.Errorf("complete job row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE job_id = ?`, job.ID); err != nil {
			return fmt.Errorf("drop checkpoint: %w", err)
		}
		return nil
	})
}

func jsonArrayOrEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "[]"
	}
	return value
}

func jsonObjectOrEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "{}"
	}
	return value
}
