package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordError appends a failure to a job's ordered error history. Pass a
// negative segmentIndex for job-level failures.
func (s *Store) RecordError(ctx context.Context, jobID string, stage Stage, segmentIndex int, kind, message string) error {
	return s.recordEvent(ctx, jobID, stage, segmentIndex, SeverityError, kind, message)
}

// RecordWarning appends a non-fatal event (downgrade, truncation, absorbed
// segment failure) to a job's history.
func (s *Store) RecordWarning(ctx context.Context, jobID string, stage Stage, segmentIndex int, kind, message string) error {
	return s.recordEvent(ctx, jobID, stage, segmentIndex, SeverityWarning, kind, message)
}

func (s *Store) recordEvent(ctx context.Context, jobID string, stage Stage, segmentIndex int, severity, kind, message string) error {
	if jobID == "" {
		return fmt.Errorf("record %s: job id must not be empty", severity)
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO job_errors (job_id, stage, segment_index, severity, kind, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID,
		stage,
		nullableIndex(segmentIndex),
		severity,
		kind,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record %s: %w", severity, err)
	}
	return nil
}

// JobErrors returns a job's full error and warning history in recorded order.
func (s *Store) JobErrors(ctx context.Context, jobID string) ([]JobError, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, stage, segment_index, severity, kind, message, created_at
         FROM job_errors WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query job errors: %w", err)
	}
	defer rows.Close()

	var history []JobError
	for rows.Next() {
		var (
			entry      JobError
			segment    sql.NullInt64
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Stage, &segment, &entry.Severity, &entry.Kind, &entry.Message, &createdRaw); err != nil {
			return nil, err
		}
		if segment.Valid {
			index := int(segment.Int64)
			entry.SegmentIndex = &index
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}
