package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// jobColumns drives every SELECT against the jobs table. The warning count is
// derived from the error history at read time so concurrent warning writes
// never race a full-row update.
const jobColumns = "id, source_path, title, target_languages, detected_language, status, stage, " +
	"segments_json, config_json, output_files_json, mix_reports_json, error_message, " +
	"progress_stage, progress_percent, progress_message, retry_count, created_at, updated_at, last_heartbeat, " +
	"(SELECT COUNT(1) FROM job_errors WHERE job_errors.job_id = jobs.id AND job_errors.severity = 'warning')"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		sourcePath       string
		title            sql.NullString
		targetLanguages  string
		detectedLanguage sql.NullString
		statusStr        string
		stageStr         string
		segments         sql.NullString
		configJSON       sql.NullString
		outputFiles      sql.NullString
		mixReports       sql.NullString
		errorMessage     sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		retryCount       sql.NullInt64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
		warningCount     sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&title,
		&targetLanguages,
		&detectedLanguage,
		&statusStr,
		&stageStr,
		&segments,
		&configJSON,
		&outputFiles,
		&mixReports,
		&errorMessage,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&retryCount,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
		&warningCount,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		SourcePath:       sourcePath,
		Title:            title.String,
		DetectedLanguage: detectedLanguage.String,
		Status:           Status(statusStr),
		Stage:            Stage(stageStr),
		SegmentsJSON:     segments.String,
		ConfigJSON:       configJSON.String,
		OutputFilesJSON:  outputFiles.String,
		MixReportsJSON:   mixReports.String,
		ErrorMessage:     errorMessage.String,
		ProgressStage:    progressStage.String,
		ProgressPercent:  progressPercent.Float64,
		ProgressMessage:  progressMessage.String,
		RetryCount:       int(retryCount.Int64),
		WarningCount:     int(warningCount.Int64),
	}

	if err := json.Unmarshal([]byte(targetLanguages), &job.TargetLanguages); err != nil {
		return nil, fmt.Errorf("decode target languages for job %s: %w", id, err)
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func encodeLanguages(languages []string) (string, error) {
	if len(languages) == 0 {
		return "", errors.New("target languages must not be empty")
	}
	data, err := json.Marshal(languages)
	if err != nil {
		return "", fmt.Errorf("encode target languages: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableIndex(index int) any {
	if index < 0 {
		return nil
	}
	return index
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
