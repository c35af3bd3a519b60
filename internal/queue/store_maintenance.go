package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		case StatusPaused:
			health.Paused += count
		default:
			if IsProcessingStatus(status) {
				health.Processing += count
			} else {
				health.Pending += count
			}
		}
	}
	return health, nil
}

// jobTableColumns mirrors the jobs table in schema.sql. CheckHealth flags
// databases missing any of them, which catches files created by older builds.
var jobTableColumns = []string{
	"id",
	"source_path",
	"title",
	"target_languages",
	"detected_language",
	"status",
	"stage",
	"segments_json",
	"config_json",
	"output_files_json",
	"mix_reports_json",
	"error_message",
	"progress_stage",
	"progress_percent",
	"progress_message",
	"retry_count",
	"created_at",
	"updated_at",
	"last_heartbeat",
}

// CheckHealth returns diagnostic information about the queue database. The
// schema version is read out of the file's user_version header so the report
// describes the database on disk, not the build doing the asking.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var version int
	if err := s.db.QueryRowContext(connCtx, "PRAGMA user_version").Scan(&version); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}
	health.SchemaVersion = strconv.Itoa(version)

	if err := s.inspectJobsTable(connCtx, &health); err != nil {
		health.Error = err.Error()
		return health, err
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")

	return health, nil
}

// inspectJobsTable fills the table shape fields. Column names come from
// PRAGMA table_info rather than a trial SELECT so a partially created table
// still yields a useful report.
func (s *Store) inspectJobsTable(ctx context.Context, health *DatabaseHealth) error {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query table info: %w", err)
	}
	health.TableExists = true

	columns, err := s.tableColumns(ctx, "jobs")
	if err != nil {
		return err
	}
	health.ColumnsPresent = columns

	have := make(map[string]bool, len(columns))
	for _, col := range columns {
		have[col] = true
	}
	for _, col := range jobTableColumns {
		if !have[col] {
			health.MissingColumns = append(health.MissingColumns, col)
		}
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
		return fmt.Errorf("count jobs: %w", err)
	}
	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return columns, nil
}
