package workflow

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"mockingbird/internal/logging"
)

// Start begins lane processing. It returns immediately; lanes poll until the
// context is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	lanes := make([]*laneState, 0, len(m.laneOrder))
	for _, kind := range m.laneOrder {
		lane := m.lanes[kind]
		if lane == nil || len(lane.statusOrder) == 0 {
			continue
		}
		lanes = append(lanes, lane)
	}
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for _, lane := range lanes {
		lane.logger = m.laneLogger(lane)
	}
	m.wg.Add(len(lanes))
	m.mu.Unlock()

	for _, lane := range lanes {
		go m.runLane(runCtx, lane)
	}
	return nil
}

// Stop cancels lane processing and waits for in-flight stages to unwind.
// Interrupted jobs return to the start of their stage so a later start
// resumes them from the last checkpoint.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether lanes are currently polling.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runLane(ctx context.Context, lane *laneState) {
	defer m.wg.Done()
	logger := lane.logger
	if logger == nil {
		logger = logging.NewNop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reclaimed, err := m.heartbeat.ReclaimStaleJobs(ctx, lane.processingStatuses...)
		if err != nil {
			logger.Warn("reclaim stale processing failed; stuck jobs may remain", logging.Error(err))
		} else if reclaimed > 0 {
			logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
		}

		job, err := m.store.NextForStatuses(ctx, lane.statusOrder...)
		if err != nil {
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, lane, logger, job); err != nil {
			// Cancellation may come from an operator interrupt on one job
			// rather than shutdown; only the lane context decides the loop.
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
		}
	}
}

func (m *Manager) handleFetchError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to fetch next job", logging.Error(err))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return m.logger.With(
		logging.String(logging.FieldComponent, "workflow"),
		logging.String(logging.FieldLane, lane.name),
	)
}

// Interrupt cancels the in-flight stage for a job. It returns true when a
// running stage was cancelled; callers park or fail the job row themselves
// before interrupting so the worker leaves it alone.
func (m *Manager) Interrupt(jobID string) bool {
	m.mu.RLock()
	cancel, ok := m.active[jobID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (m *Manager) trackActive(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.active[jobID] = cancel
	m.mu.Unlock()
}

func (m *Manager) clearActive(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}

// ActiveJobs returns the IDs of jobs whose stages are currently executing.
func (m *Manager) ActiveJobs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}
