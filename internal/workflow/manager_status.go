package workflow

import (
	"context"

	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastJob     *queue.Job
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	summary, stages := m.snapshot()

	stats, err := m.store.Stats(ctx)
	if err != nil && m.logger != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats

	summary.StageHealth = make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		if stg.handler == nil {
			continue
		}
		summary.StageHealth[stg.name] = stg.handler.HealthCheck(ctx)
	}
	return summary
}

// snapshot copies the mutable manager state under the read lock. Queue stats
// and health checks run outside it so a slow handler cannot stall Stop or
// job bookkeeping.
func (m *Manager) snapshot() (StatusSummary, []pipelineStage) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		clone := *m.lastJob
		summary.LastJob = &clone
	}

	var stages []pipelineStage
	for _, lane := range m.laneOrder {
		if state := m.lanes[lane]; state != nil {
			stages = append(stages, state.stages...)
		}
	}
	return summary, stages
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	var snapshot *queue.Job
	if job != nil {
		clone := *job
		snapshot = &clone
	}
	m.mu.Lock()
	m.lastJob = snapshot
	m.mu.Unlock()
}
