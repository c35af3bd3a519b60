package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
)

// HeartbeatMonitor keeps in-flight jobs alive and reclaims the ones whose
// worker died without rolling them back.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor. A zero interval disables the
// refresh loop; a zero timeout disables reclamation.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval, timeout: timeout}
}

// ReclaimStaleJobs rolls jobs whose heartbeats expired back to the start of
// their stage so a live lane can pick them up again. It reports how many
// jobs were reclaimed.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context, statuses ...queue.Status) (int64, error) {
	if h.timeout <= 0 || len(statuses) == 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-h.timeout)
	return h.store.ReclaimStaleProcessing(ctx, cutoff, statuses...)
}

// StartLoop refreshes a job's heartbeat until the context is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.UpdateHeartbeat(ctx, jobID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
