package workflow

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"mockingbird/internal/config"
	"mockingbird/internal/notify"
	"mockingbird/internal/queue"
)

// Manager advances jobs through the dubbing pipeline using registered stage
// handlers. It runs one polling goroutine per lane and tracks in-flight jobs
// so pause and abort requests can cancel a running stage.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notify.Service
	pollInterval time.Duration

	heartbeat *HeartbeatMonitor

	lanes     map[queue.ProcessingLane]*laneState
	laneOrder []queue.ProcessingLane

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
	active  map[string]context.CancelFunc
}

// NewManager constructs a workflow manager. Call ConfigureStages before Start.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notify.NewService(cfg))
}

// NewManagerWithNotifier constructs a manager publishing terminal job events
// through the provided notifier. Tests inject stubs here.
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notify.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		lanes:  make(map[queue.ProcessingLane]*laneState),
		active: make(map[string]context.CancelFunc),
	}
}
