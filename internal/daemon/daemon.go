package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/workflow"
)

const (
	scratchSweepInterval = time.Hour
	scratchMaxAge        = 48 * time.Hour
	shutdownTimeout      = 5 * time.Second
)

// Daemon coordinates the workflow manager and control API and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	server   *httpapi.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	sweepWG sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	APIBind      string
}

// New constructs a daemon with initialized dependencies. The API server is
// optional; a daemon without one still drains the queue.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, server *httpapi.Server) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, resets jobs orphaned by an earlier crash,
// and launches the workflow manager, control API, and scratch sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mockingbird daemon instance is already running")
	}

	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		d.logger.Warn("reset stuck jobs", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset stuck jobs from previous run", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			cancel()
			d.workflow.Stop()
			_ = d.lock.Unlock()
			return fmt.Errorf("start control api: %w", err)
		}
	}

	d.cancel = cancel
	d.sweepWG.Add(1)
	go d.sweepScratch(runCtx)

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// sweepScratch periodically removes scratch directories whose jobs stopped
// touching them. Completed jobs release their scratch on the spot; this
// catches directories orphaned by crashes and removed jobs.
func (d *Daemon) sweepScratch(ctx context.Context) {
	defer d.sweepWG.Done()

	ticker := time.NewTicker(scratchSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := audio.CleanStale(ctx, d.cfg.ScratchRoot(), scratchMaxAge, d.logger)
			if len(result.Removed) > 0 {
				d.logger.Info("cleaned stale scratch directories",
					logging.Int("removed", len(result.Removed)),
					logging.Int("failed", len(result.Errors)),
				)
			}
		}
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.sweepWG.Wait()

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("shut down control api", logging.Error(err))
		}
		cancel()
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has started and not yet stopped.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if d.server != nil {
		status.APIBind = d.server.Addr()
	}
	return status
}
