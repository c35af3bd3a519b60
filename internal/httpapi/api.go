package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/resource"
	"mockingbird/internal/services/providers"
	"mockingbird/internal/stage"
	"mockingbird/internal/workflow"
)

// API exposes queue and daemon control over HTTP. Job rows are the source of
// truth; the manager is only consulted to cancel in-flight stages and to
// report run state.
type API struct {
	cfg      *config.Config
	store    *queue.Store
	manager  *workflow.Manager
	guard    *resource.Guard
	registry *providers.Registry
	logger   *slog.Logger
}

// NewAPI constructs the handler set around the daemon's shared dependencies.
func NewAPI(cfg *config.Config, store *queue.Store, manager *workflow.Manager, guard *resource.Guard, registry *providers.Registry, logger *slog.Logger) *API {
	return &API{cfg: cfg, store: store, manager: manager, guard: guard, registry: registry, logger: logger}
}

func registerRoutes(r *gin.Engine, api *API) {
	// The health probe stays open so `daemon status` and start-up waits work
	// without credentials; everything else sits behind the token.
	r.GET("/healthz", api.handleHealthz)

	v1 := r.Group("/api/v1", bearerAuth(api.cfg.Paths.APIToken))
	{
		v1.POST("/jobs", api.handleCreateJob)
		v1.GET("/jobs", api.handleListJobs)
		v1.GET("/jobs/:id", api.handleGetJob)
		v1.DELETE("/jobs/:id", api.handleRemoveJob)
		v1.GET("/jobs/:id/errors", api.handleJobErrors)
		v1.POST("/jobs/:id/pause", api.handlePauseJob)
		v1.POST("/jobs/:id/resume", api.handleResumeJob)
		v1.POST("/jobs/:id/abort", api.handleAbortJob)
		v1.POST("/jobs/:id/retry", api.handleRetryJob)
		v1.GET("/status", api.handleStatus)
	}
}

// JobView is the wire shape of a queue job.
type JobView struct {
	ID               string            `json:"id"`
	Title            string            `json:"title,omitempty"`
	SourcePath       string            `json:"source_path"`
	TargetLanguages  []string          `json:"target_languages"`
	DetectedLanguage string            `json:"detected_language,omitempty"`
	Status           queue.Status      `json:"status"`
	Stage            queue.Stage       `json:"stage"`
	ProgressStage    string            `json:"progress_stage,omitempty"`
	ProgressPercent  float64           `json:"progress_percent"`
	ProgressMessage  string            `json:"progress_message,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	WarningCount     int               `json:"warning_count"`
	RetryCount       int               `json:"retry_count"`
	OutputFiles      map[string]string `json:"output_files,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// JobDetail adds the owned collections a single-job read returns.
type JobDetail struct {
	JobView
	Segments   []queue.Segment  `json:"segments,omitempty"`
	MixReports json.RawMessage  `json:"mix_reports,omitempty"`
	History    []queue.JobError `json:"history,omitempty"`
}

// StatusResponse is the daemon-wide view behind GET /api/v1/status.
type StatusResponse struct {
	Running     bool                    `json:"running"`
	ActiveJobs  []string                `json:"active_jobs,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	Queue       map[queue.Status]int    `json:"queue"`
	StageHealth map[string]stage.Health `json:"stage_health"`
	Hardware    resource.Summary        `json:"hardware"`
	Providers   providers.Summary       `json:"providers"`
}

// NewJobView projects a queue row into the wire shape. The CLI's offline
// store path uses it too, so both transports present identical jobs.
func NewJobView(job *queue.Job) JobView {
	view := JobView{
		ID:               job.ID,
		Title:            job.Title,
		SourcePath:       job.SourcePath,
		TargetLanguages:  job.TargetLanguages,
		DetectedLanguage: job.DetectedLanguage,
		Status:           job.Status,
		Stage:            job.Stage,
		ProgressStage:    job.ProgressStage,
		ProgressPercent:  job.ProgressPercent,
		ProgressMessage:  job.ProgressMessage,
		ErrorMessage:     job.ErrorMessage,
		WarningCount:     job.WarningCount,
		RetryCount:       job.RetryCount,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
	if files, err := job.OutputFiles(); err == nil && len(files) > 0 {
		view.OutputFiles = files
	}
	return view
}

// NewJobDetail expands a row into the single-job read shape.
func NewJobDetail(job *queue.Job, history []queue.JobError) JobDetail {
	detail := JobDetail{JobView: NewJobView(job), History: history}
	if segments, err := job.Segments(); err == nil {
		detail.Segments = segments
	}
	if strings.TrimSpace(job.MixReportsJSON) != "" {
		detail.MixReports = json.RawMessage(job.MixReportsJSON)
	}
	return detail
}

func (a *API) handleCreateJob(c *gin.Context) {
	var payload struct {
		SourcePath string   `json:"source_path" binding:"required"`
		Title      string   `json:"title"`
		Languages  []string `json:"languages" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	languages := language.NormalizeList(payload.Languages)
	if len(languages) == 0 {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("no recognized target language in %v", payload.Languages))
		return
	}

	job, err := a.store.NewJob(
		c.Request.Context(),
		strings.TrimSpace(payload.SourcePath),
		strings.TrimSpace(payload.Title),
		languages,
		queue.NewProcessingConfig(a.cfg),
	)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, NewJobView(job))
}

func (a *API) handleListJobs(c *gin.Context) {
	var statuses []queue.Status
	if raw := c.Query("status"); raw != "" {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			respondMessage(c, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := a.store.List(c.Request.Context(), statuses...)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, NewJobView(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": views})
}

func (a *API) handleGetJob(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}

	var history []queue.JobError
	if rows, err := a.store.JobErrors(c.Request.Context(), job.ID); err == nil {
		history = rows
	}
	c.JSON(http.StatusOK, NewJobDetail(job, history))
}

func (a *API) handleJobErrors(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}
	history, err := a.store.JobErrors(c.Request.Context(), job.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "errors": history})
}

func (a *API) handlePauseJob(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}

	parked, err := a.store.PauseJob(c.Request.Context(), job.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if !parked {
		respondMessage(c, http.StatusConflict, fmt.Sprintf("job is %s and cannot be paused", job.Status))
		return
	}
	// Park first, cancel second: the worker's rollback sees the paused row
	// and leaves it where the operator put it.
	a.manager.Interrupt(job.ID)
	a.respondJob(c, job.ID)
}

func (a *API) handleResumeJob(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}

	resumed, err := a.store.ResumeJob(c.Request.Context(), job.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if !resumed {
		respondMessage(c, http.StatusConflict, fmt.Sprintf("job is %s; only paused jobs resume", job.Status))
		return
	}
	a.respondJob(c, job.ID)
}

func (a *API) handleAbortJob(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}
	if queue.IsTerminalStatus(job.Status) {
		respondMessage(c, http.StatusConflict, fmt.Sprintf("job is already %s", job.Status))
		return
	}

	job.SetFailed(queue.UserAbortReason)
	if err := a.store.Update(c.Request.Context(), job); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	a.manager.Interrupt(job.ID)
	c.JSON(http.StatusOK, NewJobView(job))
}

func (a *API) handleRetryJob(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}

	requeued, err := a.store.RetryFailed(c.Request.Context(), job.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if requeued == 0 {
		respondMessage(c, http.StatusConflict, fmt.Sprintf("job is %s; only failed jobs can be retried", job.Status))
		return
	}
	a.respondJob(c, job.ID)
}

func (a *API) handleRemoveJob(c *gin.Context) {
	job, ok := a.lookupJob(c)
	if !ok {
		return
	}
	if job.IsProcessing() {
		respondMessage(c, http.StatusConflict, "job is processing; pause or abort it first")
		return
	}

	removed, err := a.store.Remove(c.Request.Context(), job.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}

	// The row, segments, and checkpoint are gone; drop the scratch directory
	// now instead of waiting for the stale sweep.
	if scratch, err := audio.OpenScratch(a.cfg.ScratchRoot(), job.ID); err == nil {
		if err := scratch.ReleaseAll(); err != nil {
			a.logger.Warn("failed to release scratch for removed job",
				logging.String("job_id", job.ID), logging.Error(err))
		}
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleStatus(c *gin.Context) {
	summary := a.manager.Status(c.Request.Context())
	resp := StatusResponse{
		Running:     summary.Running,
		ActiveJobs:  a.manager.ActiveJobs(),
		LastError:   summary.LastError,
		Queue:       summary.QueueStats,
		StageHealth: summary.StageHealth,
		Hardware:    a.guard.Summary(),
		Providers:   a.registry.Summary(),
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleHealthz(c *gin.Context) {
	if _, err := a.store.CheckHealth(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// lookupJob resolves the :id parameter, writing the error response itself
// when the job cannot be served.
func (a *API) lookupJob(c *gin.Context) (*queue.Job, bool) {
	job, err := a.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	if job == nil {
		respondMessage(c, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

// respondJob re-reads the row so the response reflects what the transition
// actually persisted.
func (a *API) respondJob(c *gin.Context, id string) {
	job, err := a.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, NewJobView(job))
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
