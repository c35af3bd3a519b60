package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mockingbird/internal/config"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/language"
	"mockingbird/internal/queue"
)

// jobAPI is the command-facing surface for job operations. Both adapters
// speak the control API vocabulary: missing jobs come back as nil without an
// error, and state-machine conflicts come back as *httpapi.APIError with a
// conflict status so commands render them the same way on either path.
type jobAPI interface {
	Stats(ctx context.Context) (map[queue.Status]int, error)
	List(ctx context.Context, status string) ([]httpapi.JobView, error)
	Describe(ctx context.Context, id string) (*httpapi.JobDetail, error)
	Submit(ctx context.Context, req httpapi.CreateJobRequest) (*httpapi.JobView, error)
	Pause(ctx context.Context, id string) (*httpapi.JobView, error)
	Resume(ctx context.Context, id string) (*httpapi.JobView, error)
	Abort(ctx context.Context, id string) (*httpapi.JobView, error)
	Retry(ctx context.Context, id string) (*httpapi.JobView, error)
	Remove(ctx context.Context, id string) (bool, error)
}

func conflict(format string, args ...any) error {
	return &httpapi.APIError{StatusCode: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// conflictDetail extracts the server's explanation from a state conflict.
func conflictDetail(err error) (string, bool) {
	var apiErr *httpapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return apiErr.Message, true
	}
	return "", false
}

func isNotFound(err error) bool {
	var apiErr *httpapi.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// --- control API adapter ---

type jobClientAdapter struct {
	client *httpapi.Client
}

func (a *jobClientAdapter) Stats(ctx context.Context) (map[queue.Status]int, error) {
	resp, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Queue, nil
}

func (a *jobClientAdapter) List(ctx context.Context, status string) ([]httpapi.JobView, error) {
	return a.client.ListJobs(ctx, status)
}

func (a *jobClientAdapter) Describe(ctx context.Context, id string) (*httpapi.JobDetail, error) {
	detail, err := a.client.GetJob(ctx, id)
	if isNotFound(err) {
		return nil, nil
	}
	return detail, err
}

func (a *jobClientAdapter) Submit(ctx context.Context, req httpapi.CreateJobRequest) (*httpapi.JobView, error) {
	return a.client.CreateJob(ctx, req)
}

func (a *jobClientAdapter) Pause(ctx context.Context, id string) (*httpapi.JobView, error) {
	view, err := a.client.PauseJob(ctx, id)
	if isNotFound(err) {
		return nil, nil
	}
	return view, err
}

func (a *jobClientAdapter) Resume(ctx context.Context, id string) (*httpapi.JobView, error) {
	view, err := a.client.ResumeJob(ctx, id)
	if isNotFound(err) {
		return nil, nil
	}
	return view, err
}

func (a *jobClientAdapter) Abort(ctx context.Context, id string) (*httpapi.JobView, error) {
	view, err := a.client.AbortJob(ctx, id)
	if isNotFound(err) {
		return nil, nil
	}
	return view, err
}

func (a *jobClientAdapter) Retry(ctx context.Context, id string) (*httpapi.JobView, error) {
	view, err := a.client.RetryJob(ctx, id)
	if isNotFound(err) {
		return nil, nil
	}
	return view, err
}

func (a *jobClientAdapter) Remove(ctx context.Context, id string) (bool, error) {
	err := a.client.RemoveJob(ctx, id)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- direct store adapter ---

// jobStoreAdapter applies the same transitions as the daemon's API handlers
// directly against the queue database. It only runs when no daemon answers,
// so there is no worker to interrupt.
type jobStoreAdapter struct {
	cfg   *config.Config
	store *queue.Store
}

func (a *jobStoreAdapter) Stats(ctx context.Context) (map[queue.Status]int, error) {
	return a.store.Stats(ctx)
}

func (a *jobStoreAdapter) List(ctx context.Context, status string) ([]httpapi.JobView, error) {
	var statuses []queue.Status
	if status != "" {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := a.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	views := make([]httpapi.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, httpapi.NewJobView(job))
	}
	return views, nil
}

func (a *jobStoreAdapter) Describe(ctx context.Context, id string) (*httpapi.JobDetail, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	var history []queue.JobError
	if rows, err := a.store.JobErrors(ctx, id); err == nil {
		history = rows
	}
	detail := httpapi.NewJobDetail(job, history)
	return &detail, nil
}

func (a *jobStoreAdapter) Submit(ctx context.Context, req httpapi.CreateJobRequest) (*httpapi.JobView, error) {
	languages := language.NormalizeList(req.Languages)
	if len(languages) == 0 {
		return nil, fmt.Errorf("no recognized target language in %v", req.Languages)
	}
	job, err := a.store.NewJob(
		ctx,
		strings.TrimSpace(req.SourcePath),
		strings.TrimSpace(req.Title),
		languages,
		queue.NewProcessingConfig(a.cfg),
	)
	if err != nil {
		return nil, err
	}
	view := httpapi.NewJobView(job)
	return &view, nil
}

func (a *jobStoreAdapter) Pause(ctx context.Context, id string) (*httpapi.JobView, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	parked, err := a.store.PauseJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !parked {
		return nil, conflict("job is %s and cannot be paused", job.Status)
	}
	return a.view(ctx, id)
}

func (a *jobStoreAdapter) Resume(ctx context.Context, id string) (*httpapi.JobView, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	resumed, err := a.store.ResumeJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !resumed {
		return nil, conflict("job is %s; only paused jobs resume", job.Status)
	}
	return a.view(ctx, id)
}

func (a *jobStoreAdapter) Abort(ctx context.Context, id string) (*httpapi.JobView, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	if queue.IsTerminalStatus(job.Status) {
		return nil, conflict("job is already %s", job.Status)
	}
	job.SetFailed(queue.UserAbortReason)
	if err := a.store.Update(ctx, job); err != nil {
		return nil, err
	}
	return a.view(ctx, id)
}

func (a *jobStoreAdapter) Retry(ctx context.Context, id string) (*httpapi.JobView, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	updated, err := a.store.RetryFailed(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		return nil, conflict("job is %s; only failed jobs can be retried", job.Status)
	}
	return a.view(ctx, id)
}

func (a *jobStoreAdapter) Remove(ctx context.Context, id string) (bool, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return false, err
	}
	if job.IsProcessing() {
		return false, conflict("job is processing; pause or abort it first")
	}
	return a.store.Remove(ctx, id)
}

func (a *jobStoreAdapter) view(ctx context.Context, id string) (*httpapi.JobView, error) {
	job, err := a.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s disappeared mid-update", id)
	}
	view := httpapi.NewJobView(job)
	return &view, nil
}
