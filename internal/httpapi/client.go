package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides HTTP access to a running daemon's control API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// APIError is a non-2xx response from the control API, carrying the server's
// error message so the CLI can show it verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("control api returned status %d", e.StatusCode)
	}
	return e.Message
}

// NewClient builds a client for the control API at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + strings.TrimSpace(addr),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithToken attaches the bearer token sent on every request. An empty token
// leaves requests unauthenticated, matching a daemon with no token set.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// Healthz reports whether the daemon answers on its health endpoint.
func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status retrieves the daemon status summary.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateJobRequest is the submission payload for a new dubbing job.
type CreateJobRequest struct {
	SourcePath string   `json:"source_path"`
	Title      string   `json:"title,omitempty"`
	Languages  []string `json:"languages"`
}

// CreateJob submits a new job and returns its queued view.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*JobView, error) {
	var view JobView
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListJobs returns queued jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, status string) ([]JobView, error) {
	path := "/api/v1/jobs"
	if strings.TrimSpace(status) != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Jobs []JobView `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob returns the full detail for one job.
func (c *Client) GetJob(ctx context.Context, id string) (*JobDetail, error) {
	var detail JobDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// PauseJob parks the job; a running stage is interrupted.
func (c *Client) PauseJob(ctx context.Context, id string) (*JobView, error) {
	return c.jobAction(ctx, id, "pause")
}

// ResumeJob returns a paused job to its dispatch status.
func (c *Client) ResumeJob(ctx context.Context, id string) (*JobView, error) {
	return c.jobAction(ctx, id, "resume")
}

// AbortJob fails the job permanently and interrupts any running stage.
func (c *Client) AbortJob(ctx context.Context, id string) (*JobView, error) {
	return c.jobAction(ctx, id, "abort")
}

// RetryJob requeues a failed job from its last committed stage.
func (c *Client) RetryJob(ctx context.Context, id string) (*JobView, error) {
	return c.jobAction(ctx, id, "retry")
}

// RemoveJob deletes a non-processing job from the queue.
func (c *Client) RemoveJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(id), nil, nil)
}

func (c *Client) jobAction(ctx context.Context, id, action string) (*JobView, error) {
	var view JobView
	path := "/api/v1/jobs/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var wire struct {
			Error string `json:"error"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
			if json.Unmarshal(data, &wire) == nil {
				apiErr.Message = wire.Error
			}
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
