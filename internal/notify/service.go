package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mockingbird/internal/config"
)

const userAgent = "Mockingbird/0.1.0"

// Service is the notification surface the workflow raises terminal job
// events through. Implementations must be safe for concurrent use; lanes
// publish independently.
type Service interface {
	JobCompleted(ctx context.Context, title string, languages []string, warnings int) error
	JobFailed(ctx context.Context, title, reason string) error
}

// NewService builds an ntfy-backed notifier from the configured topic.
// Without a topic a noop implementation is returned so callers never branch.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) JobCompleted(ctx context.Context, title string, languages []string, warnings int) error {
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("✅ Dub ready: %s", title)
	if len(languages) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(languages, ", "))
	}

	data := payload{
		title:    "Mockingbird - Dub Complete",
		message:  message,
		tags:     []string{"mockingbird", "job", "completed"},
		priority: "high",
	}
	if warnings > 0 {
		data.title = "Mockingbird - Dub Complete (with warnings)"
		data.message = fmt.Sprintf("%s\n%d segment warnings recorded", message, warnings)
	}
	return n.send(ctx, data)
}

func (n *ntfyService) JobFailed(ctx context.Context, title, reason string) error {
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}

	data := payload{
		title:    "Mockingbird - Job Failed",
		message:  fmt.Sprintf("❌ Dub failed: %s: %s", title, reason),
		tags:     []string{"mockingbird", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) JobCompleted(context.Context, string, []string, int) error { return nil }

func (noopService) JobFailed(context.Context, string, string) error { return nil }
