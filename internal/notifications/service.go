package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stepweave/internal/config"
)

const userAgent = "stepweave/0.1"

// RunSummary is what a completed-run notification reports.
type RunSummary struct {
	TaskID   string
	Title    string
	Sources  int
	Notables int
	Hooks    int
	Warnings int
	Duration time.Duration
}

// Service is the notification surface the CLI uses.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyRunFailed(ctx context.Context, taskID string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
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

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, s RunSummary) error {
	name := strings.TrimSpace(s.Title)
	if name == "" {
		name = s.TaskID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciled %d sources for %s\n", s.Sources, name)
	fmt.Fprintf(&b, "%d notables, %d hooks", s.Notables, s.Hooks)
	if s.Warnings > 0 {
		fmt.Fprintf(&b, ", %d warnings", s.Warnings)
	}
	if s.Duration > 0 {
		fmt.Fprintf(&b, " in %s", s.Duration.Round(time.Second))
	}
	data := payload{
		title:   "stepweave - Run Complete",
		message: b.String(),
		tags:    []string{"stepweave", "run", "completed"},
	}
	if s.Warnings > 0 {
		data.tags = append(data.tags, "warning")
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, taskID string, err error) error {
	message := fmt.Sprintf("Run failed: %s", strings.TrimSpace(taskID))
	if err != nil {
		message += "\n" + err.Error()
	}
	return n.send(ctx, payload{
		title:    "stepweave - Run Failed",
		message:  message,
		tags:     []string{"stepweave", "run", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "stepweave - Test",
		message:  "Notification system test",
		tags:     []string{"stepweave", "test"},
		priority: "low",
	})
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

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
