package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/posthog/taskagent/internal/task"
)

// APIError is a non-2xx response from the remote store.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API status %d: %s", e.Status, e.Body)
}

// Client talks to the task/run store over HTTP.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (tests, custom transports).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the store at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// FetchTask retrieves a task record by ID.
func (c *Client) FetchTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateRun creates a new run for a task with the given initial status.
func (c *Client) CreateRun(ctx context.Context, taskID, status string) (*Run, error) {
	var r Run
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/runs", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRun applies a partial update to a run.
func (c *Client) UpdateRun(ctx context.Context, taskID, runID string, patch RunPatch) (*Run, error) {
	var r Run
	path := fmt.Sprintf("/api/tasks/%s/runs/%s", taskID, runID)
	if err := c.do(ctx, http.MethodPatch, path, patch, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AppendRunLog appends entries to a run's log, preserving order.
func (c *Client) AppendRunLog(ctx context.Context, taskID, runID string, entries []LogEntry) error {
	path := fmt.Sprintf("/api/tasks/%s/runs/%s/log", taskID, runID)
	body := map[string]any{"entries": entries}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// UploadArtifacts pushes task artifacts to the remote store.
func (c *Client) UploadArtifacts(ctx context.Context, taskID, runID string, items []ArtifactUpload) ([]ArtifactUploadResult, error) {
	path := fmt.Sprintf("/api/tasks/%s/runs/%s/artifacts", taskID, runID)
	var results []ArtifactUploadResult
	body := map[string]any{"artifacts": items}
	if err := c.do(ctx, http.MethodPost, path, body, &results); err != nil {
		return nil, err
	}
	return results, nil
}
