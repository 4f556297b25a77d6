// Package engine talks to the code-generation engine. The real engine is
// out of scope; the client ships with a stub mode that simulates an
// execution run and its event stream.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by an execution run.
const (
	EventTypeRunCreated = "run.created"
	EventTypeProgress   = "progress"
	EventTypeCompletion = "completion"
)

// Event is a discrete progress or completion signal from the engine.
type Event struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// RunInput describes one generation run.
type RunInput struct {
	Prompt        string `json:"prompt"`
	RepositoryURL string `json:"repository_url"`
	JobID         string `json:"job_id"`
}

// ExecutionStreamer is the capability consumed by the orchestration step.
type ExecutionStreamer interface {
	StreamExecution(ctx context.Context, in RunInput) ([]Event, error)
}

// Client implements ExecutionStreamer against the generation engine API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates an engine client. With stubMode enabled no network
// calls are made.
func NewClient(baseURL string, stubMode bool) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		stubMode:   stubMode,
	}
}

// StreamExecution starts a run and consumes its event sequence. The
// completion event carries the pull-request URL under data.pr_url.
func (c *Client) StreamExecution(ctx context.Context, in RunInput) ([]Event, error) {
	if c.stubMode {
		return []Event{
			{
				Type: EventTypeRunCreated,
				Data: map[string]string{
					"thread_id": uuid.New().String(),
					"run_id":    uuid.New().String(),
				},
			},
			{
				Type: EventTypeProgress,
				Data: map[string]string{"message": "analyzing prompt"},
			},
			{
				Type: EventTypeProgress,
				Data: map[string]string{"message": "generating application code"},
			},
			{
				Type: EventTypeCompletion,
				Data: map[string]string{"pr_url": in.RepositoryURL + "/pull/1"},
			},
		}, nil
	}

	jsonData, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/runs/stream", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(body))
	}

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode event stream: %w", err)
	}
	return events, nil
}
