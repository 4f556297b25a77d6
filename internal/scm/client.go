// Package scm talks to the source-control service that hosts generated
// repositories. The real implementation is out of scope; the client ships
// with a stub mode that simulates repository creation.
package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RepositoryCreator is the capability consumed by the orchestration step.
type RepositoryCreator interface {
	CreateRepository(ctx context.Context, name, description string) (string, error)
}

// Client implements RepositoryCreator against a GitHub-style API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates a source-control client. With stubMode enabled no
// network calls are made.
func NewClient(baseURL, token string, stubMode bool) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		stubMode:   stubMode,
	}
}

// CreateRepository creates a repository and returns its URL.
func (c *Client) CreateRepository(ctx context.Context, name, description string) (string, error) {
	if c.stubMode {
		return "https://github.com/appforge/" + name, nil
	}

	reqBody := map[string]string{
		"name":        name,
		"description": description,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user/repos", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("repository creation returned status %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return created.HTMLURL, nil
}
