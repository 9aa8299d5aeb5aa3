// Package piston forwards code-execution requests from the shared editor to
// a Piston-compatible code runner.
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL is the public Piston execute endpoint
const DefaultURL = "https://emkc.org/api/v2/piston/execute"

// maxResponseBytes caps how much of a runner response is read
const maxResponseBytes = 4 << 20

var ErrMissingLanguage = errors.New("language is required")

// File is one source file of an execution request
type File struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Request mirrors the runner's execute body. Zero values are omitted so
// the runner applies its own defaults.
type Request struct {
	Language           string   `json:"language"`
	Version            string   `json:"version,omitempty"`
	Files              []File   `json:"files"`
	Stdin              string   `json:"stdin,omitempty"`
	Args               []string `json:"args,omitempty"`
	CompileTimeout     int      `json:"compile_timeout,omitempty"`
	RunTimeout         int      `json:"run_timeout,omitempty"`
	CompileMemoryLimit int      `json:"compile_memory_limit,omitempty"`
	RunMemoryLimit     int      `json:"run_memory_limit,omitempty"`
}

// UpstreamError is returned when the runner answers with a failure status.
// Details holds the runner's response body.
type UpstreamError struct {
	StatusCode int
	Details    json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

// Client calls the code runner
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the execute endpoint at url. An empty url
// uses DefaultURL.
func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// URL returns the execute endpoint in use
func (c *Client) URL() string {
	return c.url
}

// Execute sends req to the runner and returns its response body unchanged
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Language == "" {
		return nil, ErrMissingLanguage
	}
	if req.Files == nil {
		req.Files = []File{}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read runner response: %w", err)
	}

	if resp.StatusCode >= 400 {
		upstream := &UpstreamError{StatusCode: resp.StatusCode}
		if json.Valid(body) {
			upstream.Details = body
		}
		return nil, upstream
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("runner returned invalid JSON")
	}
	return body, nil
}
