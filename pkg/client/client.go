// Package client provides a Go client for the ASO worker API,
// including a consumer for the newline-delimited JSON progress streams
// the pipeline endpoints produce.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/pkg/models"
)

const (
	// DefaultTimeout bounds plain request/response calls. Streaming
	// pipeline calls use the caller's context instead.
	DefaultTimeout = 10 * time.Second

	// maxLineSize caps a single progress event line.
	maxLineSize = 1 << 20
)

// Client talks to a running ASO worker.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// New creates a client for the worker at baseURL, e.g.
// "http://127.0.0.1:38080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		stream:  &http.Client{},
	}
}

// Healthy reports whether the worker answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Post sends a JSON request and decodes the JSON response into out.
// Pass nil out to discard the body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Get sends a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stream invokes a streaming pipeline endpoint and calls onEvent for
// each progress event as it arrives. Lines that fail to parse are
// logged and skipped; the stream carries on. An "error" event is
// surfaced both through onEvent and as the returned error.
func (c *Client) Stream(ctx context.Context, path string, body any, onEvent func(models.ProgressEvent)) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	var pipelineErr error
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var event models.ProgressEvent
		if err := json.Unmarshal(line, &event); err != nil {
			log.Warn().Err(err).Msg("Skipping unparseable progress line")
			continue
		}

		if event.Type == models.EventError {
			pipelineErr = fmt.Errorf("pipeline failed: %s", event.Message)
		}
		if onEvent != nil {
			onEvent(event)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pipelineErr
}

// decodeAPIError turns an error response into a Go error, preserving
// the server's message when it sent one.
func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
