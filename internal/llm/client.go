// Package llm provides the language-model capability used by the ASO
// pipelines: keyword extraction, reranking, generation, locale checks,
// competitor filtering, and store-copy generation.
//
// Calls go through a local model CLI in non-interactive mode. The
// client bounds concurrency with a semaphore, trips a circuit breaker
// on repeated failures, and parses strict-JSON output. A model that
// declines to answer surfaces as models.ErrLLMRefusal so callers can
// distinguish "bad output" from "no output".
package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/internal/config"
	"github.com/appagent/aso/pkg/models"
)

const (
	// MaxConcurrentCalls bounds in-flight CLI invocations.
	MaxConcurrentCalls = 4

	// MaxPromptSize caps a single prompt to avoid resource exhaustion.
	MaxPromptSize = 100 * 1024

	// callTimeout bounds one CLI invocation.
	callTimeout = 90 * time.Second

	// refusalMarker is what the system prompt instructs the model to
	// emit when it declines to produce structured output.
	refusalMarker = `"refused"`
)

// CircuitBreaker trips after repeated CLI failures so a broken local
// model does not stall every pipeline run behind timeouts.
type CircuitBreaker struct {
	failures     int64
	lastFailure  int64
	threshold    int64
	resetTimeout int64
	state        int32
}

const (
	circuitClosed   int32 = 0
	circuitOpen     int32 = 1
	circuitHalfOpen int32 = 2
)

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and retries after resetTimeout seconds.
func NewCircuitBreaker(threshold, resetTimeout int64) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, resetTimeout: resetTimeout}
}

// Allow checks if a call should be let through.
func (cb *CircuitBreaker) Allow() bool {
	state := atomic.LoadInt32(&cb.state)
	if state == circuitClosed {
		return true
	}

	if state == circuitOpen {
		lastFail := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().Unix()-lastFail > cb.resetTimeout {
			atomic.CompareAndSwapInt32(&cb.state, circuitOpen, circuitHalfOpen)
			return true
		}
		return false
	}

	// Half-open: allow one probe through.
	return true
}

// RecordSuccess resets the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt64(&cb.failures, 0)
	atomic.StoreInt32(&cb.state, circuitClosed)
}

// RecordFailure counts a failure and opens the breaker at threshold.
func (cb *CircuitBreaker) RecordFailure() {
	failures := atomic.AddInt64(&cb.failures, 1)
	atomic.StoreInt64(&cb.lastFailure, time.Now().Unix())

	if failures >= cb.threshold {
		atomic.StoreInt32(&cb.state, circuitOpen)
		log.Warn().Int64("failures", failures).Msg("Circuit breaker opened - model calls temporarily disabled")
	}
}

// Client calls the model CLI for structured ASO operations.
type Client struct {
	cliPath string
	model   string
	sem     chan struct{}
	breaker *CircuitBreaker
	// invoke is swappable in tests; defaults to the CLI exec path.
	invoke func(ctx context.Context, prompt string) (string, error)
}

// NewClient locates the model CLI and builds a client.
func NewClient() (*Client, error) {
	cfg := config.Get()

	cliPath := cfg.CLIPath
	if cliPath == "" {
		path, err := exec.LookPath("claude")
		if err != nil {
			return nil, fmt.Errorf("model CLI not found in PATH and APPAGENT_CLI_PATH not set")
		}
		cliPath = path
	}
	if _, err := os.Stat(cliPath); err != nil {
		return nil, fmt.Errorf("model CLI not found at %s: %w", cliPath, err)
	}

	c := &Client{
		cliPath: cliPath,
		model:   cfg.Model,
		sem:     make(chan struct{}, MaxConcurrentCalls),
		breaker: NewCircuitBreaker(5, 60),
	}
	c.invoke = c.callCLI
	return c, nil
}

// sanitizePrompt removes null bytes and control characters, keeping
// newlines, tabs, and carriage returns.
func sanitizePrompt(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 || r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// call runs one structured prompt through the CLI and unmarshals the
// JSON reply into out.
func (c *Client) call(ctx context.Context, prompt string, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("model circuit breaker open")
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	raw, err := c.invoke(ctx, prompt)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	c.breaker.RecordSuccess()

	raw = extractJSON(raw)
	if raw == "" {
		return fmt.Errorf("model returned no JSON payload")
	}
	if isRefusal(raw) {
		return models.ErrLLMRefusal
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	return nil
}

// callCLI invokes the model CLI non-interactively with the prompt.
func (c *Client) callCLI(ctx context.Context, prompt string) (string, error) {
	if len(prompt) > MaxPromptSize {
		return "", fmt.Errorf("prompt exceeds maximum size of %d bytes", MaxPromptSize)
	}
	prompt = sanitizePrompt(prompt)

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cliPath,
		"--print",
		"--model", c.model,
		"-p", systemPrompt+"\n\n"+prompt) // #nosec G204 -- cliPath is from config, prompt is internal

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("stderr", stderr.String()).
			Msg("Model CLI execution failed")
		return "", fmt.Errorf("model CLI failed: %w", err)
	}

	return stdout.String(), nil
}

// extractJSON strips markdown fencing and surrounding prose, returning
// the first top-level JSON object or array in the reply.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```"); idx >= 0 {
		raw = raw[idx+3:]
		raw = strings.TrimPrefix(raw, "json")
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
		raw = strings.TrimSpace(raw)
	}

	objStart := strings.IndexAny(raw, "{[")
	if objStart < 0 {
		return ""
	}
	openCh := raw[objStart]
	closeCh := byte('}')
	if openCh == '[' {
		closeCh = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := objStart; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return raw[objStart : i+1]
			}
		}
	}
	return ""
}

// isRefusal checks whether the payload is the structured refusal shape.
func isRefusal(payload string) bool {
	if !strings.Contains(payload, refusalMarker) {
		return false
	}
	var probe struct {
		Refused bool   `json:"refused"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return false
	}
	return probe.Refused
}
