// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm calls the Claude Messages API for the translation and tagging
// stages.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ErrEmptyContent reports a response without any text block.
var ErrEmptyContent = errors.New("Claude API returned no text content")

// Request is one single-turn completion.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// ClaudeBackend calls the Claude API. HTTP 429 and 503 are retried by
// httputil.DoWithRetry; other failures surface to the caller.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

// NewClaudeBackend builds a backend from cfg.
func NewClaudeBackend(cfg types.AIConfig, client *http.Client) *ClaudeBackend {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeBackend{APIKey: cfg.APIKey, Model: model, Client: client}
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends r and returns the trimmed text of the reply.
func (c *ClaudeBackend) Complete(ctx context.Context, r Request) (string, error) {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		System:    r.System,
		Messages: []claudeMessage{
			{Role: "user", Content: r.Prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	var b strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyContent
	}
	return strings.TrimSpace(b.String()), nil
}

// Completer is anything that answers a Request. Consumers accept it so
// tests can supply a fake.
type Completer interface {
	Complete(ctx context.Context, r Request) (string, error)
}

// BackoffBase controls the base duration for exponential backoff in
// CompleteWithRetry. Tests override this to avoid real sleeps.
var BackoffBase = time.Second

// CompleteWithRetry calls backend with exponential backoff, making at most
// maxRetries+1 attempts.
func CompleteWithRetry(ctx context.Context, backend Completer, r Request, maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BackoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := backend.Complete(ctx, r)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
