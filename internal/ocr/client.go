// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr calls layout-understanding models with rendered page images.
// Clients are stateless and safe for concurrent use. They do not retry;
// a failed call is final for that page and the caller falls back to the
// PDF text layer.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// Defaults for an OpenAI-compatible DotsOCR deployment.
const (
	DefaultModel          = "dotsocr-model"
	DefaultElementPrompt  = "prompt_layout_all_en"
	DefaultMarkdownPrompt = "Convert this page of an academic paper to Markdown. Keep headings, lists, tables, and LaTeX formulas. Omit running headers, footers, and page numbers. Return only the Markdown."
	DefaultMaxTokens      = 24000
)

// ErrEmptyResponse reports a completion without any choices.
var ErrEmptyResponse = errors.New("OCR service returned no choices")

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	api            *openai.Client
	model          string
	elementPrompt  string
	markdownPrompt string
	maxTokens      int
}

// NewClient builds a Client from cfg. httpClient may be nil.
func NewClient(cfg types.OCRConfig, httpClient *http.Client) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = cfg.Endpoint
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	} else if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		api:            openai.NewClientWithConfig(oc),
		model:          cfg.Model,
		elementPrompt:  cfg.ElementPrompt,
		markdownPrompt: cfg.MarkdownPrompt,
		maxTokens:      cfg.MaxTokens,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.elementPrompt == "" {
		c.elementPrompt = DefaultElementPrompt
	}
	if c.markdownPrompt == "" {
		c.markdownPrompt = DefaultMarkdownPrompt
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	return c
}

// Elements asks for the page's typed layout records. A response that
// cannot be decoded yields an empty slice and a nil error.
func (c *Client) Elements(ctx context.Context, png []byte) ([]types.RawElement, error) {
	raw, err := c.complete(ctx, png, c.elementPrompt)
	if err != nil {
		return nil, err
	}
	return ParseElements(raw), nil
}

// Markdown asks for the page transcribed as Markdown.
func (c *Client) Markdown(ctx context.Context, png []byte) (string, error) {
	raw, err := c.complete(ctx, png, c.markdownPrompt)
	if err != nil {
		return "", err
	}
	return StripFences(raw), nil
}

func (c *Client) complete(ctx context.Context, png []byte, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: DataURI(png)},
				},
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("OCR request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// DataURI encodes png as a data: URL.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
