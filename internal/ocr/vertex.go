// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultVertexModel is used when the OCR model is unset for the vertex backend.
const DefaultVertexModel = "gemini-2.0-flash"

const vertexSystemPrompt = "You transcribe scanned pages of academic papers. Output Markdown only, with no commentary."

// VertexClient transcribes pages to Markdown with a Gemini model on Vertex
// AI. It only serves the markdown generation; layout elements need the
// DotsOCR endpoint.
type VertexClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	prompt string
}

// NewVertexClient connects to Vertex AI using application default credentials.
func NewVertexClient(ctx context.Context, cfg types.OCRConfig) (*VertexClient, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("vertex OCR backend needs ocr.project")
	}
	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}
	client, err := genai.NewClient(ctx, cfg.Project, location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	name := cfg.Model
	if name == "" || name == DefaultModel {
		name = DefaultVertexModel
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(vertexSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	if cfg.MaxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(cfg.MaxTokens))
	}

	prompt := cfg.MarkdownPrompt
	if prompt == "" {
		prompt = DefaultMarkdownPrompt
	}
	return &VertexClient{client: client, model: model, prompt: prompt}, nil
}

// Markdown transcribes one page image.
func (v *VertexClient) Markdown(ctx context.Context, png []byte) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(v.prompt))
	if err != nil {
		return "", fmt.Errorf("vertex OCR: %w", err)
	}
	return responseText(resp)
}

// Close releases the underlying client.
func (v *VertexClient) Close() error {
	return v.client.Close()
}

// responseText returns the first candidate's text. A response without
// text, such as a safety block, is ErrEmptyResponse so the page falls back
// to its text layer.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	cand := resp.Candidates[0]
	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	text := StripFences(b.String())
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("finish reason %v: %w", cand.FinishReason, ErrEmptyResponse)
	}
	return text, nil
}
