// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "Mozilla/5.0 (compatible; HFPapersBot/1.0)").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-haiku-4-5-20251001").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ListingConfig holds settings for the daily paper listing source.
type ListingConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the listing API host (default "https://huggingface.co").
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// ArxivConfig holds settings for the arXiv HTML mirror and PDF source.
type ArxivConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the arXiv host serving /html/{id} and /pdf/{id}.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// DownloadDelay is the pause after each PDF download (default 1s).
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay"`

	// MinPDFBytes is the size above which an existing PDF is reused (default 1024).
	MinPDFBytes int64 `json:"min_pdf_bytes" yaml:"min_pdf_bytes"`

	// MinFigureBytes is the smallest HTML figure download that is kept (default 500).
	MinFigureBytes int `json:"min_figure_bytes" yaml:"min_figure_bytes"`

	// DisableHTML skips the HTML mirror and always takes the PDF path.
	DisableHTML bool `json:"disable_html" yaml:"disable_html"`
}

// OCRBackend selects the layout OCR service.
type OCRBackend string

const (
	// OCROpenAI is any OpenAI-compatible chat-completions endpoint (e.g. a DotsOCR deployment).
	OCROpenAI OCRBackend = "openai"

	// OCRVertex is Gemini on Vertex AI. Markdown generation only.
	OCRVertex OCRBackend = "vertex"
)

// OCRConfig holds settings for the layout OCR client.
type OCRConfig struct {
	// Backend selects the OCR service: openai or vertex.
	Backend OCRBackend `json:"backend" yaml:"backend"`

	// Endpoint is the OpenAI-compatible base URL (e.g. "https://ocr.example.com/v1").
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey authenticates against Endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model name sent with each request (default "dotsocr-model").
	Model string `json:"model" yaml:"model"`

	// ElementPrompt is the instruction sent with each page in element-list mode.
	ElementPrompt string `json:"element_prompt" yaml:"element_prompt"`

	// MarkdownPrompt is the instruction sent with each page in Markdown mode.
	MarkdownPrompt string `json:"markdown_prompt" yaml:"markdown_prompt"`

	// MaxTokens caps the completion length (default 24000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout bounds a single page request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Project and Location identify the Vertex AI deployment.
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// ParseMode selects which PDF generation produces the Document.
type ParseMode string

const (
	ParseElements ParseMode = "elements"
	ParseMarkdown ParseMode = "markdown"
)

// ParseConfig holds settings for the PDF reassembly stage.
type ParseConfig struct {
	// Mode selects element-list or Markdown generation (default markdown).
	Mode ParseMode `json:"mode" yaml:"mode"`

	// Scale is the page render scale factor (default 2.0).
	Scale float64 `json:"scale" yaml:"scale"`

	// Workers bounds concurrent page OCR calls (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// MinFigureBytes drops embedded images smaller than this (default 5120).
	MinFigureBytes int `json:"min_figure_bytes" yaml:"min_figure_bytes"`
}

// TranslateConfig holds settings for the translation stage.
type TranslateConfig struct {
	AIConfig `yaml:",inline"`

	// ChunkSize is the maximum number of characters per request (default 3000).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// MaxTokens caps each chunk's completion (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// SiteConfig holds settings for the static site builder.
type SiteConfig struct {
	// DocsDir is the output directory for the rendered site (default "docs").
	DocsDir string `json:"docs_dir" yaml:"docs_dir"`

	// Title is shown in every page header.
	Title string `json:"title" yaml:"title"`

	// BaseURL is the public site URL used in email links.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// HomeDays is the number of dates listed on the home page (default 60).
	HomeDays int `json:"home_days" yaml:"home_days"`
}

// EmailConfig holds settings for the digest email.
type EmailConfig struct {
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	User     string   `json:"user,omitempty" yaml:"user,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	To       []string `json:"to" yaml:"to"`
}

// PublishConfig holds settings for uploading the site to object storage.
type PublishConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	Region    string `json:"region" yaml:"region"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	// DataDir is the cache root (contains {date}/ and index.db).
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Workers bounds the number of papers processed concurrently (default 3).
	Workers int `json:"workers" yaml:"workers"`

	Listing   ListingConfig   `json:"listing" yaml:"listing"`
	Arxiv     ArxivConfig     `json:"arxiv" yaml:"arxiv"`
	OCR       OCRConfig       `json:"ocr" yaml:"ocr"`
	Parse     ParseConfig     `json:"parse" yaml:"parse"`
	Translate TranslateConfig `json:"translate" yaml:"translate"`
	Tags      AIConfig        `json:"tags" yaml:"tags"`
	Site      SiteConfig      `json:"site" yaml:"site"`
	Email     EmailConfig     `json:"email" yaml:"email"`
	Publish   PublishConfig   `json:"publish" yaml:"publish"`
}
