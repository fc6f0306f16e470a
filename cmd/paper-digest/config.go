// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/internal/email"
	"github.com/pdiddy/paper-digest/internal/htmlmirror"
	"github.com/pdiddy/paper-digest/internal/listing"
	"github.com/pdiddy/paper-digest/internal/llm"
	"github.com/pdiddy/paper-digest/internal/ocr"
	"github.com/pdiddy/paper-digest/internal/parse"
	"github.com/pdiddy/paper-digest/internal/pdfdoc"
	"github.com/pdiddy/paper-digest/internal/pipeline"
	"github.com/pdiddy/paper-digest/internal/secrets"
	"github.com/pdiddy/paper-digest/internal/site"
	"github.com/pdiddy/paper-digest/internal/translate"
	"github.com/pdiddy/paper-digest/pkg/types"
)

func setDefaults() {
	viper.SetDefault("secrets_dir", ".secrets/")
	viper.SetDefault("data_dir", "data")
	viper.SetDefault("workers", pipeline.DefaultWorkers)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("listing.base_url", listing.DefaultBaseURL)
	viper.SetDefault("listing.timeout", 30*time.Second)
	viper.SetDefault("listing.user_agent", htmlmirror.DefaultUserAgent)

	viper.SetDefault("arxiv.base_url", acquire.DefaultBaseURL)
	viper.SetDefault("arxiv.timeout", 60*time.Second)
	viper.SetDefault("arxiv.user_agent", htmlmirror.DefaultUserAgent)
	viper.SetDefault("arxiv.download_delay", time.Second)
	viper.SetDefault("arxiv.min_pdf_bytes", 1024)
	viper.SetDefault("arxiv.min_figure_bytes", 500)
	viper.SetDefault("arxiv.disable_html", false)

	viper.SetDefault("ocr.backend", string(types.OCROpenAI))
	viper.SetDefault("ocr.model", ocr.DefaultModel)
	viper.SetDefault("ocr.element_prompt", ocr.DefaultElementPrompt)
	viper.SetDefault("ocr.markdown_prompt", ocr.DefaultMarkdownPrompt)
	viper.SetDefault("ocr.max_tokens", ocr.DefaultMaxTokens)
	viper.SetDefault("ocr.timeout", 5*time.Minute)
	viper.SetDefault("ocr.location", "us-central1")

	viper.SetDefault("parse.mode", string(types.ParseMarkdown))
	viper.SetDefault("parse.scale", pdfdoc.DefaultScale)
	viper.SetDefault("parse.workers", parse.DefaultWorkers)
	viper.SetDefault("parse.min_figure_bytes", pdfdoc.DefaultMinFigureBytes)

	viper.SetDefault("translate.model", llm.DefaultModel)
	viper.SetDefault("translate.max_retries", 3)
	viper.SetDefault("translate.chunk_size", translate.DefaultChunkSize)
	viper.SetDefault("translate.max_tokens", 8192)

	viper.SetDefault("tags.model", llm.DefaultModel)
	viper.SetDefault("tags.max_retries", 3)

	viper.SetDefault("site.docs_dir", "docs")
	viper.SetDefault("site.title", site.DefaultTitle)
	viper.SetDefault("site.base_url", email.DefaultSiteURL)
	viper.SetDefault("site.home_days", 60)

	viper.SetDefault("email.host", email.DefaultHost)
	viper.SetDefault("email.port", email.DefaultPort)

	viper.SetDefault("publish.enabled", false)
	viper.SetDefault("publish.region", "us-east-1")
	viper.SetDefault("publish.use_ssl", true)
}

// loadConfig assembles the pipeline configuration from viper, filling
// credentials from .secrets/ and the environment.
func loadConfig() types.PipelineConfig {
	anthropicKey := secrets.Resolve(loadedSecrets, secrets.AnthropicAPIKey, viper.GetString("anthropic_api_key"))

	cfg := types.PipelineConfig{
		DataDir: viper.GetString("data_dir"),
		Workers: viper.GetInt("workers"),
		Listing: types.ListingConfig{
			HTTPConfig: httpConfig("listing"),
			BaseURL:    viper.GetString("listing.base_url"),
		},
		Arxiv: types.ArxivConfig{
			HTTPConfig:     httpConfig("arxiv"),
			BaseURL:        viper.GetString("arxiv.base_url"),
			DownloadDelay:  viper.GetDuration("arxiv.download_delay"),
			MinPDFBytes:    viper.GetInt64("arxiv.min_pdf_bytes"),
			MinFigureBytes: viper.GetInt("arxiv.min_figure_bytes"),
			DisableHTML:    viper.GetBool("arxiv.disable_html"),
		},
		OCR: types.OCRConfig{
			Backend:        types.OCRBackend(viper.GetString("ocr.backend")),
			Endpoint:       firstNonEmpty(viper.GetString("ocr.endpoint"), os.Getenv("DOTSOCR_ENDPOINT")),
			APIKey:         secrets.Resolve(loadedSecrets, secrets.OCRAPIKey, viper.GetString("ocr.api_key")),
			Model:          viper.GetString("ocr.model"),
			ElementPrompt:  viper.GetString("ocr.element_prompt"),
			MarkdownPrompt: viper.GetString("ocr.markdown_prompt"),
			MaxTokens:      viper.GetInt("ocr.max_tokens"),
			Timeout:        viper.GetDuration("ocr.timeout"),
			Project:        viper.GetString("ocr.project"),
			Location:       viper.GetString("ocr.location"),
		},
		Parse: types.ParseConfig{
			Mode:           types.ParseMode(viper.GetString("parse.mode")),
			Scale:          viper.GetFloat64("parse.scale"),
			Workers:        viper.GetInt("parse.workers"),
			MinFigureBytes: viper.GetInt("parse.min_figure_bytes"),
		},
		Translate: types.TranslateConfig{
			AIConfig: types.AIConfig{
				Model:      viper.GetString("translate.model"),
				APIKey:     anthropicKey,
				MaxRetries: viper.GetInt("translate.max_retries"),
			},
			ChunkSize: viper.GetInt("translate.chunk_size"),
			MaxTokens: viper.GetInt("translate.max_tokens"),
		},
		Tags: types.AIConfig{
			Model:      viper.GetString("tags.model"),
			APIKey:     anthropicKey,
			MaxRetries: viper.GetInt("tags.max_retries"),
		},
		Site: types.SiteConfig{
			DocsDir:  viper.GetString("site.docs_dir"),
			Title:    viper.GetString("site.title"),
			BaseURL:  firstNonEmpty(os.Getenv("SITE_BASE_URL"), viper.GetString("site.base_url")),
			HomeDays: viper.GetInt("site.home_days"),
		},
		Email: types.EmailConfig{
			Host:     viper.GetString("email.host"),
			Port:     viper.GetInt("email.port"),
			User:     secrets.Resolve(loadedSecrets, secrets.GmailUser, viper.GetString("email.user")),
			Password: secrets.Resolve(loadedSecrets, secrets.GmailAppPassword, viper.GetString("email.password")),
			To:       viper.GetStringSlice("email.to"),
		},
		Publish: types.PublishConfig{
			Enabled:   viper.GetBool("publish.enabled"),
			Endpoint:  viper.GetString("publish.endpoint"),
			Bucket:    viper.GetString("publish.bucket"),
			Prefix:    viper.GetString("publish.prefix"),
			Region:    viper.GetString("publish.region"),
			AccessKey: secrets.Resolve(loadedSecrets, secrets.MinioAccessKey, viper.GetString("publish.access_key")),
			SecretKey: secrets.Resolve(loadedSecrets, secrets.MinioSecretKey, viper.GetString("publish.secret_key")),
			UseSSL:    viper.GetBool("publish.use_ssl"),
		},
	}

	if len(cfg.Email.To) == 0 {
		cfg.Email.To = splitList(os.Getenv("EMAIL_TO"))
	}
	return cfg
}

func httpConfig(prefix string) types.HTTPConfig {
	return types.HTTPConfig{
		Timeout:   viper.GetDuration(prefix + ".timeout"),
		UserAgent: viper.GetString(prefix + ".user_agent"),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
