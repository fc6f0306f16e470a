// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/internal/email"
	"github.com/pdiddy/paper-digest/internal/htmlmirror"
	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/internal/index"
	"github.com/pdiddy/paper-digest/internal/listing"
	"github.com/pdiddy/paper-digest/internal/llm"
	"github.com/pdiddy/paper-digest/internal/ocr"
	"github.com/pdiddy/paper-digest/internal/parse"
	"github.com/pdiddy/paper-digest/internal/pipeline"
	"github.com/pdiddy/paper-digest/internal/publish"
	"github.com/pdiddy/paper-digest/internal/site"
	"github.com/pdiddy/paper-digest/internal/tags"
	"github.com/pdiddy/paper-digest/internal/translate"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg     types.PipelineConfig
	db      *index.DB
	store   *cache.Store
	site    *site.Builder
	closers []io.Closer
	logger  *slog.Logger
}

// openApp opens the index and cache under cfg.DataDir and prepares the site builder.
func openApp(cfg types.PipelineConfig) (*app, error) {
	logger := slog.Default()
	db, err := index.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	store := cache.NewStore(cfg.DataDir, db, logger)

	b, err := site.New(cfg.Site, store, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, db: db, store: store, site: b, closers: []io.Closer{db}, logger: logger}, nil
}

// Close releases everything opened by openApp and later wiring.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// parser builds the PDF parser with the configured OCR backend.
func (a *app) parser(ctx context.Context) (*parse.Parser, error) {
	var backends parse.Backends
	switch a.cfg.OCR.Backend {
	case types.OCRVertex:
		vc, err := ocr.NewVertexClient(ctx, a.cfg.OCR)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, vc)
		backends.Markdown = vc
	case types.OCROpenAI, "":
		if a.cfg.OCR.Endpoint == "" {
			a.logger.Warn("no OCR endpoint configured; PDF pages will use the text layer")
			backends.Elements = textLayerOnly{}
			backends.Markdown = textLayerOnly{}
			break
		}
		oc := ocr.NewClient(a.cfg.OCR, nil)
		backends.Elements = oc
		backends.Markdown = oc
	default:
		return nil, fmt.Errorf("unknown OCR backend %q", a.cfg.OCR.Backend)
	}
	return parse.New(a.cfg.Parse, backends, a.logger), nil
}

// errNoOCR makes every page take the parser's text-layer fallback.
var errNoOCR = errors.New("no OCR endpoint configured")

// textLayerOnly stands in for an OCR service when none is configured.
type textLayerOnly struct{}

func (textLayerOnly) Elements(context.Context, []byte) ([]types.RawElement, error) {
	return nil, errNoOCR
}

func (textLayerOnly) Markdown(context.Context, []byte) (string, error) {
	return "", errNoOCR
}

// runner wires the full daily pipeline. out receives progress lines.
func (a *app) runner(ctx context.Context, out io.Writer) (*pipeline.Runner, error) {
	cfg := a.cfg
	listClient := httputil.NewClient(cfg.Listing.HTTPConfig)
	arxivClient := httputil.NewClient(cfg.Arxiv.HTTPConfig)

	p, err := a.parser(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Translate.APIKey == "" {
		a.logger.Warn("no Anthropic API key; translation and tagging will fail")
	}
	translator := translate.New(llm.NewClaudeBackend(cfg.Translate.AIConfig, nil), cfg.Translate, a.logger)
	tagBackend := llm.NewClaudeBackend(cfg.Tags, nil)

	deps := pipeline.Deps{
		Lister: pipeline.ListerFunc(func(ctx context.Context, date string) ([]types.Paper, error) {
			return listing.Fetch(ctx, listClient, date, cfg.Listing)
		}),
		Translator: translator,
		Tagger: pipeline.TaggerFunc(func(ctx context.Context, title, abstract string) (types.Tags, error) {
			return tags.Generate(ctx, tagBackend, title, abstract, cfg.Tags.MaxRetries)
		}),
		HTML:   htmlmirror.New(arxivClient, cfg.Arxiv, a.logger),
		PDF:    acquire.NewDownloader(arxivClient, cfg.Arxiv, a.logger),
		Parser: p,
		Site:   a.site,
		Email:  email.NewSender(cfg.Email, cfg.Site.BaseURL, a.logger),
		Ledger: a.db,
	}

	if cfg.Publish.Enabled {
		pub, err := a.publisher()
		if err != nil {
			return nil, err
		}
		deps.Publish = pub
	}
	return pipeline.New(cfg, a.store, deps, out, a.logger), nil
}

func (a *app) publisher() (*publish.Publisher, error) {
	return publish.New(a.cfg.Publish, a.logger)
}
