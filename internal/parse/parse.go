// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package parse reassembles a PDF into a Document. Pages are rendered and
// sent to layout OCR in parallel; results are collected by page index and
// stitched in page order, so completion order never leaks into the output.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-digest/internal/pdfdoc"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultWorkers bounds concurrent page OCR calls.
const DefaultWorkers = 4

// PageSource is an open PDF. Page indexes are 0-based.
type PageSource interface {
	NumPages() int
	RenderPage(page int, scale float64) ([]byte, error)
	TextBlocks(page int, scale float64) ([]types.RawElement, error)
	Close() error
}

// ElementOCR returns typed layout records for one page image.
type ElementOCR interface {
	Elements(ctx context.Context, png []byte) ([]types.RawElement, error)
}

// MarkdownOCR transcribes one page image to Markdown.
type MarkdownOCR interface {
	Markdown(ctx context.Context, png []byte) (string, error)
}

// FigureSource extracts embedded images from the PDF object table.
type FigureSource interface {
	Extract(ctx context.Context, pdfPath, dir string) ([]types.Figure, error)
}

// Backends holds the OCR clients. Only the one matching the requested
// generation needs to be set.
type Backends struct {
	Elements ElementOCR
	Markdown MarkdownOCR
}

// Parser runs the element-list and Markdown generations.
type Parser struct {
	ocr     Backends
	figures FigureSource
	open    func(path string) (PageSource, error)
	scale   float64
	workers int
	logger  *slog.Logger
}

// New returns a Parser configured from cfg. A nil logger uses the default.
func New(cfg types.ParseConfig, ocr Backends, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		ocr:     ocr,
		figures: pdfdoc.FigureExtractor{MinBytes: cfg.MinFigureBytes, Logger: logger},
		open: func(path string) (PageSource, error) {
			doc, err := pdfdoc.Open(path)
			if err != nil {
				return nil, err
			}
			return doc, nil
		},
		scale:   cfg.Scale,
		workers: cfg.Workers,
		logger:  logger,
	}
	if p.scale <= 0 {
		p.scale = pdfdoc.DefaultScale
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	return p
}

// Parse dispatches on mode.
func (p *Parser) Parse(ctx context.Context, mode types.ParseMode, pdfPath, figuresDir string) (*types.Document, error) {
	switch mode {
	case types.ParseElements:
		return p.ParseElements(ctx, pdfPath, figuresDir)
	case types.ParseMarkdown, "":
		return p.ParseMarkdown(ctx, pdfPath, figuresDir)
	default:
		return nil, fmt.Errorf("unknown parse mode %q", mode)
	}
}

// forEachPage runs fn for every page with at most p.workers in flight.
// fn stores its own result by index; errors returned from fn cancel the rest.
func (p *Parser) forEachPage(ctx context.Context, n int, fn func(ctx context.Context, page int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		page := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, page)
		})
	}
	return g.Wait()
}

// fallbackBlocks reads the page's text layer for a page whose OCR failed.
func (p *Parser) fallbackBlocks(src PageSource, page int, logger *slog.Logger) ([]types.RawElement, bool) {
	blocks, err := src.TextBlocks(page, p.scale)
	if err != nil {
		logger.Warn("text layer unreadable", "page", page+1, "err", err)
		return nil, false
	}
	return blocks, true
}

// blankRuns matches two or more blank lines, counting whitespace-only lines as blank.
var blankRuns = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)

// collapseBlankLines reduces runs of blank lines to a single blank line.
func collapseBlankLines(s string) string {
	return blankRuns.ReplaceAllString(s, "\n\n")
}
