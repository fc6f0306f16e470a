// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// pageMarkdown is one page's text plus how it was obtained.
type pageMarkdown struct {
	text     string
	fallback bool
}

// ParseMarkdown runs the Markdown generation: each page is transcribed by
// OCR, pages are joined in order with a page-break marker, and figures are
// pulled from the PDF object table into figuresDir.
func (p *Parser) ParseMarkdown(ctx context.Context, pdfPath, figuresDir string) (*types.Document, error) {
	if p.ocr.Markdown == nil {
		return nil, errors.New("no Markdown OCR backend configured")
	}
	src, err := p.open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	n := src.NumPages()
	pages := make([]pageMarkdown, n)
	err = p.forEachPage(ctx, n, func(ctx context.Context, page int) error {
		pm, err := p.markdownPage(ctx, src, page)
		pages[page] = pm
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &types.Document{Source: types.SourcePDFMarkdown, Pages: n}
	texts := make([]string, n)
	for i, pm := range pages {
		texts[i] = pm.text
		if pm.fallback {
			doc.FallbackPages = append(doc.FallbackPages, i+1)
		}
	}
	doc.Markdown = JoinPages(texts)

	figs, err := p.figures.Extract(ctx, pdfPath, figuresDir)
	if err != nil {
		// Text without figures is still a usable document.
		p.logger.Warn("figure extraction failed", "err", err)
	}
	doc.Figures = figs

	p.logger.Info("parsed PDF", "generation", doc.Source, "pages", n,
		"figures", len(doc.Figures), "fallback_pages", len(doc.FallbackPages))
	return doc, nil
}

func (p *Parser) markdownPage(ctx context.Context, src PageSource, page int) (pageMarkdown, error) {
	logger := p.logger.With("page", page+1)

	pagePNG, err := src.RenderPage(page, p.scale)
	if err != nil {
		return pageMarkdown{}, fmt.Errorf("rendering page %d: %w", page+1, err)
	}

	text, err := p.ocr.Markdown.Markdown(ctx, pagePNG)
	if err == nil {
		return pageMarkdown{text: text}, nil
	}
	logger.Warn("Markdown OCR failed, using text layer", "err", err)

	blocks, ok := p.fallbackBlocks(src, page, logger)
	if !ok {
		return pageMarkdown{fallback: true}, nil
	}
	paras := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			paras = append(paras, t)
		}
	}
	return pageMarkdown{text: strings.Join(paras, "\n\n"), fallback: true}, nil
}

// JoinPages concatenates page texts in order, separated by a page-break
// marker naming the page that follows, and collapses blank-line runs.
func JoinPages(pages []string) string {
	var b strings.Builder
	for i, text := range pages {
		if i > 0 {
			fmt.Fprintf(&b, "\n\n<!-- page %d -->\n\n---\n\n", i+1)
		}
		b.WriteString(strings.TrimSpace(text))
	}
	return strings.TrimSpace(collapseBlankLines(b.String()))
}
