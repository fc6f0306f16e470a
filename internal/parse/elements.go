// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// categoryTypes maps the layout model's vocabulary to element types.
// Page-header, Page-footer, and unknown categories have no entry and are dropped.
var categoryTypes = map[string]types.ElementType{
	"Title":          types.ElementTitle,
	"Section-header": types.ElementSection,
	"Text":           types.ElementText,
	"List-item":      types.ElementText,
	"Table":          types.ElementTable,
	"Formula":        types.ElementFormula,
	"Caption":        types.ElementCaption,
	"Footnote":       types.ElementFootnote,
	"Picture":        types.ElementImage,
}

// pageElements is one page's contribution, held until pages are stitched.
type pageElements struct {
	items    []pageItem
	fallback bool
}

// pageItem is a mapped element. Image items carry their cropped PNG; the
// filename is assigned later so numbering follows page order.
type pageItem struct {
	elem types.ContentElement
	crop []byte
}

// ParseElements runs the element-list generation over the PDF at pdfPath,
// writing cropped figures to figuresDir as p{page}_fig{N}.png with N
// counting figures across the whole document.
func (p *Parser) ParseElements(ctx context.Context, pdfPath, figuresDir string) (*types.Document, error) {
	if p.ocr.Elements == nil {
		return nil, errors.New("no element OCR backend configured")
	}
	src, err := p.open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	n := src.NumPages()
	pages := make([]pageElements, n)
	err = p.forEachPage(ctx, n, func(ctx context.Context, page int) error {
		pe, err := p.elementPage(ctx, src, page)
		pages[page] = pe
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &types.Document{Source: types.SourcePDFElements, Pages: n}
	figN := 0
	for i, pe := range pages {
		if pe.fallback {
			doc.FallbackPages = append(doc.FallbackPages, i+1)
		}
		for _, item := range pe.items {
			if item.elem.Type != types.ElementImage {
				doc.Elements = append(doc.Elements, item.elem)
				continue
			}
			figN++
			name := fmt.Sprintf("p%d_fig%d.png", i+1, figN)
			if err := writeFigure(figuresDir, name, item.crop); err != nil {
				p.logger.Warn("figure write failed", "figure", name, "err", err)
				continue
			}
			item.elem.Figure = name
			doc.Elements = append(doc.Elements, item.elem)
			doc.Figures = append(doc.Figures, types.Figure{Name: name, Page: i + 1})
		}
	}
	doc.Markdown = ElementsMarkdown(doc.Elements)

	p.logger.Info("parsed PDF", "generation", doc.Source, "pages", n,
		"elements", len(doc.Elements), "figures", len(doc.Figures), "fallback_pages", len(doc.FallbackPages))
	return doc, nil
}

// elementPage renders one page, asks for its layout, and maps the records.
// OCR output and text-layer output are never mixed on one page. A page
// that cannot be rendered fails the whole document.
func (p *Parser) elementPage(ctx context.Context, src PageSource, page int) (pageElements, error) {
	logger := p.logger.With("page", page+1)

	pagePNG, err := src.RenderPage(page, p.scale)
	if err != nil {
		return pageElements{}, fmt.Errorf("rendering page %d: %w", page+1, err)
	}

	var out pageElements
	records, err := p.ocr.Elements.Elements(ctx, pagePNG)
	switch {
	case err != nil:
		logger.Warn("layout OCR failed, using text layer", "err", err)
		out.fallback = true
	case len(records) == 0:
		logger.Warn("layout OCR returned nothing usable, using text layer")
		out.fallback = true
	}
	if out.fallback {
		records, _ = p.fallbackBlocks(src, page, logger)
	}

	var decoded image.Image
	for _, rec := range records {
		typ, ok := categoryTypes[rec.Category]
		if !ok {
			continue
		}
		elem := types.ContentElement{Type: typ, Page: page + 1}

		if typ != types.ElementImage {
			elem.Text = strings.TrimSpace(rec.Text)
			if elem.Text == "" {
				continue
			}
			out.items = append(out.items, pageItem{elem: elem})
			continue
		}

		if len(rec.BBox) < 4 {
			continue
		}
		if decoded == nil {
			if decoded, err = png.Decode(bytes.NewReader(pagePNG)); err != nil {
				logger.Warn("page image undecodable, figures skipped", "err", err)
				continue
			}
		}
		box := types.BBox{rec.BBox[0], rec.BBox[1], rec.BBox[2], rec.BBox[3]}
		crop, ok := cropFigure(decoded, box)
		if !ok {
			logger.Debug("degenerate figure box, using full page", "bbox", box)
		}
		data, err := encodePNG(crop)
		if err != nil {
			logger.Warn("figure encode failed", "err", err)
			continue
		}
		elem.BBox = &box
		out.items = append(out.items, pageItem{elem: elem, crop: data})
	}
	return out, nil
}

// cropFigure returns the region of page under box, clamped to the page
// bounds. A box with no area after clamping yields the whole page and false.
func cropFigure(page image.Image, box types.BBox) (image.Image, bool) {
	r := image.Rectangle{
		Min: image.Pt(int(box[0]), int(box[1])),
		Max: image.Pt(int(box[2]), int(box[3])),
	}.Intersect(page.Bounds())
	if r.Empty() {
		return page, false
	}

	if sub, ok := page.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r), true
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), page, r.Min, draw.Src)
	return dst, true
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFigure(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// ElementsMarkdown renders elements in order. Images become [FIGURE:name]
// placeholders, which survive translation and are resolved at render time.
func ElementsMarkdown(elems []types.ContentElement) string {
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		switch e.Type {
		case types.ElementTitle:
			parts = append(parts, "# "+e.Text)
		case types.ElementSection:
			parts = append(parts, "## "+e.Text)
		case types.ElementFormula:
			if strings.HasPrefix(e.Text, "$") {
				parts = append(parts, e.Text)
			} else {
				parts = append(parts, "$$\n"+e.Text+"\n$$")
			}
		case types.ElementCaption:
			parts = append(parts, "*"+e.Text+"*")
		case types.ElementFootnote:
			parts = append(parts, "<small>"+e.Text+"</small>")
		case types.ElementImage:
			if e.Figure != "" {
				parts = append(parts, "[FIGURE:"+e.Figure+"]")
			}
		default:
			parts = append(parts, e.Text)
		}
	}
	return collapseBlankLines(strings.Join(parts, "\n\n"))
}
