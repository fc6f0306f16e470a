// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdfdoc opens PDFs for the parse stage: page rasterization through
// MuPDF, the embedded text layer through a pure-Go reader, and embedded
// image extraction from the object table.
package pdfdoc

import (
	"fmt"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// DefaultScale is the render scale used when none is configured.
const DefaultScale = 2.0

// pointsPerInch is the PDF user-space resolution; MuPDF renders at dpi/72 scale.
const pointsPerInch = 72.0

// Document is an open PDF. Page indexes are 0-based throughout.
type Document struct {
	path string
	doc  *fitz.Document

	// The text layer is opened on first use; most pages never need it.
	textOnce sync.Once
	textMu   sync.Mutex
	textFile *os.File
	text     *pdf.Reader
	textErr  error
}

// Open opens the PDF at path for rendering.
func Open(path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Document{path: path, doc: doc}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return d.doc.NumPage()
}

// RenderPage rasterizes page at scale times its native resolution and
// returns PNG bytes. Decode errors propagate.
func (d *Document) RenderPage(page int, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = DefaultScale
	}
	png, err := d.doc.ImagePNG(page, scale*pointsPerInch)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", page+1, err)
	}
	return png, nil
}

// pageHeight returns the page height in PDF points.
func (d *Document) pageHeight(page int) (float64, error) {
	bounds, err := d.doc.Bound(page)
	if err != nil {
		return 0, fmt.Errorf("page %d bounds: %w", page+1, err)
	}
	return float64(bounds.Dy()), nil
}

// Close releases both readers.
func (d *Document) Close() error {
	var textErr error
	d.textMu.Lock()
	if d.textFile != nil {
		textErr = d.textFile.Close()
	}
	d.textMu.Unlock()
	if err := d.doc.Close(); err != nil {
		return err
	}
	return textErr
}
