// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SourceKind tags which path produced a Document. Consumers switch on it
// rather than probing for populated fields.
type SourceKind string

const (
	SourceHTML        SourceKind = "html"
	SourcePDFElements SourceKind = "pdf-elements"
	SourcePDFMarkdown SourceKind = "pdf-markdown"
)

// Document is the derived content of one paper.
type Document struct {
	// Source tags the generation that produced this Document.
	Source SourceKind `json:"source" yaml:"source"`

	// Markdown is the document body. Element documents carry
	// [FIGURE:name] placeholders where images appeared.
	Markdown string `json:"markdown" yaml:"markdown"`

	// Elements is populated for SourcePDFElements only.
	Elements []ContentElement `json:"elements,omitempty" yaml:"elements,omitempty"`

	// Figures lists extracted images in document order.
	Figures []Figure `json:"figures" yaml:"figures"`

	// Pages is the page count of the source PDF (0 for HTML).
	Pages int `json:"pages,omitempty" yaml:"pages,omitempty"`

	// FallbackPages lists pages whose text came from the embedded text layer.
	FallbackPages []int `json:"fallback_pages,omitempty" yaml:"fallback_pages,omitempty"`
}

// ElementType is the semantic category of a ContentElement.
type ElementType string

const (
	ElementTitle    ElementType = "title"
	ElementSection  ElementType = "section"
	ElementText     ElementType = "text"
	ElementTable    ElementType = "table"
	ElementFormula  ElementType = "formula"
	ElementCaption  ElementType = "caption"
	ElementFootnote ElementType = "footnote"
	ElementImage    ElementType = "image"
)

// BBox is an axis-aligned box in rendered-page pixel coordinates: x1, y1, x2, y2.
type BBox [4]float64

// ContentElement is one typed unit of page content from the element-list generation.
type ContentElement struct {
	Type ElementType `json:"type" yaml:"type"`
	Page int         `json:"page" yaml:"page"`

	// Text is set for every type except image.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// BBox and Figure are set for images only.
	BBox   *BBox  `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Figure string `json:"figure,omitempty" yaml:"figure,omitempty"`
}

// RawElement is one record as returned by the layout OCR service, or
// synthesized from the PDF text layer.
type RawElement struct {
	Category string    `json:"category"`
	BBox     []float64 `json:"bbox,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// Figure is an image extracted from a paper.
type Figure struct {
	// Name is the filename inside the paper's figures directory.
	Name string `json:"name" yaml:"name"`

	// Caption is known for HTML figures only.
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`

	// Page is the 1-based source page, 0 when unknown.
	Page int `json:"page,omitempty" yaml:"page,omitempty"`
}
