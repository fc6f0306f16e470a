// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-digest/pkg/types"
)

const pageHeight = 80

// pageWidth encodes the page index in the rendered image so fakes can
// recover it from the PNG alone.
func pageWidth(page int) int { return 100 + page }

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pageOf(t *testing.T, data []byte) int {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width - 100
}

type fakeSource struct {
	t         *testing.T
	pages     int
	renderErr map[int]bool

	mu        sync.Mutex
	textCalls []int
	closed    bool
}

func (s *fakeSource) NumPages() int { return s.pages }

func (s *fakeSource) RenderPage(page int, _ float64) ([]byte, error) {
	if s.renderErr[page] {
		return nil, errors.New("bad page object")
	}
	return pngOf(s.t, pageWidth(page), pageHeight), nil
}

func (s *fakeSource) TextBlocks(page int, _ float64) ([]types.RawElement, error) {
	s.mu.Lock()
	s.textCalls = append(s.textCalls, page)
	s.mu.Unlock()
	return []types.RawElement{
		{Category: "Text", BBox: []float64{0, 0, 10, 10}, Text: fmt.Sprintf("layer %d a", page+1)},
		{Category: "Text", BBox: []float64{0, 20, 10, 30}, Text: fmt.Sprintf("layer %d b", page+1)},
	}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// reverseOCR finishes pages last-to-first: page i blocks until page i+1 is done.
type reverseOCR struct {
	t     *testing.T
	done  []chan struct{}
	fail  map[int]bool
	mu    sync.Mutex
	order []int
}

func newReverseOCR(t *testing.T, pages int, fail map[int]bool) *reverseOCR {
	o := &reverseOCR{t: t, fail: fail, done: make([]chan struct{}, pages)}
	for i := range o.done {
		o.done[i] = make(chan struct{})
	}
	return o
}

func (o *reverseOCR) wait(ctx context.Context, page int) error {
	if page+1 < len(o.done) {
		select {
		case <-o.done[page+1]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.mu.Lock()
	o.order = append(o.order, page)
	o.mu.Unlock()
	close(o.done[page])
	if o.fail[page] {
		return errors.New("503 from OCR")
	}
	return nil
}

func (o *reverseOCR) Markdown(ctx context.Context, data []byte) (string, error) {
	page := pageOf(o.t, data)
	if err := o.wait(ctx, page); err != nil {
		return "", err
	}
	return fmt.Sprintf("ocr page %d\n\n\n\n\nmore", page+1), nil
}

type stubFigures struct {
	figs  []types.Figure
	err   error
	calls int
}

func (f *stubFigures) Extract(context.Context, string, string) ([]types.Figure, error) {
	f.calls++
	return f.figs, f.err
}

func newTestParser(src PageSource, ocr Backends, figs FigureSource) *Parser {
	p := New(types.ParseConfig{Workers: 4}, ocr, nil)
	p.open = func(string) (PageSource, error) { return src, nil }
	if figs != nil {
		p.figures = figs
	}
	return p
}

func TestParseMarkdown_PageOrder(t *testing.T) {
	src := &fakeSource{t: t, pages: 4}
	ocr := newReverseOCR(t, 4, nil)
	figs := &stubFigures{figs: []types.Figure{{Name: "fig1.png"}}}
	p := newTestParser(src, Backends{Markdown: ocr}, figs)

	doc, err := p.ParseMarkdown(t.Context(), "paper.pdf", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 1, 0}, ocr.order, "OCR completed in reverse")
	want := "ocr page 1\n\nmore" +
		"\n\n<!-- page 2 -->\n\n---\n\nocr page 2\n\nmore" +
		"\n\n<!-- page 3 -->\n\n---\n\nocr page 3\n\nmore" +
		"\n\n<!-- page 4 -->\n\n---\n\nocr page 4\n\nmore"
	assert.Equal(t, want, doc.Markdown)
	assert.Equal(t, types.SourcePDFMarkdown, doc.Source)
	assert.Equal(t, 4, doc.Pages)
	assert.Equal(t, figs.figs, doc.Figures)
	assert.Empty(t, doc.FallbackPages)
	assert.Empty(t, src.textCalls, "text layer unused when OCR succeeds")
	assert.True(t, src.closed)
}

func TestParseMarkdown_FallbackOnlyForFailedPage(t *testing.T) {
	src := &fakeSource{t: t, pages: 3}
	ocr := newReverseOCR(t, 3, map[int]bool{1: true})
	p := newTestParser(src, Backends{Markdown: ocr}, &stubFigures{err: errors.New("broken xref")})

	doc, err := p.ParseMarkdown(t.Context(), "paper.pdf", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []int{1}, src.textCalls)
	assert.Equal(t, []int{2}, doc.FallbackPages)
	assert.Contains(t, doc.Markdown, "<!-- page 2 -->\n\n---\n\nlayer 2 a\n\nlayer 2 b\n\n<!-- page 3 -->")
	assert.NotContains(t, doc.Markdown, "ocr page 2")
	assert.Contains(t, doc.Markdown, "ocr page 1")
	assert.Contains(t, doc.Markdown, "ocr page 3")
	assert.Empty(t, doc.Figures, "figure failure leaves text intact")
}

func TestParseMarkdown_RenderFailureFailsDocument(t *testing.T) {
	src := &fakeSource{t: t, pages: 3, renderErr: map[int]bool{1: true}}
	figs := &stubFigures{}
	p := newTestParser(src, Backends{Markdown: markdownFunc(func(data []byte) (string, error) {
		return fmt.Sprintf("p%d", pageOf(t, data)+1), nil
	})}, figs)

	doc, err := p.ParseMarkdown(t.Context(), "paper.pdf", t.TempDir())
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.ErrorContains(t, err, "rendering page 2")
	assert.ErrorContains(t, err, "bad page object")
	assert.Zero(t, figs.calls)
	assert.True(t, src.closed)
}

type markdownFunc func([]byte) (string, error)

func (f markdownFunc) Markdown(_ context.Context, data []byte) (string, error) { return f(data) }

type elementsFunc func(page int) ([]types.RawElement, error)

type fakeElementOCR struct {
	t  *testing.T
	fn elementsFunc
}

func (o fakeElementOCR) Elements(_ context.Context, data []byte) ([]types.RawElement, error) {
	return o.fn(pageOf(o.t, data))
}

func TestParseElements(t *testing.T) {
	src := &fakeSource{t: t, pages: 4}
	ocr := fakeElementOCR{t: t, fn: func(page int) ([]types.RawElement, error) {
		switch page {
		case 0:
			return []types.RawElement{
				{Category: "Page-header", BBox: []float64{0, 0, 100, 5}, Text: "arXiv preprint"},
				{Category: "Title", Text: " A Study "},
				{Category: "Picture", BBox: []float64{10, 10, 50, 40}},
				{Category: "Text", Text: "   "},
				{Category: "Picture"},
				{Category: "Caption", Text: "Figure 1: Overview."},
				{Category: "Picture", BBox: []float64{60, 60, 60, 70}},
				{Category: "Page-footer", Text: "1"},
				{Category: "Mystery", Text: "???"},
			}, nil
		case 1:
			return nil, errors.New("timeout")
		case 2:
			return []types.RawElement{}, nil
		default:
			return []types.RawElement{
				{Category: "Section-header", Text: "Results"},
				{Category: "Picture", BBox: []float64{-20, -20, 30, 500}},
				{Category: "List-item", Text: "- item"},
			}, nil
		}
	}}
	p := newTestParser(src, Backends{Elements: ocr}, nil)
	dir := filepath.Join(t.TempDir(), "figures")

	doc, err := p.ParseElements(t.Context(), "paper.pdf", dir)
	require.NoError(t, err)

	assert.Equal(t, types.SourcePDFElements, doc.Source)
	assert.ElementsMatch(t, []int{1, 2}, src.textCalls, "fallback on error and on empty output")
	assert.Equal(t, []int{2, 3}, doc.FallbackPages)

	var got []string
	for _, e := range doc.Elements {
		got = append(got, fmt.Sprintf("%d:%s:%s%s", e.Page, e.Type, e.Text, e.Figure))
	}
	assert.Equal(t, []string{
		"1:title:A Study",
		"1:image:p1_fig1.png",
		"1:caption:Figure 1: Overview.",
		"1:image:p1_fig2.png",
		"2:text:layer 2 a",
		"2:text:layer 2 b",
		"3:text:layer 3 a",
		"3:text:layer 3 b",
		"4:section:Results",
		"4:image:p4_fig3.png",
		"4:text:- item",
	}, got)

	require.Len(t, doc.Figures, 3)
	assert.Equal(t, types.Figure{Name: "p4_fig3.png", Page: 4}, doc.Figures[2])

	assertPNGSize(t, filepath.Join(dir, "p1_fig1.png"), 40, 30)
	assertPNGSize(t, filepath.Join(dir, "p1_fig2.png"), pageWidth(0), pageHeight) // degenerate box
	assertPNGSize(t, filepath.Join(dir, "p4_fig3.png"), 30, pageHeight)            // clamped

	assert.Contains(t, doc.Markdown, "# A Study\n\n[FIGURE:p1_fig1.png]\n\n*Figure 1: Overview.*")
	assert.Contains(t, doc.Markdown, "## Results\n\n[FIGURE:p4_fig3.png]\n\n- item")
}

func TestParseElements_RenderFailureFailsDocument(t *testing.T) {
	src := &fakeSource{t: t, pages: 3, renderErr: map[int]bool{1: true}}
	ocr := fakeElementOCR{t: t, fn: func(page int) ([]types.RawElement, error) {
		return []types.RawElement{{Category: "Text", Text: fmt.Sprintf("page %d", page+1)}}, nil
	}}
	p := newTestParser(src, Backends{Elements: ocr}, nil)

	doc, err := p.ParseElements(t.Context(), "paper.pdf", t.TempDir())
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.ErrorContains(t, err, "rendering page 2")
	assert.Empty(t, src.textCalls, "an unrenderable page is not papered over with the text layer")
}

func TestParseElements_NoBackend(t *testing.T) {
	p := newTestParser(&fakeSource{t: t, pages: 1}, Backends{}, nil)
	_, err := p.ParseElements(t.Context(), "paper.pdf", t.TempDir())
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	p := newTestParser(&fakeSource{t: t, pages: 1}, Backends{}, nil)
	_, err := p.Parse(t.Context(), types.ParseMode("ocr-v3"), "paper.pdf", t.TempDir())
	assert.ErrorContains(t, err, "unknown parse mode")
}

func assertPNGSize(t *testing.T, path string, w, h int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, [2]int{w, h}, [2]int{cfg.Width, cfg.Height}, path)
}

func TestCropFigure(t *testing.T) {
	page := image.NewRGBA(image.Rect(0, 0, 200, 100))

	tests := []struct {
		name     string
		box      types.BBox
		wantRect image.Rectangle
		wantOK   bool
	}{
		{"inside", types.BBox{10, 20, 60, 70}, image.Rect(10, 20, 60, 70), true},
		{"clamped", types.BBox{-5, -5, 500, 50}, image.Rect(0, 0, 200, 50), true},
		{"fractional", types.BBox{10.7, 20.2, 30.9, 40.5}, image.Rect(10, 20, 30, 40), true},
		{"zero width", types.BBox{50, 10, 50, 90}, page.Bounds(), false},
		{"inverted", types.BBox{80, 80, 10, 10}, page.Bounds(), false},
		{"off page", types.BBox{300, 300, 400, 400}, page.Bounds(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cropFigure(page, tt.box)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRect, got.Bounds())
		})
	}
}

func TestJoinPages(t *testing.T) {
	assert.Equal(t, "", JoinPages(nil))
	assert.Equal(t, "only", JoinPages([]string{"only\n"}))
	assert.Equal(t,
		"a\n\nb\n\n<!-- page 2 -->\n\n---\n\nc",
		JoinPages([]string{"a\n\n\n\nb", "\n\nc\n\n\n"}))
	assert.Equal(t,
		"a\n\nb\n\n<!-- page 2 -->\n\n---\n\nc",
		JoinPages([]string{"a\n\n  \n\n \nb", "c"}), "whitespace-only lines count as blank")
	assert.Equal(t, "a\n\nb", collapseBlankLines("a\n \t\n\nb"))
	assert.Equal(t, "a\nb\n\nc", collapseBlankLines("a\nb\n\nc"))
}

func TestElementsMarkdown(t *testing.T) {
	md := ElementsMarkdown([]types.ContentElement{
		{Type: types.ElementTitle, Text: "T"},
		{Type: types.ElementFormula, Text: "E = mc^2"},
		{Type: types.ElementFormula, Text: "$x$"},
		{Type: types.ElementTable, Text: "| a |\n|---|\n| 1 |"},
		{Type: types.ElementImage},
		{Type: types.ElementFootnote, Text: "1 note"},
	})
	assert.Equal(t, "# T\n\n$$\nE = mc^2\n$$\n\n$x$\n\n| a |\n|---|\n| 1 |\n\n<small>1 note</small>", md)
}
