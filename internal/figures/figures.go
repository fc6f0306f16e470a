// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package figures places extracted images back into (translated) Markdown.
//
// Reinsert is a best-effort heuristic: it pairs a figure with the first
// caption paragraph whose number equals the last integer in the figure's
// filename. When the extraction order disagrees with the paper's own
// numbering, figures land next to the wrong caption or fall through to the
// gallery. Result reports which figures matched so callers can tell.
package figures

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// GalleryHeading introduces the block of figures no caption claimed.
const GalleryHeading = "## Figures"

// captionPattern matches a paragraph that opens a numbered figure caption,
// optionally inside emphasis.
var captionPattern = regexp.MustCompile(`^\s*(?:\*{1,2}|_{1,2})?\s*(?:Figure|Fig\.?|FIGURE|圖|图)\s*(\d+)\s*[.:：。]?`)

var (
	trailingNumber = regexp.MustCompile(`(\d+)\D*$`)
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	placeholder    = regexp.MustCompile(`\[FIGURE:([^\]\s]+)\]`)
)

// Placement records one figure inserted inline.
type Placement struct {
	Figure types.Figure
	Number int

	// Paragraph is the index, in the output paragraphs, of the caption or
	// placeholder the image was attached to.
	Paragraph int
}

// Result is the outcome of placing figures into a document.
type Result struct {
	Markdown string
	Inline   []Placement
	Gallery  []types.Figure
}

// Number returns the last integer in the figure's filename stem, e.g.
// p3_fig12.png gives 12. It reports false when the name has no digits.
func Number(name string) (int, bool) {
	stem := strings.TrimSuffix(path.Base(name), path.Ext(name))
	m := trailingNumber.FindStringSubmatch(stem)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// CaptionNumber reports the figure number a paragraph captions, if any.
func CaptionNumber(paragraph string) (int, bool) {
	m := captionPattern.FindStringSubmatch(paragraph)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Reinsert splices an image reference before the first caption paragraph
// for each figure number. Later captions with the same number are left
// alone. Figures no caption claims are appended as a gallery, ordered by
// number. prefix is the URL directory the images are served from.
func Reinsert(markdown string, figs []types.Figure, prefix string) Result {
	byNumber := make(map[int]types.Figure, len(figs))
	for _, f := range figs {
		n, ok := Number(f.Name)
		if !ok {
			continue
		}
		// Two files with one number: the first listed wins the caption.
		if _, dup := byNumber[n]; !dup {
			byNumber[n] = f
		}
	}

	var res Result
	placed := make(map[string]bool, len(figs))
	paras := splitParagraphs(markdown)
	out := make([]string, 0, len(paras)+len(figs))
	for _, para := range paras {
		if n, ok := CaptionNumber(para); ok {
			if f, known := byNumber[n]; known && !placed[f.Name] {
				placed[f.Name] = true
				out = append(out, imageTag(f, prefix))
				res.Inline = append(res.Inline, Placement{Figure: f, Number: n, Paragraph: len(out) - 1})
			}
		}
		out = append(out, para)
	}

	res.Gallery = unplaced(figs, placed)
	res.Markdown = withGallery(strings.Join(out, "\n\n"), res.Gallery, prefix)
	return res
}

// Resolve replaces [FIGURE:name] placeholders with image references. Each
// figure is placed once; repeated or unknown placeholders are removed.
// Figures without a placeholder go to the gallery.
func Resolve(markdown string, figs []types.Figure, prefix string) Result {
	known := make(map[string]types.Figure, len(figs))
	for _, f := range figs {
		known[f.Name] = f
	}

	var res Result
	placed := make(map[string]bool, len(figs))
	paras := splitParagraphs(markdown)
	out := make([]string, 0, len(paras))
	for _, para := range paras {
		para = placeholder.ReplaceAllStringFunc(para, func(tok string) string {
			name := placeholder.FindStringSubmatch(tok)[1]
			f, ok := known[name]
			if !ok || placed[name] {
				return ""
			}
			placed[name] = true
			n, _ := Number(name)
			res.Inline = append(res.Inline, Placement{Figure: f, Number: n, Paragraph: len(out)})
			return imageTag(f, prefix)
		})
		if strings.TrimSpace(para) == "" {
			continue
		}
		out = append(out, para)
	}

	res.Gallery = unplaced(figs, placed)
	res.Markdown = withGallery(strings.Join(out, "\n\n"), res.Gallery, prefix)
	return res
}

// Place picks the placement strategy for the document's source: element
// documents carry placeholders, the others rely on caption matching.
func Place(doc *types.Document, markdown, prefix string) Result {
	if doc == nil {
		return Result{Markdown: markdown}
	}
	if doc.Source == types.SourcePDFElements {
		return Resolve(markdown, doc.Figures, prefix)
	}
	return Reinsert(markdown, doc.Figures, prefix)
}

func splitParagraphs(markdown string) []string {
	markdown = strings.TrimSpace(strings.ReplaceAll(markdown, "\r\n", "\n"))
	if markdown == "" {
		return nil
	}
	var paras []string
	for _, p := range paragraphBreak.Split(markdown, -1) {
		if p = strings.Trim(p, "\n"); strings.TrimSpace(p) != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// unplaced returns figures not in placed, ordered by number, then name.
func unplaced(figs []types.Figure, placed map[string]bool) []types.Figure {
	var rest []types.Figure
	for _, f := range figs {
		if !placed[f.Name] {
			rest = append(rest, f)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		ni, oki := Number(rest[i].Name)
		nj, okj := Number(rest[j].Name)
		if oki != okj {
			return oki
		}
		if ni != nj {
			return ni < nj
		}
		return rest[i].Name < rest[j].Name
	})
	return rest
}

func withGallery(body string, gallery []types.Figure, prefix string) string {
	if len(gallery) == 0 {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	if body != "" {
		b.WriteString("\n\n")
	}
	b.WriteString(GalleryHeading)
	for _, f := range gallery {
		b.WriteString("\n\n")
		b.WriteString(imageTag(f, prefix))
	}
	return b.String()
}

func imageTag(f types.Figure, prefix string) string {
	alt := f.Caption
	if alt == "" {
		alt = strings.TrimSuffix(f.Name, path.Ext(f.Name))
	}
	alt = strings.NewReplacer("[", "(", "]", ")", "\n", " ").Replace(alt)
	src := f.Name
	if prefix != "" {
		src = strings.TrimSuffix(prefix, "/") + "/" + f.Name
	}
	return fmt.Sprintf("![%s](%s)", alt, src)
}
