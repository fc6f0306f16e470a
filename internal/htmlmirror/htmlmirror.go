// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package htmlmirror converts arXiv's HTML rendering of a paper into a
// Markdown Document with downloaded figures. Papers without an HTML
// rendering report ErrNoHTML so the caller can take the PDF path.
package htmlmirror

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/internal/figures"
	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultUserAgent identifies the crawler to arXiv.
const DefaultUserAgent = "Mozilla/5.0 (compatible; HFPapersBot/1.0)"

// CaptionOnlyMarker prefixes a figure caption whose image was unavailable.
const CaptionOnlyMarker = "[FIGURE_CAPTION]"

const defaultMinFigureBytes = 500

// ErrNoHTML reports that arXiv has no HTML rendering for the paper.
var ErrNoHTML = errors.New("no HTML version")

var (
	imageExts  = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true}
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Mirror fetches and converts HTML renderings.
type Mirror struct {
	client *http.Client
	cfg    types.ArxivConfig
	logger *slog.Logger
	conv   *md.Converter
}

// New returns a Mirror. When logger is nil the default logger is used.
func New(client *http.Client, cfg types.ArxivConfig, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MinFigureBytes <= 0 {
		cfg.MinFigureBytes = defaultMinFigureBytes
	}
	// Escaping stays off so LaTeX and bracketed markers survive conversion.
	conv := md.NewConverter("", true, &md.Options{EscapeMode: "disabled"})
	conv.Use(plugin.GitHubFlavored())
	return &Mirror{client: client, cfg: cfg, logger: logger, conv: conv}
}

// Fetch converts the HTML rendering of id, saving figures into figuresDir.
// A non-200 response returns ErrNoHTML.
func (m *Mirror) Fetch(ctx context.Context, id, figuresDir string) (*types.Document, error) {
	pageURL := acquire.HTMLURL(m.cfg.BaseURL, id)
	logger := m.logger.With("paper", id)
	logger.Info("fetching html", "url", pageURL)

	resp, err := httputil.Get(ctx, m.client, pageURL, m.cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d from %s: %w", resp.StatusCode, pageURL, ErrNoHTML)
	}

	dom, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	base := resp.Request.URL
	if !strings.HasSuffix(base.Path, "/") {
		b := *base
		b.Path += "/"
		base = &b
	}
	return m.convert(ctx, dom, base, figuresDir, logger)
}

func (m *Mirror) convert(ctx context.Context, dom *goquery.Document, base *url.URL, figuresDir string, logger *slog.Logger) (*types.Document, error) {
	dom.Find("script, style, nav, footer").Remove()

	root := dom.Find("article").First()
	if root.Length() == 0 {
		root = dom.Find("div.ltx_document").First()
	}
	if root.Length() == 0 {
		root = dom.Find("body").First()
	}
	if root.Length() == 0 {
		return nil, fmt.Errorf("no document body: %w", ErrNoHTML)
	}

	replaceMath(root)

	doc := &types.Document{Source: types.SourceHTML}
	used := make(map[int]bool)
	next := 1

	root.Find("figure").Each(func(_ int, fig *goquery.Selection) {
		// Subfigures belong to their outer figure.
		if fig.ParentsFiltered("figure").Length() > 0 {
			return
		}
		caption := textOf(fig.Find("figcaption").Last())

		img := fig.Find("img").First()
		src, hasImg := img.Attr("src")
		if !hasImg || src == "" {
			if fig.Find("table").Length() > 0 {
				// Table floats keep their content; only the caption becomes a paragraph.
				fig.Find("figcaption").ReplaceWithHtml(paragraph(caption))
				return
			}
			if caption == "" {
				fig.Remove()
				return
			}
			fig.ReplaceWithHtml(paragraph(CaptionOnlyMarker + " " + caption))
			return
		}

		n := figureNumber(caption, used, &next)
		name := fmt.Sprintf("fig%d%s", n, imageExt(src))
		if err := m.downloadFigure(ctx, base, src, filepath.Join(figuresDir, name)); err != nil {
			logger.Warn("figure download failed", "src", src, "err", err)
			if caption == "" {
				fig.Remove()
			} else {
				fig.ReplaceWithHtml(paragraph(CaptionOnlyMarker + " " + caption))
			}
			return
		}
		used[n] = true
		doc.Figures = append(doc.Figures, types.Figure{Name: name, Caption: caption})

		if caption == "" {
			fig.Remove()
			return
		}
		fig.ReplaceWithHtml(paragraph(caption))
	})

	markdown := m.conv.Convert(root)
	markdown = blankLines.ReplaceAllString(markdown, "\n\n")
	doc.Markdown = strings.TrimSpace(markdown)

	logger.Info("parsed html", "chars", len(doc.Markdown), "figures", len(doc.Figures))
	return doc, nil
}

// figureNumber prefers the number printed in the caption so filenames line
// up with "Figure N" references; otherwise the next unused number.
func figureNumber(caption string, used map[int]bool, next *int) int {
	if n, ok := figures.CaptionNumber(caption); ok && !used[n] {
		return n
	}
	for used[*next] {
		*next++
	}
	n := *next
	*next++
	return n
}

func (m *Mirror) downloadFigure(ctx context.Context, base *url.URL, src, dest string) error {
	ref, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("bad src: %w", err)
	}
	abs := base.ResolveReference(ref).String()

	resp, err := httputil.Get(ctx, m.client, abs, m.cfg.UserAgent)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, abs)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) <= m.cfg.MinFigureBytes {
		return fmt.Errorf("image too small (%d bytes)", len(data))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// replaceMath swaps MathML for its LaTeX source so formulas survive as $...$.
func replaceMath(root *goquery.Selection) {
	root.Find("math").Each(func(_ int, s *goquery.Selection) {
		tex, ok := s.Attr("alttext")
		if !ok || strings.TrimSpace(tex) == "" {
			return
		}
		tex = strings.TrimSpace(tex)
		if disp, _ := s.Attr("display"); disp == "block" {
			s.ReplaceWithHtml(html.EscapeString("$$" + tex + "$$"))
			return
		}
		s.ReplaceWithHtml(html.EscapeString("$" + tex + "$"))
	})
}

func textOf(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func paragraph(text string) string {
	return "<p>" + html.EscapeString(text) + "</p>"
}

func imageExt(src string) string {
	u, err := url.Parse(src)
	p := src
	if err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if !imageExts[ext] {
		return ".png"
	}
	return ext
}
