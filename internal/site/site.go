// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package site renders the static site: one page per paper, one index per
// day, and a home page listing recent days.
package site

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultTitle is the site title when none is configured.
const DefaultTitle = "HF Papers 繁中"

const (
	defaultDocsDir  = "docs"
	defaultHomeDays = 60
	maxTags         = 8
	dateLayout      = "2006-01-02"
)

//go:embed templates/*.html
var templateFS embed.FS

var dateDir = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Cache is the part of the cache layer the builder reads from.
type Cache interface {
	FiguresDir(date, paperID string) string
	ListingPath(date string) string
}

// Builder writes site pages under a docs directory.
type Builder struct {
	dir      string
	title    string
	homeDays int
	cache    Cache
	tmpl     *template.Template
	md       goldmark.Markdown
	logger   *slog.Logger
}

// New returns a Builder. A nil logger uses the default.
func New(cfg types.SiteConfig, cache Cache, logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.New("site").Funcs(template.FuncMap{
		"join": strings.Join,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	b := &Builder{
		dir:      cfg.DocsDir,
		title:    cfg.Title,
		homeDays: cfg.HomeDays,
		cache:    cache,
		tmpl:     tmpl,
		// Raw HTML passes through: page-break comments and <small> footnotes.
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		logger: logger,
	}
	if b.dir == "" {
		b.dir = defaultDocsDir
	}
	if b.title == "" {
		b.title = DefaultTitle
	}
	if b.homeDays <= 0 {
		b.homeDays = defaultHomeDays
	}
	return b, nil
}

// Dir returns the docs directory.
func (b *Builder) Dir() string {
	return b.dir
}

// FigurePrefix is the relative URL of a paper's figures as seen from its
// own page.
func FigurePrefix(date, paperID string) string {
	return basePath(2) + path.Join("figures", date, paperID)
}

type paperView struct {
	ID            string
	Title         string
	OriginalTitle string
	Abstract      string
	Authors       []string
	Upvotes       int
	Tags          []string
	OpenSource    bool
	ArxivURL      string
	Body          template.HTML
}

type dateEntry struct {
	Date  string
	Path  string
	Count int
}

type pageData struct {
	SiteTitle string
	PageTitle string
	BasePath  string
	Date      string
	Prev      string
	Next      string
	Papers    []paperView
	Paper     paperView
	Dates     []dateEntry
}

// Build writes the daily index for date, a page per paper, and the home page.
func (b *Builder) Build(date string, papers []types.Paper) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", b.dir, err)
	}

	views := make([]paperView, 0, len(papers))
	for _, p := range papers {
		v, err := b.view(p)
		if err != nil {
			return err
		}
		views = append(views, v)
	}

	b.logger.Info("building daily index", "date", date, "papers", len(papers))
	if err := b.buildDaily(date, views); err != nil {
		return err
	}

	for i, p := range papers {
		if err := b.copyFigures(date, p.ArxivID); err != nil {
			b.logger.Warn("copying figures failed", "paper", p.ArxivID, "err", err)
		}
		if err := b.buildPaper(date, views[i]); err != nil {
			return err
		}
	}

	return b.BuildHome()
}

func (b *Builder) view(p types.Paper) (paperView, error) {
	tags := p.Tags.Flatten()
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	v := paperView{
		ID:            p.ArxivID,
		Title:         p.DisplayTitle(),
		OriginalTitle: p.Title,
		Abstract:      p.DisplayAbstract(),
		Authors:       p.Authors,
		Upvotes:       p.Upvotes,
		Tags:          tags,
		OpenSource:    p.Tags.OpenSource,
		ArxivURL:      acquire.AbsURL("", p.ArxivID),
	}
	if strings.TrimSpace(p.Body) != "" {
		var buf bytes.Buffer
		if err := b.md.Convert([]byte(p.Body), &buf); err != nil {
			return v, fmt.Errorf("rendering %s: %w", p.ArxivID, err)
		}
		v.Body = template.HTML(buf.String())
	}
	return v, nil
}

func (b *Builder) buildDaily(date string, views []paperView) error {
	data := pageData{
		SiteTitle: b.title,
		PageTitle: date,
		BasePath:  basePath(1),
		Date:      date,
		Papers:    views,
	}
	if d, err := time.Parse(dateLayout, date); err == nil {
		data.Prev = b.existingDay(d.AddDate(0, 0, -1))
		data.Next = b.existingDay(d.AddDate(0, 0, 1))
	}
	return b.render("daily.html", filepath.Join(b.dir, date, "index.html"), data)
}

func (b *Builder) existingDay(d time.Time) string {
	s := d.Format(dateLayout)
	if _, err := os.Stat(filepath.Join(b.dir, s, "index.html")); err != nil {
		return ""
	}
	return s
}

func (b *Builder) buildPaper(date string, v paperView) error {
	data := pageData{
		SiteTitle: b.title,
		PageTitle: v.Title,
		BasePath:  basePath(2),
		Date:      date,
		Paper:     v,
	}
	return b.render("paper.html", filepath.Join(b.dir, "paper", v.ID, "index.html"), data)
}

// BuildHome rewrites the home page from the day directories present in docs.
func (b *Builder) BuildHome() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", b.dir, err)
	}
	var dates []string
	for _, e := range entries {
		if !e.IsDir() || !dateDir.MatchString(e.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(b.dir, e.Name(), "index.html")); err == nil {
			dates = append(dates, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > b.homeDays {
		dates = dates[:b.homeDays]
	}

	data := pageData{SiteTitle: b.title, PageTitle: "首頁", BasePath: basePath(0)}
	for _, d := range dates {
		data.Dates = append(data.Dates, dateEntry{Date: d, Path: d + "/index.html", Count: b.listingCount(d)})
	}
	return b.render("home.html", filepath.Join(b.dir, "index.html"), data)
}

// listingCount reads the cached listing for date. Unreadable listings count as zero.
func (b *Builder) listingCount(date string) int {
	if b.cache == nil {
		return 0
	}
	data, err := os.ReadFile(b.cache.ListingPath(date))
	if err != nil {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return 0
	}
	return len(items)
}

func (b *Builder) render(name, dest string, data pageData) error {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("executing %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, buf.Bytes(), 0o644)
}

func (b *Builder) copyFigures(date, paperID string) error {
	if b.cache == nil {
		return nil
	}
	src := b.cache.FiguresDir(date, paperID)
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	dst := filepath.Join(b.dir, "figures", date, paperID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func basePath(depth int) string {
	if depth <= 0 {
		return "./"
	}
	return strings.Repeat("../", depth)
}
