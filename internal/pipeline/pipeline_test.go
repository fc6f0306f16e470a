// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/internal/htmlmirror"
	"github.com/pdiddy/paper-digest/internal/index"
	"github.com/pdiddy/paper-digest/internal/tags"
	"github.com/pdiddy/paper-digest/internal/translate"
	"github.com/pdiddy/paper-digest/pkg/types"
)

const testDate = "2025-01-02"

// --- fakes ---

type fakeTranslator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeTranslator) count(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[kind]++
}

func (f *fakeTranslator) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeTranslator) Title(_ context.Context, title string) (string, error) {
	f.count("title")
	return "T:" + title, nil
}

func (f *fakeTranslator) Abstract(_ context.Context, abstract string) (string, error) {
	f.count("abstract")
	return "A:" + abstract, nil
}

func (f *fakeTranslator) Markdown(_ context.Context, md string) (translate.MarkdownResult, error) {
	f.count("markdown")
	if strings.Contains(md, "FAILBODY") {
		return translate.MarkdownResult{Text: md, Chunks: 1, Failed: 1}, errors.New("all 1 chunks failed")
	}
	return translate.MarkdownResult{Text: "譯:" + md, Chunks: 1}, nil
}

type fakeHTML struct {
	docs map[string]*types.Document
}

func (f fakeHTML) Fetch(_ context.Context, id, _ string) (*types.Document, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("HTTP 404: %w", htmlmirror.ErrNoHTML)
}

type fakePDF struct {
	mu        sync.Mutex
	downloads []string
}

func (f *fakePDF) Download(_ context.Context, id, dest string) (bool, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, id)
	f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	return false, os.WriteFile(dest, []byte("%PDF-1.4 "+id), 0o644)
}

type fakeParser struct{}

func (fakeParser) Parse(_ context.Context, mode types.ParseMode, pdfPath, _ string) (*types.Document, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, err
	}
	return &types.Document{Source: types.SourcePDFMarkdown, Markdown: "FAILBODY text", Pages: 1}, nil
}

type fakeSite struct {
	built  []types.Paper
	date   string
	err    error
	called int
}

func (f *fakeSite) Build(date string, papers []types.Paper) error {
	f.called++
	f.date, f.built = date, papers
	return f.err
}

func (f *fakeSite) Dir() string { return "docs-dir" }

type fakeEmail struct{ sent int }

func (f *fakeEmail) Send(_ context.Context, _ string, papers []types.Paper) (bool, error) {
	f.sent = len(papers)
	return true, nil
}

type fakePublisher struct{ dir string }

func (f *fakePublisher) Publish(_ context.Context, dir string) (int, error) {
	f.dir = dir
	return 5, nil
}

func tagger(_ context.Context, title, _ string) (types.Tags, error) {
	if title == "Panic" {
		panic("tagger exploded")
	}
	t := types.EmptyTags()
	t.Domain = []string{"NLP"}
	return t, nil
}

func listed(papers ...types.Paper) ListerFunc {
	return func(context.Context, string) ([]types.Paper, error) {
		return papers, nil
	}
}

var (
	paperHTML  = types.Paper{ArxivID: "2501.00001", Title: "HTML Paper", Abstract: "abs one"}
	paperPDF   = types.Paper{ArxivID: "2501.00002", Title: "PDF Paper", Abstract: "abs two"}
	paperPanic = types.Paper{ArxivID: "2501.00003", Title: "Panic", Abstract: "abs three"}
)

func htmlDocs() map[string]*types.Document {
	return map[string]*types.Document{
		paperHTML.ArxivID: {
			Source:   types.SourceHTML,
			Markdown: "# Intro\n\nSee below.\n\nFigure 1: Overview.",
			Figures:  []types.Figure{{Name: "fig1.png"}},
		},
	}
}

type harness struct {
	runner *Runner
	tr     *fakeTranslator
	pdf    *fakePDF
	site   *fakeSite
	email  *fakeEmail
	pub    *fakePublisher
	ledger *index.DB
	out    *bytes.Buffer
}

func newHarness(t *testing.T, lister Lister) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := index.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		tr:     &fakeTranslator{},
		pdf:    &fakePDF{},
		site:   &fakeSite{},
		email:  &fakeEmail{},
		pub:    &fakePublisher{},
		ledger: db,
		out:    &bytes.Buffer{},
	}
	store := cache.NewStore(dir, db, nil)
	h.runner = New(types.PipelineConfig{Workers: 2}, store, Deps{
		Lister:     lister,
		Translator: h.tr,
		Tagger:     TaggerFunc(tagger),
		HTML:       fakeHTML{docs: htmlDocs()},
		PDF:        h.pdf,
		Parser:     fakeParser{},
		Site:       h.site,
		Email:      h.email,
		Publish:    h.pub,
		Ledger:     db,
	}, h.out, nil)
	return h
}

func stageOutcomes(pr types.PaperReport) map[types.Stage]types.Outcome {
	m := make(map[types.Stage]types.Outcome)
	for _, s := range pr.Stages {
		m[s.Stage] = s.Outcome
	}
	return m
}

// --- tests ---

func TestRun(t *testing.T) {
	h := newHarness(t, listed(paperHTML, paperPDF, paperPanic))

	report, err := h.runner.Run(t.Context(), testDate)
	require.NoError(t, err)
	require.Len(t, report.Papers, 3)

	byID := report.Papers
	assert.Equal(t, types.StatusComplete, byID[0].Status)
	assert.Equal(t, types.SourceHTML, byID[0].Source)
	assert.Equal(t, types.StatusPartial, byID[1].Status)
	assert.Equal(t, types.SourcePDFMarkdown, byID[1].Source)
	assert.Equal(t, types.StatusFailedBeforeContent, byID[2].Status)
	assert.Equal(t, types.FailureInternal, byID[2].Stages[len(byID[2].Stages)-1].Kind)

	assert.Equal(t, []string{paperPDF.ArxivID}, h.pdf.downloads, "HTML paper never downloads a PDF")

	// Site receives every paper in listing order, including the failed one.
	require.Equal(t, 1, h.site.called)
	require.Len(t, h.site.built, 3)
	assert.Equal(t, paperHTML.ArxivID, h.site.built[0].ArxivID)
	assert.Equal(t, paperPanic.ArxivID, h.site.built[2].ArxivID)

	htmlPaper := h.site.built[0]
	assert.Equal(t, "T:HTML Paper", htmlPaper.TitleZH)
	assert.Equal(t, "A:abs one", htmlPaper.AbstractZH)
	assert.Equal(t, []string{"NLP"}, htmlPaper.Tags.Domain)
	assert.Contains(t, htmlPaper.Body, "](../../figures/2025-01-02/2501.00001/fig1.png)")
	assert.Contains(t, htmlPaper.Body, "譯:# Intro")

	pdfPaper := h.site.built[1]
	assert.Equal(t, "FAILBODY text", pdfPaper.Body, "untranslated body is kept")

	assert.Equal(t, 3, h.email.sent)
	assert.Equal(t, "docs-dir", h.pub.dir)

	out := h.out.String()
	assert.Contains(t, out, "complete: 2501.00001 (html)")
	assert.Contains(t, out, "partial: 2501.00002 (pdf-markdown; translation: remote)")
	assert.Contains(t, out, "failed:  2501.00003 (tags: internal)")
	assert.Contains(t, out, "Batch summary: 1 complete, 1 partial, 1 failed (total: 3)")

	latest, err := h.ledger.LatestRun(t.Context(), testDate)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, report.RunID, latest.RunID)
	require.Len(t, latest.Papers, 3)
	assert.Equal(t, types.StatusPartial, latest.Papers[1].Status)
	assert.False(t, latest.FinishedAt.IsZero())
}

func TestRun_SecondRunUsesCache(t *testing.T) {
	h := newHarness(t, listed(paperHTML))

	_, err := h.runner.Run(t.Context(), testDate)
	require.NoError(t, err)
	calls := h.tr.total()
	require.Equal(t, 3, calls)

	report, err := h.runner.Run(t.Context(), testDate)
	require.NoError(t, err)
	assert.Equal(t, calls, h.tr.total(), "no translation calls on a cached rerun")

	outcomes := stageOutcomes(report.Papers[0])
	for _, s := range []types.Stage{types.StageAbstract, types.StageTitle, types.StageTags, types.StageContent, types.StageTranslation} {
		assert.Equal(t, types.OutcomeCached, outcomes[s], s)
	}
	assert.Equal(t, types.StatusComplete, report.Papers[0].Status)
}

func TestRun_PartialTranslationNotCached(t *testing.T) {
	h := newHarness(t, listed(paperPDF))

	_, err := h.runner.Run(t.Context(), testDate)
	require.NoError(t, err)
	_, err = h.runner.Run(t.Context(), testDate)
	require.NoError(t, err)

	h.tr.mu.Lock()
	defer h.tr.mu.Unlock()
	assert.Equal(t, 2, h.tr.calls["markdown"])
	assert.Equal(t, 1, h.tr.calls["abstract"])
}

func TestRun_EmptyListing(t *testing.T) {
	h := newHarness(t, listed())

	_, err := h.runner.Run(t.Context(), testDate)
	assert.ErrorIs(t, err, ErrNoPapers)
	assert.Zero(t, h.site.called)
	assert.Contains(t, h.out.String(), "No papers listed for 2025-01-02")

	_, err = os.Stat(h.runner.cache.ListingPath(testDate))
	assert.True(t, os.IsNotExist(err), "empty listings are not cached")
}

func TestRun_ListingError(t *testing.T) {
	h := newHarness(t, ListerFunc(func(context.Context, string) ([]types.Paper, error) {
		return nil, errors.New("listing API returned HTTP 500")
	}))

	_, err := h.runner.Run(t.Context(), testDate)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPapers)
	assert.Zero(t, h.site.called)
}

func TestRun_ListingCached(t *testing.T) {
	calls := 0
	h := newHarness(t, ListerFunc(func(context.Context, string) ([]types.Paper, error) {
		calls++
		return []types.Paper{paperHTML}, nil
	}))

	for range 2 {
		_, err := h.runner.Run(t.Context(), testDate)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)

	data, err := os.ReadFile(h.runner.cache.ListingPath(testDate))
	require.NoError(t, err)
	var cached []types.Paper
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Len(t, cached, 1)
}

func TestRun_SiteError(t *testing.T) {
	h := newHarness(t, listed(paperHTML))
	h.site.err = errors.New("disk full")

	_, err := h.runner.Run(t.Context(), testDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "building site")
	assert.Zero(t, h.email.sent, "distribution stops when the site fails")
}

func TestRun_HTMLDisabled(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewStore(dir, cache.NewMemoryManifest(), nil)
	pdf := &fakePDF{}
	r := New(types.PipelineConfig{Arxiv: types.ArxivConfig{DisableHTML: true}}, store, Deps{
		Lister:     listed(paperHTML),
		Translator: &fakeTranslator{},
		Tagger:     TaggerFunc(tagger),
		HTML:       fakeHTML{docs: htmlDocs()},
		PDF:        pdf,
		Parser:     fakeParser{},
	}, nil, nil)

	report, err := r.Run(t.Context(), testDate)
	require.NoError(t, err)
	assert.Equal(t, []string{paperHTML.ArxivID}, pdf.downloads)
	assert.Equal(t, types.SourcePDFMarkdown, report.Papers[0].Source)
}

func TestRebuild(t *testing.T) {
	h := newHarness(t, listed(paperHTML))

	_, err := h.runner.Rebuild(t.Context(), testDate)
	assert.ErrorIs(t, err, ErrNoPapers, "nothing cached yet")

	_, err = h.runner.Run(t.Context(), testDate)
	require.NoError(t, err)
	calls := h.tr.total()
	sent := h.email.sent
	h.email.sent = 0

	report, err := h.runner.Rebuild(t.Context(), testDate)
	require.NoError(t, err)
	require.Len(t, report.Papers, 1)
	assert.Equal(t, types.StatusComplete, report.Papers[0].Status)
	assert.Equal(t, calls, h.tr.total())
	assert.Equal(t, 2, h.site.called)
	assert.Equal(t, "T:HTML Paper", h.site.built[0].TitleZH)
	assert.Equal(t, 1, sent)
	assert.Zero(t, h.email.sent, "rebuild does not send email")
}

func TestClassify(t *testing.T) {
	var syntaxErr *json.SyntaxError
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})
	require.ErrorAs(t, jsonErr, &syntaxErr)

	tests := []struct {
		name string
		err  error
		want types.FailureKind
	}{
		{"nil", nil, types.FailureNone},
		{"no html", fmt.Errorf("x: %w", htmlmirror.ErrNoHTML), types.FailureUnavailable},
		{"not pdf", fmt.Errorf("x: %w", acquire.ErrNotPDF), types.FailureUnavailable},
		{"tag json", tags.ErrNoJSON, types.FailureMalformed},
		{"json syntax", fmt.Errorf("decoding: %w", jsonErr), types.FailureMalformed},
		{"corrupt cache", fmt.Errorf("x: %w", cache.ErrCorrupt), types.FailureIO},
		{"path", &os.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}, types.FailureIO},
		{"other", errors.New("HTTP 500"), types.FailureRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
