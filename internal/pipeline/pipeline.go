// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the daily job: list papers, process each one
// through translation, tagging, and content extraction, then build and
// distribute the site.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/internal/translate"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultWorkers bounds concurrently processed papers.
const DefaultWorkers = 3

// ErrNoPapers reports an empty listing. Callers treat it as a clean exit.
var ErrNoPapers = errors.New("no papers listed")

// Lister returns the papers for a date.
type Lister interface {
	List(ctx context.Context, date string) ([]types.Paper, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, date string) ([]types.Paper, error)

func (f ListerFunc) List(ctx context.Context, date string) ([]types.Paper, error) {
	return f(ctx, date)
}

// Translator translates titles, abstracts, and bodies.
type Translator interface {
	Title(ctx context.Context, title string) (string, error)
	Abstract(ctx context.Context, abstract string) (string, error)
	Markdown(ctx context.Context, md string) (translate.MarkdownResult, error)
}

// Tagger classifies a paper.
type Tagger interface {
	Tags(ctx context.Context, title, abstract string) (types.Tags, error)
}

// TaggerFunc adapts a function to Tagger.
type TaggerFunc func(ctx context.Context, title, abstract string) (types.Tags, error)

func (f TaggerFunc) Tags(ctx context.Context, title, abstract string) (types.Tags, error) {
	return f(ctx, title, abstract)
}

// HTMLSource converts a paper's HTML rendering.
type HTMLSource interface {
	Fetch(ctx context.Context, id, figuresDir string) (*types.Document, error)
}

// PDFSource downloads a paper's PDF to dest.
type PDFSource interface {
	Download(ctx context.Context, id, dest string) (skipped bool, err error)
}

// PDFParser extracts a Document from a PDF.
type PDFParser interface {
	Parse(ctx context.Context, mode types.ParseMode, pdfPath, figuresDir string) (*types.Document, error)
}

// SiteBuilder renders the site for a day.
type SiteBuilder interface {
	Build(date string, papers []types.Paper) error
	Dir() string
}

// Notifier delivers the daily digest.
type Notifier interface {
	Send(ctx context.Context, date string, papers []types.Paper) (bool, error)
}

// Publisher uploads the built site.
type Publisher interface {
	Publish(ctx context.Context, dir string) (int, error)
}

// Ledger records run and per-paper status.
type Ledger interface {
	StartRun(ctx context.Context, date string) (types.RunReport, error)
	RecordPaper(ctx context.Context, runID string, seq int, p types.PaperReport) error
	FinishRun(ctx context.Context, runID string) error
}

// Deps are the Runner's collaborators. HTML, Email, Publish, and Ledger
// are optional.
type Deps struct {
	Lister     Lister
	Translator Translator
	Tagger     Tagger
	HTML       HTMLSource
	PDF        PDFSource
	Parser     PDFParser
	Site       SiteBuilder
	Email      Notifier
	Publish    Publisher
	Ledger     Ledger
}

// Runner executes the daily pipeline.
type Runner struct {
	deps    Deps
	cache   *cache.Store
	mode    types.ParseMode
	workers int
	out     io.Writer
	logger  *slog.Logger
}

// New returns a Runner. Progress lines go to out; a nil out discards them.
func New(cfg types.PipelineConfig, store *cache.Store, deps Deps, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	r := &Runner{
		deps:    deps,
		cache:   store,
		mode:    cfg.Parse.Mode,
		workers: cfg.Workers,
		out:     out,
		logger:  logger,
	}
	if r.mode == "" {
		r.mode = types.ParseMarkdown
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if cfg.Arxiv.DisableHTML {
		r.deps.HTML = nil
	}
	return r
}

// BatchSummary counts papers by final status.
type BatchSummary struct {
	Complete int
	Partial  int
	Failed   int
}

// Total returns the number of papers processed.
func (s BatchSummary) Total() int {
	return s.Complete + s.Partial + s.Failed
}

// HasFailures reports whether any paper ended without content.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Summarize counts the report's papers by status.
func Summarize(report types.RunReport) BatchSummary {
	counts := report.Counts()
	return BatchSummary{
		Complete: counts[types.StatusComplete],
		Partial:  counts[types.StatusPartial],
		Failed:   counts[types.StatusFailedBeforeContent],
	}
}

// Run processes every paper listed for date. It fails only when the
// listing cannot be obtained, the listing is empty (ErrNoPapers), or the
// site cannot be built; every per-paper failure is recorded and the batch
// continues.
func (r *Runner) Run(ctx context.Context, date string) (types.RunReport, error) {
	report := r.startRun(ctx, date)
	logger := r.logger.With("run", report.RunID, "date", date)

	papers, err := r.listing(ctx, date)
	if err != nil {
		r.finishRun(ctx, report.RunID, logger)
		return report, fmt.Errorf("listing %s: %w", date, err)
	}
	if len(papers) == 0 {
		fmt.Fprintf(r.out, "No papers listed for %s\n", date)
		r.finishRun(ctx, report.RunID, logger)
		return report, ErrNoPapers
	}
	logger.Info("processing papers", "count", len(papers), "workers", r.workers)

	processed, reports := r.ProcessAll(ctx, date, papers)
	report.Papers = reports

	for i, pr := range reports {
		r.printPaper(pr)
		if r.deps.Ledger != nil {
			if err := r.deps.Ledger.RecordPaper(ctx, report.RunID, i, pr); err != nil {
				logger.Warn("recording paper status failed", "paper", pr.ArxivID, "err", err)
			}
		}
	}

	if err := r.distribute(ctx, date, processed, logger); err != nil {
		r.finishRun(ctx, report.RunID, logger)
		return report, err
	}

	r.finishRun(ctx, report.RunID, logger)
	report.FinishedAt = time.Now().UTC()

	s := Summarize(report)
	fmt.Fprintf(r.out, "\nBatch summary: %d complete, %d partial, %d failed (total: %d)\n",
		s.Complete, s.Partial, s.Failed, s.Total())
	return report, nil
}

// Rebuild re-renders the site for date from the cached listing. Stages
// already cached are reused; missing ones are computed. Email and publish
// are not run.
func (r *Runner) Rebuild(ctx context.Context, date string) (types.RunReport, error) {
	report := types.RunReport{RunID: uuid.NewString(), Date: date, StartedAt: time.Now().UTC()}
	if r.deps.Site == nil {
		return report, errors.New("no site builder configured")
	}

	var papers []types.Paper
	ok, err := r.cache.GetJSON(ctx, cache.Key{Date: date, Stage: cache.StageListing}, &papers)
	if err != nil {
		return report, fmt.Errorf("reading cached listing for %s: %w", date, err)
	}
	if !ok || len(papers) == 0 {
		return report, ErrNoPapers
	}

	processed, reports := r.ProcessAll(ctx, date, papers)
	report.Papers = reports
	for _, pr := range reports {
		r.printPaper(pr)
	}
	if err := r.deps.Site.Build(date, processed); err != nil {
		return report, fmt.Errorf("building site: %w", err)
	}
	fmt.Fprintf(r.out, "site: built %s\n", r.deps.Site.Dir())
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// ProcessAll runs papers through the per-paper stages on a bounded pool.
// Results are returned in listing order.
func (r *Runner) ProcessAll(ctx context.Context, date string, papers []types.Paper) ([]types.Paper, []types.PaperReport) {
	out := make([]types.Paper, len(papers))
	reports := make([]types.PaperReport, len(papers))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := range papers {
		g.Go(func() error {
			out[i], reports[i] = r.processPaper(ctx, date, papers[i])
			return nil
		})
	}
	g.Wait()
	return out, reports
}

func (r *Runner) listing(ctx context.Context, date string) ([]types.Paper, error) {
	key := cache.Key{Date: date, Stage: cache.StageListing}
	var papers []types.Paper
	ok, err := r.cache.GetJSON(ctx, key, &papers)
	if err != nil {
		return nil, err
	}
	if ok {
		r.logger.Info("listing cached", "date", date, "papers", len(papers))
		return papers, nil
	}

	papers, err = r.deps.Lister.List(ctx, date)
	if err != nil {
		return nil, err
	}
	// An empty day is not cached so a later run can pick up late listings.
	if len(papers) > 0 {
		if err := r.cache.PutJSON(ctx, key, papers); err != nil {
			r.logger.Warn("cache write failed", "key", key.String(), "err", err)
		}
	}
	return papers, nil
}

func (r *Runner) distribute(ctx context.Context, date string, papers []types.Paper, logger *slog.Logger) error {
	if r.deps.Site != nil {
		if err := r.deps.Site.Build(date, papers); err != nil {
			return fmt.Errorf("building site: %w", err)
		}
		fmt.Fprintf(r.out, "site: built %s\n", r.deps.Site.Dir())
	}

	if r.deps.Email != nil {
		sent, err := r.deps.Email.Send(ctx, date, papers)
		switch {
		case err != nil:
			logger.Warn("email failed", "err", err)
			fmt.Fprintf(r.out, "failed:  email (%v)\n", err)
		case sent:
			fmt.Fprintf(r.out, "email: sent digest of %d papers\n", len(papers))
		}
	}

	if r.deps.Publish != nil && r.deps.Site != nil {
		n, err := r.deps.Publish.Publish(ctx, r.deps.Site.Dir())
		if err != nil {
			logger.Warn("publish failed", "err", err)
			fmt.Fprintf(r.out, "failed:  publish (%v)\n", err)
		} else {
			fmt.Fprintf(r.out, "publish: uploaded %d files\n", n)
		}
	}
	return nil
}

func (r *Runner) startRun(ctx context.Context, date string) types.RunReport {
	if r.deps.Ledger != nil {
		report, err := r.deps.Ledger.StartRun(ctx, date)
		if err == nil {
			return report
		}
		r.logger.Warn("starting ledger run failed", "err", err)
	}
	return types.RunReport{RunID: uuid.NewString(), Date: date, StartedAt: time.Now().UTC()}
}

func (r *Runner) finishRun(ctx context.Context, runID string, logger *slog.Logger) {
	if r.deps.Ledger == nil {
		return
	}
	// The run is closed even when the caller's context was cancelled.
	if err := r.deps.Ledger.FinishRun(context.WithoutCancel(ctx), runID); err != nil {
		logger.Warn("finishing ledger run failed", "err", err)
	}
}

func (r *Runner) printPaper(pr types.PaperReport) {
	switch pr.Status {
	case types.StatusComplete:
		fmt.Fprintf(r.out, "complete: %s (%s)\n", pr.ArxivID, pr.Source)
	case types.StatusPartial:
		fmt.Fprintf(r.out, "partial: %s (%s; %s)\n", pr.ArxivID, pr.Source, failedStages(pr.Stages))
	default:
		fmt.Fprintf(r.out, "failed:  %s (%s)\n", pr.ArxivID, failedStages(pr.Stages))
	}
}

func failedStages(results []types.StageResult) string {
	var s string
	for _, res := range results {
		if res.Outcome != types.OutcomeFailed {
			continue
		}
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", res.Stage, res.Kind)
	}
	if s == "" {
		return "no content"
	}
	return s
}
