// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/internal/figures"
	"github.com/pdiddy/paper-digest/internal/htmlmirror"
	"github.com/pdiddy/paper-digest/internal/site"
	"github.com/pdiddy/paper-digest/internal/tags"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// stageLog collects a paper's stage results and remembers the stage in
// progress so a recovered panic can be attributed to it.
type stageLog struct {
	current types.Stage
	results []types.StageResult
}

func (l *stageLog) begin(s types.Stage) {
	l.current = s
}

func (l *stageLog) record(s types.Stage, hit bool, err error) types.StageResult {
	res := types.StageResult{Stage: s, Outcome: types.OutcomeOK}
	switch {
	case err != nil:
		res.Outcome = types.OutcomeFailed
		res.Kind = classify(err)
		res.Message = err.Error()
	case hit:
		res.Outcome = types.OutcomeCached
	}
	l.results = append(l.results, res)
	return res
}

func (l *stageLog) skip(s types.Stage, reason string) {
	l.results = append(l.results, types.StageResult{Stage: s, Outcome: types.OutcomeSkipped, Message: reason})
}

// processPaper runs the per-paper stages. Every failure, including a panic,
// is confined to this paper and recorded in its report.
func (r *Runner) processPaper(ctx context.Context, date string, p types.Paper) (out types.Paper, report types.PaperReport) {
	logger := r.logger.With("paper", p.ArxivID)
	var stages stageLog

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("paper processing panicked", "stage", stages.current, "panic", rec, "stack", string(debug.Stack()))
			stages.results = append(stages.results, types.StageResult{
				Stage:   stages.current,
				Outcome: types.OutcomeFailed,
				Kind:    types.FailureInternal,
				Message: fmt.Sprint(rec),
			})
			out = p
		}
		out.Status = types.DeriveStatus(stages.results)
		report = types.PaperReport{ArxivID: p.ArxivID, Status: out.Status, Stages: stages.results}
		if out.Document != nil {
			report.Source = out.Document.Source
		}
	}()

	key := func(s cache.Stage) cache.Key {
		return cache.Key{Date: date, PaperID: p.ArxivID, Stage: s}
	}

	// Abstract and title translations fall back to the original text on display.
	stages.begin(types.StageAbstract)
	if strings.TrimSpace(p.Abstract) == "" {
		stages.skip(types.StageAbstract, "no abstract")
	} else {
		text, hit, err := r.cache.Text(ctx, key(cache.StageAbstract), func(ctx context.Context) (string, error) {
			return r.deps.Translator.Abstract(ctx, p.Abstract)
		})
		if res := stages.record(types.StageAbstract, hit, err); !res.Succeeded() {
			logger.Warn("abstract translation failed", "err", err)
		}
		p.AbstractZH = text
	}

	stages.begin(types.StageTitle)
	if strings.TrimSpace(p.Title) == "" {
		stages.skip(types.StageTitle, "no title")
	} else {
		text, hit, err := r.cache.Text(ctx, key(cache.StageTitle), func(ctx context.Context) (string, error) {
			return r.deps.Translator.Title(ctx, p.Title)
		})
		if res := stages.record(types.StageTitle, hit, err); !res.Succeeded() {
			logger.Warn("title translation failed", "err", err)
		}
		p.TitleZH = text
	}

	stages.begin(types.StageTags)
	tagSet, hit, err := cache.Cached(ctx, r.cache, key(cache.StageTags), func(ctx context.Context) (types.Tags, error) {
		return r.deps.Tagger.Tags(ctx, p.Title, p.Abstract)
	})
	if res := stages.record(types.StageTags, hit, err); !res.Succeeded() {
		logger.Warn("tag generation failed", "err", err)
		tagSet = types.EmptyTags()
	}
	p.Tags = tagSet

	stages.begin(types.StageContent)
	doc, hit, err := r.content(ctx, date, p.ArxivID, logger)
	if res := stages.record(types.StageContent, hit, err); !res.Succeeded() {
		logger.Warn("no content for paper", "err", err)
		stages.skip(types.StageTranslation, "no content")
		stages.skip(types.StageFigures, "no content")
		return p, report
	}
	p.Document = doc
	logger.Info("content ready", "source", doc.Source, "chars", len(doc.Markdown), "figures", len(doc.Figures))

	stages.begin(types.StageTranslation)
	body, hit, err := r.translateBody(ctx, key(cache.StageTranslation), doc.Markdown)
	if res := stages.record(types.StageTranslation, hit, err); !res.Succeeded() {
		logger.Warn("content translation incomplete", "err", err)
	}

	stages.begin(types.StageFigures)
	placed := figures.Place(doc, body, site.FigurePrefix(date, p.ArxivID))
	p.Body = placed.Markdown
	stages.record(types.StageFigures, false, nil)
	logger.Debug("figures placed", "inline", len(placed.Inline), "gallery", len(placed.Gallery))

	return p, report
}

// content returns the paper body, preferring the HTML rendering and falling
// back to the PDF.
func (r *Runner) content(ctx context.Context, date, id string, logger *slog.Logger) (*types.Document, bool, error) {
	figDir := r.cache.FiguresDir(date, id)

	if r.deps.HTML != nil {
		doc, hit, err := cache.Cached(ctx, r.cache, cache.Key{Date: date, PaperID: id, Stage: cache.StageHTML},
			func(ctx context.Context) (*types.Document, error) {
				doc, err := r.deps.HTML.Fetch(ctx, id, figDir)
				if err == nil && strings.TrimSpace(doc.Markdown) == "" {
					err = fmt.Errorf("empty HTML body: %w", htmlmirror.ErrNoHTML)
				}
				return doc, err
			})
		switch {
		case err == nil:
			return doc, hit, nil
		case errors.Is(err, htmlmirror.ErrNoHTML):
			logger.Info("no HTML rendering, using PDF")
		default:
			logger.Warn("HTML conversion failed, using PDF", "err", err)
		}
	}

	if r.deps.PDF == nil || r.deps.Parser == nil {
		return nil, false, fmt.Errorf("no PDF path configured: %w", acquire.ErrNotPDF)
	}

	pdfKey := cache.Key{Date: date, PaperID: id, Stage: cache.StagePDF}
	pdfPath := r.cache.Path(pdfKey)
	if _, err := r.deps.PDF.Download(ctx, id, pdfPath); err != nil {
		return nil, false, fmt.Errorf("downloading PDF: %w", err)
	}
	if err := r.cache.Adopt(ctx, pdfKey); err != nil {
		logger.Warn("recording PDF in manifest failed", "err", err)
	}

	stage := cache.StageMarkdown
	if r.mode == types.ParseElements {
		stage = cache.StageElements
	}
	return cache.Cached(ctx, r.cache, cache.Key{Date: date, PaperID: id, Stage: stage},
		func(ctx context.Context) (*types.Document, error) {
			return r.deps.Parser.Parse(ctx, r.mode, pdfPath, figDir)
		})
}

// translateBody translates md, caching only complete translations. A
// partial translation is returned with an error so the stage reports it.
func (r *Runner) translateBody(ctx context.Context, key cache.Key, md string) (string, bool, error) {
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return string(data), true, nil
	}

	res, err := r.deps.Translator.Markdown(ctx, md)
	if err != nil {
		return md, false, err
	}
	if res.Failed > 0 {
		return res.Text, false, fmt.Errorf("%d of %d chunks untranslated", res.Failed, res.Chunks)
	}
	if err := r.cache.Put(ctx, key, []byte(res.Text)); err != nil {
		r.logger.Warn("cache write failed", "key", key.String(), "err", err)
	}
	return res.Text, false, nil
}

// classify maps an error to the failure kind recorded in stage results.
func classify(err error) types.FailureKind {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		urlErr    *url.Error
		netErr    net.Error
		pathErr   *fs.PathError
	)
	switch {
	case err == nil:
		return types.FailureNone
	case errors.Is(err, htmlmirror.ErrNoHTML), errors.Is(err, acquire.ErrNotPDF):
		return types.FailureUnavailable
	case errors.Is(err, tags.ErrNoJSON), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return types.FailureMalformed
	case errors.Is(err, cache.ErrCorrupt), errors.As(err, &pathErr):
		return types.FailureIO
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return types.FailureRemote
	default:
		return types.FailureRemote
	}
}
