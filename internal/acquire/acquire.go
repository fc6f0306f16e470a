// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads paper PDFs from arXiv.
package acquire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/pkg/types"
)

const defaultMinPDFBytes = 1024

// ErrNotPDF reports a download whose body does not start with the PDF magic bytes.
var ErrNotPDF = errors.New("response is not a PDF")

var pdfMagic = []byte("%PDF-")

// Downloader fetches PDFs, spacing consecutive downloads by the configured
// delay even when several workers share it.
type Downloader struct {
	client *http.Client
	cfg    types.ArxivConfig
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewDownloader returns a Downloader. When logger is nil the default logger is used.
func NewDownloader(client *http.Client, cfg types.ArxivConfig, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{client: client, cfg: cfg, logger: logger}
}

// Download writes the PDF for arxivID to destPath. An existing file larger
// than the configured minimum is reused and reported as skipped.
func (d *Downloader) Download(ctx context.Context, arxivID, destPath string) (skipped bool, err error) {
	minBytes := d.cfg.MinPDFBytes
	if minBytes <= 0 {
		minBytes = defaultMinPDFBytes
	}
	if info, err := os.Stat(destPath); err == nil && info.Size() > minBytes {
		d.logger.Debug("pdf already downloaded", "paper", arxivID, "path", destPath)
		return true, nil
	}

	if err := d.wait(ctx); err != nil {
		return false, err
	}

	pdfURL := PDFURL(d.cfg.BaseURL, arxivID)
	d.logger.Info("downloading pdf", "paper", arxivID, "url", pdfURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, d.client, req, 0)
	if err != nil {
		return false, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("HTTP %d from %s", resp.StatusCode, pdfURL)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "pdf") {
		d.logger.Warn("unexpected content type", "paper", arxivID, "content_type", ct)
	}

	body := bufio.NewReader(resp.Body)
	head, _ := body.Peek(len(pdfMagic))
	if !bytes.Equal(head, pdfMagic) {
		return false, fmt.Errorf("%s: %w", arxivID, ErrNotPDF)
	}

	if err := cache.WriteFileAtomic(destPath, body); err != nil {
		return false, fmt.Errorf("saving %s: %w", arxivID, err)
	}
	return false, nil
}

// wait blocks until DownloadDelay has passed since the previous download started.
func (d *Downloader) wait(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.DownloadDelay > 0 && !d.last.IsZero() {
		if remaining := d.cfg.DownloadDelay - time.Since(d.last); remaining > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(remaining):
			}
		}
	}
	d.last = time.Now()
	return nil
}
