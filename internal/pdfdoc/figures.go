// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdfdoc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultMinFigureBytes drops icons, rules, and other tiny embedded images.
const DefaultMinFigureBytes = 5120

// embeddedImage is one image XObject as found on a page.
type embeddedImage struct {
	ObjNr int
	Page  int
	Ext   string
	Data  []byte
}

// FigureExtractor pulls raster images out of a PDF's object table.
type FigureExtractor struct {
	MinBytes int
	Logger   *slog.Logger
}

// Extract writes every distinct embedded image of at least MinBytes to dir
// as fig{N}.{ext}, numbered in order of first appearance, and returns the
// written figures. Captions are unknown at this stage.
func (e FigureExtractor) Extract(ctx context.Context, pdfPath, dir string) ([]types.Figure, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	imgs, err := readImages(ctx, pdfPath, logger)
	if err != nil {
		return nil, err
	}
	return writeFigures(selectFigures(imgs, e.minBytes()), dir)
}

// ExtractFigures runs a FigureExtractor with the default logger.
func ExtractFigures(ctx context.Context, pdfPath, dir string, minBytes int) ([]types.Figure, error) {
	return FigureExtractor{MinBytes: minBytes}.Extract(ctx, pdfPath, dir)
}

func (e FigureExtractor) minBytes() int {
	if e.MinBytes <= 0 {
		return DefaultMinFigureBytes
	}
	return e.MinBytes
}

// readImages walks pages in order and collects their image XObjects.
// A page whose images cannot be decoded is logged and skipped.
func readImages(ctx context.Context, pdfPath string, logger *slog.Logger) ([]embeddedImage, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pdfPath, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("reading object table of %s: %w", pdfPath, err)
	}

	var out []embeddedImage
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageImgs, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
		if err != nil {
			logger.Warn("skipping page images", "page", pageNr, "err", err)
			continue
		}

		objNrs := make([]int, 0, len(pageImgs))
		for nr := range pageImgs {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			img := pageImgs[nr]
			data, err := io.ReadAll(img)
			if err != nil {
				logger.Warn("skipping unreadable image", "page", pageNr, "obj", nr, "err", err)
				continue
			}
			out = append(out, embeddedImage{
				ObjNr: img.ObjNr,
				Page:  pageNr,
				Ext:   img.FileType,
				Data:  data,
			})
		}
	}
	return out, nil
}

// selectFigures keeps the first occurrence of each object and drops
// images smaller than minBytes. Input order is preserved.
func selectFigures(imgs []embeddedImage, minBytes int) []embeddedImage {
	seen := make(map[int]bool, len(imgs))
	var out []embeddedImage
	for _, img := range imgs {
		if seen[img.ObjNr] {
			continue
		}
		seen[img.ObjNr] = true
		if len(img.Data) < minBytes {
			continue
		}
		out = append(out, img)
	}
	return out
}

// writeFigures names images fig1, fig2, ... and writes them to dir.
func writeFigures(imgs []embeddedImage, dir string) ([]types.Figure, error) {
	if len(imgs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating figures directory: %w", err)
	}

	figs := make([]types.Figure, 0, len(imgs))
	for i, img := range imgs {
		name := fmt.Sprintf("fig%d.%s", i+1, imageExt(img.Ext))
		if err := os.WriteFile(filepath.Join(dir, name), img.Data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
		figs = append(figs, types.Figure{Name: name, Page: img.Page})
	}
	return figs, nil
}

// imageExt normalizes pdfcpu file types to a browser-friendly extension.
func imageExt(fileType string) string {
	switch ft := strings.ToLower(strings.TrimPrefix(fileType, ".")); ft {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "tif", "tiff", "jp2", "webp", "gif":
		return ft
	case "":
		return "png"
	default:
		return ft
	}
}
