// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/internal/figures"
	"github.com/pdiddy/paper-digest/pkg/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse <pdf>",
	Short: "Extract one PDF into Markdown and figures",
	Long: `Parse runs the PDF extraction on a single file: each page is rendered and
sent to the layout OCR service, failed pages fall back to the PDF text layer,
and embedded figures are extracted and placed back into the Markdown.

The result is written to OUT/document.json, the Markdown with figure links
to OUT/document.md, and figures to OUT/figures/.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().String("out", "", "output directory (default: next to the PDF)")
	parseCmd.Flags().String("mode", "", "generation: elements or markdown")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]
	if _, err := os.Stat(pdfPath); err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Dir(pdfPath)
	}

	cfg := loadConfig()
	if err := applyMode(cmd, &cfg.Parse.Mode); err != nil {
		return err
	}

	a := &app{cfg: cfg, logger: slog.Default()}
	defer a.Close()
	parser, err := a.parser(cmd.Context())
	if err != nil {
		return err
	}

	doc, err := parser.Parse(cmd.Context(), cfg.Parse.Mode, pdfPath, filepath.Join(out, "figures"))
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dest := filepath.Join(out, "document.json")
	if err := cache.WriteFileAtomic(dest, bytes.NewReader(data)); err != nil {
		return err
	}

	placed := figures.Place(doc, doc.Markdown, "figures")
	mdPath := filepath.Join(out, "document.md")
	if err := cache.WriteFileAtomic(mdPath, strings.NewReader(placed.Markdown)); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "parsed: %s (%s, %d pages, %d figures", pdfPath, doc.Source, doc.Pages, len(doc.Figures))
	if len(doc.FallbackPages) > 0 {
		fmt.Fprintf(os.Stdout, ", text-layer pages %v", doc.FallbackPages)
	}
	fmt.Fprintf(os.Stdout, ")\nwrote %s and %s\n", dest, mdPath)
	return nil
}

// applyMode overrides mode from the --mode flag when it is set.
func applyMode(cmd *cobra.Command, mode *types.ParseMode) error {
	v, _ := cmd.Flags().GetString("mode")
	switch types.ParseMode(v) {
	case "":
		return nil
	case types.ParseElements, types.ParseMarkdown:
		*mode = types.ParseMode(v)
		return nil
	default:
		return fmt.Errorf("invalid --mode %q: want elements or markdown", v)
	}
}
