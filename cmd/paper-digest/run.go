// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-digest/internal/pipeline"
)

const dateLayout = "2006-01-02"

var runCmd = &cobra.Command{
	Use:   "run [YYYY-MM-DD]",
	Short: "Run the full daily pipeline",
	Long: `Run lists the day's papers, translates and tags each one, extracts its
full text, builds the site, sends the digest email, and publishes the site
when publishing is enabled. Every stage result is cached under data_dir, so
a rerun only repeats the stages that failed. The date defaults to today.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("workers", 0, "papers processed concurrently (default 3)")
	runCmd.Flags().String("mode", "", "PDF generation: elements or markdown")
	runCmd.Flags().Bool("no-html", false, "skip the arXiv HTML mirror and always parse the PDF")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	date, err := dateArg(args)
	if err != nil {
		return err
	}
	cfg := loadConfig()
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Workers = n
	}
	if err := applyMode(cmd, &cfg.Parse.Mode); err != nil {
		return err
	}
	if noHTML, _ := cmd.Flags().GetBool("no-html"); noHTML {
		cfg.Arxiv.DisableHTML = true
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	report, err := runner.Run(cmd.Context(), date)
	if errors.Is(err, pipeline.ErrNoPapers) {
		return nil
	}
	if err != nil {
		return err
	}
	if s := pipeline.Summarize(report); s.HasFailures() {
		fmt.Fprintf(os.Stderr, "%d paper(s) have no content\n", s.Failed)
	}
	return nil
}

// dateArg returns the date argument, or today when none is given.
func dateArg(args []string) (string, error) {
	if len(args) == 0 {
		return time.Now().Format(dateLayout), nil
	}
	if _, err := time.Parse(dateLayout, args[0]); err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[0])
	}
	return args[0], nil
}
