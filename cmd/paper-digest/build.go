// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-digest/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build [YYYY-MM-DD]",
	Short: "Rebuild the site pages for a date from the cache",
	Long: `Build re-renders the daily index, paper pages, and home page for a date
using the cached listing and stage results. Stages missing from the cache are
computed. With --home, only the home page is rebuilt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().Bool("home", false, "rebuild only the home page")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if home, _ := cmd.Flags().GetBool("home"); home {
		if err := a.site.BuildHome(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "site: rebuilt home page in %s\n", a.site.Dir())
		return nil
	}

	date, err := dateArg(args)
	if err != nil {
		return err
	}
	runner, err := a.runner(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	if _, err := runner.Rebuild(cmd.Context(), date); err != nil {
		if errors.Is(err, pipeline.ErrNoPapers) {
			return fmt.Errorf("no cached listing for %s; run `paper-digest run %s` first", date, date)
		}
		return err
	}
	return nil
}
