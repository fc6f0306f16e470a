// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-digest/internal/index"
	"github.com/pdiddy/paper-digest/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status [YYYY-MM-DD]",
	Short: "Print the latest run report for a date as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	date, err := dateArg(args)
	if err != nil {
		return err
	}
	cfg := loadConfig()

	db, err := index.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := db.LatestRun(cmd.Context(), date)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Fprintf(os.Stdout, "No run recorded for %s\n", date)
		return nil
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	s := pipeline.Summarize(*report)
	fmt.Fprintf(os.Stdout, "\nBatch summary: %d complete, %d partial, %d failed (total: %d)\n",
		s.Complete, s.Partial, s.Failed, s.Total())
	return nil
}
