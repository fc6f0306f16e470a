// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/internal/listing"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [YYYY-MM-DD]",
	Short: "Print the day's paper listing",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	date, err := dateArg(args)
	if err != nil {
		return err
	}
	cfg := loadConfig()

	papers, err := listing.Fetch(cmd.Context(), httputil.NewClient(cfg.Listing.HTTPConfig), date, cfg.Listing)
	if err != nil {
		return err
	}
	for _, p := range papers {
		fmt.Fprintf(os.Stdout, "%s  %3d  %s\n", p.ArxivID, p.Upvotes, p.Title)
	}
	fmt.Fprintf(os.Stdout, "\n%d paper(s) listed for %s\n", len(papers), date)
	return nil
}
