// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the built site to object storage",
	Long: `Publish uploads every file under site.docs_dir to the configured bucket,
creating the bucket when it does not exist. Credentials come from
.secrets/minio-access-key and .secrets/minio-secret-key.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	a := &app{cfg: cfg, logger: slog.Default()}
	pub, err := a.publisher()
	if err != nil {
		return err
	}

	n, err := pub.Publish(cmd.Context(), cfg.Site.DocsDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "publish: uploaded %d files from %s\n", n, cfg.Site.DocsDir)
	return nil
}
