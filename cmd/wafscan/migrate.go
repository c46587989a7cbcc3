package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/wafscan/wafscan/internal/cache/pgstore"
	"github.com/wafscan/wafscan/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Create or upgrade the persistent query cache schema",
	Annotations: structuredLogging(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithOptions(config.LoadOptions{})
		if err != nil {
			return commandError(err)
		}
		if cfg.CacheDatabaseURL == "" {
			return commandError(errors.New("CACHE_DATABASE_URL is required"))
		}

		applied, err := pgstore.Migrate(cfg.CacheDatabaseURL)
		if err != nil {
			return commandError(err)
		}
		if !applied {
			slog.Info("no changes to apply")
			return nil
		}
		slog.Info("migrations applied successfully")
		return nil
	},
}
