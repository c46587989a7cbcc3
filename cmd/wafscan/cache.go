package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wafscan/wafscan/internal/cache/pgstore"
	"github.com/wafscan/wafscan/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:         "cache",
	Short:       "Manage the persistent query cache",
	Annotations: structuredLogging(),
}

var purgeAll bool

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries (or all of them with --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.LoadWithOptions(config.LoadOptions{})
		if err != nil {
			return commandError(err)
		}
		if cfg.CacheDatabaseURL == "" {
			return commandError(errors.New("CACHE_DATABASE_URL is required"))
		}

		store, pool, err := pgstore.Open(ctx, cfg.CacheDatabaseURL)
		if err != nil {
			return commandError(err)
		}
		defer pool.Close()

		if purgeAll {
			if err := store.Clear(ctx); err != nil {
				return commandError(err)
			}
			slog.Info("query cache cleared")
			return nil
		}
		n, err := store.PurgeExpired(ctx)
		if err != nil {
			return commandError(err)
		}
		slog.Info("expired query cache entries purged", "count", n)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&purgeAll, "all", false, "Delete every entry, not only expired ones")
	cacheCmd.AddCommand(cachePurgeCmd)
}
