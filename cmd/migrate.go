package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/voter-geo/internal/resolver"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the voter table, indexes and query cache table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if m, ok := env.Store.(migrator); ok {
			if err := m.Migrate(ctx); err != nil {
				return err
			}
		}
		if cfg.Search.CacheBackend == "postgres" {
			pool, err := env.Pool(ctx)
			if err != nil {
				return err
			}
			if err := resolver.NewPostgresCache(pool, cfg.Search.CacheTTL).Migrate(ctx); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
