package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/geocache"
	"github.com/sells-group/voter-geo/internal/voter"
)

var (
	applyState  string
	applyCache  string
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write cached coordinates back to voter rows",
	Long:  "Looks up every voter address in the cache file and updates the rows that resolved. Unresolved rows keep their current coordinates.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("cache") {
			cfg.Pipeline.CachePath = applyCache
		}
		if err := cfg.Validate("apply"); err != nil {
			return err
		}

		cache, err := geocache.Open(cfg.Pipeline.CachePath)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		addrs, err := env.Store.AddressRecords(ctx, applyState)
		if err != nil {
			return eris.Wrap(err, "apply: list voter addresses")
		}

		coords, unresolved := voter.ResolveCoordinates(addrs, cache)
		zap.L().Info("apply: resolved from cache",
			zap.Int("voters", len(addrs)),
			zap.Int("resolved", len(coords)),
			zap.Int("unresolved", unresolved),
		)

		if applyDryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "would update %d of %d voters (%d unresolved)\n", len(coords), len(addrs), unresolved)
			return nil
		}

		updated, err := env.Store.ApplyCoordinates(ctx, coords)
		if err != nil {
			return eris.Wrap(err, "apply: write coordinates")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %d of %d voters (%d unresolved)\n", updated, len(addrs), unresolved)
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyState, "state", "", "only voters in this state")
	applyCmd.Flags().StringVar(&applyCache, "cache", "", "cache file (default from config)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "count matches without writing")
	rootCmd.AddCommand(applyCmd)
}
