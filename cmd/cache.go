package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/voter-geo/internal/geocache"
	"github.com/sells-group/voter-geo/internal/resolver"
)

var (
	cacheStatsPath   string
	cacheStatsOutput string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain geocode caches",
}

type cacheReport struct {
	Path  string         `json:"path" yaml:"path"`
	Stats geocache.Stats `json:"stats" yaml:"stats"`
	Total int            `json:"total" yaml:"total"`
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show resolved and null counts for the cache file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfg.Pipeline.CachePath
		if cacheStatsPath != "" {
			path = cacheStatsPath
		}

		cache, err := geocache.Open(path)
		if err != nil {
			return err
		}
		st := cache.Stats()
		report := cacheReport{Path: path, Stats: st, Total: st.Total()}

		return writeOutput(cmd.OutOrStdout(), cacheStatsOutput, report, func(w io.Writer) error {
			rate := 0.0
			if report.Total > 0 {
				rate = float64(st.Resolved) / float64(report.Total) * 100
			}
			_, err := fmt.Fprintf(w, "%s\n  entries   %d\n  resolved  %d (%.1f%%)\n  null      %d\n",
				path, report.Total, st.Resolved, rate, st.Null)
			return err
		})
	},
}

var cacheExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Delete expired rows from the Postgres query cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env := &appEnv{}
		defer env.Close()
		pool, err := env.Pool(ctx)
		if err != nil {
			return err
		}

		n, err := resolver.NewPostgresCache(pool, cfg.Search.CacheTTL).DeleteExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().StringVar(&cacheStatsPath, "cache", "", "cache file (default from config)")
	cacheStatsCmd.Flags().StringVarP(&cacheStatsOutput, "output", "o", "text", "text, json or yaml")
	cacheCmd.AddCommand(cacheStatsCmd, cacheExpireCmd)
	rootCmd.AddCommand(cacheCmd)
}
