package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/fetcher"
	"github.com/sells-group/voter-geo/internal/geocache"
	"github.com/sells-group/voter-geo/internal/metrics"
	"github.com/sells-group/voter-geo/internal/pipeline"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

var (
	geocodeInput       string
	geocodeState       string
	geocodeDelimiter   string
	geocodeCachePath   string
	geocodeBatchSize   int
	geocodeConcurrency int
	geocodeRetryFailed bool
	geocodeOutput      string
	geocodeMetricsFile string
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Batch geocode addresses into the cache file",
	Long: `Reads addresses from a CSV file (id,street,city,state,zip; local path, URL or .zip)
or from the voter store, submits the ones not yet in the cache to the Census batch
geocoder and checkpoints results to the cache file. Safe to interrupt and re-run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyGeocodeFlags(cmd)
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		records, err := loadGeocodeInput(ctx)
		if err != nil {
			return err
		}

		cache, err := geocache.Open(cfg.Pipeline.CachePath)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		sched, err := pipeline.NewScheduler(newCensusClient(), cache, cfg.Pipeline.Config,
			pipeline.WithMetrics(metrics.NewMetrics(reg)),
		)
		if err != nil {
			return err
		}

		summary, err := sched.Run(ctx, records)
		if summary != nil {
			if werr := writeSummary(cmd.OutOrStdout(), geocodeOutput, summary); werr != nil {
				zap.L().Warn("geocode: write summary", zap.Error(werr))
			}
		}
		if geocodeMetricsFile != "" {
			// Textfile collector format, for node_exporter.
			if werr := prometheus.WriteToTextfile(geocodeMetricsFile, reg); werr != nil {
				zap.L().Warn("geocode: write metrics file", zap.Error(werr))
			}
		}
		return err
	},
}

// applyGeocodeFlags lets explicit flags override config values.
func applyGeocodeFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("cache") {
		cfg.Pipeline.CachePath = geocodeCachePath
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Pipeline.BatchSize = geocodeBatchSize
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Pipeline.Concurrency = geocodeConcurrency
	}
	if cmd.Flags().Changed("retry-failed-next-run") {
		cfg.Pipeline.RetryFailedNextRun = geocodeRetryFailed
	}
}

// loadGeocodeInput reads the address file, or the voter store when no file
// is given.
func loadGeocodeInput(ctx context.Context) ([]geocode.AddressInput, error) {
	if geocodeInput == "" {
		env, err := initEnv(ctx)
		if err != nil {
			return nil, err
		}
		defer env.Close()
		addrs, err := env.Store.AddressRecords(ctx, geocodeState)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: list voter addresses")
		}
		zap.L().Info("geocode: loaded addresses from store",
			zap.String("state", geocodeState), zap.Int("addresses", len(addrs)))
		return addrs, nil
	}

	delim, err := parseDelimiter(geocodeDelimiter)
	if err != nil {
		return nil, err
	}
	rc, err := fetcher.Open(ctx, geocodeInput, fetcher.SourceOptions{MaxRetries: 3})
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	addrs, stats, err := fetcher.ReadAddresses(ctx, rc, fetcher.Dialect{Delimiter: delim, LazyQuotes: true})
	if err != nil {
		return nil, err
	}
	zap.L().Info("geocode: loaded address file",
		zap.String("input", geocodeInput),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
	)
	return addrs, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",", "comma":
		return ',', nil
	case "\\t", "\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	default:
		return 0, eris.Errorf("unsupported delimiter %q (comma, tab, pipe)", s)
	}
}

func writeSummary(w io.Writer, format string, s *pipeline.Summary) error {
	return writeOutput(w, format, s, func(w io.Writer) error {
		_, err := fmt.Fprintf(w,
			"run %s\n  records    %d (unique %d, invalid %d)\n  cached     %d\n  submitted  %d in %d batches (%d failed, %d calls)\n  matched    %d\n  null       %d\n  failed     %d\n  malformed  %d\n  checkpoints %d\n  duration   %s\n",
			s.RunID, s.Records, s.Unique, s.Invalid, s.Skipped,
			s.Submitted, s.Batches, s.FailedBatches, s.NetworkCalls,
			s.Matched, s.Null, s.Failed, s.Malformed, s.Checkpoints, s.Duration,
		)
		return err
	})
}

func init() {
	f := geocodeCmd.Flags()
	f.StringVar(&geocodeInput, "input", "", "address CSV (path, URL, .zip or - for stdin); default reads the voter store")
	f.StringVar(&geocodeState, "state", "", "state filter when reading the voter store")
	f.StringVar(&geocodeDelimiter, "delimiter", "comma", "input delimiter: comma, tab or pipe")
	f.StringVar(&geocodeCachePath, "cache", "", "cache file (default from config)")
	f.IntVar(&geocodeBatchSize, "batch-size", 0, "addresses per batch (default from config)")
	f.IntVar(&geocodeConcurrency, "concurrency", 0, "batches in flight (default from config)")
	f.BoolVar(&geocodeRetryFailed, "retry-failed-next-run", false, "keep exhausted batches out of the cache file")
	f.StringVarP(&geocodeOutput, "output", "o", "text", "summary format: text, json or yaml")
	f.StringVar(&geocodeMetricsFile, "metrics-file", "", "write run metrics in Prometheus textfile format")
	rootCmd.AddCommand(geocodeCmd)
}
