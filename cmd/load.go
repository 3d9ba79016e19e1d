package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/fetcher"
	"github.com/sells-group/voter-geo/internal/voter"
)

var (
	loadInput     string
	loadDelimiter string
	loadChunk     int
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a voter file into the store",
	Long:  "Reads a delimited voter file with a header row (path, URL or .zip) and upserts it into the configured store in chunks.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if loadInput == "" {
			return eris.New("load: --input is required")
		}
		if loadChunk <= 0 {
			return eris.New("load: --chunk must be positive")
		}
		delim, err := parseDelimiter(loadDelimiter)
		if err != nil {
			return err
		}

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

		rc, err := fetcher.Open(ctx, loadInput, fetcher.SourceOptions{MaxRetries: 3})
		if err != nil {
			return err
		}
		defer rc.Close() //nolint:errcheck

		records, stats, err := fetcher.ReadVoters(ctx, rc, fetcher.Dialect{Delimiter: delim, LazyQuotes: true})
		if err != nil {
			return err
		}

		inserted, err := insertChunked(ctx, env.Store, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d voters (%d rows, %d skipped)\n", inserted, stats.Rows, stats.Skipped)
		return nil
	},
}

func insertChunked(ctx context.Context, st voter.Store, records []voter.Record) (int64, error) {
	var total int64
	for start := 0; start < len(records); start += loadChunk {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "load: cancelled")
		}
		end := min(start+loadChunk, len(records))
		n, err := st.Insert(ctx, records[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "load: insert rows %d-%d", start, end)
		}
		total += n
		zap.L().Debug("load: chunk inserted", zap.Int("end", end), zap.Int("total", len(records)))
	}
	return total, nil
}

func init() {
	loadCmd.Flags().StringVar(&loadInput, "input", "", "voter file (path, URL, .zip or - for stdin)")
	loadCmd.Flags().StringVar(&loadDelimiter, "delimiter", "comma", "comma, tab or pipe")
	loadCmd.Flags().IntVar(&loadChunk, "chunk", 5000, "rows per insert transaction")
	rootCmd.AddCommand(loadCmd)
}
