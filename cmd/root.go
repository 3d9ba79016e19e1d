package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "voter-geo",
	Short:        "Batch voter geocoding and proximity search",
	Long:         "Geocodes voter addresses through the Census batch geocoder with a resumable on-disk cache, writes coordinates back to the voter store, and ranks voters by distance from an address.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
