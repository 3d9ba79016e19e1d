package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/voter-geo/internal/search"
)

var nearbyReq search.Request

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Rank voters by distance from an address",
	Example: `  voter-geo nearby --address "123 Oak St, Charlotte NC 28202" --state NC
  voter-geo nearby --zip 28202 --state NC --limit 20`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("search"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		svc, err := newSearchService(ctx, env)
		if err != nil {
			return err
		}

		resp, err := svc.Nearby(ctx, nearbyReq)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), "json", resp, nil)
	},
}

func init() {
	f := nearbyCmd.Flags()
	f.StringVar(&nearbyReq.Address, "address", "", "free-text address")
	f.StringVar(&nearbyReq.Zip, "zip", "", "5-digit zip (overrides the zip in --address)")
	f.StringVar(&nearbyReq.State, "state", "", "2-letter state code")
	f.IntVar(&nearbyReq.Limit, "limit", search.DefaultLimit, "page size")
	f.IntVar(&nearbyReq.Offset, "offset", 0, "page offset")
	rootCmd.AddCommand(nearbyCmd)
}
