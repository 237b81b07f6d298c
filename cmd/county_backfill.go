package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/parkscout/internal/county"
)

var countyBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill in missing park counties from loaded boundaries",
	Long:  "Assigns a county to every park whose coordinates fall inside a loaded boundary and whose county column is still empty.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("county"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pg, err := initPostgresStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck

		res, err := county.Backfill(ctx, pg.Pool())
		if err != nil {
			return err
		}

		fmt.Printf("Backfilled counties: %d master records, %d raw listings\n",
			res.MasterUpdated, res.RawUpdated)
		return nil
	},
}

func init() {
	countyCmd.AddCommand(countyBackfillCmd)
}
