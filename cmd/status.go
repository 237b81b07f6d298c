package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Raw listings:      %d (%d unprocessed)\n", stats.RawListings, stats.UnprocessedRaw)
		sources := make([]string, 0, len(stats.RawBySource))
		for src := range stats.RawBySource {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			fmt.Printf("  %-16s %d\n", src+":", stats.RawBySource[src])
		}
		fmt.Printf("Master records:    %d\n", stats.MasterRecords)
		fmt.Printf("Needs review:      %d\n", stats.NeedsReview)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
