package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/parkscout/internal/ingest"
	"github.com/sells-group/parkscout/pkg/places"
)

var ingestPlacesMaxDetails int

var ingestPlacesCmd = &cobra.Command{
	Use:   "places",
	Short: "Ingest park listings from Google Places",
	Long:  "Lays a search grid over the state, runs nearby searches for each park keyword, fetches place details, and writes the results to the raw listing table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest-places"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		state, err := loadIngestState()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client := places.NewClient(cfg.Places.Key,
			places.WithBaseURL(cfg.Places.BaseURL),
			places.WithRateLimit(cfg.Places.RequestsPerSec),
			places.WithDailyQuota(cfg.Places.DailyQuota),
		)

		maxDetails := cfg.Ingest.MaxDetailFetch
		if ingestPlacesMaxDetails > 0 {
			maxDetails = ingestPlacesMaxDetails
		}

		ing := ingest.NewPlacesIngestor(client, st, ingest.PlacesIngestorConfig{
			GridSpacingKm:  cfg.Ingest.GridSpacingKm,
			SearchRadiusM:  cfg.Ingest.SearchRadiusM,
			DetailWorkers:  cfg.Ingest.DetailWorkers,
			MaxDetailFetch: maxDetails,
		})

		res, err := ing.Run(ctx, state)
		if err != nil {
			return err
		}

		fmt.Printf("Places ingest for %s: %d grid points, %d searches, %d unique places, %d detail errors, inserted %d\n",
			state.State.Abbreviation, res.GridPoints, res.Searches, res.UniquePlaces, res.DetailErrors, res.Inserted)
		return nil
	},
}

func init() {
	ingestPlacesCmd.Flags().IntVar(&ingestPlacesMaxDetails, "max-details", 0, "cap detail lookups this run (0 = config default)")
	ingestCmd.AddCommand(ingestPlacesCmd)
}
