package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/parkscout/internal/ingest"
	"github.com/sells-group/parkscout/pkg/overpass"
)

var ingestOSMCmd = &cobra.Command{
	Use:   "osm",
	Short: "Ingest park sites from OpenStreetMap",
	Long:  "Queries the Overpass API for campgrounds, caravan sites, and mobile home areas inside the state's bounding box and writes them to the raw listing table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest-osm"); err != nil {
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

		client := overpass.NewClient(
			overpass.WithBaseURL(cfg.Overpass.BaseURL),
			overpass.WithTimeout(time.Duration(cfg.Overpass.TimeoutSecs)*time.Second),
			overpass.WithRateLimit(cfg.Overpass.RequestsPerMin),
		)

		res, err := ingest.NewOSMIngestor(client, st).Run(ctx, state)
		if err != nil {
			return err
		}

		fmt.Printf("OSM ingest for %s: fetched %d, skipped %d, inserted %d\n",
			state.State.Abbreviation, res.Fetched, res.Skipped, res.Inserted)
		return nil
	},
}

func init() {
	ingestCmd.AddCommand(ingestOSMCmd)
}
