package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/parkscout/internal/ingest"
)

var ingestState string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull park listings from external sources",
}

func init() {
	ingestCmd.PersistentFlags().StringVar(&ingestState, "state", "", "state name or abbreviation (required)")
	_ = ingestCmd.MarkPersistentFlagRequired("state")
	rootCmd.AddCommand(ingestCmd)
}

func loadIngestState() (*ingest.StateConfig, error) {
	return ingest.FindStateConfig(cfg.Ingest.StateConfigDir, ingestState)
}
