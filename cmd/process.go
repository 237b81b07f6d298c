package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/dedup"
)

var (
	processProximity    float64
	processNameSim      float64
	processAddrSim      float64
	processNearExactSim float64
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Deduplicate raw listings into master records",
	Long:  "Loads unprocessed raw listings, groups duplicates by blocking and fuzzy matching, consolidates each group into a master record, and marks the inputs processed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pcfg := dedup.ProcessorConfig{
			ProximityMeters: cfg.Dedup.ProximityMeters,
			Detector: dedup.DetectorConfig{
				NameThreshold:           cfg.Dedup.NameSimilarityThreshold,
				DistanceThresholdMeters: cfg.Dedup.ProximityMeters,
				AddressThreshold:        cfg.Dedup.AddressSimilarityThreshold,
				NearExactNameThreshold:  cfg.Dedup.NearExactNameThreshold,
			},
		}
		if cmd.Flags().Changed("proximity") {
			pcfg.ProximityMeters = processProximity
			pcfg.Detector.DistanceThresholdMeters = processProximity
		}
		if cmd.Flags().Changed("name-threshold") {
			pcfg.Detector.NameThreshold = processNameSim
		}
		if cmd.Flags().Changed("address-threshold") {
			pcfg.Detector.AddressThreshold = processAddrSim
		}
		if cmd.Flags().Changed("near-exact-threshold") {
			pcfg.Detector.NearExactNameThreshold = processNearExactSim
		}

		summary, err := dedup.NewProcessor(st, pcfg).Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("consolidation run finished",
			zap.Int("loaded", summary.Loaded),
			zap.Int("groups", summary.Groups),
			zap.Int("masters_written", summary.MastersWritten),
		)
		fmt.Printf("Processed %d listings into %d masters (%d groups, %d write errors, %.1f%% dedup rate)\n",
			summary.Loaded, summary.MastersWritten, summary.Groups,
			summary.WriteErrors, summary.DedupRate*100)
		if summary.NeedsReview > 0 {
			fmt.Printf("%d masters flagged for manual review\n", summary.NeedsReview)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Float64Var(&processProximity, "proximity", 500, "duplicate distance threshold in meters")
	processCmd.Flags().Float64Var(&processNameSim, "name-threshold", 85, "name similarity threshold (0-100)")
	processCmd.Flags().Float64Var(&processAddrSim, "address-threshold", 80, "address similarity threshold (0-100)")
	processCmd.Flags().Float64Var(&processNearExactSim, "near-exact-threshold", 95, "near-exact name threshold (0-100)")
	rootCmd.AddCommand(processCmd)
}
