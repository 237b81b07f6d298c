package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/parkscout/internal/export"
)

var (
	exportMinTier   string
	exportOutputDir string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write master records to lead files",
	Long:  "Grades master records into lead tiers and writes an XLSX workbook (one sheet per tier) plus a flat CSV into the output directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		minTier, err := export.ParseTier(exportMinTier)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outDir := cfg.Export.OutputDir
		if exportOutputDir != "" {
			outDir = exportOutputDir
		}

		res, err := export.NewExporter(st, outDir).Run(ctx, minTier)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %d leads (A: %d, B: %d, C: %d, filtered: %d of %d)\n",
			res.Stats.Written, res.Stats.TierA, res.Stats.TierB, res.Stats.TierC,
			res.Stats.Filtered, res.Stats.TotalRecords)
		fmt.Printf("  %s\n  %s\n", res.XLSXPath, res.CSVPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportMinTier, "min-tier", "C", "lowest lead tier to include (A, B, or C)")
	exportCmd.Flags().StringVar(&exportOutputDir, "output-dir", "", "output directory (defaults to export.output_dir)")
	rootCmd.AddCommand(exportCmd)
}
