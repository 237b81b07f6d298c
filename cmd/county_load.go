package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/county"
)

var (
	countyLoadShapefile string
	countyLoadStateFIPS string
)

var countyLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load TIGER county boundaries into PostGIS",
	Long:  "Downloads the Census TIGER county shapefile (or reads a local copy), parses the boundaries, and replaces the geo.counties rows for the covered states.",
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

		shpPath := countyLoadShapefile
		if shpPath == "" {
			shpPath = cfg.County.ShapefilePath
		}
		if shpPath == "" {
			dir := filepath.Join(os.TempDir(), "parkscout-tiger")
			shpPath, err = county.Download(ctx, dir)
			if err != nil {
				return err
			}
		}

		counties, err := county.ParseShapefile(shpPath, countyLoadStateFIPS)
		if err != nil {
			return err
		}
		zap.L().Info("parsed county boundaries",
			zap.String("shapefile", shpPath),
			zap.Int("counties", len(counties)),
		)

		loaded, err := county.Replace(ctx, pg.Pool(), counties, cfg.County.BatchSize)
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %d county boundaries\n", loaded)
		return nil
	},
}

func init() {
	countyLoadCmd.Flags().StringVar(&countyLoadShapefile, "shapefile", "", "path to a local TIGER county .shp (skips download)")
	countyLoadCmd.Flags().StringVar(&countyLoadStateFIPS, "state-fips", "", "only load counties for this state FIPS code")
	countyCmd.AddCommand(countyLoadCmd)
}
