package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/config"
	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/poi"
)

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "Estimate the POI density surface",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyInputFlags(cmd)
		if err := cfg.Validate(config.ModeAnalysis); err != nil {
			return err
		}
		params := cfg.Analysis.RunParams()

		rules, err := loadSeasonRules()
		if err != nil {
			return err
		}
		pois, err := loadPOIs()
		if err != nil {
			return err
		}
		runner := analysis.NewRunner(zap.L(), analysis.WithSeasonRules(rules))
		pois = runner.Prepare(pois)
		if cfg.Input.Boundary != "" {
			boundary, err := loadBoundary()
			if err != nil {
				return err
			}
			if pois, err = poi.WithinBoundary(pois, boundary); err != nil {
				return err
			}
		}

		surface, err := runner.Density(pois, params)
		if err != nil {
			return eris.Wrap(err, "hotspots")
		}

		path, err := outputPath("density.geojson")
		if err != nil {
			return err
		}
		if err := geoio.WriteDensity(path, surface); err != nil {
			return eris.Wrap(err, "hotspots")
		}

		peak, _ := surface.Peak()
		zap.L().Info("density surface written",
			zap.Int("samples", len(surface.Samples)),
			zap.Float64("bandwidth_factor", surface.BandwidthFactor),
			zap.String("output", path),
		)
		fmt.Fprintf(os.Stdout, "Peak density %.3g at (%.1f, %.1f)\n", peak.Density, peak.X, peak.Y)
		return nil
	},
}

func init() {
	addInputFlags(hotspotsCmd, true, false)
	hotspotsCmd.Flags().String("season", "", "weight POIs by summer or winter affinity (overrides analysis.season)")
	hotspotsCmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if f := cmd.Flags().Lookup("season"); f.Changed {
			cfg.Analysis.Season = f.Value.String()
		}
		return nil
	}
	rootCmd.AddCommand(hotspotsCmd)
}
