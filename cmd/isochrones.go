package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/config"
	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/poi"
)

var isochronesCmd = &cobra.Command{
	Use:   "isochrones",
	Short: "Compute walking isochrones around selected POIs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputFlags(cmd)
		if err := cfg.Validate(config.ModeAnalysis); err != nil {
			return err
		}
		params := cfg.Analysis.RunParams()

		g, err := loadNetwork()
		if err != nil {
			return err
		}
		if g == nil {
			return eris.New("isochrones: no network configured (--network or input.network)")
		}
		pois, err := loadPOIs()
		if err != nil {
			return err
		}
		if cfg.Input.Boundary != "" {
			boundary, err := loadBoundary()
			if err != nil {
				return err
			}
			if pois, err = poi.WithinBoundary(pois, boundary); err != nil {
				return err
			}
		}

		sources := poi.SelectSources(pois, params.SourceCategories, params.SourcesPerCategory)
		isos, skipped, err := analysis.NewRunner(zap.L()).Isochrones(ctx, g, sources, params)
		if err != nil {
			return err
		}

		path, err := outputPath("isochrones.geojson")
		if err != nil {
			return err
		}
		if err := geoio.WriteIsochrones(path, isos); err != nil {
			return eris.Wrap(err, "isochrones")
		}

		zap.L().Info("isochrones complete",
			zap.Int("sources", len(sources)),
			zap.Int("isochrones", len(isos)),
			zap.Int("skipped", len(skipped)),
			zap.String("output", path),
		)
		return nil
	},
}

func init() {
	addInputFlags(isochronesCmd, true, true)
	rootCmd.AddCommand(isochronesCmd)
}
