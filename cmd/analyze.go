package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/config"
	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full opportunity analysis for one city",
	Long:  "Categorizes and weights POIs, clips them to the city boundary, estimates density, scores the opportunity grid, computes isochrones and writes every result, optionally recording the run in the configured store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputFlags(cmd)
		if city, _ := cmd.Flags().GetString("city"); city != "" {
			cfg.Analysis.City = city
		}
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		rules, err := loadSeasonRules()
		if err != nil {
			return err
		}
		in := analysis.Inputs{City: cfg.Analysis.City}
		if in.Boundary, err = loadBoundary(); err != nil {
			return err
		}
		if in.POIs, err = loadPOIs(); err != nil {
			return err
		}
		if in.Network, err = loadNetwork(); err != nil {
			return err
		}

		opts := []analysis.Option{analysis.WithSeasonRules(rules)}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			opts = append(opts, analysis.WithStore(st))
		}

		res, err := analysis.NewRunner(zap.L(), opts...).Run(ctx, in, cfg.Analysis.RunParams())
		if err != nil {
			return err
		}
		if err := writeResult(res); err != nil {
			return err
		}

		if res.RunID != "" {
			fmt.Fprintf(os.Stdout, "Run %s\n", res.RunID)
		}
		formatCategoryCounts(os.Stdout, res.Categories)
		fmt.Fprintln(os.Stdout)
		formatHighPotential(os.Stdout, res.Grid, 10)
		return nil
	},
}

func init() {
	addInputFlags(analyzeCmd, true, true)
	analyzeCmd.Flags().String("city", "", "city name recorded with the run (overrides analysis.city)")
	rootCmd.AddCommand(analyzeCmd)
}

// writeResult writes every output of a run to the output directory.
func writeResult(res *analysis.Result) error {
	path, err := outputPath("pois.geojson")
	if err != nil {
		return err
	}
	if err := geoio.WritePOIs(path, res.POIs); err != nil {
		return eris.Wrap(err, "write pois")
	}

	if path, err = outputPath("density.geojson"); err != nil {
		return err
	}
	if err := geoio.WriteDensity(path, res.Surface); err != nil {
		return eris.Wrap(err, "write density")
	}

	if len(res.Isochrones) > 0 {
		if path, err = outputPath("isochrones.geojson"); err != nil {
			return err
		}
		if err := geoio.WriteIsochrones(path, res.Isochrones); err != nil {
			return eris.Wrap(err, "write isochrones")
		}
	}

	if err := writeGridOutputs(res.Grid); err != nil {
		return err
	}

	if cfg.Output.Report {
		if path, err = outputPath("report.xlsx"); err != nil {
			return err
		}
		if err := report.Write(path, res); err != nil {
			return err
		}
		zap.L().Info("report written", zap.String("output", path))
	}
	return nil
}
