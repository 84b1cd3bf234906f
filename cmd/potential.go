package main

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/config"
	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/opportunity"
	"github.com/sells-group/tourism-cli/internal/poi"
)

var potentialTop int

var potentialCmd = &cobra.Command{
	Use:   "potential",
	Short: "Score the opportunity grid and flag high-potential cells",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyInputFlags(cmd)
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}
		params := cfg.Analysis.RunParams()

		rules, err := loadSeasonRules()
		if err != nil {
			return err
		}
		boundary, err := loadBoundary()
		if err != nil {
			return err
		}
		pois, err := loadPOIs()
		if err != nil {
			return err
		}
		runner := analysis.NewRunner(zap.L(), analysis.WithSeasonRules(rules))
		if pois, err = poi.WithinBoundary(runner.Prepare(pois), boundary); err != nil {
			return err
		}

		surface, err := runner.Density(pois, params)
		if err != nil {
			return eris.Wrap(err, "potential")
		}
		grid, err := opportunity.Score(boundary, pois, surface, params.CellSize, params.BufferRadius,
			opportunity.WithQuantile(params.Quantile),
			opportunity.WithWorkers(params.Workers),
		)
		if err != nil {
			return eris.Wrap(err, "potential")
		}

		if err := writeGridOutputs(grid); err != nil {
			return err
		}
		formatHighPotential(os.Stdout, grid, potentialTop)
		return nil
	},
}

func init() {
	addInputFlags(potentialCmd, true, false)
	potentialCmd.Flags().IntVar(&potentialTop, "top", 10, "number of high-potential cells to print")
	rootCmd.AddCommand(potentialCmd)
}

// writeGridOutputs writes the full grid as GeoJSON and the flagged cells as
// GeoJSON and, when enabled, a point shapefile.
func writeGridOutputs(grid *model.OpportunityGrid) error {
	path, err := outputPath("opportunity_grid.geojson")
	if err != nil {
		return err
	}
	if err := geoio.WriteGrid(path, grid.Cells); err != nil {
		return eris.Wrap(err, "write opportunity grid")
	}

	high := grid.HighPotential()
	highPath, err := outputPath("high_potential.geojson")
	if err != nil {
		return err
	}
	if err := geoio.WriteGrid(highPath, high); err != nil {
		return eris.Wrap(err, "write high potential cells")
	}

	if cfg.Output.Shapefile {
		shpPath, err := outputPath("high_potential.shp")
		if err != nil {
			return err
		}
		if err := geoio.WriteCellsShapefile(shpPath, high); err != nil {
			return eris.Wrap(err, "write high potential shapefile")
		}
	}

	zap.L().Info("opportunity grid written",
		zap.Int("cells", len(grid.Cells)),
		zap.Int("high_potential", len(high)),
		zap.Float64("threshold", grid.Threshold),
		zap.Bool("degenerate", grid.Degenerate),
		zap.String("output", path),
	)
	return nil
}

// formatHighPotential writes the top flagged cells by potential to out.
func formatHighPotential(out io.Writer, grid *model.OpportunityGrid, top int) {
	high := grid.HighPotential()
	sortByPotential(high)
	if top > 0 && len(high) > top {
		high = high[:top]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Cells:\t%d\n", len(grid.Cells))
	_, _ = fmt.Fprintf(w, "Threshold:\t%.4f\n", grid.Threshold)
	if grid.Degenerate {
		_, _ = fmt.Fprintln(w, "Degenerate:\tyes (all potentials are zero)")
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "GRID_ID\tX\tY\tPOIS\tHOTSPOT\tPOTENTIAL")
	_, _ = fmt.Fprintln(w, "-------\t-\t-\t----\t-------\t---------")
	for _, c := range high {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%d\t%.3g\t%.4f\n", c.ID, c.X, c.Y, c.POICount, c.HotspotValue, c.Potential)
	}
	_ = w.Flush()
}

// sortByPotential orders cells by descending potential, keeping grid order on ties.
func sortByPotential(cells []model.OpportunityCell) {
	slices.SortStableFunc(cells, func(a, b model.OpportunityCell) int {
		return cmp.Compare(b.Potential, a.Potential)
	})
}
