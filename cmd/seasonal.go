package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/model"
)

var seasonalCmd = &cobra.Command{
	Use:   "seasonal",
	Short: "Attach summer and winter weights to POIs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyInputFlags(cmd)
		if f := cmd.Flags().Lookup("rules"); f.Changed {
			cfg.Analysis.SeasonRules = f.Value.String()
		}

		rules, err := loadSeasonRules()
		if err != nil {
			return err
		}
		pois, err := loadPOIs()
		if err != nil {
			return err
		}
		pois = analysis.NewRunner(zap.L(), analysis.WithSeasonRules(rules)).Prepare(pois)

		path, err := outputPath("pois_seasonal.geojson")
		if err != nil {
			return err
		}
		if err := geoio.WritePOIs(path, pois); err != nil {
			return eris.Wrap(err, "seasonal")
		}

		zap.L().Info("weighted pois", zap.Int("count", len(pois)), zap.String("output", path))
		formatSeasonSummary(os.Stdout, pois)
		return nil
	},
}

func init() {
	addInputFlags(seasonalCmd, false, false)
	seasonalCmd.Flags().String("rules", "", "season rules YAML (overrides analysis.season_rules)")
	rootCmd.AddCommand(seasonalCmd)
}

// formatSeasonSummary writes the mean summer and winter weight per category.
func formatSeasonSummary(out io.Writer, pois []model.POI) {
	type acc struct {
		n              int
		summer, winter float64
	}
	by := make(map[model.Category]*acc)
	counts := make(map[model.Category]int)
	for _, p := range pois {
		if p.Seasons == nil {
			continue
		}
		a, ok := by[p.Category]
		if !ok {
			a = &acc{}
			by[p.Category] = a
		}
		a.n++
		a.summer += p.Seasons.Summer
		a.winter += p.Seasons.Winter
		counts[p.Category]++
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tPOIS\tSUMMER\tWINTER")
	_, _ = fmt.Fprintln(w, "--------\t----\t------\t------")
	for _, c := range analysis.SortedCategories(counts) {
		a := by[c]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\n", c, a.n, a.summer/float64(a.n), a.winter/float64(a.n))
	}
	_ = w.Flush()
}
