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
	"github.com/sells-group/tourism-cli/internal/poi"
)

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Assign tourism categories to POIs from their OSM tags",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyInputFlags(cmd)

		pois, err := loadPOIs()
		if err != nil {
			return err
		}
		pois = poi.Transform(pois, poi.WithCategory)

		if cfg.Input.Boundary != "" {
			boundary, err := loadBoundary()
			if err != nil {
				return err
			}
			if pois, err = poi.WithinBoundary(pois, boundary); err != nil {
				return err
			}
		}

		path, err := outputPath("pois_categorized.geojson")
		if err != nil {
			return err
		}
		if err := geoio.WritePOIs(path, pois); err != nil {
			return eris.Wrap(err, "categorize")
		}

		zap.L().Info("categorized pois", zap.Int("count", len(pois)), zap.String("output", path))
		formatCategoryCounts(os.Stdout, poi.CountByCategory(pois))
		return nil
	},
}

func init() {
	addInputFlags(categorizeCmd, true, false)
	rootCmd.AddCommand(categorizeCmd)
}

// formatCategoryCounts writes a category table to out.
func formatCategoryCounts(out io.Writer, counts map[model.Category]int) {
	total := 0
	for _, n := range counts {
		total += n
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tPOIS\tSHARE")
	_, _ = fmt.Fprintln(w, "--------\t----\t-----")
	for _, c := range analysis.SortedCategories(counts) {
		n := counts[c]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", c, n, 100*float64(n)/float64(total))
	}
	_, _ = fmt.Fprintf(w, "Total\t%d\t\n", total)
	_ = w.Flush()
}
