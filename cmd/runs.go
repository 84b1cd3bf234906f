package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored analysis runs",
	Long:  "Commands for listing and viewing analysis runs recorded in the configured store.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		city, _ := cmd.Flags().GetString("city")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			City:   city,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs cells --

var runsCellsCmd = &cobra.Command{
	Use:   "cells <run-id>",
	Short: "List the scored grid cells of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		all, _ := cmd.Flags().GetBool("all")
		cells, err := st.ListCells(ctx, args[0], !all)
		if err != nil {
			return eris.Wrap(err, "runs cells")
		}

		formatCells(os.Stdout, cells)
		return nil
	},
}

// -- runs isochrones --

var runsIsochronesCmd = &cobra.Command{
	Use:   "isochrones <run-id>",
	Short: "Export the stored isochrones of a run as GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		isos, err := st.ListIsochrones(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs isochrones")
		}
		if len(isos) == 0 {
			fmt.Fprintln(os.Stderr, "No isochrones stored for this run.")
			return nil
		}

		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			if path, err = outputPath(fmt.Sprintf("run_%s_isochrones.geojson", truncateID(args[0]))); err != nil {
				return err
			}
		}
		if err := geoio.WriteIsochrones(path, isos); err != nil {
			return eris.Wrap(err, "runs isochrones")
		}
		zap.L().Info("exported isochrones", zap.String("run_id", args[0]), zap.Int("count", len(isos)), zap.String("path", path))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("city", "", "filter by city")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCellsCmd.Flags().Bool("all", false, "include cells below the high-potential threshold")

	runsIsochronesCmd.Flags().String("file", "", "output GeoJSON path (default <output.dir>/run_<id>_isochrones.geojson)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsCellsCmd)
	runsCmd.AddCommand(runsIsochronesCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCITY\tSTATUS\tCELLS\tHIGH\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		cells, high := "-", "-"
		if r.Summary != nil {
			cells = fmt.Sprint(r.Summary.Cells)
			high = fmt.Sprint(r.Summary.HighPotential)
		}

		city := r.City
		if len(city) > 30 {
			city = city[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			city,
			r.Status,
			cells,
			high,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatCells writes grid cells in stored order to w.
func formatCells(out io.Writer, cells []model.OpportunityCell) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GRID_ID\tX\tY\tPOIS\tHOTSPOT\tPOTENTIAL\tHIGH")
	for _, c := range cells {
		high := ""
		if c.HighPotential {
			high = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%d\t%.3g\t%.4f\t%s\n", c.ID, c.X, c.Y, c.POICount, c.HotspotValue, c.Potential, high)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
