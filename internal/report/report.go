// Package report renders an analysis result as an XLSX workbook.
package report

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/model"
)

// Sheet names in workbook order.
const (
	SheetSummary       = "Summary"
	SheetCategories    = "Categories"
	SheetIsochrones    = "Isochrones"
	SheetSkipped       = "Skipped"
	SheetHighPotential = "HighPotential"
)

// Write saves the workbook for res to path, creating parent directories.
func Write(path string, res *analysis.Result) error {
	if res == nil {
		return eris.New("report: nil result")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "report: create output dir")
	}

	f := xlsx.NewFile()
	for _, build := range []struct {
		name string
		fill func(*xlsx.Sheet, *analysis.Result)
	}{
		{SheetSummary, summarySheet},
		{SheetCategories, categoriesSheet},
		{SheetIsochrones, isochronesSheet},
		{SheetSkipped, skippedSheet},
		{SheetHighPotential, highPotentialSheet},
	} {
		sheet, err := f.AddSheet(build.name)
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", build.name)
		}
		build.fill(sheet, res)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// ReadSheet returns the rows of one sheet as strings.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open workbook")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("report: sheet %q not found", name)
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func header(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, n := range names {
		cell := row.AddCell()
		cell.SetString(n)
		cell.GetStyle().Font.Bold = true
	}
}

func addRow(sheet *xlsx.Sheet, values ...any) {
	row := sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch v := v.(type) {
		case string:
			cell.SetString(v)
		case int:
			cell.SetInt(v)
		case float64:
			cell.SetFloatWithFormat(v, "0.000")
		case bool:
			cell.SetBool(v)
		default:
			cell.SetValue(v)
		}
	}
}

func summarySheet(sheet *xlsx.Sheet, res *analysis.Result) {
	p, s := res.Params, res.Summary
	header(sheet, "Key", "Value")
	addRow(sheet, "Run ID", res.RunID)
	addRow(sheet, "City", res.City)
	addRow(sheet, "Budgets (min)", joinFloats(p.Budgets))
	addRow(sheet, "Walking speed (km/h)", p.WalkingSpeedKMPH)
	addRow(sheet, "Cell size (m)", p.CellSize)
	addRow(sheet, "Buffer radius (m)", p.BufferRadius)
	addRow(sheet, "KDE resolution", p.KDEResolution)
	addRow(sheet, "Quantile", p.Quantile)
	if p.Season != "" {
		addRow(sheet, "Season", p.Season)
	}
	addRow(sheet, "POIs", s.POIs)
	addRow(sheet, "POIs in boundary", s.POIsInBoundary)
	addRow(sheet, "Isochrone sources", s.Sources)
	addRow(sheet, "Isochrones", s.Isochrones)
	addRow(sheet, "Skipped sources", s.SkippedSources)
	addRow(sheet, "Density samples", s.DensitySamples)
	addRow(sheet, "Grid cells", s.Cells)
	addRow(sheet, "High potential cells", s.HighPotential)
	addRow(sheet, "Threshold", s.Threshold)
	addRow(sheet, "Degenerate", s.Degenerate)
	if peak, ok := res.Surface.Peak(); ok {
		addRow(sheet, "Density peak", formatCoord(peak.X, peak.Y))
	}
}

func categoriesSheet(sheet *xlsx.Sheet, res *analysis.Result) {
	header(sheet, "Category", "POIs", "Share")
	total := 0
	for _, n := range res.Categories {
		total += n
	}
	for _, c := range analysis.SortedCategories(res.Categories) {
		n := res.Categories[c]
		addRow(sheet, string(c), n, float64(n)/float64(max(total, 1)))
	}
}

func isochronesSheet(sheet *xlsx.Sheet, res *analysis.Result) {
	header(sheet, "POI ID", "Category", "Budget (min)", "Max distance (m)", "Reachable nodes", "Area (m²)")
	for _, iso := range res.Isochrones {
		area := 0.0
		if iso.Polygon != nil {
			area = math.Abs(iso.Polygon.Area())
		}
		addRow(sheet, iso.POIID, string(iso.Category), iso.BudgetMinutes, iso.MaxDistance, iso.ReachableNodes, area)
	}
}

func skippedSheet(sheet *xlsx.Sheet, res *analysis.Result) {
	header(sheet, "POI ID", "Budget (min)", "Reason")
	for _, s := range res.Skipped {
		budget := "all"
		if s.BudgetMinutes > 0 {
			budget = formatFloat(s.BudgetMinutes)
		}
		addRow(sheet, s.POIID, budget, s.Reason)
	}
}

func highPotentialSheet(sheet *xlsx.Sheet, res *analysis.Result) {
	header(sheet, "Grid ID", "X", "Y", "POI count", "Hotspot", "Potential")
	var cells []model.OpportunityCell
	if res.Grid != nil {
		cells = res.Grid.HighPotential()
	}
	for _, c := range cells {
		addRow(sheet, c.ID, c.X, c.Y, c.POICount, c.HotspotValue, c.Potential)
	}
}

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ", ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCoord(x, y float64) string {
	return strconv.FormatFloat(x, 'f', 1, 64) + ", " + strconv.FormatFloat(y, 'f', 1, 64)
}
