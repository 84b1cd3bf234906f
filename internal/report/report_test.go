package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tourism-cli/internal/analysis"
	"github.com/sells-group/tourism-cli/internal/model"
)

func testResult() *analysis.Result {
	square := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 100, 0, 100, 100, 0, 100, 0, 0}, []int{10})
	return &analysis.Result{
		RunID:  "run-1",
		City:   "testville",
		Params: model.RunParams{Budgets: []float64{5, 10, 15}, WalkingSpeedKMPH: 4.5, Season: "summer"},
		Surface: &model.DensitySurface{Samples: []model.DensitySample{
			{X: 10, Y: 10, Density: 0.1},
			{X: 20, Y: 10, Density: 0.4},
		}},
		Grid: &model.OpportunityGrid{Cells: []model.OpportunityCell{
			{ID: "grid_0", X: 250, Y: 250, POICount: 4},
			{ID: "grid_1", X: 250, Y: 750, POICount: 1, HighPotential: true},
		}},
		Isochrones: []model.Isochrone{
			{POIID: "poi_1", Category: model.CategoryCulture, BudgetMinutes: 5, MaxDistance: 375, ReachableNodes: 4, Polygon: square},
		},
		Skipped: []analysis.Skipped{
			{POIID: "poi_2", Reason: "no nearby network node"},
			{POIID: "poi_3", BudgetMinutes: 5, Reason: "insufficient coverage"},
		},
		Categories: map[model.Category]int{model.CategoryCulture: 3, model.CategoryShopping: 1},
		Summary:    model.RunSummary{POIs: 4, POIsInBoundary: 4, Sources: 3, Isochrones: 1, SkippedSources: 2, Cells: 2, HighPotential: 1},
	}
}

func TestWrite_Sheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, Write(path, testResult()))

	for _, name := range []string{SheetSummary, SheetCategories, SheetIsochrones, SheetSkipped, SheetHighPotential} {
		rows, err := ReadSheet(path, name)
		require.NoError(t, err, name)
		require.NotEmpty(t, rows, name)
	}
}

func TestWrite_Summary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Write(path, testResult()))

	rows, err := ReadSheet(path, SheetSummary)
	require.NoError(t, err)

	values := make(map[string]string)
	for _, r := range rows[1:] {
		require.Len(t, r, 2)
		values[r[0]] = r[1]
	}
	assert.Equal(t, "run-1", values["Run ID"])
	assert.Equal(t, "testville", values["City"])
	assert.Equal(t, "5, 10, 15", values["Budgets (min)"])
	assert.Equal(t, "summer", values["Season"])
	assert.Equal(t, "2", values["Skipped sources"])
	assert.Equal(t, "20.0, 10.0", values["Density peak"])
}

func TestWrite_Categories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Write(path, testResult()))

	rows, err := ReadSheet(path, SheetCategories)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Category", "POIs", "Share"}, rows[0])
	assert.Equal(t, "Culture", rows[1][0])
	assert.Equal(t, "3", rows[1][1])
	assert.Equal(t, "Shopping", rows[2][0])
}

func TestWrite_IsochronesAndSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Write(path, testResult()))

	rows, err := ReadSheet(path, SheetIsochrones)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "poi_1", rows[1][0])
	assert.Equal(t, "Culture", rows[1][1])
	assert.Equal(t, "4", rows[1][4])

	rows, err = ReadSheet(path, SheetSkipped)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"poi_2", "all", "no nearby network node"}, rows[1])
	assert.Equal(t, []string{"poi_3", "5", "insufficient coverage"}, rows[2])
}

func TestWrite_HighPotentialOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Write(path, testResult()))

	rows, err := ReadSheet(path, SheetHighPotential)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "grid_1", rows[1][0])
	assert.Equal(t, "1", rows[1][3])
}

func TestWrite_NilResult(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "report.xlsx"), nil)
	assert.Error(t, err)
}

func TestReadSheet_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Write(path, testResult()))

	_, err := ReadSheet(path, "Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
