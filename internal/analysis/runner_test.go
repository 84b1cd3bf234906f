package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/density"
	"github.com/sells-group/tourism-cli/internal/isochrone"
	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/network"
	"github.com/sells-group/tourism-cli/internal/store"
)

func rect(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
}

// streetGrid is a lattice of nodes step meters apart covering [0, size]².
func streetGrid(t *testing.T, size, step float64) *network.Graph {
	t.Helper()
	b := network.NewBuilder()
	n := int(size/step) + 1
	id := func(i, j int) int64 { return int64(i*n + j) }
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			require.NoError(t, b.AddNode(id(i, j), float64(i)*step, float64(j)*step))
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i+1 < n {
				require.NoError(t, b.AddEdge(network.Edge{From: id(i, j), To: id(i+1, j), Length: step}))
			}
			if j+1 < n {
				require.NoError(t, b.AddEdge(network.Edge{From: id(i, j), To: id(i, j+1), Length: step}))
			}
		}
	}
	return b.Build()
}

// cityPOIs is a dense old town around (600, 600) plus a few scattered sites.
func cityPOIs() []model.POI {
	var pois []model.POI
	add := func(x, y float64, tags model.Tags) {
		pois = append(pois, model.POI{ID: fmt.Sprintf("poi_%d", len(pois)), X: x, Y: y, Tags: tags})
	}
	museum := model.Tags{Tourism: "museum"}
	cafe := model.Tags{Amenity: "cafe"}
	hotel := model.Tags{Tourism: "hotel"}
	park := model.Tags{Leisure: "park"}

	add(600, 600, museum)
	add(640, 610, cafe)
	add(580, 650, hotel)
	add(620, 560, cafe)
	add(560, 590, museum)
	add(660, 660, model.Tags{Shop: "bakery"})
	add(1500, 400, park)
	add(1400, 1500, hotel)
	add(300, 1600, model.Tags{Tourism: "attraction"})
	add(1700, 1700, cafe)
	// outside the city
	add(2500, 2500, museum)
	return pois
}

func testParams() model.RunParams {
	return model.RunParams{
		Budgets:          []float64{5, 10, 15},
		WalkingSpeedKMPH: 4.5,
		CellSize:         250,
		BufferRadius:     300,
		KDEResolution:    20,
		Quantile:         0.9,
		Workers:          4,
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"), 2056)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_FullPipeline(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(zap.NewNop())

	in := Inputs{City: "testville", Boundary: rect(0, 0, 2000, 2000), POIs: cityPOIs(), Network: streetGrid(t, 2000, 100)}
	p := testParams()
	p.SourceCategories = []model.Category{model.CategoryCulture}

	res, err := r.Run(ctx, in, p)
	require.NoError(t, err)

	assert.Len(t, res.POIs, 10, "the POI outside the boundary is clipped")
	assert.Equal(t, 2, res.Categories[model.CategoryCulture])
	assert.Equal(t, 3, res.Categories[model.CategoryFoodDrink])
	for _, pt := range res.POIs {
		require.NotNil(t, pt.Seasons, "poi %s", pt.ID)
	}

	require.NotNil(t, res.Surface)
	assert.Len(t, res.Surface.Samples, 400)
	peak, ok := res.Surface.Peak()
	require.True(t, ok)
	assert.InDelta(t, 700, peak.X, 500)
	assert.InDelta(t, 700, peak.Y, 500)

	require.NotNil(t, res.Grid)
	assert.NotEmpty(t, res.Grid.Cells)
	assert.False(t, res.Grid.Degenerate)
	for _, c := range res.Grid.Cells {
		assert.GreaterOrEqual(t, c.Potential, 0.0)
		assert.LessOrEqual(t, c.Potential, 1.0)
	}

	// Two culture sources, three budgets each.
	require.Len(t, res.Isochrones, 6)
	assert.Equal(t, "poi_0", res.Isochrones[0].POIID)
	assert.Equal(t, "poi_4", res.Isochrones[3].POIID)
	for i, iso := range res.Isochrones {
		assert.Equal(t, p.Budgets[i%3], iso.BudgetMinutes)
		assert.Equal(t, model.CategoryCulture, iso.Category)
		assert.NotNil(t, iso.Polygon)
	}
	assert.Empty(t, res.Skipped)

	assert.Equal(t, model.RunSummary{
		POIs:           11,
		POIsInBoundary: 10,
		Sources:        2,
		Isochrones:     6,
		DensitySamples: 400,
		Cells:          len(res.Grid.Cells),
		HighPotential:  len(res.Grid.HighPotential()),
		Threshold:      res.Grid.Threshold,
	}, res.Summary)
	assert.Empty(t, res.RunID)
}

func TestRun_SeasonalDensity(t *testing.T) {
	in := Inputs{City: "testville", Boundary: rect(0, 0, 2000, 2000), POIs: cityPOIs()}

	p := testParams()
	plain, err := NewRunner(zap.NewNop()).Run(context.Background(), in, p)
	require.NoError(t, err)

	p.Season = "winter"
	winter, err := NewRunner(zap.NewNop()).Run(context.Background(), in, p)
	require.NoError(t, err)

	assert.Len(t, winter.Surface.Samples, len(plain.Surface.Samples))
	assert.NotEqual(t, plain.Surface.Samples, winter.Surface.Samples)
	assert.Empty(t, winter.Isochrones, "no network means no isochrones")
}

func TestPrepare_KeepsLoadedSeasonWeights(t *testing.T) {
	loaded := &model.SeasonWeights{Summer: 0.1, Winter: 0.95}
	in := []model.POI{
		{ID: "a", Category: model.CategoryCulture, Seasons: loaded},
		{ID: "b", Tags: model.Tags{Tourism: "museum"}},
	}

	out := NewRunner(zap.NewNop()).Prepare(in)
	require.Len(t, out, 2)

	require.NotNil(t, out[0].Seasons)
	assert.Equal(t, *loaded, *out[0].Seasons)

	assert.Equal(t, model.CategoryCulture, out[1].Category)
	require.NotNil(t, out[1].Seasons)
	assert.Equal(t, model.SeasonWeights{Summer: 0.4, Winter: 0.9}, *out[1].Seasons)
	assert.Nil(t, in[1].Seasons, "input is not modified")
}

func TestRun_PersistsToStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewRunner(zap.NewNop(), WithStore(st))

	in := Inputs{City: "testville", Boundary: rect(0, 0, 2000, 2000), POIs: cityPOIs(), Network: streetGrid(t, 2000, 100)}
	p := testParams()
	p.SourcesPerCategory = 1

	res, err := r.Run(ctx, in, p)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "testville", run.City)
	require.NotNil(t, run.Summary)
	assert.Equal(t, res.Summary, *run.Summary)

	cells, err := st.ListCells(ctx, res.RunID, false)
	require.NoError(t, err)
	assert.Len(t, cells, len(res.Grid.Cells))

	high, err := st.ListCells(ctx, res.RunID, true)
	require.NoError(t, err)
	assert.Len(t, high, res.Summary.HighPotential)
}

func TestRun_InsufficientDensityAborts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewRunner(zap.NewNop(), WithStore(st))

	in := Inputs{City: "hamlet", Boundary: rect(0, 0, 2000, 2000), POIs: cityPOIs()[:3]}
	_, err := r.Run(ctx, in, testParams())
	require.Error(t, err)
	assert.True(t, eris.Is(err, density.ErrInsufficientSample))

	runs, err := st.ListRuns(ctx, store.RunFilter{City: "hamlet"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "insufficient sample")
}

func TestRun_RequiresBoundary(t *testing.T) {
	_, err := NewRunner(nil).Run(context.Background(), Inputs{POIs: cityPOIs()}, testParams())
	require.Error(t, err)
}

func TestIsochrones_SkipsFailingSources(t *testing.T) {
	g := streetGrid(t, 1000, 100)
	sources := []model.POI{
		{ID: "center", X: 500, Y: 500, Category: model.CategoryCulture},
		{ID: "far", X: 9000, Y: 9000, Category: model.CategoryCulture},
		{ID: "corner", X: 0, Y: 0, Category: model.CategoryAttraction},
	}
	p := testParams()
	p.MaxSnapDistance = 200

	isos, skipped, err := NewRunner(zap.NewNop()).Isochrones(context.Background(), g, sources, p)
	require.NoError(t, err)

	require.Len(t, isos, 6)
	for i, iso := range isos[:3] {
		assert.Equal(t, "center", iso.POIID)
		assert.Equal(t, p.Budgets[i], iso.BudgetMinutes)
	}
	for _, iso := range isos[3:] {
		assert.Equal(t, "corner", iso.POIID)
		assert.Equal(t, model.CategoryAttraction, iso.Category)
	}

	require.Len(t, skipped, 1)
	assert.Equal(t, "far", skipped[0].POIID)
	assert.Zero(t, skipped[0].BudgetMinutes)
}

func TestIsochrones_SkipsSparseBudgets(t *testing.T) {
	// Nodes 200 m apart: five minutes (375 m) reaches only two of them.
	b := network.NewBuilder()
	for i := 0; i < 6; i++ {
		require.NoError(t, b.AddNode(int64(i), float64(i%2)*200+float64(i/2)*200, float64(i/2)*200))
	}
	for i := 1; i < 6; i++ {
		require.NoError(t, b.AddEdge(network.Edge{From: int64(i - 1), To: int64(i), Length: 200}))
	}

	isos, skipped, err := NewRunner(zap.NewNop()).Isochrones(context.Background(), b.Build(),
		[]model.POI{{ID: "a", X: 0, Y: 0}}, testParams())
	require.NoError(t, err)

	require.Len(t, skipped, 1)
	assert.Equal(t, 5.0, skipped[0].BudgetMinutes)
	assert.Contains(t, skipped[0].Reason, "insufficient coverage")
	require.NotEmpty(t, isos)
	assert.Equal(t, 10.0, isos[0].BudgetMinutes)
}

func TestIsochrones_InvalidParams(t *testing.T) {
	g := streetGrid(t, 500, 100)
	r := NewRunner(zap.NewNop())

	p := testParams()
	p.Budgets = []float64{5, 0}
	_, _, err := r.Isochrones(context.Background(), g, nil, p)
	assert.True(t, eris.Is(err, isochrone.ErrInvalidBudget))

	p = testParams()
	p.WalkingSpeedKMPH = -1
	_, _, err = r.Isochrones(context.Background(), g, nil, p)
	assert.True(t, eris.Is(err, isochrone.ErrInvalidBudget))

	_, _, err = r.Isochrones(context.Background(), nil, nil, testParams())
	assert.Error(t, err)
}

func TestIsochrones_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []model.POI{{ID: "a", X: 100, Y: 100}, {ID: "b", X: 200, Y: 200}}
	_, _, err := NewRunner(zap.NewNop()).Isochrones(ctx, streetGrid(t, 500, 100), sources, testParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestSortedCategories(t *testing.T) {
	got := SortedCategories(map[model.Category]int{
		model.CategoryOther:     1,
		model.CategoryCulture:   3,
		model.CategoryShopping:  0,
		model.CategoryFoodDrink: 2,
	})
	assert.Equal(t, []model.Category{model.CategoryCulture, model.CategoryFoodDrink, model.CategoryOther}, got)
}
