package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, srid: 2056}
	return s, mock
}

func runColumnNames() []string {
	return []string{"id", "city", "status", "params", "summary", "error", "created_at", "updated_at"}
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS tourism`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO tourism.runs`).
		WithArgs(pgxmock.AnyArg(), "Zurich", "running", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "Zurich", testParams())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	summary := []byte(`{"pois":10,"cells":4,"high_potential":1,"threshold":0.5}`)

	mock.ExpectQuery(`SELECT id, city, status, params, summary, error, created_at, updated_at FROM tourism.runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumnNames()).
			AddRow("run-1", "Zurich", "complete", []byte(`{"budgets":[5],"walking_speed_kmph":4.5}`), &summary, (*string)(nil), now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, []float64{5}, run.Params.Budgets)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 4, run.Summary.Cells)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, city, status, params, summary, error, created_at, updated_at FROM tourism.runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunNotFound))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE tourism.runs SET summary`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "gone", &model.RunSummary{})
	assert.True(t, eris.Is(err, ErrRunNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE tourism.runs SET error`).
		WithArgs("boom", "failed", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", fmt.Errorf("boom")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM tourism.runs WHERE true AND status = \$1 AND city = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("complete", "Zurich", 10, 20).
		WillReturnRows(pgxmock.NewRows(runColumnNames()).
			AddRow("a", "Zurich", "complete", []byte(`{}`), (*[]byte)(nil), (*string)(nil), now, now).
			AddRow("b", "Zurich", "complete", []byte(`{}`), (*[]byte)(nil), (*string)(nil), now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusComplete, City: "Zurich", Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveIsochrones(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"tourism", "isochrones"}, isochroneColumns).WillReturnResult(1)

	n, err := s.SaveIsochrones(context.Background(), "run-1", []model.Isochrone{
		{POIID: "a", BudgetMinutes: 5, Polygon: square()},
		{POIID: "b", BudgetMinutes: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePOIs_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"tourism", "pois"}, poiColumns).WillReturnError(fmt.Errorf("relation does not exist"))

	_, err := s.SavePOIs(context.Background(), "run-1", []model.POI{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save pois")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCells(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_tourism_opportunity_cells"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tourism_opportunity_cells"}, cellColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "tourism"."opportunity_cells" .* ON CONFLICT \("run_id", "grid_id"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.SaveCells(context.Background(), "run-1", []model.OpportunityCell{
		{ID: "grid_0", X: 1, Y: 2},
		{ID: "grid_1", X: 3, Y: 4, Potential: 1, HighPotential: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCells(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM tourism.opportunity_cells WHERE run_id = \$1 AND high_potential ORDER BY`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"grid_id", "x", "y", "poi_count", "hotspot_value", "potential", "high_potential"}).
			AddRow("grid_4", 1.0, 2.0, 0, 1e-6, 1.0, true))

	cells, err := s.ListCells(context.Background(), "run-1", true)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, model.OpportunityCell{ID: "grid_4", X: 1, Y: 2, HotspotValue: 1e-6, Potential: 1, HighPotential: true}, cells[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListIsochrones(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	wkb, err := geoio.EncodeEWKB(square(), 2056)
	require.NoError(t, err)
	mock.ExpectQuery(`FROM tourism.isochrones WHERE run_id = \$1 ORDER BY poi_id, budget_minutes`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"poi_id", "category", "budget_minutes", "max_distance", "reachable_nodes", "geom_wkb"}).
			AddRow("a", "Culture", 10.0, 750.0, 12, wkb))

	isos, err := s.ListIsochrones(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, isos, 1)
	assert.Equal(t, model.CategoryCulture, isos[0].Category)
	assert.InDelta(t, 750.0, isos[0].MaxDistance, 1e-9)
	assert.Equal(t, 12, isos[0].ReachableNodes)
	assert.Equal(t, square().FlatCoords(), isos[0].Polygon.FlatCoords())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListIsochrones_NotPolygon(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	wkb, err := geoio.EncodeEWKB(geom.NewPointFlat(geom.XY, []float64{1, 2}), 2056)
	require.NoError(t, err)
	mock.ExpectQuery(`FROM tourism.isochrones`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"poi_id", "category", "budget_minutes", "max_distance", "reachable_nodes", "geom_wkb"}).
			AddRow("a", "Culture", 10.0, 750.0, 12, wkb))

	_, err = s.ListIsochrones(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a polygon")
}

func TestCellRows_EncodesPoint(t *testing.T) {
	rows, err := cellRows("run-1", []model.OpportunityCell{{ID: "grid_0", X: 7, Y: 8}}, 2056)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], len(cellColumns))

	g, err := geoio.DecodeEWKB(rows[0][len(cellColumns)-1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, 2056, g.SRID())
	assert.Equal(t, []float64{7, 8}, g.FlatCoords())
}
