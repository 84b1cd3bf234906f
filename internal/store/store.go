// Package store persists analysis runs and their outputs in SQLite or
// PostGIS. Geometries are stored as EWKB.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/model"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	City   string          `json:"city,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, city string, params model.RunParams) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Outputs
	SavePOIs(ctx context.Context, runID string, pois []model.POI) (int64, error)
	SaveIsochrones(ctx context.Context, runID string, isos []model.Isochrone) (int64, error)
	ListIsochrones(ctx context.Context, runID string) ([]model.Isochrone, error)
	SaveCells(ctx context.Context, runID string, cells []model.OpportunityCell) (int64, error)
	ListCells(ctx context.Context, runID string, highOnly bool) ([]model.OpportunityCell, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func marshalParams(p model.RunParams) ([]byte, error) {
	data, err := json.Marshal(p)
	return data, eris.Wrap(err, "store: marshal params")
}

func marshalSummary(s *model.RunSummary) ([]byte, error) {
	data, err := json.Marshal(s)
	return data, eris.Wrap(err, "store: marshal summary")
}

// decodeRun fills the JSON columns of a scanned run.
func decodeRun(r *model.Run, params []byte, summary *[]byte, runErr *string) error {
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return eris.Wrap(err, "store: unmarshal params")
	}
	if summary != nil && len(*summary) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(*summary, r.Summary); err != nil {
			return eris.Wrap(err, "store: unmarshal summary")
		}
	}
	if runErr != nil {
		r.Error = *runErr
	}
	return nil
}

// decodePolygon reads a stored isochrone geometry.
func decodePolygon(data []byte) (*geom.Polygon, error) {
	g, err := geoio.DecodeEWKB(data)
	if err != nil {
		return nil, err
	}
	p, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("store: stored isochrone is %T, not a polygon", g)
	}
	return p, nil
}

func pointEWKB(x, y float64, srid int) ([]byte, error) {
	return geoio.EncodeEWKB(geom.NewPointFlat(geom.XY, []float64{x, y}), srid)
}

var (
	poiColumns       = []string{"run_id", "poi_id", "name", "category", "weight_summer", "weight_winter", "geom_wkb"}
	isochroneColumns = []string{"run_id", "poi_id", "category", "budget_minutes", "max_distance", "reachable_nodes", "geom_wkb"}
	cellColumns      = []string{"run_id", "grid_id", "x", "y", "poi_count", "hotspot_value", "potential", "high_potential", "geom_wkb"}
)

func poiRows(runID string, pois []model.POI, srid int) ([][]any, error) {
	rows := make([][]any, 0, len(pois))
	for _, p := range pois {
		wkb, err := pointEWKB(p.X, p.Y, srid)
		if err != nil {
			return nil, err
		}
		var summer, winter *float64
		if p.Seasons != nil {
			summer, winter = &p.Seasons.Summer, &p.Seasons.Winter
		}
		rows = append(rows, []any{runID, p.ID, p.Name, string(p.Category), summer, winter, wkb})
	}
	return rows, nil
}

// isochroneRows skips isochrones without a polygon.
func isochroneRows(runID string, isos []model.Isochrone, srid int) ([][]any, error) {
	rows := make([][]any, 0, len(isos))
	for _, iso := range isos {
		if iso.Polygon == nil {
			continue
		}
		wkb, err := geoio.EncodeEWKB(iso.Polygon, srid)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{runID, iso.POIID, string(iso.Category), iso.BudgetMinutes, iso.MaxDistance, iso.ReachableNodes, wkb})
	}
	return rows, nil
}

func cellRows(runID string, cells []model.OpportunityCell, srid int) ([][]any, error) {
	rows := make([][]any, 0, len(cells))
	for _, c := range cells {
		wkb, err := pointEWKB(c.X, c.Y, srid)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{runID, c.ID, c.X, c.Y, c.POICount, c.HotspotValue, c.Potential, c.HighPotential, wkb})
	}
	return rows, nil
}
