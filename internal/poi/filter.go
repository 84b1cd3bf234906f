package poi

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tourism-cli/internal/geo"
	"github.com/sells-group/tourism-cli/internal/model"
)

// WithinBoundary returns the POIs strictly inside boundary, in input order.
func WithinBoundary(pois []model.POI, boundary geom.T) ([]model.POI, error) {
	out := make([]model.POI, 0, len(pois))
	for _, p := range pois {
		in, err := geo.Contains(boundary, p.X, p.Y)
		if err != nil {
			return nil, eris.Wrap(err, "poi: clip to boundary")
		}
		if in {
			out = append(out, p)
		}
	}
	return out, nil
}

// SelectSources picks isochrone sources: the first perCategory POIs of each
// requested category in input order. No categories means all of them;
// perCategory <= 0 means no limit.
func SelectSources(pois []model.POI, categories []model.Category, perCategory int) []model.POI {
	want := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	taken := make(map[model.Category]int)
	var out []model.POI
	for _, p := range pois {
		if len(want) > 0 && !want[p.Category] {
			continue
		}
		if perCategory > 0 && taken[p.Category] >= perCategory {
			continue
		}
		taken[p.Category]++
		out = append(out, p)
	}
	return out
}

// CountByCategory tallies POIs per category.
func CountByCategory(pois []model.POI) map[model.Category]int {
	counts := make(map[model.Category]int, len(model.Categories))
	for _, p := range pois {
		counts[p.Category]++
	}
	return counts
}

// Coords returns the POI locations in input order.
func Coords(pois []model.POI) [][2]float64 {
	out := make([][2]float64, len(pois))
	for i, p := range pois {
		out[i] = p.Coord()
	}
	return out
}

// SeasonalWeights returns each POI's weight for the season, "summer" or
// "winter". POIs without weights count as 1.
func SeasonalWeights(pois []model.POI, season string) ([]float64, error) {
	out := make([]float64, len(pois))
	for i, p := range pois {
		if p.Seasons == nil {
			out[i] = 1
			continue
		}
		switch norm(season) {
		case "summer":
			out[i] = p.Seasons.Summer
		case "winter":
			out[i] = p.Seasons.Winter
		default:
			return nil, eris.Errorf("poi: unknown season %q", season)
		}
	}
	return out, nil
}
