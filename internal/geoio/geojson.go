package geoio

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/geo"
	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/network"
	"github.com/sells-group/tourism-cli/internal/poi"
)

func readCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: read %s", path)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geoio: parse GeoJSON %s", path)
	}
	return &fc, nil
}

func writeCollection(path string, fc *geojson.FeatureCollection) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrapf(err, "geoio: encode GeoJSON %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geoio: write %s", path)
	}
	return nil
}

func propString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func propFloat(props map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := props[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func propInt64(props map[string]any, keys ...string) (int64, bool) {
	f, ok := propFloat(props, keys...)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// representativePoint reduces a geometry to a single coordinate: points
// keep their location, polygons use a point inside their largest part, lines
// their middle vertex. Anything else falls back to the bounding box center.
func representativePoint(g geom.T) ([2]float64, bool) {
	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return [2]float64{}, false
		}
		return [2]float64{t.X(), t.Y()}, true
	case *geom.Polygon:
		if x, y, ok := geo.InteriorPoint(t); ok {
			return [2]float64{x, y}, true
		}
	case *geom.MultiPolygon:
		var largest *geom.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			if p := t.Polygon(i); largest == nil || math.Abs(p.Area()) > math.Abs(largest.Area()) {
				largest = p
			}
		}
		if x, y, ok := geo.InteriorPoint(largest); ok {
			return [2]float64{x, y}, true
		}
	case *geom.LineString:
		if n := t.NumCoords(); n > 0 {
			c := t.Coord(n / 2)
			return [2]float64{c.X(), c.Y()}, true
		}
	}
	b := g.Bounds()
	if b.IsEmpty() {
		return [2]float64{}, false
	}
	return [2]float64{(b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2}, true
}

// ReadPOIs reads a GeoJSON FeatureCollection of POIs. Non-point geometries
// are reduced to a representative point. A "category" property is honored
// when present; otherwise the category is derived from the OSM tags.
func ReadPOIs(path string) ([]model.POI, error) {
	fc, err := readCollection(path)
	if err != nil {
		return nil, err
	}

	pois := make([]model.POI, 0, len(fc.Features))
	var reduced, skipped int
	for i, f := range fc.Features {
		if f.Geometry == nil {
			skipped++
			continue
		}
		pt, ok := representativePoint(f.Geometry)
		if !ok {
			skipped++
			continue
		}
		if _, isPoint := f.Geometry.(*geom.Point); !isPoint {
			reduced++
		}

		props := f.Properties
		p := model.POI{
			ID:   f.ID,
			Name: propString(props, "name"),
			X:    pt[0],
			Y:    pt[1],
			Tags: model.Tags{
				Tourism:  propString(props, "tourism"),
				Amenity:  propString(props, "amenity"),
				Shop:     propString(props, "shop"),
				Leisure:  propString(props, "leisure"),
				Historic: propString(props, "historic"),
			},
		}
		if p.ID == "" {
			p.ID = propString(props, "osmid", "id", "@id")
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("poi_%d", i)
		}
		if c := propString(props, "category"); c != "" {
			p.Category = model.ParseCategory(c)
		} else {
			p.Category = poi.Categorize(p.Tags)
		}
		summer, okS := propFloat(props, "weight_summer", "weight_sommer", "summer")
		winter, okW := propFloat(props, "weight_winter", "winter")
		if okS && okW {
			p.Seasons = &model.SeasonWeights{Summer: summer, Winter: winter}
		}
		pois = append(pois, p)
	}

	if reduced > 0 || skipped > 0 {
		zap.L().Debug("geoio: POI geometries adjusted",
			zap.String("path", path),
			zap.Int("reduced_to_point", reduced),
			zap.Int("skipped", skipped),
		)
	}
	return pois, nil
}

// ReadBoundary reads a city boundary from GeoJSON or a polygon shapefile.
// Multiple polygons are merged into one MultiPolygon.
func ReadBoundary(path string) (geom.T, error) {
	switch DetectFormat(path) {
	case FormatShapefile, FormatShapefileZIP:
		return readShapefileBoundary(path)
	case FormatGeoJSON:
		return readGeoJSONBoundary(path)
	default:
		return nil, eris.Errorf("geoio: unsupported boundary format %s", path)
	}
}

func readGeoJSONBoundary(path string) (geom.T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: read %s", path)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrapf(err, "geoio: parse GeoJSON %s", path)
	}

	var geoms []geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrapf(err, "geoio: parse GeoJSON %s", path)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "geoio: parse GeoJSON %s", path)
		}
		geoms = append(geoms, f.Geometry)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrapf(err, "geoio: parse GeoJSON %s", path)
		}
		geoms = append(geoms, g)
	}

	merged := geom.NewMultiPolygon(geom.XY)
	for _, g := range geoms {
		switch t := g.(type) {
		case *geom.Polygon:
			if err := merged.Push(flatten2D(t)); err != nil {
				return nil, eris.Wrap(err, "geoio: merge boundary")
			}
		case *geom.MultiPolygon:
			for i := 0; i < t.NumPolygons(); i++ {
				if err := merged.Push(flatten2D(t.Polygon(i))); err != nil {
					return nil, eris.Wrap(err, "geoio: merge boundary")
				}
			}
		}
	}
	return singlePolygon(merged, path)
}

// flatten2D drops any Z or M ordinates.
func flatten2D(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	out := geom.NewPolygon(geom.XY)
	for i := 0; i < p.NumLinearRings(); i++ {
		lr := p.LinearRing(i)
		flat := make([]float64, 0, lr.NumCoords()*2)
		for j := 0; j < lr.NumCoords(); j++ {
			c := lr.Coord(j)
			flat = append(flat, c.X(), c.Y())
		}
		_ = out.Push(geom.NewLinearRingFlat(geom.XY, flat))
	}
	return out
}

// ReadNetworkGeoJSON builds a walking network from GeoJSON files in the
// osmnx export layout: Point features are nodes keyed by "osmid", and
// LineString features are edges with "u", "v" and "length" properties.
// Nodes and edges may live in the same file or in separate files. Numeric
// edge properties other than the keys become extra edge weights.
func ReadNetworkGeoJSON(paths ...string) (*network.Graph, error) {
	if len(paths) == 0 {
		return nil, eris.New("geoio: no network files")
	}
	var features []*geojson.Feature
	for _, path := range paths {
		fc, err := readCollection(path)
		if err != nil {
			return nil, err
		}
		features = append(features, fc.Features...)
	}

	b := network.NewBuilder()
	byCoord := make(map[[2]float64]int64)
	var nextID int64

	for _, f := range features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok || pt.Empty() {
			continue
		}
		id, ok := propInt64(f.Properties, "osmid", "id")
		if !ok {
			if id, ok = parseInt64(f.ID); !ok {
				return nil, eris.Errorf("geoio: network node without id at (%v, %v)", pt.X(), pt.Y())
			}
		}
		x, y := pt.X(), pt.Y()
		if px, ok := propFloat(f.Properties, "x"); ok {
			x = px
		}
		if py, ok := propFloat(f.Properties, "y"); ok {
			y = py
		}
		if err := b.AddNode(id, x, y); err != nil {
			return nil, eris.Wrap(err, "geoio: network node")
		}
		byCoord[[2]float64{x, y}] = id
		nextID = max(nextID, id+1)
	}

	endpoint := func(id int64, haveID bool, c geom.Coord) (int64, error) {
		if haveID && b.HasNode(id) {
			return id, nil
		}
		key := [2]float64{c.X(), c.Y()}
		if existing, ok := byCoord[key]; ok && !haveID {
			return existing, nil
		}
		if !haveID {
			id = nextID
			nextID++
		}
		if err := b.AddNode(id, key[0], key[1]); err != nil {
			return 0, err
		}
		byCoord[key] = id
		nextID = max(nextID, id+1)
		return id, nil
	}

	var skipped int
	for _, f := range features {
		ls, ok := f.Geometry.(*geom.LineString)
		if !ok {
			if _, isPoint := f.Geometry.(*geom.Point); !isPoint {
				skipped++
			}
			continue
		}
		if ls.NumCoords() < 2 {
			skipped++
			continue
		}
		u, haveU := propInt64(f.Properties, "u")
		v, haveV := propInt64(f.Properties, "v")
		from, err := endpoint(u, haveU, ls.Coord(0))
		if err != nil {
			return nil, eris.Wrap(err, "geoio: network edge")
		}
		to, err := endpoint(v, haveV, ls.Coord(ls.NumCoords()-1))
		if err != nil {
			return nil, eris.Wrap(err, "geoio: network edge")
		}
		length, ok := propFloat(f.Properties, "length")
		if !ok {
			length = ls.Length()
		}
		e := network.Edge{From: from, To: to, Length: length}
		for k, val := range f.Properties {
			switch k {
			case "u", "v", "key", "length", "osmid":
				continue
			}
			if w, ok := val.(float64); ok {
				if e.Weights == nil {
					e.Weights = make(map[string]float64)
				}
				e.Weights[k] = w
			}
		}
		if err := b.AddEdge(e); err != nil {
			return nil, eris.Wrap(err, "geoio: network edge")
		}
	}
	if skipped > 0 {
		zap.L().Debug("geoio: skipped network features", zap.Int("skipped", skipped))
	}
	return b.Build(), nil
}

func parseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// WritePOIs writes POIs as a point FeatureCollection.
func WritePOIs(path string, pois []model.POI) error {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(pois))}
	for _, p := range pois {
		props := map[string]any{
			"name":     p.Name,
			"category": string(p.Category),
		}
		for k, v := range map[string]string{
			"tourism":  p.Tags.Tourism,
			"amenity":  p.Tags.Amenity,
			"shop":     p.Tags.Shop,
			"leisure":  p.Tags.Leisure,
			"historic": p.Tags.Historic,
		} {
			if v != "" {
				props[k] = v
			}
		}
		if p.Seasons != nil {
			props["weight_summer"] = p.Seasons.Summer
			props["weight_winter"] = p.Seasons.Winter
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         p.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{p.X, p.Y}),
			Properties: props,
		})
	}
	return writeCollection(path, fc)
}

// WriteIsochrones writes isochrone polygons. Isochrones without a polygon
// are left out.
func WriteIsochrones(path string, isos []model.Isochrone) error {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(isos))}
	for _, iso := range isos {
		if iso.Polygon == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       fmt.Sprintf("%s_%g", iso.POIID, iso.BudgetMinutes),
			Geometry: iso.Polygon,
			Properties: map[string]any{
				"poi_id":          iso.POIID,
				"category":        string(iso.Category),
				"budget_minutes":  iso.BudgetMinutes,
				"max_distance":    iso.MaxDistance,
				"reachable_nodes": iso.ReachableNodes,
			},
		})
	}
	return writeCollection(path, fc)
}

// WriteDensity writes every density sample as a point.
func WriteDensity(path string, s *model.DensitySurface) error {
	if s == nil {
		return eris.New("geoio: nil density surface")
	}
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(s.Samples))}
	for _, smp := range s.Samples {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{smp.X, smp.Y}),
			Properties: map[string]any{"density": smp.Density},
		})
	}
	return writeCollection(path, fc)
}

// WriteGrid writes opportunity cells as points.
func WriteGrid(path string, cells []model.OpportunityCell) error {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(cells))}
	for _, c := range cells {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{c.X, c.Y}),
			Properties: map[string]any{
				"grid_id":        c.ID,
				"poi_count":      c.POICount,
				"hotspot_value":  c.HotspotValue,
				"potential":      c.Potential,
				"high_potential": c.HighPotential,
			},
		})
	}
	return writeCollection(path, fc)
}
