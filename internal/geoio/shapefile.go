package geoio

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/network"
)

// shapeReader is the read side shared by *shp.Reader and *shp.ZipReader.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

// openShapefile opens a .shp file, a directory holding one, or a ZIP
// archive holding one.
func openShapefile(path string) (shapeReader, error) {
	switch DetectFormat(path) {
	case FormatShapefileZIP:
		r, err := shp.OpenZip(path)
		if err != nil {
			return nil, eris.Wrapf(err, "geoio: open shapefile archive %s", path)
		}
		return r, nil
	case FormatShapefile:
		if !strings.HasSuffix(strings.ToLower(path), ".shp") {
			found, err := findFileByExt(path, ".shp")
			if err != nil {
				return nil, err
			}
			path = found
		}
		r, err := shp.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "geoio: open shapefile %s", path)
		}
		return r, nil
	default:
		return nil, eris.Errorf("geoio: %s is not a shapefile", path)
	}
}

// fieldIndexes maps lower-cased field names to their column.
func fieldIndexes(r shapeReader) map[string]int {
	fields := r.Fields()
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[strings.ToLower(strings.TrimSpace(f.String()))] = i
	}
	return idx
}

func attribute(r shapeReader, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(r.Attribute(i), "\x00"))
}

// parts splits a multi-part shape into its point runs.
func parts(numParts int32, starts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := starts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = starts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

func flatPoints(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

// polygonToGeom converts a shapefile polygon to go-geom. Shapefile outer
// rings run clockwise and holes counter-clockwise; each hole is attached to
// the outer ring preceding it.
func polygonToGeom(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	var cur *geom.Polygon
	flush := func() {
		if cur == nil {
			return
		}
		if err := mp.Push(cur); err != nil {
			zap.L().Debug("geoio: skipping malformed polygon part", zap.Error(err))
		}
		cur = nil
	}
	for i, ring := range parts(p.NumParts, p.Parts, p.Points) {
		if len(ring) < 4 {
			zap.L().Debug("geoio: skipping short ring", zap.Int("part", i), zap.Int("points", len(ring)))
			continue
		}
		flat := flatPoints(ring)
		lr := geom.NewLinearRingFlat(geom.XY, flat)
		hole := xy.IsRingCounterClockwise(geom.XY, flat) && cur != nil
		if !hole {
			flush()
			cur = geom.NewPolygon(geom.XY)
		}
		if err := cur.Push(lr); err != nil {
			zap.L().Debug("geoio: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// readShapefileBoundary merges every polygon record into one boundary.
func readShapefileBoundary(path string) (geom.T, error) {
	r, err := openShapefile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	merged := geom.NewMultiPolygon(geom.XY)
	for r.Next() {
		_, shape := r.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		mp := polygonToGeom(p)
		if mp == nil {
			continue
		}
		for i := 0; i < mp.NumPolygons(); i++ {
			if err := merged.Push(mp.Polygon(i)); err != nil {
				return nil, eris.Wrap(err, "geoio: merge boundary")
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "geoio: read shapefile %s", path)
	}
	return singlePolygon(merged, path)
}

func singlePolygon(mp *geom.MultiPolygon, path string) (geom.T, error) {
	switch mp.NumPolygons() {
	case 0:
		return nil, eris.Errorf("geoio: no polygon in %s", path)
	case 1:
		return mp.Polygon(0), nil
	default:
		return mp, nil
	}
}

// ReadNetworkShapefile builds a walking network from a polyline shapefile.
// Every part becomes one edge between its first and last vertex; vertices
// with identical coordinates are the same node. The edge length comes from
// a "length" attribute when present and otherwise from the part geometry.
func ReadNetworkShapefile(path string) (*network.Graph, error) {
	r, err := openShapefile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	idx := fieldIndexes(r)
	b := network.NewBuilder()
	ids := make(map[[2]float64]int64)
	node := func(p shp.Point) (int64, error) {
		key := [2]float64{p.X, p.Y}
		if id, ok := ids[key]; ok {
			return id, nil
		}
		id := int64(len(ids))
		if err := b.AddNode(id, p.X, p.Y); err != nil {
			return 0, err
		}
		ids[key] = id
		return id, nil
	}

	var skipped int
	for r.Next() {
		_, shape := r.Shape()
		pl, ok := shape.(*shp.PolyLine)
		if !ok {
			skipped++
			continue
		}
		attrLen, attrErr := strconv.ParseFloat(attribute(r, idx, "length"), 64)
		runs := parts(pl.NumParts, pl.Parts, pl.Points)
		for _, run := range runs {
			if len(run) < 2 {
				skipped++
				continue
			}
			from, err := node(run[0])
			if err != nil {
				return nil, eris.Wrapf(err, "geoio: network node in %s", path)
			}
			to, err := node(run[len(run)-1])
			if err != nil {
				return nil, eris.Wrapf(err, "geoio: network node in %s", path)
			}
			length := polylineLength(run)
			if attrErr == nil && len(runs) == 1 {
				length = attrLen
			}
			if err := b.AddEdge(network.Edge{From: from, To: to, Length: length}); err != nil {
				return nil, eris.Wrapf(err, "geoio: network edge in %s", path)
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "geoio: read shapefile %s", path)
	}
	if skipped > 0 {
		zap.L().Debug("geoio: skipped network records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return b.Build(), nil
}

func polylineLength(pts []shp.Point) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += math.Hypot(pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y)
	}
	return l
}

// shapeWriter is a *shp.Writer whose attribute table ends up next to the
// .shp file. go-shp v0.1.1 creates the table as "<base>dbf" without the dot,
// so Close moves it to "<base>.dbf".
type shapeWriter struct {
	*shp.Writer
	base string
}

func createShapefile(path string, t shp.ShapeType) (*shapeWriter, error) {
	w, err := shp.Create(path, t)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: create shapefile %s", path)
	}
	base := path
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		base = path[:len(path)-4]
	}
	return &shapeWriter{Writer: w, base: base}, nil
}

// Close flushes the headers and renames the attribute table.
func (w *shapeWriter) Close() error {
	w.Writer.Close()
	misplaced := w.base + "dbf"
	if _, err := os.Stat(misplaced); err != nil {
		return nil
	}
	if err := os.Rename(misplaced, w.base+".dbf"); err != nil {
		return eris.Wrapf(err, "geoio: move attribute table for %s", w.base)
	}
	return nil
}

// WriteCellsShapefile writes opportunity cells as a point shapefile.
func WriteCellsShapefile(path string, cells []model.OpportunityCell) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}
	w, err := createShapefile(path, shp.POINT)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	fields := []shp.Field{
		shp.StringField("grid_id", 32),
		shp.NumberField("poi_count", 10),
		shp.FloatField("hotspot", 24, 12),
		shp.FloatField("potential", 12, 6),
		shp.NumberField("high_pot", 1),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "geoio: set shapefile fields")
	}
	for _, c := range cells {
		row := int(w.Write(&shp.Point{X: c.X, Y: c.Y}))
		high := 0
		if c.HighPotential {
			high = 1
		}
		for i, v := range []any{c.ID, c.POICount, c.HotspotValue, c.Potential, high} {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "geoio: write attribute %s of %s", fields[i].String(), c.ID)
			}
		}
	}
	return nil
}
