package geo

import (
	"cmp"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Contains reports whether (x, y) lies strictly inside a polygon or
// multipolygon. Points on a ring and points inside holes are outside.
func Contains(g geom.T, x, y float64) (bool, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, x, y), nil
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), x, y) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, eris.Errorf("geo: unsupported boundary geometry %T", g)
	}
}

func polygonContains(p *geom.Polygon, x, y float64) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	pt := geom.Coord{x, y}
	layout := p.Layout()
	if xy.LocatePointInRing(layout, pt, p.LinearRing(0).FlatCoords()) != location.Interior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, pt, p.LinearRing(i).FlatCoords()) != location.Exterior {
			return false
		}
	}
	return true
}

// InteriorPoint returns a point strictly inside p: the midpoint of the
// widest interior span of the horizontal line through the middle of its
// bounding box. Unlike the bbox center it stays inside concave shapes and
// off holes. ok is false for empty or zero-area polygons.
func InteriorPoint(p *geom.Polygon) (x, y float64, ok bool) {
	if p == nil || p.NumLinearRings() == 0 {
		return 0, 0, false
	}
	b := p.Bounds()
	if b.IsEmpty() {
		return 0, 0, false
	}
	y = (b.Min(1) + b.Max(1)) / 2

	var xs []float64
	stride := p.Stride()
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		for j := stride; j+1 < len(flat); j += stride {
			x1, y1 := flat[j-stride], flat[j-stride+1]
			x2, y2 := flat[j], flat[j+1]
			// half-open test so a vertex on the line is counted once
			if (y1 <= y) == (y2 <= y) {
				continue
			}
			xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
	}
	slices.Sort(xs)

	widest := 0.0
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > widest {
			widest = w
			x = (xs[i] + xs[i+1]) / 2
		}
	}
	if widest == 0 || !polygonContains(p, x, y) {
		return 0, 0, false
	}
	return x, y, true
}

// ConvexHull returns the convex hull of the given XY coordinates as a
// polygon with a counter-clockwise shell. ok is false when fewer than three
// distinct coordinates are given or all of them are collinear, since the
// hull is then a point or a line. Every input coordinate is covered by the
// returned polygon; collinear points on an edge stay in the shell.
func ConvexHull(coords []geom.Coord) (hull *geom.Polygon, ok bool) {
	uniq := dedupe(coords)
	if len(uniq) < 3 || collinear(uniq) {
		return nil, false
	}
	slices.SortFunc(uniq, func(a, b geom.Coord) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})

	// Andrew's monotone chain: lower hull left to right, upper hull back.
	shell := make([]geom.Coord, 0, 2*len(uniq))
	for _, c := range uniq {
		for len(shell) >= 2 && cross(shell[len(shell)-2], shell[len(shell)-1], c) < 0 {
			shell = shell[:len(shell)-1]
		}
		shell = append(shell, c)
	}
	lower := len(shell) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		c := uniq[i]
		for len(shell) >= lower && cross(shell[len(shell)-2], shell[len(shell)-1], c) < 0 {
			shell = shell[:len(shell)-1]
		}
		shell = append(shell, c)
	}
	// The last point repeats the first and closes the ring.

	flat := make([]float64, 0, len(shell)*2)
	for _, c := range shell {
		flat = append(flat, c[0], c[1])
	}
	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	if math.Abs(poly.Area()) == 0 {
		return nil, false
	}
	return poly, true
}

// cross is the z component of (a-o) x (b-o); positive for a left turn.
func cross(o, a, b geom.Coord) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func dedupe(coords []geom.Coord) []geom.Coord {
	seen := make(map[[2]float64]struct{}, len(coords))
	out := make([]geom.Coord, 0, len(coords))
	for _, c := range coords {
		k := [2]float64{c[0], c[1]}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, geom.Coord{c[0], c[1]})
	}
	return out
}

// collinear reports whether every coordinate lies on the line through the
// first two.
func collinear(coords []geom.Coord) bool {
	a, b := coords[0], coords[1]
	for _, c := range coords[2:] {
		if cross(a, b, c) != 0 {
			return false
		}
	}
	return true
}
