package geoio

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB encodes g as little-endian EWKB tagged with srid. A zero srid
// leaves the geometry's own SRID in place. Returns nil, nil for a nil
// geometry.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	if srid != 0 {
		var err error
		g, err = withSRID(g, srid)
		if err != nil {
			return nil, err
		}
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geoio: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB is the inverse of EncodeEWKB.
func DecodeEWKB(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geoio: decode EWKB")
	}
	return g, nil
}

func withSRID(g geom.T, srid int) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone().SetSRID(srid), nil
	case *geom.LineString:
		return t.Clone().SetSRID(srid), nil
	case *geom.Polygon:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiPoint:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiLineString:
		return t.Clone().SetSRID(srid), nil
	case *geom.MultiPolygon:
		return t.Clone().SetSRID(srid), nil
	default:
		return nil, eris.Errorf("geoio: unsupported geometry %T", g)
	}
}
