package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB renders a geometry as little-endian EWKB tagged with srid, the
// form PostGIS accepts on COPY. A nil geometry encodes to nil.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	tagged, err := withSRID(g, srid)
	if err != nil {
		return nil, err
	}

	data, err := ewkb.Marshal(tagged, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// withSRID returns a copy of g carrying srid.
func withSRID(g geom.T, srid int) (geom.T, error) {
	switch v := g.(type) {
	case *geom.Point:
		return v.Clone().SetSRID(srid), nil
	case *geom.LineString:
		return v.Clone().SetSRID(srid), nil
	case *geom.Polygon:
		return v.Clone().SetSRID(srid), nil
	case *geom.MultiPoint:
		return v.Clone().SetSRID(srid), nil
	case *geom.MultiLineString:
		return v.Clone().SetSRID(srid), nil
	case *geom.MultiPolygon:
		return v.Clone().SetSRID(srid), nil
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		if err := gc.Push(v.Geoms()...); err != nil {
			return nil, eris.Wrap(err, "geo: copy geometry collection")
		}
		return gc.SetSRID(srid), nil
	default:
		return nil, eris.Errorf("geo: unsupported geometry type %T", g)
	}
}
