// Package geo normalizes feature tables to EPSG:4326 and answers the
// point/polygon questions the tract join needs.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/census-enrich/internal/model"
)

// Coordinate references understood by Reproject.
const (
	SRIDUnknown     = 0
	SRIDWGS84       = 4326
	SRIDNAD83       = 4269
	SRIDWebMercator = 3857
)

const earthRadius = 6378137.0

// ErrUnsupportedCRS is returned for source references Reproject cannot convert.
var ErrUnsupportedCRS = eris.New("geo: unsupported coordinate reference")

// IsCanonical reports whether srid needs no coordinate rewrite to become
// EPSG:4326. An unset SRID is taken as already geographic (GeoJSON default).
// NAD83 is treated as WGS84: the datum shift is well under tract resolution.
func IsCanonical(srid int) bool {
	switch srid {
	case SRIDUnknown, SRIDWGS84, SRIDNAD83:
		return true
	default:
		return false
	}
}

// Reproject returns a copy of t with every geometry in EPSG:4326. The input
// table is not modified. Reprojecting a canonical table leaves coordinates
// untouched.
func Reproject(t *model.Table) (*model.Table, error) {
	out := t.Clone()
	out.SRID = SRIDWGS84

	if IsCanonical(t.SRID) {
		return out, nil
	}

	var fn func(x, y float64) (float64, float64)
	switch t.SRID {
	case SRIDWebMercator:
		fn = webMercatorToLonLat
	default:
		return nil, eris.Wrapf(ErrUnsupportedCRS, "geo: reproject from EPSG:%d", t.SRID)
	}

	for i := range out.Features {
		g := out.Features[i].Geometry
		if g == nil {
			continue
		}
		pg, err := transformGeometry(g, fn)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: reproject feature %d", i)
		}
		out.Features[i].Geometry = pg
	}
	return out, nil
}

// webMercatorToLonLat inverts the spherical mercator projection.
func webMercatorToLonLat(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// transformGeometry clones g and applies fn to every XY pair.
func transformGeometry(g geom.T, fn func(x, y float64) (float64, float64)) (geom.T, error) {
	var out geom.T
	switch v := g.(type) {
	case *geom.Point:
		out = v.Clone().SetSRID(SRIDWGS84)
	case *geom.LineString:
		out = v.Clone().SetSRID(SRIDWGS84)
	case *geom.Polygon:
		out = v.Clone().SetSRID(SRIDWGS84)
	case *geom.MultiPoint:
		out = v.Clone().SetSRID(SRIDWGS84)
	case *geom.MultiLineString:
		out = v.Clone().SetSRID(SRIDWGS84)
	case *geom.MultiPolygon:
		out = v.Clone().SetSRID(SRIDWGS84)
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, sub := range v.Geoms() {
			ts, err := transformGeometry(sub, fn)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(ts); err != nil {
				return nil, eris.Wrap(err, "geo: rebuild geometry collection")
			}
		}
		return gc.SetSRID(SRIDWGS84), nil
	default:
		return nil, eris.Errorf("geo: unsupported geometry type %T", g)
	}

	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = fn(flat[i], flat[i+1])
	}
	return out, nil
}
