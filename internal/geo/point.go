package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// RepresentativePoint returns the centroid of g as (x, y) = (lon, lat).
//
// The true centroid is used for every geometry type, so for concave or
// multi-part shapes the point can fall outside the shape itself. The tract
// join accepts that approximation.
func RepresentativePoint(g geom.T) (float64, float64, error) {
	if g == nil {
		return 0, 0, eris.New("geo: representative point of nil geometry")
	}
	if p, ok := g.(*geom.Point); ok {
		c := p.Coords()
		return c.X(), c.Y(), nil
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geo: centroid")
	}
	return c.X(), c.Y(), nil
}

// ContainsPoint reports whether polygonal geometry g contains (x, y).
// Points on any ring boundary, exterior or hole, count as contained.
// Non-polygonal geometries
// never contain anything.
func ContainsPoint(g geom.T, x, y float64) bool {
	pt := geom.Coord{x, y}
	switch v := g.(type) {
	case *geom.Polygon:
		return inBounds(v, pt) && polygonContains(v, pt)
	case *geom.MultiPolygon:
		if !inBounds(v, pt) {
			return false
		}
		for i := 0; i < v.NumPolygons(); i++ {
			if polygonContains(v.Polygon(i), pt) {
				return true
			}
		}
	}
	return false
}

func inBounds(g geom.T, pt geom.Coord) bool {
	return len(g.FlatCoords()) > 0 && g.Bounds().OverlapsPoint(g.Layout(), pt)
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		hole := p.LinearRing(i).FlatCoords()
		if xy.IsPointInRing(p.Layout(), pt, hole) && !xy.IsOnLine(p.Layout(), pt, hole) {
			return false
		}
	}
	return true
}
