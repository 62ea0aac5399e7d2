package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/census-enrich/internal/geo/geotest"
	"github.com/sells-group/census-enrich/internal/model"
)

// square returns a closed clockwise ring around [minX,maxX]x[minY,maxY].
func square(minX, minY, maxX, maxY float64) []float64 {
	return []float64{minX, minY, minX, maxY, maxX, maxY, maxX, minY, minX, minY}
}

func polygon(t *testing.T, rings ...[]float64) *geom.Polygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	for _, r := range rings {
		require.NoError(t, p.Push(geom.NewLinearRingFlat(geom.XY, r)))
	}
	return p
}

func TestReproject_CanonicalIsIdentity(t *testing.T) {
	in := &model.Table{
		SRID: SRIDWGS84,
		Features: []model.Feature{
			{ID: "a", Geometry: geom.NewPointFlat(geom.XY, []float64{-76.123456789, 41.987654321})},
			{ID: "b", Geometry: polygon(t, square(-75.1, 39.9, -75.0, 40.0))},
		},
	}

	out, err := Reproject(in)
	require.NoError(t, err)
	require.Len(t, out.Features, 2)
	for i := range in.Features {
		assert.Equal(t, in.Features[i].Geometry.FlatCoords(), out.Features[i].Geometry.FlatCoords())
	}

	again, err := Reproject(out)
	require.NoError(t, err)
	for i := range out.Features {
		assert.Equal(t, out.Features[i].Geometry.FlatCoords(), again.Features[i].Geometry.FlatCoords())
	}
	assert.Equal(t, SRIDWGS84, again.SRID)
}

func TestReproject_WebMercator(t *testing.T) {
	in := &model.Table{
		SRID: SRIDWebMercator,
		Features: []model.Feature{
			{ID: "origin", Geometry: geom.NewPointFlat(geom.XY, []float64{0, 0})},
			{ID: "philly", Geometry: geom.NewPointFlat(geom.XY, []float64{-8367358.0, 4858000.0})},
		},
	}

	out, err := Reproject(in)
	require.NoError(t, err)
	assert.Equal(t, SRIDWGS84, out.SRID)

	origin := out.Features[0].Geometry.FlatCoords()
	assert.InDelta(t, 0, origin[0], 1e-12)
	assert.InDelta(t, 0, origin[1], 1e-12)

	philly := out.Features[1].Geometry.FlatCoords()
	assert.InDelta(t, -75.165, philly[0], 0.01)
	assert.InDelta(t, 39.95, philly[1], 0.01)

	// Input coordinates are untouched.
	assert.Equal(t, []float64{-8367358.0, 4858000.0}, in.Features[1].Geometry.FlatCoords())
}

func TestReproject_Unsupported(t *testing.T) {
	in := &model.Table{SRID: 2272, Features: []model.Feature{{Geometry: geom.NewPointFlat(geom.XY, []float64{1, 2})}}}
	_, err := Reproject(in)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedCRS))
}

func TestRepresentativePoint(t *testing.T) {
	x, y, err := RepresentativePoint(geom.NewPointFlat(geom.XY, []float64{-76, 41}))
	require.NoError(t, err)
	assert.Equal(t, -76.0, x)
	assert.Equal(t, 41.0, y)

	x, y, err = RepresentativePoint(polygon(t, square(0, 0, 2, 2)))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x, 1e-9)
	assert.InDelta(t, 1.0, y, 1e-9)

	_, _, err = RepresentativePoint(nil)
	assert.Error(t, err)
}

func TestContainsPoint(t *testing.T) {
	hole := []float64{0.25, 0.25, 0.75, 0.25, 0.75, 0.75, 0.25, 0.75, 0.25, 0.25}
	p := polygon(t, square(0, 0, 1, 1), hole)

	assert.True(t, ContainsPoint(p, 0.1, 0.1))
	assert.False(t, ContainsPoint(p, 0.5, 0.5), "point inside the hole")
	assert.False(t, ContainsPoint(p, 2, 2))
	assert.True(t, ContainsPoint(p, 0, 0.5), "point on the exterior boundary")
	assert.True(t, ContainsPoint(p, 0.25, 0.5), "point on the hole boundary")

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(polygon(t, square(0, 0, 1, 1))))
	require.NoError(t, mp.Push(polygon(t, square(5, 5, 6, 6))))
	assert.True(t, ContainsPoint(mp, 5.5, 5.5))
	assert.False(t, ContainsPoint(mp, 3, 3))

	assert.False(t, ContainsPoint(geom.NewPointFlat(geom.XY, []float64{0, 0}), 0, 0))
	assert.False(t, ContainsPoint(nil, 0, 0))
}

func TestParseGeoJSON(t *testing.T) {
	doc := `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "id": 7, "geometry": {"type": "Point", "coordinates": [-76.0, 41.0]},
			 "properties": {"height": 12.5, "use": "residential"}},
			{"type": "Feature", "geometry": null, "properties": {"use": "garage", "floors": 1}}
		]
	}`

	tbl, err := ParseGeoJSON([]byte(doc))
	require.NoError(t, err)
	require.Len(t, tbl.Features, 2)

	assert.Equal(t, "7", tbl.Features[0].ID)
	assert.Equal(t, "1", tbl.Features[1].ID)
	assert.Equal(t, []string{"height", "use", "floors"}, tbl.Columns)
	assert.Equal(t, 12.5, tbl.Features[0].Properties["height"])
	assert.Nil(t, tbl.Features[1].Geometry)

	pt, ok := tbl.Features[0].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{-76.0, 41.0}, pt.FlatCoords())
}

func TestParseGeoJSON_NotACollection(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{"type": "Feature"}`))
	assert.Error(t, err)
}

func TestReadDataset_Missing(t *testing.T) {
	_, err := ReadDataset(filepath.Join(t.TempDir(), "nope.geojson"), 0)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInputNotFound))
}

func TestReadDataset_UnsupportedExt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))
	_, err := ReadDataset(path, 0)
	assert.Error(t, err)
}

func TestReadDataset_GeoJSONSetsSRID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.geojson")
	doc := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tbl, err := ReadDataset(path, SRIDWebMercator)
	require.NoError(t, err)
	assert.Equal(t, SRIDWebMercator, tbl.SRID)
}

func TestReadShapefile_PolygonWithHole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracts.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("GEOID", 11),
		shp.StringField("NAMELSAD", 40),
	}))

	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	inner := []shp.Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75}, {X: 0.25, Y: 0.25}}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{outer, inner}))
	n := w.Write(&poly)
	require.NoError(t, w.WriteAttribute(int(n), 0, "42101000100"))
	require.NoError(t, w.WriteAttribute(int(n), 1, "Census Tract 1"))
	geotest.CloseShapefile(t, w, path)

	tbl, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, tbl.Features, 1)
	assert.Equal(t, []string{"GEOID", "NAMELSAD"}, tbl.Columns)
	assert.Equal(t, "42101000100", tbl.Features[0].Properties["GEOID"])
	assert.Equal(t, "Census Tract 1", tbl.Features[0].Properties["NAMELSAD"])

	mp, ok := tbl.Features[0].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())

	assert.True(t, ContainsPoint(mp, 0.1, 0.1))
	assert.False(t, ContainsPoint(mp, 0.5, 0.5))
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "missing.shp"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInputNotFound))
}

func TestCodePage(t *testing.T) {
	dir := t.TempDir()
	shpPath := filepath.Join(dir, "a.shp")

	dec, err := codePage(shpPath)
	require.NoError(t, err)
	assert.Nil(t, dec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cpg"), []byte("UTF-8\n"), 0o644))
	dec, err = codePage(shpPath)
	require.NoError(t, err)
	assert.Nil(t, dec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cpg"), []byte("1252"), 0o644))
	dec, err = codePage(shpPath)
	require.NoError(t, err)
	require.NotNil(t, dec)
	s, err := dec.String("Espa\xf1ola")
	require.NoError(t, err)
	assert.Equal(t, "Española", s)
}

func TestEncodeEWKB(t *testing.T) {
	data, err := EncodeEWKB(nil, SRIDWGS84)
	require.NoError(t, err)
	assert.Nil(t, data)

	pt := geom.NewPointFlat(geom.XY, []float64{-75.5, 40.25})
	data, err = EncodeEWKB(pt, SRIDWGS84)
	require.NoError(t, err)
	// NDR byte order, point type with the SRID flag set.
	require.GreaterOrEqual(t, len(data), 9)
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x20}, data[1:5])
	assert.Equal(t, []byte{0xE6, 0x10, 0x00, 0x00}, data[5:9])
	assert.Equal(t, 0, pt.SRID(), "input geometry is not retagged")

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(polygon(t, square(0, 0, 1, 1))))
	data, err = EncodeEWKB(mp, SRIDWGS84)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
