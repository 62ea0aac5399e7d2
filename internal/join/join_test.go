package join

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/census-enrich/internal/model"
)

func box(t *testing.T, minX, minY, maxX, maxY float64) *geom.Polygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	ring := geom.NewLinearRingFlat(geom.XY, []float64{minX, minY, minX, maxY, maxX, maxY, maxX, minY, minX, minY})
	require.NoError(t, p.Push(ring))
	return p
}

func point(x, y float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{x, y})
}

func fixtures(t *testing.T) ([]model.Tract, *model.StatsTable) {
	t.Helper()
	tracts := []model.Tract{
		{GEOID: "42101000100", Name: "Census Tract 1", Geometry: box(t, 0, 0, 1, 1)},
		{GEOID: "42101000200", Name: "Census Tract 2", Geometry: box(t, 1, 0, 2, 1)},
		{GEOID: "42101000300", Name: "Census Tract 3", Geometry: box(t, 2, 0, 3, 1)},
	}
	stats := &model.StatsTable{
		Year:  2020,
		State: "42",
		Codes: []string{"B25002_002E", "B25003_003E"},
		Rows: []model.TractStats{
			{GEOID: "42101000100", Name: "Census Tract 1; Philadelphia", Values: map[string]float64{"B25002_002E": 80, "B25003_003E": 20}},
			{GEOID: "42101000200", Name: "Census Tract 2; Philadelphia", Values: map[string]float64{"B25002_002E": 10, "B25003_003E": math.NaN()}},
			{GEOID: "42101999900", Name: "orphan", Values: map[string]float64{"B25002_002E": 1}},
		},
	}
	return tracts, stats
}

func TestAttachBoundaries_InnerJoin(t *testing.T) {
	tracts, stats := fixtures(t)

	recs := AttachBoundaries(tracts, stats)
	require.Len(t, recs, 2)
	assert.Equal(t, "42101000100", recs[0].GEOID)
	assert.Equal(t, 80.0, recs[0].Stats.Values["B25002_002E"])
	assert.Equal(t, "42101000200", recs[1].GEOID)
}

func TestJoin_InnerDropsUnmatched(t *testing.T) {
	tracts, stats := fixtures(t)
	features := &model.Table{
		Columns: []string{"height"},
		Features: []model.Feature{
			{ID: "a", Geometry: point(0.5, 0.5), Properties: map[string]any{"height": 10.0}},
			{ID: "b", Geometry: point(1.5, 0.5), Properties: map[string]any{"height": 4.0}},
			{ID: "c", Geometry: point(2.5, 0.5), Properties: map[string]any{"height": 7.0}}, // tract without stats
			{ID: "d", Geometry: point(9, 9), Properties: map[string]any{"height": 1.0}},
			{ID: "e", Geometry: nil, Properties: map[string]any{}},
		},
	}

	out, sum, err := Join(features, tracts, stats, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"height", model.ColGEOID, ColTractName, "B25002_002E", "B25003_003E"}, out.Columns)
	require.Len(t, out.Features, 2)
	assert.Equal(t, "a", out.Features[0].ID)
	assert.Equal(t, "42101000100", out.Features[0].GEOID())
	assert.Equal(t, "Census Tract 1; Philadelphia", out.Features[0].Properties[ColTractName])
	assert.Equal(t, 80.0, out.Features[0].Properties["B25002_002E"])
	assert.Equal(t, 10.0, out.Features[0].Properties["height"])

	assert.Equal(t, "b", out.Features[1].ID)
	assert.True(t, math.IsNaN(out.Features[1].Float("B25003_003E")))

	assert.Equal(t, &Summary{Features: 5, Matched: 2, Unmatched: 3, PointErrors: 1}, sum)

	_, touched := features.Features[0].Properties[model.ColGEOID]
	assert.False(t, touched, "input feature is not modified")
}

func TestJoin_KeepUnmatched(t *testing.T) {
	tracts, stats := fixtures(t)
	features := &model.Table{
		Features: []model.Feature{
			{ID: "in", Geometry: point(0.5, 0.5), Properties: map[string]any{}},
			{ID: "out", Geometry: point(9, 9), Properties: map[string]any{}},
		},
	}

	out, sum, err := Join(features, tracts, stats, Options{KeepUnmatched: true})
	require.NoError(t, err)
	require.Len(t, out.Features, 2)
	assert.Equal(t, "out", out.Features[1].ID)
	assert.Equal(t, "", out.Features[1].GEOID())
	assert.Nil(t, out.Features[1].Properties["B25002_002E"])
	assert.Equal(t, 1, sum.Unmatched)
}

func TestSpatial_FirstContainingTractWins(t *testing.T) {
	overlapping := []model.TractRecord{
		{Tract: model.Tract{GEOID: "first", Geometry: box(t, 0, 0, 2, 2)}, Stats: model.TractStats{Values: map[string]float64{"x": 1}}},
		{Tract: model.Tract{GEOID: "second", Geometry: box(t, 0, 0, 2, 2)}, Stats: model.TractStats{Values: map[string]float64{"x": 2}}},
	}
	features := &model.Table{Features: []model.Feature{{ID: "p", Geometry: box(t, 0.5, 0.5, 1.5, 1.5), Properties: map[string]any{}}}}

	out, _, err := Spatial(features, overlapping, Options{})
	require.NoError(t, err)
	require.Len(t, out.Features, 1)
	assert.Equal(t, "first", out.Features[0].GEOID())
	assert.Equal(t, 1.0, out.Features[0].Properties["x"])
	assert.Equal(t, []string{model.ColGEOID, ColTractName, "x"}, out.Columns)
}

func TestSpatial_NilTable(t *testing.T) {
	_, _, err := Spatial(nil, nil, Options{})
	assert.Error(t, err)
}
