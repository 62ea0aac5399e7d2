package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/census-enrich/internal/geo"
	"github.com/sells-group/census-enrich/internal/model"
)

func enrichedTable() *model.Table {
	return &model.Table{
		Columns: []string{model.ColGEOID, "OwnedPerc", "Owned"},
		SRID:    4326,
		Features: []model.Feature{
			{
				ID:         "b1",
				Geometry:   geom.NewPointFlat(geom.XY, []float64{-75.16, 39.95}),
				Properties: map[string]any{model.ColGEOID: "42101000100", "OwnedPerc": 0.8, "Owned": 1},
			},
			{
				ID:         "b2",
				Geometry:   nil,
				Properties: map[string]any{model.ColGEOID: nil, "OwnedPerc": math.NaN(), "Owned": 0},
			},
		},
	}
}

func TestGeoJSON_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "enriched.geojson")
	s := &GeoJSON{Path: path}

	n, err := s.Write(context.Background(), enrichedTable())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc), "output is valid JSON")

	tbl, err := geo.ParseGeoJSON(data)
	require.NoError(t, err)
	require.Len(t, tbl.Features, 2)
	assert.Equal(t, "b1", tbl.Features[0].ID)
	assert.Equal(t, "42101000100", tbl.Features[0].GEOID())
	assert.Equal(t, 0.8, tbl.Features[0].Properties["OwnedPerc"])
	assert.Nil(t, tbl.Features[1].Properties["OwnedPerc"], "NaN is written as null")
	assert.Nil(t, tbl.Features[1].Geometry)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestGeoJSON_CanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched.geojson")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&GeoJSON{Path: path}).Write(ctx, enrichedTable())
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestRows(t *testing.T) {
	rows, err := Rows(enrichedTable())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "b1", rows[0][0])
	assert.Equal(t, "42101000100", rows[0][1])
	assert.NotEmpty(t, rows[0][2])
	assert.JSONEq(t, `{"GEOID":"42101000100","OwnedPerc":0.8,"Owned":1}`, string(rows[0][3].([]byte)))

	assert.Nil(t, rows[1][1])
	assert.Nil(t, rows[1][2])
	assert.JSONEq(t, `{"GEOID":null,"OwnedPerc":null,"Owned":0}`, string(rows[1][3].([]byte)))
}

func TestPostgres_Write(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "census"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "census"."buildings"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`TRUNCATE "census"."buildings"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"census", "buildings"}, copyColumns).WillReturnResult(2)

	s := &Postgres{Pool: mock, Schema: "census", Table: "buildings", Replace: true}
	n, err := s.Write(context.Background(), enrichedTable())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DefaultsAndNoTruncate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "public"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."enriched_buildings"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "enriched_buildings"}, copyColumns).WillReturnResult(2)

	s := &Postgres{Pool: mock}
	_, err = s.Write(context.Background(), enrichedTable())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA`).WillReturnError(fmt.Errorf("permission denied"))

	_, err = (&Postgres{Pool: mock}).Write(context.Background(), enrichedTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink: migrate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{Path: "out.geojson"})
	require.NoError(t, err)
	assert.IsType(t, &GeoJSON{}, s)

	_, err = New(context.Background(), Config{Driver: "geojson"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Driver: "postgres"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Driver: "parquet"})
	assert.Error(t, err)
}
