package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/db"
	"github.com/sells-group/census-enrich/internal/geo"
	"github.com/sells-group/census-enrich/internal/model"
)

const (
	defaultSchema = "public"
	defaultTable  = "enriched_buildings"
)

var copyColumns = []string{"feature_id", "geoid", "geom", "properties"}

// Postgres writes features into a PostGIS table: EWKB geometry in EPSG:4326
// and every attribute in a JSONB column.
type Postgres struct {
	Pool    db.Pool
	Schema  string
	Table   string
	Replace bool // truncate before loading
}

func (s *Postgres) ident() pgx.Identifier {
	schema, table := s.Schema, s.Table
	if schema == "" {
		schema = defaultSchema
	}
	if table == "" {
		table = defaultTable
	}
	return pgx.Identifier{schema, table}
}

// Migrate creates the schema and table when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	ident := s.ident()
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{ident[0]}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	feature_id TEXT NOT NULL,
	geoid      TEXT,
	geom       geometry(Geometry, 4326),
	properties JSONB NOT NULL
)`, ident.Sanitize()),
	}
	for _, stmt := range stmts {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sink: migrate %s", ident.Sanitize())
		}
	}
	return nil
}

// Write migrates, optionally truncates, and COPYs every feature of t.
func (s *Postgres) Write(ctx context.Context, t *model.Table) (int64, error) {
	if err := s.Migrate(ctx); err != nil {
		return 0, err
	}
	ident := s.ident()

	if s.Replace {
		if _, err := s.Pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, ident.Sanitize())); err != nil {
			return 0, eris.Wrapf(err, "sink: truncate %s", ident.Sanitize())
		}
	}

	rows, err := Rows(t)
	if err != nil {
		return 0, err
	}

	n, err := db.CopyFromSchema(ctx, s.Pool, ident[0], ident[1], copyColumns, rows, 0)
	if err != nil {
		return n, err
	}
	zap.L().Info("sink: wrote postgres", zap.String("table", ident.Sanitize()), zap.Int64("rows", n))
	return n, nil
}

// Rows converts t to COPY rows in copyColumns order. A missing GEOID is NULL.
func Rows(t *model.Table) ([][]any, error) {
	rows := make([][]any, 0, len(t.Features))
	for _, f := range t.Features {
		wkb, err := geo.EncodeEWKB(f.Geometry, 4326)
		if err != nil {
			return nil, eris.Wrapf(err, "sink: feature %s", f.ID)
		}
		props, err := json.Marshal(jsonSafe(f.Properties))
		if err != nil {
			return nil, eris.Wrapf(err, "sink: marshal properties of %s", f.ID)
		}
		var geoid any
		if g := f.GEOID(); g != "" {
			geoid = g
		}
		rows = append(rows, []any{f.ID, geoid, wkb, props})
	}
	return rows, nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}
