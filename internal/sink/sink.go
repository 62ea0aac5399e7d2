// Package sink writes enriched tables to their destination.
package sink

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/census-enrich/internal/db"
	"github.com/sells-group/census-enrich/internal/model"
)

// Sink persists a table.
type Sink interface {
	Write(ctx context.Context, t *model.Table) (int64, error)
	Close() error
}

// Config selects and configures a sink.
type Config struct {
	Driver      string // "geojson" or "postgres"
	Path        string
	DatabaseURL string
	Schema      string
	Table       string
	Replace     bool
}

// New builds the sink named by cfg.Driver. An empty driver defaults to
// geojson.
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "geojson":
		if cfg.Path == "" {
			return nil, eris.New("sink: geojson output requires a path")
		}
		return &GeoJSON{Path: cfg.Path}, nil
	case "postgres", "postgis":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("sink: postgres output requires a database url")
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Postgres{Pool: pool, Schema: cfg.Schema, Table: cfg.Table, Replace: cfg.Replace}, nil
	default:
		return nil, eris.Errorf("sink: unknown driver %q", cfg.Driver)
	}
}

// jsonSafe returns properties with NaN and infinities replaced by nil.
func jsonSafe(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch x := v.(type) {
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				out[k] = nil
				continue
			}
		case float32:
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				out[k] = nil
				continue
			}
		}
		out[k] = v
	}
	return out
}
